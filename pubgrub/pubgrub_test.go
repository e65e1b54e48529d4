package pubgrub

import (
	"context"
	"testing"

	"github.com/pylock-dev/pylock/pep440"
)

// Version isn't comparable (it holds slice fields), so dependency
// tables are keyed by its string form rather than the value itself.
type fakeSource struct {
	versions map[string][]pep440.Version
	deps     map[string]map[string]map[string]pep440.Range
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		versions: map[string][]pep440.Version{},
		deps:     map[string]map[string]map[string]pep440.Range{},
	}
}

func (f *fakeSource) add(pkg, version string, deps map[string]string) {
	v := pep440.MustParse(version)
	f.versions[pkg] = append(f.versions[pkg], v)
	if len(deps) == 0 {
		return
	}
	if f.deps[pkg] == nil {
		f.deps[pkg] = map[string]map[string]pep440.Range{}
	}
	ranges := make(map[string]pep440.Range, len(deps))
	for name, spec := range deps {
		specs, err := pep440.ParseSpecifiers(spec)
		if err != nil {
			panic(err)
		}
		ranges[name] = specs.Range()
	}
	f.deps[pkg][v.String()] = ranges
}

func (f *fakeSource) setRootDeps(deps map[string]pep440.Range) {
	f.deps[RootPackage] = map[string]map[string]pep440.Range{RootVersion.String(): deps}
}

func (f *fakeSource) Versions(_ context.Context, pkg string) ([]pep440.Version, error) {
	return f.versions[pkg], nil
}

func (f *fakeSource) Dependencies(_ context.Context, pkg string, v pep440.Version) (map[string]pep440.Range, error) {
	return f.deps[pkg][v.String()], nil
}

func range_(spec string) pep440.Range {
	specs, err := pep440.ParseSpecifiers(spec)
	if err != nil {
		panic(err)
	}
	return specs.Range()
}

func TestSolveSimpleDependency(t *testing.T) {
	src := newFakeSource()
	src.add("a", "1.0", nil)
	src.add("a", "1.5", nil)
	src.add("a", "2.0", nil)
	src.setRootDeps(map[string]pep440.Range{"a": range_(">=1.0,<2.0")})

	s := NewSolver(src)
	got, err := s.Solve(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	want := pep440.MustParse("1.5")
	if got["a"].Compare(want) != 0 {
		t.Errorf("a = %s, want %s (highest version satisfying the range)", got["a"], want)
	}
}

func TestSolveTransitiveDependency(t *testing.T) {
	src := newFakeSource()
	src.add("a", "1.0", map[string]string{"b": ">=1.0"})
	src.add("b", "1.0", nil)
	src.add("b", "2.0", nil)
	src.setRootDeps(map[string]pep440.Range{"a": range_(">=1.0")})

	s := NewSolver(src)
	got, err := s.Solve(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if got["b"].Compare(pep440.MustParse("2.0")) != 0 {
		t.Errorf("b = %s, want 2.0", got["b"])
	}
}

func TestSolveConflictBacktracks(t *testing.T) {
	// root requires a (any) and b>=1.0; a@2.0 requires b<1.0, a@1.0 has
	// no constraint on b, so the solver must backtrack off a@2.0.
	src := newFakeSource()
	src.add("a", "1.0", nil)
	src.add("a", "2.0", map[string]string{"b": "<1.0"})
	src.add("b", "1.0", nil)
	src.setRootDeps(map[string]pep440.Range{
		"a": range_(">=1.0"),
		"b": range_(">=1.0"),
	})

	s := NewSolver(src)
	got, err := s.Solve(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if got["a"].Compare(pep440.MustParse("1.0")) != 0 {
		t.Errorf("a = %s, want 1.0 (2.0 conflicts with the b>=1.0 root requirement)", got["a"])
	}
	if got["b"].Compare(pep440.MustParse("1.0")) != 0 {
		t.Errorf("b = %s, want 1.0", got["b"])
	}
}

func TestSolveNoVersionsSatisfyProducesNoSolutionError(t *testing.T) {
	src := newFakeSource()
	src.add("a", "1.0", nil)
	src.setRootDeps(map[string]pep440.Range{"a": range_(">=2.0")})

	s := NewSolver(src)
	_, err := s.Solve(t.Context())
	if _, ok := err.(*NoSolutionError); !ok {
		t.Fatalf("got %v (%T), want *NoSolutionError", err, err)
	}
}

func TestTermRelation(t *testing.T) {
	ge1 := Positive(range_(">=1.0"))
	lt2 := Positive(range_("<2.0"))
	if relation(ge1, lt2) != Inconclusive {
		t.Errorf(">=1.0 vs <2.0 should be Inconclusive")
	}
	eq15 := Positive(range_("==1.5"))
	if relation(ge1, eq15) != Satisfied {
		t.Errorf("==1.5 should satisfy >=1.0")
	}
	lt1 := Positive(range_("<1.0"))
	if relation(ge1, lt1) != Contradicted {
		t.Errorf("<1.0 should contradict >=1.0")
	}
}
