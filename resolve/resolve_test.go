package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pylock-dev/pylock"
	"github.com/pylock-dev/pylock/index"
	"github.com/pylock-dev/pylock/marker"
	"github.com/pylock-dev/pylock/pep440"
)

// fakeProvider is an in-memory CandidateProvider: files[name] lists
// the simulated index entries, and deps[name][version] gives the
// Requires-Dist lines a wheel would report.
type fakeProvider struct {
	files map[string][]index.File
	deps  map[string]map[string][]string
}

func (p *fakeProvider) Files(ctx context.Context, name string) ([]index.File, error) {
	return p.files[name], nil
}

func (p *fakeProvider) Metadata(ctx context.Context, name string, v pep440.Version, file index.File) (Metadata, error) {
	return Metadata{RequiresDist: p.deps[name][v.String()]}, nil
}

func wheelFile(name, version string) index.File {
	return index.File{Filename: name + "-" + version + "-py3-none-any.whl"}
}

func newProvider() *fakeProvider {
	return &fakeProvider{files: map[string][]index.File{}, deps: map[string]map[string][]string{}}
}

func (p *fakeProvider) add(name, version string, requires ...string) {
	p.files[name] = append(p.files[name], wheelFile(name, version))
	if p.deps[name] == nil {
		p.deps[name] = map[string][]string{}
	}
	p.deps[name][version] = requires
}

func TestResolveSimpleDependency(t *testing.T) {
	p := newProvider()
	p.add("urllib3", "2.0.0")
	p.add("urllib3", "1.26.0")

	r := NewResolver(p, Options{})
	l, err := r.Resolve(context.Background(), []string{"urllib3>=2.0"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Packages) != 1 || l.Packages[0].Name != "urllib3" || l.Packages[0].Version != "2.0.0" {
		t.Fatalf("got %+v", l.Packages)
	}
}

func TestResolveTransitiveDependency(t *testing.T) {
	p := newProvider()
	p.add("requests", "2.31.0", "urllib3<3,>=1.21.1")
	p.add("urllib3", "2.0.0")
	p.add("urllib3", "1.26.0")

	r := NewResolver(p, Options{})
	l, err := r.Resolve(context.Background(), []string{"requests"}, "")
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]string{}
	for _, pkg := range l.Packages {
		found[pkg.Name] = pkg.Version
	}
	if found["requests"] != "2.31.0" || found["urllib3"] != "2.0.0" {
		t.Fatalf("got %+v", found)
	}
}

func TestResolveExtraPullsInOptionalDependency(t *testing.T) {
	p := newProvider()
	p.add("requests", "2.31.0", "pysocks ; extra == \"socks\"")
	p.add("pysocks", "1.7.1")

	r := NewResolver(p, Options{})
	l, err := r.Resolve(context.Background(), []string{"requests[socks]"}, "")
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]string{}
	for _, pkg := range l.Packages {
		found[pkg.Name] = pkg.Version
	}
	if found["requests"] != "2.31.0" || found["pysocks"] != "1.7.1" {
		t.Fatalf("extra dependency not pulled in: %+v", found)
	}
}

func TestResolveMarkerExcludesDependency(t *testing.T) {
	p := newProvider()
	p.add("pkg", "1.0.0", "colorama ; sys_platform == \"win32\"")
	p.add("colorama", "0.4.6")

	r := NewResolver(p, Options{Environment: marker.Environment{Values: map[string]string{"sys_platform": "linux"}}})
	l, err := r.Resolve(context.Background(), []string{"pkg"}, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, pkg := range l.Packages {
		if pkg.Name == "colorama" {
			t.Fatalf("colorama should have been excluded by the sys_platform marker, got %+v", l.Packages)
		}
	}
}

func TestResolveSkipsYankedUnlessPreferred(t *testing.T) {
	p := newProvider()
	p.files["pkg"] = []index.File{
		{Filename: "pkg-1.0.0-py3-none-any.whl"},
		{Filename: "pkg-1.1.0-py3-none-any.whl", Yanked: true, YankedReason: "security"},
	}
	p.deps["pkg"] = map[string][]string{"1.0.0": nil, "1.1.0": nil}

	r := NewResolver(p, Options{})
	l, err := r.Resolve(context.Background(), []string{"pkg"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if l.Packages[0].Version != "1.0.0" {
		t.Fatalf("expected yanked 1.1.0 to be skipped, got %+v", l.Packages)
	}
}

func TestResolveExcludeNewerCutoff(t *testing.T) {
	p := newProvider()
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p.files["pkg"] = []index.File{
		{Filename: "pkg-1.0.0-py3-none-any.whl", UploadTime: older},
		{Filename: "pkg-2.0.0-py3-none-any.whl", UploadTime: newer},
	}
	p.deps["pkg"] = map[string][]string{"1.0.0": nil, "2.0.0": nil}

	r := NewResolver(p, Options{ExcludeNewer: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	l, err := r.Resolve(context.Background(), []string{"pkg"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if l.Packages[0].Version != "1.0.0" {
		t.Fatalf("expected the post-cutoff version to be excluded, got %+v", l.Packages)
	}
}

func TestResolveNoSolutionWrapsResolutionError(t *testing.T) {
	p := newProvider()
	p.add("a", "1.0.0", "b>=2.0")
	p.add("b", "1.0.0")

	r := NewResolver(p, Options{})
	_, err := r.Resolve(context.Background(), []string{"a"}, "")
	if err == nil {
		t.Fatal("expected an unsatisfiable resolution to error")
	}
	if !errors.Is(err, pylock.ErrResolution) {
		t.Errorf("got %v, want an error of kind pylock.ErrResolution", err)
	}
}

func TestResolvePreReleaseDisallowedByDefault(t *testing.T) {
	p := newProvider()
	p.add("pkg", "1.0.0")
	p.add("pkg", "2.0.0a1")

	r := NewResolver(p, Options{})
	l, err := r.Resolve(context.Background(), []string{"pkg"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if l.Packages[0].Version != "1.0.0" {
		t.Fatalf("pre-release should not be picked without an explicit policy, got %+v", l.Packages)
	}
}
