// Package pubgrub implements the version-set-agnostic core of the
// PubGrub algorithm (spec.md §4.7): incompatibilities, a partial
// solution, unit propagation, and conflict-driven backtracking,
// specialized to PEP 440 version sets rather than a generic Version
// interface.
//
// Grounded in other_examples' contriboss-pubgrub-go (the Term/Source
// shape: a package name plus a version-set constraint, a Source that
// answers Versions/Dependencies) and, per original_source,
// uv-pubgrub/src/lib.rs for the incompatibility/partial-solution/
// conflict-resolution algorithm and golang-dep's solver.go for the
// Go idiom of a decision-level partial solution replayed on
// backtrack.
package pubgrub

import (
	"context"
	"sort"
	"strings"

	"github.com/pylock-dev/pylock/pep440"
)

// RootPackage is the reserved package name a Source must answer for
// Dependencies(ctx, RootPackage, RootVersion): the project's own
// top-level requirements, modeled as PubGrub's virtual root package.
const RootPackage = "<root>"

// RootVersion is the sentinel version passed to Dependencies for
// RootPackage; it is never compared against a real package's versions.
var RootVersion = pep440.Version{}

// Source answers version and dependency queries for the solver. Two
// calls for the same (package, version) must return the same
// dependency set.
type Source interface {
	// Versions returns pkg's known versions, ascending.
	Versions(ctx context.Context, pkg string) ([]pep440.Version, error)
	// Dependencies returns the version ranges pkg at v depends on,
	// keyed by dependency package name.
	Dependencies(ctx context.Context, pkg string, v pep440.Version) (map[string]pep440.Range, error)
}

// Term is a constraint on a single package: either "must be in Set"
// (Positive) or "must not be in Set" (!Positive).
type Term struct {
	Positive bool
	Set      pep440.Range
}

// Positive builds a Term requiring membership in set.
func Positive(set pep440.Range) Term { return Term{Positive: true, Set: set} }

// Negative builds a Term requiring non-membership in set.
func Negative(set pep440.Range) Term { return Term{Positive: false, Set: set} }

// Negate returns the logical negation of t.
func (t Term) Negate() Term { return Term{Positive: !t.Positive, Set: t.Set} }

func (t Term) allowed() pep440.Range {
	if t.Positive {
		return t.Set
	}
	return t.Set.Complement()
}

func singleton(v pep440.Version) pep440.Range {
	return pep440.Specifier{Op: pep440.OpEqual, V: v}.Range()
}

// subset reports whether every version in a is also in b.
func subset(a, b pep440.Range) bool {
	return a.Intersect(b.Complement()).IsEmpty()
}

// Relation is how a Term compares to the accumulated assignment for
// its package.
type Relation int

const (
	// Satisfied means the assignment entails the term: it's already
	// known to hold.
	Satisfied Relation = iota
	// Contradicted means the assignment rules the term out entirely.
	Contradicted
	// Inconclusive means neither: the term could still go either way.
	Inconclusive
)

func relation(term, assigned Term) Relation {
	a, b := term.allowed(), assigned.allowed()
	if a.Intersect(b).IsEmpty() {
		return Contradicted
	}
	if subset(b, a) {
		return Satisfied
	}
	return Inconclusive
}

// Cause records why an Incompatibility exists, for diagnostics.
type Cause interface{ cause() }

// RootCause marks the incompatibility seeded from the root package's
// own requirements.
type RootCause struct{}

func (RootCause) cause() {}

// NoVersionsCause marks an incompatibility added because no available
// version of Package satisfies the ranges accumulated against it.
type NoVersionsCause struct{ Package string }

func (NoVersionsCause) cause() {}

// DependencyCause marks an incompatibility derived from Depender's
// declared dependency on Dependency.
type DependencyCause struct{ Depender, Dependency string }

func (DependencyCause) cause() {}

// ConflictCause marks an incompatibility derived by resolving two
// others during backtracking.
type ConflictCause struct{ Conflict, Other *Incompatibility }

func (ConflictCause) cause() {}

// Incompatibility is a set of terms that cannot all hold at once.
type Incompatibility struct {
	Terms map[string]Term
	Cause Cause
}

func newIncompatibility(terms map[string]Term, cause Cause) *Incompatibility {
	return &Incompatibility{Terms: terms, Cause: cause}
}

func (ic *Incompatibility) String() string {
	parts := make([]string, 0, len(ic.Terms))
	for pkg, t := range ic.Terms {
		sign := ""
		if !t.Positive {
			sign = "not "
		}
		parts = append(parts, sign+pkg+" "+t.Set.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, " and ")
}

// propagate reports how ic relates to ps. When exactly one term is
// Inconclusive, the returned package name is the one whose negation
// can be derived; Satisfied means every term holds, a conflict.
func (ic *Incompatibility) propagate(ps *PartialSolution) (string, Relation) {
	var unitPkg string
	unresolved := 0
	for pkg, term := range ic.Terms {
		switch relation(term, ps.termFor(pkg)) {
		case Contradicted:
			return "", Contradicted
		case Inconclusive:
			unresolved++
			unitPkg = pkg
		}
	}
	if unresolved == 0 {
		return "", Satisfied
	}
	if unresolved == 1 {
		return unitPkg, Inconclusive
	}
	return "", Inconclusive
}

// assignment is one entry in a PartialSolution's history: a decision
// (a chosen version) or a derivation (a term implied by an
// Incompatibility during unit propagation).
type assignment struct {
	Package  string
	Term     Term
	Decision bool
	Version  pep440.Version
	Level    int
	Cause    *Incompatibility
}

// PartialSolution is the ordered history of decisions and derivations
// the solver has made so far, plus the accumulated version range each
// package has been narrowed to.
type PartialSolution struct {
	assignments []assignment
	accumulated map[string]pep440.Range
	decisions   map[string]pep440.Version
	level       int
}

func newPartialSolution() *PartialSolution {
	return &PartialSolution{accumulated: map[string]pep440.Range{}, decisions: map[string]pep440.Version{}}
}

func (ps *PartialSolution) termFor(pkg string) Term {
	if r, ok := ps.accumulated[pkg]; ok {
		return Term{Positive: true, Set: r}
	}
	return Term{Positive: true, Set: pep440.Full()}
}

func (ps *PartialSolution) derive(pkg string, term Term, cause *Incompatibility) {
	cur := ps.termFor(pkg).Set
	ps.accumulated[pkg] = cur.Intersect(term.allowed())
	ps.assignments = append(ps.assignments, assignment{Package: pkg, Term: term, Level: ps.level, Cause: cause})
}

func (ps *PartialSolution) decide(pkg string, v pep440.Version) {
	ps.level++
	ps.decisions[pkg] = v
	term := Positive(singleton(v))
	cur := ps.termFor(pkg).Set
	ps.accumulated[pkg] = cur.Intersect(term.Set)
	ps.assignments = append(ps.assignments, assignment{Package: pkg, Term: term, Decision: true, Version: v, Level: ps.level})
}

// backtrack discards every assignment made above level, then replays
// the survivors to rebuild accumulated/decisions.
func (ps *PartialSolution) backtrack(level int) {
	i := 0
	for i < len(ps.assignments) && ps.assignments[i].Level <= level {
		i++
	}
	ps.assignments = ps.assignments[:i]
	ps.level = level
	ps.accumulated = map[string]pep440.Range{}
	ps.decisions = map[string]pep440.Version{}
	for _, a := range ps.assignments {
		cur, ok := ps.accumulated[a.Package]
		if !ok {
			cur = pep440.Full()
		}
		ps.accumulated[a.Package] = cur.Intersect(a.Term.allowed())
		if a.Decision {
			ps.decisions[a.Package] = a.Version
		}
	}
}

// satisfierSearch replays assignments in order looking for the
// earliest prefix at which ic's terms are all Satisfied, returning
// that assignment's index and the decision level of the last prior
// assignment under which ic was "almost satisfied" (every term but
// one). Used by conflict resolution to find how far to backtrack.
func (ps *PartialSolution) satisfierSearch(ic *Incompatibility) (idx, prevLevel int, found bool) {
	acc := map[string]pep440.Range{}
	termFor := func(pkg string) Term {
		r, ok := acc[pkg]
		if !ok {
			return Term{Positive: true, Set: pep440.Full()}
		}
		return Term{Positive: true, Set: r}
	}
	for i, a := range ps.assignments {
		cur := termFor(a.Package).Set
		acc[a.Package] = cur.Intersect(a.Term.allowed())

		satisfied := 0
		for pkg, term := range ic.Terms {
			if relation(term, termFor(pkg)) == Satisfied {
				satisfied++
			}
		}
		switch satisfied {
		case len(ic.Terms):
			return i, prevLevel, true
		case len(ic.Terms) - 1:
			prevLevel = a.Level
		}
	}
	return 0, 0, false
}

// NoSolutionError is returned when no assignment satisfies every
// incompatibility: the root requirements are unsatisfiable.
type NoSolutionError struct{ Incompatibility *Incompatibility }

func (e *NoSolutionError) Error() string {
	return "pubgrub: no solution: " + e.Incompatibility.String()
}

// Solver drives PubGrub search to a solution or a NoSolutionError.
type Solver struct {
	Source            Source
	incompatibilities []*Incompatibility
	ps                *PartialSolution
}

// NewSolver returns a Solver querying src for versions and
// dependencies.
func NewSolver(src Source) *Solver {
	return &Solver{Source: src, ps: newPartialSolution()}
}

func (s *Solver) addIncompatibility(ic *Incompatibility) {
	s.incompatibilities = append(s.incompatibilities, ic)
}

// Solve resolves RootPackage's dependency closure to one version per
// package.
func (s *Solver) Solve(ctx context.Context) (map[string]pep440.Version, error) {
	s.ps.decide(RootPackage, RootVersion)

	deps, err := s.Source.Dependencies(ctx, RootPackage, RootVersion)
	if err != nil {
		return nil, err
	}
	for dep, r := range deps {
		s.addIncompatibility(newIncompatibility(map[string]Term{
			RootPackage: Positive(singleton(RootVersion)),
			dep:         Negative(r),
		}, DependencyCause{Depender: RootPackage, Dependency: dep}))
	}
	next := RootPackage

	for {
		if err := s.unitPropagation(ctx, next); err != nil {
			return nil, err
		}
		pkg, ok := s.nextUndecided()
		if !ok {
			delete(s.ps.decisions, RootPackage)
			return s.ps.decisions, nil
		}
		if err := s.makeDecision(ctx, pkg); err != nil {
			return nil, err
		}
		next = pkg
	}
}

func (s *Solver) unitPropagation(ctx context.Context, start string) error {
	queue := []string{start}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkg := queue[0]
		queue = queue[1:]

		for i := len(s.incompatibilities) - 1; i >= 0; i-- {
			ic := s.incompatibilities[i]
			if _, ok := ic.Terms[pkg]; !ok {
				continue
			}
			unitPkg, rel := ic.propagate(s.ps)
			switch rel {
			case Satisfied:
				root, err := s.resolveConflict(ic)
				if err != nil {
					return err
				}
				queue = []string{root}
			case Inconclusive:
				if unitPkg != "" {
					neg := ic.Terms[unitPkg].Negate()
					s.ps.derive(unitPkg, neg, ic)
					queue = append(queue, unitPkg)
				}
			}
		}
	}
	return nil
}

// resolveConflict walks backward from a fully-Satisfied incompatibility
// to the decision level that caused it, merging incompatibilities
// along the way (conflict-driven clause learning), and backtracks the
// partial solution there.
func (s *Solver) resolveConflict(ic *Incompatibility) (string, error) {
	for {
		if len(ic.Terms) == 0 {
			return "", &NoSolutionError{Incompatibility: ic}
		}
		if t, ok := ic.Terms[RootPackage]; ok && len(ic.Terms) == 1 && t.Positive {
			return "", &NoSolutionError{Incompatibility: ic}
		}
		idx, prevLevel, found := s.ps.satisfierSearch(ic)
		if !found {
			return "", &NoSolutionError{Incompatibility: ic}
		}
		sat := s.ps.assignments[idx]
		if sat.Decision || sat.Cause == nil || prevLevel < sat.Level {
			s.ps.backtrack(prevLevel)
			s.addIncompatibility(ic)
			return sat.Package, nil
		}
		ic = mergeIncompatibilities(ic, sat)
	}
}

func mergeIncompatibilities(ic *Incompatibility, sat assignment) *Incompatibility {
	terms := make(map[string]Term, len(ic.Terms)+len(sat.Cause.Terms))
	for pkg, t := range ic.Terms {
		terms[pkg] = t
	}
	for pkg, t := range sat.Cause.Terms {
		if pkg == sat.Package {
			continue
		}
		if existing, ok := terms[pkg]; ok {
			terms[pkg] = Term{Positive: true, Set: existing.allowed().Intersect(t.allowed())}
		} else {
			terms[pkg] = t
		}
	}
	delete(terms, sat.Package)
	return newIncompatibility(terms, ConflictCause{Conflict: ic, Other: sat.Cause})
}

// nextUndecided returns the lexicographically smallest package that
// some incompatibility mentions but that hasn't been decided yet, for
// deterministic candidate ordering.
func (s *Solver) nextUndecided() (string, bool) {
	seen := map[string]struct{}{}
	for _, ic := range s.incompatibilities {
		for pkg := range ic.Terms {
			if pkg == RootPackage {
				continue
			}
			if _, decided := s.ps.decisions[pkg]; decided {
				continue
			}
			seen[pkg] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return "", false
	}
	names := make([]string, 0, len(seen))
	for p := range seen {
		names = append(names, p)
	}
	sort.Strings(names)
	return names[0], true
}

func (s *Solver) makeDecision(ctx context.Context, pkg string) error {
	allowed := s.ps.termFor(pkg).Set
	versions, err := s.Source.Versions(ctx, pkg)
	if err != nil {
		return err
	}
	var chosen *pep440.Version
	for i := len(versions) - 1; i >= 0; i-- {
		if allowed.Contains(versions[i]) {
			v := versions[i]
			chosen = &v
			break
		}
	}
	if chosen == nil {
		s.addIncompatibility(newIncompatibility(map[string]Term{pkg: Positive(allowed)}, NoVersionsCause{Package: pkg}))
		return nil
	}

	deps, err := s.Source.Dependencies(ctx, pkg, *chosen)
	if err != nil {
		return err
	}
	for dep, r := range deps {
		s.addIncompatibility(newIncompatibility(map[string]Term{
			pkg: Positive(singleton(*chosen)),
			dep: Negative(r),
		}, DependencyCause{Depender: pkg, Dependency: dep}))
	}
	s.ps.decide(pkg, *chosen)
	return nil
}
