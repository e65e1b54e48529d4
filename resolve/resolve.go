// Package resolve implements the Resolver (spec.md §4.8): the driver
// that turns a set of top-level requirements into a pubgrub.Source,
// selects candidate versions (requires-python, yanked, exclude-newer,
// pre-release policy; wheel tags are not checked against the target
// platform), translates Requires-Dist
// metadata into incompatibilities via marker evaluation, and emits a
// pylock.Lock from the resulting version assignment.
//
// Grounded in deps.dev's pypi resolver (the pack's single closest
// existing Go PyPI resolver) for candidate selection and
// extras/fork-on-marker mechanics, adapted to drive the pubgrub
// package's search instead of deps.dev's own backtracking search.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pylock-dev/pylock"
	"github.com/pylock-dev/pylock/dist"
	"github.com/pylock-dev/pylock/index"
	"github.com/pylock-dev/pylock/marker"
	"github.com/pylock-dev/pylock/pep440"
	"github.com/pylock-dev/pylock/pubgrub"
	"github.com/pylock-dev/pylock/pypireq"
)

// Metadata is a single candidate's parsed dependency data.
type Metadata struct {
	RequiresPython string
	RequiresDist   []string
}

// CandidateProvider answers what versions of a package exist and what
// a given version depends on. Implementations sit in front of
// IndexClient (F) and DistributionDatabase (G), lazily building
// sdists through BuildDispatch (H) when no compatible wheel is
// available, per spec.md §4.8 point 2 — kept out of this package's
// import graph the same way package build injects its own Resolver
// interface, to avoid a cycle between resolve and build.
type CandidateProvider interface {
	Files(ctx context.Context, name string) ([]index.File, error)
	Metadata(ctx context.Context, name string, v pep440.Version, file index.File) (Metadata, error)
}

// Options configures candidate filtering for one resolution.
type Options struct {
	Environment   marker.Environment
	PythonVersion *pep440.Version // nil means requires-python is never checked
	PreReleases   index.PreReleasePolicy
	ExcludeNewer  time.Time // zero means unconstrained

	// Preferred holds a prior lockfile's pins, name -> version string,
	// consulted for --upgrade semantics: a package absent from
	// UpgradePackages keeps its preferred version if it still
	// satisfies every constraint, and a yanked preferred version is
	// still honored as an "explicit pin".
	Preferred       map[string]string
	Upgrade         bool
	UpgradePackages map[string]bool
}

func (o Options) upgrades(name string) bool {
	if o.Upgrade {
		return true
	}
	return o.UpgradePackages[name]
}

// Resolver drives pubgrub.Solver with a Source backed by provider.
type Resolver struct {
	Provider CandidateProvider
	Options  Options
}

// NewResolver returns a Resolver answering candidate queries via
// provider.
func NewResolver(provider CandidateProvider, opts Options) *Resolver {
	return &Resolver{Provider: provider, Options: opts}
}

// Resolve solves requirements to a pylock.Lock. requirements are the
// project's direct, top-level PEP 508 specifiers.
func (r *Resolver) Resolve(ctx context.Context, requirements []string, requiresPython string) (*pylock.Lock, error) {
	src := &resolverSource{
		provider:  r.Provider,
		opts:      r.Options,
		rootReqs:  requirements,
		files:     map[string]map[string]index.File{},
		hasStable: map[string]bool{},
	}
	solver := pubgrub.NewSolver(src)
	versions, err := solver.Solve(ctx)
	if err != nil {
		return nil, &pylock.Error{Op: "Resolver.Resolve", Kind: pylock.ErrResolution, Message: "no set of package versions could satisfy the requirements", Inner: err}
	}
	return src.toLock(versions, requiresPython), nil
}

// resolverSource adapts a CandidateProvider into a pubgrub.Source,
// implementing extras as virtual packages named "name[extra]" whose
// single-version dependency set is the base package pinned plus the
// extra's own marker-gated requirements, per spec.md §4.8's extras
// handling.
type resolverSource struct {
	provider CandidateProvider
	opts     Options
	rootReqs []string

	files     map[string]map[string]index.File // name -> version string -> representative file
	hasStable map[string]bool                  // name -> whether any non-prerelease candidate exists
}

func packageKey(name, extra string) string {
	if extra == "" {
		return name
	}
	return name + "[" + extra + "]"
}

func splitExtra(key string) (name, extra string) {
	if i := strings.IndexByte(key, '['); i >= 0 && strings.HasSuffix(key, "]") {
		return key[:i], key[i+1 : len(key)-1]
	}
	return key, ""
}

func singleton(v pep440.Version) pep440.Range {
	return pep440.Specifier{Op: pep440.OpEqual, V: v}.Range()
}

func mergeRange(m map[string]pep440.Range, key string, r pep440.Range) {
	if existing, ok := m[key]; ok {
		m[key] = existing.Intersect(r)
	} else {
		m[key] = r
	}
}

// Versions implements pubgrub.Source for RootPackage by returning the
// requirements translated through Dependencies instead (a single
// sentinel version), and for every other package by querying provider
// and applying spec.md §4.8's candidate filters.
func (s *resolverSource) Versions(ctx context.Context, pkgKey string) ([]pep440.Version, error) {
	if pkgKey == pubgrub.RootPackage {
		return []pep440.Version{pubgrub.RootVersion}, nil
	}
	name, _ := splitExtra(pkgKey)

	files, err := s.provider.Files(ctx, name)
	if err != nil {
		return nil, err
	}

	type entry struct {
		v    pep440.Version
		file index.File
		kind int // 0 = sdist, 1 = wheel (wheels are preferred as the representative since metadata is cheaper to read)
	}
	byVersion := map[string]entry{}
	for _, f := range files {
		v, kind, ok := parseCandidateVersion(f)
		if !ok {
			continue
		}
		if f.Yanked && s.opts.Preferred[name] != v.String() {
			continue
		}
		if s.opts.PythonVersion != nil && f.RequiresPython != "" {
			if specs, err := pep440.ParseSpecifiers(f.RequiresPython); err == nil && !specs.Contains(*s.opts.PythonVersion) {
				continue
			}
		}
		if !s.opts.ExcludeNewer.IsZero() && !f.UploadTime.IsZero() && f.UploadTime.After(s.opts.ExcludeNewer) {
			continue
		}
		key := v.String()
		if prev, seen := byVersion[key]; !seen || kind > prev.kind {
			byVersion[key] = entry{v: v, file: f, kind: kind}
		}
		if !v.IsPreRelease() {
			s.hasStable[name] = true
		}
	}

	rep := map[string]index.File{}
	var versions []pep440.Version
	for key, e := range byVersion {
		if e.v.IsPreRelease() && !s.allowPreRelease(name, e.v) {
			continue
		}
		versions = append(versions, e.v)
		rep[key] = e.file
	}
	sort.Sort(pep440.Versions(versions))

	if s.opts.upgrades(name) {
		// --upgrade / --upgrade-package: the preferred pin is not
		// given priority, letting the highest-version-first search
		// order in pubgrub.Solver.makeDecision pick it back up only
		// if the solution still prefers it.
	} else if pinned, ok := s.opts.Preferred[name]; ok {
		versions = prioritizePreferred(versions, pinned)
	}

	s.files[name] = rep
	return versions, nil
}

// prioritizePreferred moves the preferred version to the end of
// versions (pubgrub.Solver.makeDecision scans from the end, highest
// first), so a prior lockfile pin is tried before any other candidate
// that also satisfies the accumulated range.
func prioritizePreferred(versions []pep440.Version, pinned string) []pep440.Version {
	for i, v := range versions {
		if v.String() == pinned {
			out := append(append([]pep440.Version{}, versions[:i]...), versions[i+1:]...)
			return append(out, v)
		}
	}
	return versions
}

func (s *resolverSource) allowPreRelease(name string, v pep440.Version) bool {
	switch s.opts.PreReleases {
	case index.PreReleaseAllow:
		return true
	case index.PreReleaseIfNecessary:
		return !s.hasStable[name]
	case index.PreReleaseExplicit:
		return s.opts.Preferred[name] == v.String()
	default:
		return false
	}
}

// parseCandidateVersion extracts the release version a file belongs
// to, reporting whether it's a wheel (kind 1) or sdist (kind 0).
func parseCandidateVersion(f index.File) (v pep440.Version, kind int, ok bool) {
	if w, err := dist.ParseWheelFilename(f.Filename); err == nil {
		return w.Version, 1, true
	}
	if sd, err := dist.ParseSdistFilename(f.Filename); err == nil {
		return sd.Version, 0, true
	}
	return pep440.Version{}, 0, false
}

// Dependencies implements pubgrub.Source. For RootPackage it returns
// the project's direct requirements; for an extras virtual package it
// pins the base package at the same version and adds the extra's
// marker-gated requirements; otherwise it returns the package's own
// Requires-Dist, translated to version ranges and marker-filtered
// against s.opts.Environment.
func (s *resolverSource) Dependencies(ctx context.Context, pkgKey string, v pep440.Version) (map[string]pep440.Range, error) {
	if pkgKey == pubgrub.RootPackage {
		return s.rootDependencies()
	}

	name, extra := splitExtra(pkgKey)
	file, ok := s.files[name][v.String()]
	if !ok {
		return nil, fmt.Errorf("resolve: no candidate file cached for %s %s (Versions must run before Dependencies)", name, v)
	}
	md, err := s.provider.Metadata(ctx, name, v, file)
	if err != nil {
		return nil, err
	}

	out := map[string]pep440.Range{}
	if extra != "" {
		mergeRange(out, name, singleton(v))
	}
	env := s.opts.Environment
	env.Extra = extra

	for _, raw := range md.RequiresDist {
		req, err := pypireq.Parse(raw)
		if err != nil {
			continue
		}
		if req.Marker != nil && !req.Marker.Evaluate(env) {
			continue
		}
		depRange := pep440.Full()
		if req.Source.Kind == pypireq.SourceRegistry && len(req.Source.Specifiers) > 0 {
			depRange = req.Source.Specifiers.Range()
		}
		if len(req.Extras) == 0 {
			mergeRange(out, req.Name, depRange)
			continue
		}
		for _, e := range req.Extras {
			mergeRange(out, packageKey(req.Name, e), depRange)
		}
		mergeRange(out, req.Name, depRange)
	}
	return out, nil
}

func (s *resolverSource) rootDependencies() (map[string]pep440.Range, error) {
	out := map[string]pep440.Range{}
	env := s.opts.Environment
	env.Extra = ""
	for _, raw := range s.rootReqs {
		req, err := pypireq.Parse(raw)
		if err != nil {
			return nil, &pylock.Error{Op: "Resolver.Resolve", Kind: pylock.ErrUser, Message: "invalid requirement " + raw, Inner: err}
		}
		if req.Marker != nil && !req.Marker.Evaluate(env) {
			continue
		}
		depRange := pep440.Full()
		if req.Source.Kind == pypireq.SourceRegistry && len(req.Source.Specifiers) > 0 {
			depRange = req.Source.Specifiers.Range()
		}
		if len(req.Extras) == 0 {
			mergeRange(out, req.Name, depRange)
			continue
		}
		for _, e := range req.Extras {
			mergeRange(out, packageKey(req.Name, e), depRange)
		}
		mergeRange(out, req.Name, depRange)
	}
	return out, nil
}

// toLock flattens the solved version assignment (including any extras
// virtual packages) into a pylock.Lock, per spec.md §4.1's data model.
func (s *resolverSource) toLock(versions map[string]pep440.Version, requiresPython string) *pylock.Lock {
	byName := map[string]pep440.Version{}
	for key, v := range versions {
		name, _ := splitExtra(key)
		byName[name] = v
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)

	l := &pylock.Lock{Version: pylock.CurrentLockVersion, RequiresPython: requiresPython}
	for _, name := range names {
		l.Packages = append(l.Packages, pylock.LockPackage{
			PackageID: pylock.PackageID{Name: name, Version: byName[name].String(), Source: pylock.Source{Registry: "pypi"}},
		})
	}
	return l
}
