package pylock

// Lock is the persisted resolution produced by the resolver and
// consumed by the installer: a deterministic, reproducible mapping of
// package identities to sources, hashes, and dependency edges.
//
// A Lock is valid if, for every reachable package, every dependency
// edge points to an id present in Packages, and markers on edges are
// disjoint per fork (see the resolve package for fork construction).
type Lock struct {
	// Version is the lockfile schema version. The current schema
	// version this package reads and writes is 1.
	Version int `toml:"version"`
	// RequiresPython is the specifier set every resolved package's
	// own requires-python metadata was checked against.
	RequiresPython string `toml:"requires-python"`
	// Members lists the workspace member names this lock was computed
	// for, empty for a single-project resolution.
	Members []string `toml:"members,omitempty"`
	// SupportedEnvironments holds the marker expressions universal
	// resolution forked on, in the order forks were produced.
	SupportedEnvironments []string `toml:"supported-environments,omitempty"`
	// Packages is the flat set of resolved packages, keyed implicitly
	// by PackageID.Name+Version+Source inside each entry.
	Packages []LockPackage `toml:"package"`
}

// PackageID identifies a single resolved package: its normalized name,
// its exact version, and the source it was resolved from. Two packages
// with the same name but different sources (e.g. a registry release
// and a git checkout pinned to the same version string) are distinct
// members of a Lock.
type PackageID struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Source  Source `toml:"source"`
}

// Source records where a locked package's artifacts came from. Exactly
// one field is populated, mirroring the Requirement source sum type in
// package pypireq.
type Source struct {
	Registry string `toml:"registry,omitempty"`
	URL      string `toml:"url,omitempty"`
	Path     string `toml:"path,omitempty"`
	Editable string `toml:"editable,omitempty"`
	Git      string `toml:"git,omitempty"`
	Rev      string `toml:"rev,omitempty"`
	Ref      string `toml:"reference,omitempty"`
	Subdir   string `toml:"subdirectory,omitempty"`
}

// LockPackage is a single resolved, pinned package entry.
type LockPackage struct {
	PackageID
	// Marker is the (possibly empty) marker expression under which
	// this package participates in the resolution, set by universal
	// resolution when the package is fork-specific.
	Marker string `toml:"marker,omitempty"`
	// Dependencies are the runtime dependency edges this package
	// requires, already filtered to the markers resolvable at lock
	// time.
	Dependencies []Dependency `toml:"dependencies,omitempty"`
	// OptionalDependencies maps extra name to the dependency edges
	// that extra adds.
	OptionalDependencies map[string][]Dependency `toml:"optional-dependencies,omitempty"`
	// Wheels are the candidate wheel artifacts usable to satisfy this
	// entry, most-preferred first.
	Wheels []Artifact `toml:"wheels,omitempty"`
	// Sdist is the source distribution artifact, present whenever a
	// package has one available even if a wheel also is.
	Sdist *Artifact `toml:"sdist,omitempty"`
}

// Dependency is an edge from a locked package to another package in
// the same Lock.
type Dependency struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version,omitempty"`
	Marker  string   `toml:"marker,omitempty"`
	Extra   []string `toml:"extra,omitempty"`
}

// Artifact is a single downloadable file (wheel or sdist) with its
// content hash and, when known, its size.
type Artifact struct {
	URL  string `toml:"url"`
	Hash string `toml:"hash"`
	Size int64  `toml:"size,omitempty"`
}

// CurrentLockVersion is the lockfile schema version this module reads
// and writes. Lockfiles declaring a greater version are rejected with
// ErrLockfile before any TOML structural validation, per the
// "unknown version vs unparseable" distinction in the error design.
const CurrentLockVersion = 1

// Find returns the LockPackage with the given name and source, or
// false if no such package is present in the Lock.
func (l *Lock) Find(name string, src Source) (LockPackage, bool) {
	for _, p := range l.Packages {
		if p.Name == name && p.Source == src {
			return p, true
		}
	}
	return LockPackage{}, false
}

// Validate checks the structural invariant that every dependency edge
// in the Lock that names a Version resolves to a package present in
// Packages. Edges with an empty Version are not checked.
func (l *Lock) Validate() error {
	ids := make(map[string]struct{}, len(l.Packages))
	for _, p := range l.Packages {
		ids[p.Name+"\x00"+p.Version] = struct{}{}
	}
	for _, p := range l.Packages {
		for _, d := range p.Dependencies {
			if _, ok := ids[d.Name+"\x00"+d.Version]; d.Version != "" && !ok {
				return &Error{Op: "Lock.Validate", Kind: ErrLockfile,
					Message: "dependency edge " + p.Name + " -> " + d.Name + " has no matching package"}
			}
		}
		for extra, deps := range p.OptionalDependencies {
			for _, d := range deps {
				if _, ok := ids[d.Name+"\x00"+d.Version]; d.Version != "" && !ok {
					return &Error{Op: "Lock.Validate", Kind: ErrLockfile,
						Message: "dependency edge " + p.Name + "[" + extra + "] -> " + d.Name + " has no matching package"}
				}
			}
		}
	}
	return nil
}
