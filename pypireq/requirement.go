// Package pypireq parses and represents PEP 508 dependency
// specifiers: "name[extra1,extra2] (>=1.0,<2.0); marker" and the
// direct-reference forms PEP 508 §Direct References and PEP 440/610
// extend it with (local paths, URLs, and VCS references).
package pypireq

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pylock-dev/pylock/marker"
	"github.com/pylock-dev/pylock/pep440"
)

// SourceKind distinguishes how a Requirement's artifacts are located.
type SourceKind int

const (
	// SourceRegistry resolves against a package index using
	// Specifiers, the common case ("requests>=2.0").
	SourceRegistry SourceKind = iota
	// SourceURL pins a requirement to a single direct-download
	// artifact URL (PEP 508 §Direct References).
	SourceURL
	// SourcePath pins a requirement to a local directory or archive.
	SourcePath
	// SourceGit pins a requirement to a VCS checkout.
	SourceGit
)

func (k SourceKind) String() string {
	switch k {
	case SourceRegistry:
		return "registry"
	case SourceURL:
		return "url"
	case SourcePath:
		return "path"
	case SourceGit:
		return "git"
	default:
		return "unknown"
	}
}

// Source is the sum-typed location a Requirement resolves against.
// Exactly the fields relevant to Kind are populated.
type Source struct {
	Kind SourceKind

	// SourceRegistry
	Specifiers pep440.Specifiers

	// SourceURL / SourceGit
	URL string

	// SourcePath
	Path     string
	Editable bool

	// SourceGit
	Rev string

	// Subdir is a subdirectory within a URL/path/git source that holds
	// the actual project (PEP 508's "#subdirectory=" fragment).
	Subdir string
}

// Requirement is a single parsed PEP 508 dependency specifier.
type Requirement struct {
	// Name is the PEP 503-normalized project name.
	Name string
	// Extras are the optional-dependency groups requested of Name.
	Extras []string
	Source Source
	// Marker is the environment marker gating this requirement, or nil
	// if the requirement always applies.
	Marker marker.Tree
	// rawMarker preserves the original marker text for round-tripping
	// into a lockfile, since marker.Tree doesn't claim to be a
	// byte-exact printer of its input.
	rawMarker string
}

// String renders the Requirement back into PEP 508 syntax.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteByte('[')
		b.WriteString(strings.Join(r.Extras, ","))
		b.WriteByte(']')
	}
	switch r.Source.Kind {
	case SourceRegistry:
		if len(r.Source.Specifiers) > 0 {
			fmt.Fprintf(&b, "%s", r.Source.Specifiers)
		}
	case SourceURL, SourceGit:
		fmt.Fprintf(&b, " @ %s", r.Source.URL)
	case SourcePath:
		fmt.Fprintf(&b, " @ %s", r.Source.Path)
	}
	if r.rawMarker != "" {
		fmt.Fprintf(&b, " ; %s", r.rawMarker)
	}
	return b.String()
}

var nameRe = regexp.MustCompile(`(?i)^[A-Z0-9][A-Z0-9._-]*[A-Z0-9]$|^[A-Z0-9]$`)

// Parse parses a single PEP 508 dependency specifier.
func Parse(s string) (Requirement, error) {
	s = strings.TrimSpace(s)
	var r Requirement

	// Split off the marker clause first: everything after the first
	// top-level ';' that isn't inside a URL fragment.
	body, markerStr, hasMarker := cutTop(s, ';')
	body = strings.TrimSpace(body)
	if hasMarker {
		markerStr = strings.TrimSpace(markerStr)
		t, err := marker.Parse(markerStr)
		if err != nil {
			return r, fmt.Errorf("pypireq: invalid marker in %q: %w", s, err)
		}
		r.Marker = t
		r.rawMarker = markerStr
	}

	// name
	i := 0
	for i < len(body) && isNameByte(body[i]) {
		i++
	}
	name := body[:i]
	if name == "" || !nameRe.MatchString(name) {
		return r, fmt.Errorf("pypireq: invalid project name in %q", s)
	}
	r.Name = normalizeName(name)
	rest := strings.TrimSpace(body[i:])

	// extras
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return r, fmt.Errorf("pypireq: unterminated extras in %q", s)
		}
		raw := rest[1:end]
		rest = strings.TrimSpace(rest[end+1:])
		if raw != "" {
			for _, e := range strings.Split(raw, ",") {
				r.Extras = append(r.Extras, normalizeName(strings.TrimSpace(e)))
			}
		}
	}

	switch {
	case strings.HasPrefix(rest, "@"):
		ref := strings.TrimSpace(rest[1:])
		src, err := parseDirectRef(ref)
		if err != nil {
			return r, fmt.Errorf("pypireq: %w", err)
		}
		r.Source = src
	case rest == "":
		r.Source = Source{Kind: SourceRegistry}
	default:
		specStr := rest
		if strings.HasPrefix(specStr, "(") && strings.HasSuffix(specStr, ")") {
			specStr = specStr[1 : len(specStr)-1]
		}
		specs, err := pep440.ParseSpecifiers(specStr)
		if err != nil {
			return r, fmt.Errorf("pypireq: invalid version specifier in %q: %w", s, err)
		}
		r.Source = Source{Kind: SourceRegistry, Specifiers: specs}
	}

	return r, nil
}

// parseDirectRef parses the right-hand side of a "name @ ..." direct
// reference into the matching Source.
func parseDirectRef(ref string) (Source, error) {
	body, subdir, hasSubdir := cutTop(ref, '#')
	var src Source
	switch {
	case strings.HasPrefix(body, "git+"):
		url, rev, _ := strings.Cut(body, "@")
		src = Source{Kind: SourceGit, URL: strings.TrimPrefix(url, "git+"), Rev: rev}
	case strings.HasPrefix(body, "file://"):
		src = Source{Kind: SourcePath, Path: strings.TrimPrefix(body, "file://")}
	case strings.Contains(body, "://"):
		src = Source{Kind: SourceURL, URL: body}
	default:
		src = Source{Kind: SourcePath, Path: body}
	}
	if hasSubdir {
		if sub, ok := strings.CutPrefix(subdir, "subdirectory="); ok {
			src.Subdir = sub
		}
	}
	return src, nil
}

func isNameByte(b byte) bool {
	return b == '-' || b == '_' || b == '.' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// normalizeName applies the PEP 503 normalization rule.
func normalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	prevSep := false
	for _, r := range strings.ToLower(name) {
		switch r {
		case '-', '_', '.':
			if !prevSep {
				b.WriteByte('-')
			}
			prevSep = true
		default:
			b.WriteRune(r)
			prevSep = false
		}
	}
	return b.String()
}

// cutTop splits s at the first occurrence of sep that isn't nested
// inside brackets or parentheses, mirroring how pip tokenizes a
// requirement line around ';' and a direct reference around '#'.
func cutTop(s string, sep byte) (before, after string, found bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case sep:
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}

// HasMarker reports whether r carries an environment marker.
func (r Requirement) HasMarker() bool { return r.Marker != nil }

// RawMarker returns the original marker text, or "" if none.
func (r Requirement) RawMarker() string { return r.rawMarker }
