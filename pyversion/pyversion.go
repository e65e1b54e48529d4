// Package pyversion parses .python-version files (spec.md §6),
// grounded in uv-python/src/installation.rs (original_source) for the
// request-string vs tagged-key distinction.
package pyversion

import (
	"fmt"
	"strconv"
	"strings"
)

// Implementation names a Python implementation family.
type Implementation string

const (
	CPython Implementation = "cpython"
	PyPy    Implementation = "pypy"
)

// Request is a parsed .python-version entry: either a loose request
// for an implementation/version (optionally just a version, defaulting
// to CPython), an absolute interpreter path, or a fully tagged
// installation key.
type Request struct {
	// Path is set when the line names an absolute interpreter path
	// directly; every other field is zero in that case.
	Path string

	// Implementation is empty when unspecified ("3.12" means "any
	// implementation satisfying 3.12", conventionally CPython).
	Implementation      Implementation
	Major, Minor, Patch int
	HasPatch            bool

	// Tagged fields, set only when the line is a fully tagged key
	// ("cpython-3.12.1-linux-x86_64-gnu").
	Tagged bool
	OS     string
	Arch   string
	Libc   string
}

// Parse parses one non-empty, trimmed line of a .python-version file.
func Parse(line string) (Request, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Request{}, fmt.Errorf("pyversion: empty request")
	}
	if strings.HasPrefix(line, "/") || strings.HasPrefix(line, "./") || strings.HasPrefix(line, "../") {
		return Request{Path: line}, nil
	}

	impl, rest, hasImpl := cutImplementation(line)
	if isTaggedKey(rest) {
		return parseTagged(impl, rest)
	}

	req := Request{}
	if hasImpl {
		req.Implementation = impl
	}
	if rest == "" {
		return req, nil
	}
	major, minor, patch, hasPatch, err := parseVersionTriple(rest)
	if err != nil {
		return Request{}, fmt.Errorf("pyversion: %q: %w", line, err)
	}
	req.Major, req.Minor, req.Patch, req.HasPatch = major, minor, patch, hasPatch
	return req, nil
}

// cutImplementation splits "cpython@3.12" or "pypy-3.11" into
// (implementation, version-part, true), or returns ("", line, false)
// for a bare version request like "3.12".
func cutImplementation(line string) (Implementation, string, bool) {
	if name, rest, ok := strings.Cut(line, "@"); ok {
		return Implementation(name), rest, true
	}
	for _, name := range []Implementation{CPython, PyPy} {
		if rest, ok := strings.CutPrefix(line, string(name)+"-"); ok {
			return name, rest, true
		}
	}
	return "", line, false
}

func parseVersionTriple(s string) (major, minor, patch int, hasPatch bool, err error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) == 0 || parts[0] == "" {
		return 0, 0, 0, false, fmt.Errorf("missing version")
	}
	if major, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, false, fmt.Errorf("invalid major version %q", parts[0])
	}
	if len(parts) >= 2 {
		if minor, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, 0, false, fmt.Errorf("invalid minor version %q", parts[1])
		}
	}
	if len(parts) == 3 {
		if patch, err = strconv.Atoi(parts[2]); err != nil {
			return 0, 0, 0, false, fmt.Errorf("invalid patch version %q", parts[2])
		}
		hasPatch = true
	}
	return major, minor, patch, hasPatch, nil
}

// isTaggedKey reports whether rest looks like "3.12.1-linux-x86_64-gnu"
// rather than a plain version request: a tagged key has at least three
// hyphen-separated segments after the version.
func isTaggedKey(rest string) bool {
	return strings.Count(rest, "-") >= 3
}

func parseTagged(impl Implementation, rest string) (Request, error) {
	parts := strings.Split(rest, "-")
	if len(parts) < 4 {
		return Request{}, fmt.Errorf("pyversion: malformed tagged key %q", rest)
	}
	major, minor, patch, hasPatch, err := parseVersionTriple(parts[0])
	if err != nil {
		return Request{}, fmt.Errorf("pyversion: %w", err)
	}
	req := Request{
		Implementation: impl,
		Major:          major, Minor: minor, Patch: patch, HasPatch: hasPatch,
		Tagged: true,
		OS:     parts[1],
		Arch:   parts[2],
		Libc:   strings.Join(parts[3:], "-"),
	}
	return req, nil
}

// String renders the request back to its canonical .python-version
// form.
func (r Request) String() string {
	if r.Path != "" {
		return r.Path
	}
	var v strings.Builder
	fmt.Fprintf(&v, "%d", r.Major)
	if r.Minor != 0 || r.HasPatch {
		fmt.Fprintf(&v, ".%d", r.Minor)
	}
	if r.HasPatch {
		fmt.Fprintf(&v, ".%d", r.Patch)
	}
	if r.Tagged {
		return fmt.Sprintf("%s-%s-%s-%s-%s", r.Implementation, v.String(), r.OS, r.Arch, r.Libc)
	}
	if r.Implementation != "" {
		return fmt.Sprintf("%s-%s", r.Implementation, v.String())
	}
	return v.String()
}
