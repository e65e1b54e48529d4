// Package dist parses wheel and sdist filenames (PEP 427, PEP 625) and
// evaluates their platform-compatibility tags, grounded in the
// unpack-path layout of uv-install-wheel's unpacked.rs and in the
// teacher's regexp-driven filename parsers (pkg/pep440 in the original
// tree parsed OS-package filenames the same way this parses wheel
// filenames).
package dist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pylock-dev/pylock/pep440"
)

// WheelFilename is the parsed form of a PEP 427 wheel filename:
// {distribution}-{version}(-{build})?-{python}-{abi}-{platform}.whl.
type WheelFilename struct {
	Name         string
	Version      pep440.Version
	Build        string // empty if absent; BuildTag() splits it
	PyTags       []string
	AbiTags      []string
	PlatformTags []string
}

// wheelRe captures the five dash-delimited fields of a wheel filename.
// Each tag field may itself contain dot-separated compressed tags
// (e.g. "cp39.cp310-abi3-manylinux1_x86_64").
var wheelRe = regexp.MustCompile(`(?i)^([^-]+(?:_[^-]+)*)-([^-]+)(?:-([0-9][^-]*))?-([^-]+)-([^-]+)-([^-]+)\.whl$`)

// ParseWheelFilename parses s as a PEP 427 wheel filename.
func ParseWheelFilename(s string) (WheelFilename, error) {
	m := wheelRe.FindStringSubmatch(s)
	if m == nil {
		return WheelFilename{}, fmt.Errorf("dist: %q is not a well-formed wheel filename", s)
	}
	v, err := pep440.Parse(strings.ReplaceAll(m[2], "_", "-"))
	if err != nil {
		return WheelFilename{}, fmt.Errorf("dist: wheel filename %q: %w", s, err)
	}
	return WheelFilename{
		Name:         normalizeName(m[1]),
		Version:      v,
		Build:        m[3],
		PyTags:       strings.Split(m[4], "."),
		AbiTags:      strings.Split(m[5], "."),
		PlatformTags: strings.Split(m[6], "."),
	}, nil
}

// String renders the wheel filename back out.
func (w WheelFilename) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s-%s", escapeName(w.Name), w.Version)
	if w.Build != "" {
		fmt.Fprintf(&b, "-%s", w.Build)
	}
	fmt.Fprintf(&b, "-%s-%s-%s.whl",
		strings.Join(w.PyTags, "."), strings.Join(w.AbiTags, "."), strings.Join(w.PlatformTags, "."))
	return b.String()
}

// BuildTag splits the optional build tag into its leading integer and
// trailing label, e.g. "2linux" -> (2, "linux", true).
func (w WheelFilename) BuildTag() (n int, label string, ok bool) {
	if w.Build == "" {
		return 0, "", false
	}
	i := 0
	for i < len(w.Build) && w.Build[i] >= '0' && w.Build[i] <= '9' {
		i++
	}
	n, _ = strconv.Atoi(w.Build[:i])
	return n, w.Build[i:], true
}

// IsCompatible reports whether w can run under any tag in tags, and if
// so the priority (index into tags) of the best match: lower is
// better, mirroring Python's packaging.tags ranking where tags is
// given most-preferred first.
func (w WheelFilename) IsCompatible(tags Tags) (priority int, ok bool) {
	best := -1
	for i, t := range tags {
		if !contains(w.PyTags, t.Python) || !contains(w.AbiTags, t.ABI) || !contains(w.PlatformTags, t.Platform) {
			continue
		}
		if best == -1 || i < best {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

func contains(hay []string, needle string) bool {
	for _, h := range hay {
		if h == needle || h == "any" || needle == "any" {
			return true
		}
	}
	return false
}

// normalizeName applies the PEP 503 normalization rule, matching
// pypireq.Parse's treatment of requirement names.
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

// escapeName reverses normalization enough to produce a valid wheel
// filename segment: wheel filenames use "_" where a distribution name
// has a non-alphanumeric separator.
func escapeName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return '_'
		}
		return r
	}, name)
}
