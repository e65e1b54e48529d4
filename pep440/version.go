// Package pep440 implements types for working with versions and
// version specifiers as defined in PEP 440.
//
// Parsing and ordering are grounded in the regular expression from PEP
// 440 §Appendix B, adapted from the claircore project's own pep440
// package, extended here with a local-version segment (PEP 440 §5),
// the full specifier operator table, and a canonical half-open
// interval union (Range) used by the resolver.
package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var pattern *regexp.Regexp

func init() {
	// This is the regexp recommended by PEP 440, as noted in
	// https://www.python.org/dev/peps/pep-0440/#appendix-b-parsing-version-strings-with-regular-expressions
	const r = `v?` +
		`(?:` +
		`(?:(?P<epoch>[0-9]+)!)?` + // epoch
		`(?P<release>[0-9]+(?:\.[0-9]+)*)` + // release segment
		`(?P<pre>[-_\.]?(?P<pre_l>(a|b|c|rc|alpha|beta|pre|preview))[-_\.]?(?P<pre_n>[0-9]+)?)?` + // pre release
		`(?P<post>(?:-(?P<post_n1>[0-9]+))|(?:[-_\.]?(?P<post_l>post|rev|r)[-_\.]?(?P<post_n2>[0-9]+)?))?` + // post release
		`(?P<dev>[-_\.]?(?P<dev_l>dev)[-_\.]?(?P<dev_n>[0-9]+)?)?` + // dev release
		`)` +
		`(?:\+(?P<local>[a-z0-9]+(?:[-_\.][a-z0-9]+)*))?` // local version
	pattern = regexp.MustCompile(`(?i)^\s*` + r + `\s*$`)
}

// preLabel is the normalized pre-release label.
type preLabel struct {
	Label string // one of "", "a", "b", "rc"
	N     int
}

// localSegment is one dot-separated component of a local version
// label. Per PEP 440 §5, segments are compared numerically if both
// sides parse as integers, else lexically (case-folded), and a
// numeric segment always sorts greater than an alphanumeric one.
type localSegment struct {
	Str string
	Num int
	IsN bool
}

func splitLocal(s string) []localSegment {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
	segs := make([]localSegment, len(parts))
	for i, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			segs[i] = localSegment{Num: n, IsN: true}
		} else {
			segs[i] = localSegment{Str: p}
		}
	}
	return segs
}

func compareLocal(a, b []localSegment) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		switch {
		case i >= len(a):
			// a ran out first: shorter local version sorts lower,
			// unless the extra segment is itself absent (handled by
			// loop bound), so a < b.
			return -1
		case i >= len(b):
			return 1
		}
		x, y := a[i], b[i]
		switch {
		case x.IsN && y.IsN:
			if x.Num != y.Num {
				return cmpInt(x.Num, y.Num)
			}
		case x.IsN && !y.IsN:
			return 1 // numeric > alphanumeric
		case !x.IsN && y.IsN:
			return -1
		default:
			if x.Str != y.Str {
				return strings.Compare(x.Str, y.Str)
			}
		}
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Version represents a canonical PEP 440 version:
// (epoch, release[], pre?, post?, dev?, local?).
type Version struct {
	Epoch   int
	Release []int
	Pre     preLabel
	// HasPost and HasDev distinguish "no post/dev segment" from
	// "post/dev segment numbered 0", which PEP 440 treats differently
	// for implicit post-release numbering (a trailing "-N" suffix is
	// post release N with no letter).
	HasPost bool
	Post    int
	HasDev  bool
	Dev     int
	Local   []localSegment
	raw     string
}

// Parse attempts to extract a PEP 440 version from the provided
// string. The parser round-trips: Parse(v.String()) == v for every
// normalized v returned by Parse.
func Parse(s string) (v Version, err error) {
	ms := pattern.FindStringSubmatch(s)
	if ms == nil {
		return v, fmt.Errorf("pep440: invalid version: %q", s)
	}

	for i, n := range pattern.SubexpNames() {
		if ms[i] == "" {
			continue
		}
		switch n {
		case "epoch":
			v.Epoch, err = strconv.Atoi(ms[i])
		case "release":
			ns := strings.Split(ms[i], ".")
			v.Release = make([]int, len(ns))
			for j, seg := range ns {
				v.Release[j], err = strconv.Atoi(seg)
				if err != nil {
					break
				}
			}
		case "pre_l":
			switch strings.ToLower(ms[i]) {
			case "a", "alpha":
				v.Pre.Label = "a"
			case "b", "beta":
				v.Pre.Label = "b"
			case "rc", "c", "pre", "preview":
				v.Pre.Label = "rc"
			default:
				err = fmt.Errorf("pep440: unknown pre-release label %q", ms[i])
			}
		case "pre_n":
			v.Pre.N, err = strconv.Atoi(ms[i])
		case "post_n1", "post_n2":
			v.HasPost = true
			v.Post, err = strconv.Atoi(ms[i])
		case "dev_n":
			v.HasDev = true
			v.Dev, err = strconv.Atoi(ms[i])
		case "dev":
			// A bare "dev" or "dev0" suffix without a numbered
			// "dev_n" still marks the dev flag.
			v.HasDev = true
		case "post":
			v.HasPost = true
		case "local":
			v.Local = splitLocal(ms[i])
		}
		if err != nil {
			return v, err
		}
	}
	if len(v.Release) == 0 {
		return v, fmt.Errorf("pep440: invalid version: %q", s)
	}
	v.raw = v.String()
	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constant-ish values.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the canonicalized representation of the Version, per
// PEP 440 §8's normalization rules.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.Epoch)
	}
	for i, n := range v.Release {
		if i != 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(n))
	}
	if v.Pre.Label != "" {
		b.WriteString(v.Pre.Label)
		b.WriteString(strconv.Itoa(v.Pre.N))
	}
	if v.HasPost {
		fmt.Fprintf(&b, ".post%d", v.Post)
	}
	if v.HasDev {
		fmt.Fprintf(&b, ".dev%d", v.Dev)
	}
	if len(v.Local) > 0 {
		b.WriteByte('+')
		for i, seg := range v.Local {
			if i != 0 {
				b.WriteByte('.')
			}
			if seg.IsN {
				b.WriteString(strconv.Itoa(seg.Num))
			} else {
				b.WriteString(seg.Str)
			}
		}
	}
	return b.String()
}

// Release0 returns the release segment, zero-padded or truncated to n
// entries. The "~=" and "==X.Y.*" bound computations do not call it.
func (v Version) Release0(n int) []int {
	out := make([]int, n)
	copy(out, v.Release)
	return out
}

// WithoutLocal returns a copy of v with the local segment stripped,
// since PEP 440 §5 specifies that local labels are only considered for
// equality-style comparisons and are otherwise ignored.
func (v Version) WithoutLocal() Version {
	v.Local = nil
	return v
}

// IsPreRelease reports whether v carries a pre-release or dev segment.
func (v Version) IsPreRelease() bool {
	return v.Pre.Label != "" || v.HasDev
}

// preRank orders pre-release labels: a < b < rc < (none).
func preRank(l string) int {
	switch l {
	case "a":
		return 0
	case "b":
		return 1
	case "rc":
		return 2
	default:
		return 3
	}
}

// Compare returns an integer comparing two versions: 0 if equal
// (ignoring local segments), -1 if a < b, +1 if a > b. Local segments
// are compared only when every other component is equal, matching PEP
// 440 §5's "local version label ordering" rule for equality-style
// comparisons.
func (a Version) Compare(b Version) int {
	if a.Epoch != b.Epoch {
		return cmpInt(a.Epoch, b.Epoch)
	}
	n := len(a.Release)
	if len(b.Release) > n {
		n = len(b.Release)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(a.Release) {
			x = a.Release[i]
		}
		if i < len(b.Release) {
			y = b.Release[i]
		}
		if x != y {
			return cmpInt(x, y)
		}
	}

	// Pre/post/dev ordering: dev < pre < (release) < post, per PEP 440
	// §6. This follows the same fixed-width-tuple technique as
	// claircore's pkg/pep440, which the spec's cross-checked test
	// vectors validate: a pre-release label contributes a negative
	// "preL" rank (a=-3, b=-2, rc=-1, none=0); a dev-only release
	// pushes preL further negative (below any pre-release); a dev
	// segment attached to a pre- or post-release instead perturbs
	// "dev" negatively so "N.preK.devJ" sorts before "N.preK".
	al, ad := a.preRank()
	bl, bd := b.preRank()
	if al != bl {
		return cmpInt(al, bl)
	}
	if a.Pre.N != b.Pre.N {
		return cmpInt(a.Pre.N, b.Pre.N)
	}
	if a.Post != b.Post {
		return cmpInt(a.Post, b.Post)
	}
	if ad != bd {
		return cmpInt(ad, bd)
	}
	return compareLocal(a.Local, b.Local)
}

// preRank returns (preL, dev) in the same encoding as claircore's
// pep440.Version.Version(): preL encodes the pre-release label
// (a=-3,b=-2,rc=-1,none=0), perturbed very negative for a dev-only
// release with no pre/post; dev encodes the dev number, offset by
// -2^30 when attached to a pre- or post-release so it sorts before the
// plain pre/post of the same number while keeping dev numbers in
// ascending order.
func (v Version) preRank() (preL, dev int) {
	switch v.Pre.Label {
	case "a":
		preL = -3
	case "b":
		preL = -2
	case "rc":
		preL = -1
	}
	if v.HasDev {
		if v.HasPost || preL != 0 {
			dev = v.Dev - (1 << 30)
		} else {
			const minInt = -(1 << 30)
			preL = minInt + v.Dev
		}
	}
	return preL, dev
}

// Versions implements sort.Interface.
type Versions []Version

func (vs Versions) Len() int           { return len(vs) }
func (vs Versions) Less(i, j int) bool { return vs[i].Compare(vs[j]) < 0 }
func (vs Versions) Swap(i, j int)      { vs[i], vs[j] = vs[j], vs[i] }
