package dist

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pylock-dev/pylock/pep440"
)

// SdistFilename is the parsed form of a source distribution filename:
// {name}-{version}.{extension}. PEP 625 mandates ".tar.gz" for newly
// published sdists; legacy uploads used ".zip" and plain ".tar".
type SdistFilename struct {
	Name      string
	Version   pep440.Version
	Extension string
}

var sdistExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".zip", ".tar"}

var sdistRe = regexp.MustCompile(`(?i)^([A-Z0-9](?:[A-Z0-9._-]*[A-Z0-9])?)-(.+)$`)

// ParseSdistFilename parses s as a source distribution filename.
func ParseSdistFilename(s string) (SdistFilename, error) {
	var ext string
	for _, e := range sdistExtensions {
		if strings.HasSuffix(strings.ToLower(s), e) {
			ext = e
			break
		}
	}
	if ext == "" {
		return SdistFilename{}, fmt.Errorf("dist: %q has no recognized sdist extension", s)
	}
	stem := s[:len(s)-len(ext)]
	m := sdistRe.FindStringSubmatch(stem)
	if m == nil {
		return SdistFilename{}, fmt.Errorf("dist: %q is not a well-formed sdist filename", s)
	}
	v, err := pep440.Parse(strings.ReplaceAll(m[2], "_", "-"))
	if err != nil {
		return SdistFilename{}, fmt.Errorf("dist: sdist filename %q: %w", s, err)
	}
	return SdistFilename{Name: normalizeName(m[1]), Version: v, Extension: ext}, nil
}

// String renders the sdist filename back out.
func (s SdistFilename) String() string {
	return fmt.Sprintf("%s-%s%s", escapeName(s.Name), s.Version, s.Extension)
}
