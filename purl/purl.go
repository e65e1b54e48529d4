// Package purl generates and parses PyPI package URLs (PURLs) for
// resolved packages, following the pkg:pypi/ spec used to cross-reference
// locked packages with external vulnerability and SBOM tooling.
package purl

import (
	"fmt"
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/pylock-dev/pylock/pep440"
)

// PURLType is the package type for PyPI packages.
const PURLType = "pypi"

// Generate builds the PURL for a resolved package name and version. The
// name is normalized per PEP 503 (lowercased, runs of -_. collapsed to
// a single "-"), as required by the pypi PURL spec.
func Generate(name, version string) (packageurl.PackageURL, error) {
	v, err := pep440.Parse(version)
	if err != nil {
		return packageurl.PackageURL{}, fmt.Errorf("purl: invalid version %q: %w", version, err)
	}
	return packageurl.PackageURL{
		Type:    PURLType,
		Name:    normalize(name),
		Version: v.String(),
	}, nil
}

// GenerateQualified is like Generate but attaches a subdirectory or VCS
// qualifier, for packages resolved from a non-registry Source.
func GenerateQualified(name, version string, qualifiers map[string]string) (packageurl.PackageURL, error) {
	p, err := Generate(name, version)
	if err != nil {
		return p, err
	}
	if len(qualifiers) == 0 {
		return p, nil
	}
	q := make(packageurl.Qualifiers, 0, len(qualifiers))
	for k, v := range qualifiers {
		q = append(q, packageurl.Qualifier{Key: k, Value: v})
	}
	p.Qualifiers = q
	return p, nil
}

// Parse extracts the package name and PEP 440 version from a pypi PURL.
func Parse(p packageurl.PackageURL) (name string, version pep440.Version, err error) {
	if p.Type != PURLType {
		return "", pep440.Version{}, fmt.Errorf("purl: not a pypi purl: %q", p.Type)
	}
	v, err := pep440.Parse(p.Version)
	if err != nil {
		return "", pep440.Version{}, fmt.Errorf("purl: unable to parse version: %w", err)
	}
	return normalize(p.Name), v, nil
}

// normalize applies the PEP 503 package-name normalization rule: runs
// of "-", "_", and "." are treated as equivalent, and names compare
// case-insensitively.
func normalize(name string) string {
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
