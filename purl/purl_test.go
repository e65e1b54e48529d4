package purl

import (
	"testing"

	"github.com/package-url/packageurl-go"

	"github.com/pylock-dev/pylock/pep440"
)

func TestRoundTrip(t *testing.T) {
	tt := []struct {
		name    string
		version string
		wantErr bool
	}{
		{name: "urllib3", version: "2.2.1"},
		{name: "Django", version: "1.11.1"},
		{name: "zope.interface", version: "6.1"},
		{name: "django", version: "something-invalid", wantErr: true},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Generate(tc.name, tc.version)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			t.Logf("generated purl: %s", p.String())

			gotName, gotVersion, err := Parse(p)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if gotName != normalize(tc.name) {
				t.Errorf("name: got %q, want %q", gotName, normalize(tc.name))
			}
			want, err := pep440.Parse(tc.version)
			if err != nil {
				t.Fatalf("pep440.Parse: %v", err)
			}
			if gotVersion.Compare(want) != 0 {
				t.Errorf("version did not round-trip: got %s, want %s", gotVersion, want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tt := []struct{ in, want string }{
		{"Django", "django"},
		{"zope.interface", "zope-interface"},
		{"foo__bar", "foo-bar"},
		{"Foo-Bar.Baz", "foo-bar-baz"},
	}
	for _, tc := range tt {
		if got := normalize(tc.in); got != tc.want {
			t.Errorf("normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGenerateQualified(t *testing.T) {
	p, err := GenerateQualified("requests", "2.31.0", map[string]string{"subdirectory": "sub"})
	if err != nil {
		t.Fatalf("GenerateQualified: %v", err)
	}
	if got := p.Qualifiers.Map()["subdirectory"]; got != "sub" {
		t.Errorf("subdirectory qualifier = %q, want %q", got, "sub")
	}
	var _ packageurl.PackageURL = p
}
