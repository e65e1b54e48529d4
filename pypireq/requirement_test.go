package pypireq

import "testing"

func TestParse(t *testing.T) {
	tt := []struct {
		name       string
		in         string
		wantName   string
		wantExtras []string
		wantKind   SourceKind
		wantMarker bool
		wantErr    bool
	}{
		{
			name:     "Simple",
			in:       "requests",
			wantName: "requests",
			wantKind: SourceRegistry,
		},
		{
			name:     "Specifier",
			in:       "requests>=2.0,<3.0",
			wantName: "requests",
			wantKind: SourceRegistry,
		},
		{
			name:       "Extras",
			in:         "requests[security,socks]>=2.0",
			wantName:   "requests",
			wantExtras: []string{"security", "socks"},
			wantKind:   SourceRegistry,
		},
		{
			name:       "Marker",
			in:         `requests>=2.0 ; python_version >= "3.8"`,
			wantName:   "requests",
			wantKind:   SourceRegistry,
			wantMarker: true,
		},
		{
			name:     "NormalizedName",
			in:       "Zope.Interface>=5.0",
			wantName: "zope-interface",
			wantKind: SourceRegistry,
		},
		{
			name:     "URL",
			in:       "requests @ https://example.com/requests-2.0-py3-none-any.whl",
			wantName: "requests",
			wantKind: SourceURL,
		},
		{
			name:     "Git",
			in:       "requests @ git+https://github.com/psf/requests@main",
			wantName: "requests",
			wantKind: SourceGit,
		},
		{
			name:     "Path",
			in:       "requests @ file:///home/user/requests",
			wantName: "requests",
			wantKind: SourcePath,
		},
		{
			name:    "InvalidName",
			in:      "!!! >=1.0",
			wantErr: true,
		},
		{
			name:    "InvalidMarker",
			in:      "requests ; bogus_var == 1",
			wantErr: true,
		},
		{
			name:    "UnterminatedExtras",
			in:      "requests[security",
			wantErr: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Parse(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Parse(%q): %v", tc.in, err)
			}
			if tc.wantErr {
				return
			}
			if r.Name != tc.wantName {
				t.Errorf("Name = %q, want %q", r.Name, tc.wantName)
			}
			if r.Source.Kind != tc.wantKind {
				t.Errorf("Source.Kind = %s, want %s", r.Source.Kind, tc.wantKind)
			}
			if r.HasMarker() != tc.wantMarker {
				t.Errorf("HasMarker() = %v, want %v", r.HasMarker(), tc.wantMarker)
			}
			if tc.wantExtras != nil {
				if len(r.Extras) != len(tc.wantExtras) {
					t.Fatalf("Extras = %v, want %v", r.Extras, tc.wantExtras)
				}
				for i, e := range tc.wantExtras {
					if r.Extras[i] != e {
						t.Errorf("Extras[%d] = %q, want %q", i, r.Extras[i], e)
					}
				}
			}
			t.Logf("round-trip: %s", r.String())
		})
	}
}

func TestCutTop(t *testing.T) {
	tt := []struct {
		in     string
		sep    byte
		before string
		after  string
		found  bool
	}{
		{in: "a;b", sep: ';', before: "a", after: "b", found: true},
		{in: "a[b;c];d", sep: ';', before: "a[b;c]", after: "d", found: true},
		{in: "noseparator", sep: ';', before: "noseparator", found: false},
	}
	for _, tc := range tt {
		before, after, found := cutTop(tc.in, tc.sep)
		if before != tc.before || after != tc.after || found != tc.found {
			t.Errorf("cutTop(%q, %q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.in, tc.sep, before, after, found, tc.before, tc.after, tc.found)
		}
	}
}
