package pyversion

import "testing"

func TestParseBareVersion(t *testing.T) {
	r, err := Parse("3.12")
	if err != nil {
		t.Fatal(err)
	}
	if r.Implementation != "" || r.Major != 3 || r.Minor != 12 || r.HasPatch {
		t.Errorf("got %+v", r)
	}
}

func TestParseImplementationAt(t *testing.T) {
	r, err := Parse("cpython@3.12")
	if err != nil {
		t.Fatal(err)
	}
	if r.Implementation != CPython || r.Major != 3 || r.Minor != 12 {
		t.Errorf("got %+v", r)
	}
}

func TestParseImplementationDash(t *testing.T) {
	r, err := Parse("pypy-3.11")
	if err != nil {
		t.Fatal(err)
	}
	if r.Implementation != PyPy || r.Major != 3 || r.Minor != 11 {
		t.Errorf("got %+v", r)
	}
}

func TestParseAbsolutePath(t *testing.T) {
	r, err := Parse("/opt/python/bin/python3.12")
	if err != nil {
		t.Fatal(err)
	}
	if r.Path != "/opt/python/bin/python3.12" {
		t.Errorf("got %+v", r)
	}
}

func TestParseTaggedKey(t *testing.T) {
	r, err := Parse("cpython-3.12.1-linux-x86_64-gnu")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Tagged || r.Implementation != CPython || r.Major != 3 || r.Minor != 12 || r.Patch != 1 || !r.HasPatch {
		t.Errorf("version fields: %+v", r)
	}
	if r.OS != "linux" || r.Arch != "x86_64" || r.Libc != "gnu" {
		t.Errorf("platform fields: %+v", r)
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"3.12", "cpython-3.12", "pypy-3.11", "cpython-3.12.1-linux-x86_64-gnu"} {
		r, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := r.String(); got != s {
			t.Errorf("Parse(%q).String() = %q", s, got)
		}
	}
}
