package lockfile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pylock-dev/pylock"
)

func sampleLock() *pylock.Lock {
	return &pylock.Lock{
		Version:        pylock.CurrentLockVersion,
		RequiresPython: ">=3.9",
		Packages: []pylock.LockPackage{
			{
				PackageID: pylock.PackageID{Name: "requests", Version: "2.31.0", Source: pylock.Source{Registry: "https://pypi.org/simple"}},
				Wheels: []pylock.Artifact{
					{URL: "https://files.pythonhosted.org/requests-2.31.0-py3-none-any.whl", Hash: "sha256:" + strings.Repeat("a", 64)},
				},
			},
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	l := sampleLock()
	var buf bytes.Buffer
	if err := Write(&buf, l); err != nil {
		t.Fatal(err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.RequiresPython != l.RequiresPython {
		t.Errorf("RequiresPython = %q, want %q", got.RequiresPython, l.RequiresPython)
	}
	if len(got.Packages) != 1 || got.Packages[0].Name != "requests" {
		t.Errorf("Packages = %+v", got.Packages)
	}
}

func TestReadRejectsNewerVersion(t *testing.T) {
	doc := `version = 999
requires-python = ">=3.9"
`
	_, err := Read(strings.NewReader(doc))
	var e *pylock.Error
	if err == nil {
		t.Fatal("expected error for unknown lockfile version")
	}
	if !asPylockError(err, &e) || e.Kind != pylock.ErrLockfile {
		t.Errorf("got %v, want pylock.ErrLockfile", err)
	}
}

func TestReadRejectsMalformedTOML(t *testing.T) {
	_, err := Read(strings.NewReader("this is not [ valid toml"))
	if err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}

func TestWriteFileReadFileRoundTrip(t *testing.T) {
	l := sampleLock()
	path := filepath.Join(t.TempDir(), "uv.lock")
	if err := WriteFile(path, l); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Packages[0].Version != "2.31.0" {
		t.Errorf("Version = %q", got.Packages[0].Version)
	}
}

func asPylockError(err error, target **pylock.Error) bool {
	e, ok := err.(*pylock.Error)
	if ok {
		*target = e
	}
	return ok
}
