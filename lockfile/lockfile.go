// Package lockfile reads and writes the pylock.Lock data model as TOML,
// using github.com/BurntSushi/toml the way the teacher's configuration
// loading uses it for structured on-disk documents.
package lockfile

import (
	"bytes"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/pylock-dev/pylock"
)

// Read parses a lockfile from r. A Version greater than
// [pylock.CurrentLockVersion] is rejected with [pylock.ErrLockfile]
// before any further validation, distinct from a TOML syntax error
// (also ErrLockfile, but with a different message) per spec.md §7's
// "unknown version vs unparseable" distinction.
func Read(r io.Reader) (*pylock.Lock, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, &pylock.Error{Op: "lockfile.Read", Kind: pylock.ErrLockfile, Message: "reading lockfile", Inner: err}
	}

	var probe struct {
		Version int `toml:"version"`
	}
	if _, err := toml.Decode(string(b), &probe); err != nil {
		return nil, &pylock.Error{Op: "lockfile.Read", Kind: pylock.ErrLockfile, Message: "lockfile is not valid TOML", Inner: err}
	}
	if probe.Version > pylock.CurrentLockVersion {
		return nil, &pylock.Error{Op: "lockfile.Read", Kind: pylock.ErrLockfile,
			Message: "lockfile version is newer than this tool understands"}
	}

	var l pylock.Lock
	if _, err := toml.Decode(string(b), &l); err != nil {
		return nil, &pylock.Error{Op: "lockfile.Read", Kind: pylock.ErrLockfile, Message: "decoding lockfile", Inner: err}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// ReadFile reads and parses the lockfile at path.
func ReadFile(path string) (*pylock.Lock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &pylock.Error{Op: "lockfile.ReadFile", Kind: pylock.ErrLockfile, Message: "opening " + path, Inner: err}
	}
	defer f.Close()
	return Read(f)
}

// Write encodes l as TOML to w.
func Write(w io.Writer, l *pylock.Lock) error {
	if l.Version == 0 {
		l.Version = pylock.CurrentLockVersion
	}
	enc := toml.NewEncoder(w)
	if err := enc.Encode(l); err != nil {
		return &pylock.Error{Op: "lockfile.Write", Kind: pylock.ErrLockfile, Message: "encoding lockfile", Inner: err}
	}
	return nil
}

// WriteFile writes l as TOML to path, via a temp-file-then-rename so a
// failed write never leaves a truncated lockfile in place.
func WriteFile(path string, l *pylock.Lock) error {
	var buf bytes.Buffer
	if err := Write(&buf, l); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return &pylock.Error{Op: "lockfile.WriteFile", Kind: pylock.ErrLockfile, Message: "writing temp lockfile", Inner: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &pylock.Error{Op: "lockfile.WriteFile", Kind: pylock.ErrLockfile, Message: "installing lockfile", Inner: err}
	}
	return nil
}
