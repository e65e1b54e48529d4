// Package install implements the Installer (spec.md §4.6): unpacking a
// wheel into a site-packages tree with a pluggable link mode, routing
// its .data subdirectories, generating entry-point scripts, writing
// RECORD/INSTALLER/direct_url.json, and uninstalling by RECORD replay.
//
// Grounded in uv-install-wheel/src/{unpacked,links}.rs and
// uv-installer/src/preparer.rs (original_source) for the unpack/RECORD
// shape, adapted into the teacher's filesystem-walking idiom
// (pkg/tarfs, internal/guestfs walk and materialize archive trees the
// same way this package walks a wheel's zip entries).
package install

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/pylock-dev/pylock"
	"github.com/pylock-dev/pylock/dist"
	"github.com/pylock-dev/pylock/lockstore"
)

// LinkMode selects how wheel files are materialized into site-packages.
type LinkMode int

const (
	// LinkModeCopy unconditionally copies file contents.
	LinkModeCopy LinkMode = iota
	// LinkModeHardlink hardlinks, falling back to copy across devices.
	LinkModeHardlink
	// LinkModeReflink uses a copy-on-write reflink where supported,
	// falling back to copy.
	LinkModeReflink
	// LinkModeSymlink symlinks to the unpacked archive, falling back to
	// copy where symlinks aren't available (e.g. Windows without
	// developer mode).
	LinkModeSymlink
)

// Directories names the target roots a wheel's .data subdirectories and
// generated scripts are routed into, per spec.md §4.6 point 4.
type Directories struct {
	SitePackages string
	Scripts      string
	Headers      string
	Data         string
	Python       string // interpreter path scripts shebang to
}

// Origin records PEP 610 direct_url.json provenance for an install, nil
// for a plain registry install (no direct_url.json is written).
type Origin struct {
	URL         string
	VCS         string // "git", empty for non-VCS
	CommitID    string
	Editable    bool
	ArchiveHash string // sha256:<hex>, for URL/path installs
}

// Installer materializes wheels into a target environment using Dirs
// and Mode, coordinating cross-process access to legacy .egg-info/
// .egg-link installs through Locker.
type Installer struct {
	Dirs   Directories
	Mode   LinkMode
	Locker lockstore.Locker

	// Cache, when set, roots a by-wheel-hash directory of previously
	// extracted wheel contents: Mode values other than LinkModeCopy
	// materialize a file by first copying it into Cache (once per
	// distinct wheel) and then hard/ref/symlinking from there, the way
	// a shared wheel cache lets one extraction serve many
	// environments. With Cache unset every mode degrades to a copy,
	// since there is nothing on disk yet to link from.
	Cache    string
	wheelKey string
}

// LinksNotSupportedError is returned when a wheel's LINKS file is
// non-empty but the target platform cannot create symlinks.
type LinksNotSupportedError struct{ Path string }

func (e *LinksNotSupportedError) Error() string {
	return fmt.Sprintf("install: platform does not support symlinks, required by LINKS entry %q", e.Path)
}

// Install unpacks wheelPath (whose filename is name) into the
// Installer's site-packages, writing RECORD, INSTALLER, and
// direct_url.json (when origin is non-nil).
func (ins *Installer) Install(ctx context.Context, wheelPath string, name dist.WheelFilename, origin *Origin) error {
	ins.wheelKey = name.Name + "-" + name.Version.String() + "-" + name.Build
	zr, err := zip.OpenReader(wheelPath)
	if err != nil {
		return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "opening wheel", Inner: err}
	}
	defer zr.Close()

	distInfo, err := findDistInfo(zr, name)
	if err != nil {
		return err
	}

	if err := checkWheelMetadata(zr, distInfo); err != nil {
		return err
	}
	if err := checkIdentity(zr, distInfo, name); err != nil {
		return err
	}

	var records []recordRow
	dataPrefix := strings.TrimSuffix(distInfo, ".dist-info") + ".data/"

	for _, f := range zr.File {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case strings.HasPrefix(f.Name, dataPrefix):
			row, err := ins.unpackDataEntry(f, dataPrefix)
			if err != nil {
				return err
			}
			if row != nil {
				records = append(records, *row)
			}
		default:
			row, err := ins.unpackEntry(f, ins.Dirs.SitePackages)
			if err != nil {
				return err
			}
			records = append(records, row)
		}
	}

	entryRows, err := ins.generateEntryPointScripts(zr, distInfo)
	if err != nil {
		return err
	}
	records = append(records, entryRows...)

	if linksRows, err := ins.applyLinks(zr, distInfo); err != nil {
		return err
	} else {
		records = append(records, linksRows...)
	}

	installerPath := filepath.Join(ins.Dirs.SitePackages, distInfo, "INSTALLER")
	if err := os.WriteFile(installerPath, []byte("pylock\n"), 0o644); err != nil {
		return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "writing INSTALLER", Inner: err}
	}
	records = append(records, recordRowFor(ins.Dirs.SitePackages, installerPath))

	if origin != nil {
		p, err := ins.writeDirectURL(distInfo, origin)
		if err != nil {
			return err
		}
		records = append(records, recordRowFor(ins.Dirs.SitePackages, p))
	}

	return ins.writeRecord(distInfo, records)
}

func findDistInfo(zr *zip.ReadCloser, name dist.WheelFilename) (string, error) {
	suffix := ".dist-info/"
	for _, f := range zr.File {
		if i := strings.Index(f.Name, suffix); i >= 0 && strings.Count(f.Name[:i+len(suffix)], "/") == 1 {
			return f.Name[:i+len(suffix)-1], nil
		}
	}
	return "", &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall,
		Message: fmt.Sprintf("wheel %s has no .dist-info directory", name)}
}

// checkWheelMetadata reads <dist-info>/WHEEL, aborting on a Wheel-Version
// major mismatch per spec.md §4.6 point 1.
func checkWheelMetadata(zr *zip.ReadCloser, distInfo string) error {
	b, err := readZipEntry(zr, distInfo+"/WHEEL")
	if err != nil {
		return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "reading WHEEL metadata", Inner: err}
	}
	fields := parseRFC822(b)
	v := fields["Wheel-Version"]
	major, _, _ := strings.Cut(v, ".")
	if major != "" && major != "1" {
		return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall,
			Message: fmt.Sprintf("unsupported Wheel-Version %q", v)}
	}
	return nil
}

// checkIdentity reads <dist-info>/METADATA and confirms (Name, Version)
// match the wheel filename after PEP 503 normalization, per spec.md
// §4.6 point 2.
func checkIdentity(zr *zip.ReadCloser, distInfo string, name dist.WheelFilename) error {
	b, err := readZipEntry(zr, distInfo+"/METADATA")
	if err != nil {
		return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "reading METADATA", Inner: err}
	}
	fields := parseRFC822(b)
	if normalize(fields["Name"]) != normalize(name.Name) {
		return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall,
			Message: fmt.Sprintf("METADATA Name %q does not match wheel filename %q", fields["Name"], name.Name)}
	}
	if fields["Version"] != name.Version.String() {
		return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall,
			Message: fmt.Sprintf("METADATA Version %q does not match wheel filename %q", fields["Version"], name.Version.String())}
	}
	return nil
}

func normalize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	lastSep := false
	for _, r := range s {
		if r == '-' || r == '_' || r == '.' {
			if !lastSep {
				b.WriteByte('-')
			}
			lastSep = true
			continue
		}
		lastSep = false
		b.WriteRune(r)
	}
	return b.String()
}

func readZipEntry(zr *zip.ReadCloser, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fs.ErrNotExist
}

func parseRFC822(b []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		if line == "" {
			break
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if _, exists := out[k]; !exists {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

type recordRow struct {
	path string
	hash string // "sha256=<urlsafe-b64-no-pad>", empty for the RECORD row itself
	size int64
}

func recordRowFor(root, fullPath string) recordRow {
	rel, _ := filepath.Rel(root, fullPath)
	rel = filepath.ToSlash(rel)
	fi, err := os.Stat(fullPath)
	if err != nil {
		return recordRow{path: rel}
	}
	b, err := os.ReadFile(fullPath)
	if err != nil {
		return recordRow{path: rel, size: fi.Size()}
	}
	sum := sha256.Sum256(b)
	return recordRow{
		path: rel,
		hash: "sha256=" + base64.RawURLEncoding.EncodeToString(sum[:]),
		size: fi.Size(),
	}
}

func (ins *Installer) unpackEntry(f *zip.File, root string) (recordRow, error) {
	dst := filepath.Join(root, filepath.FromSlash(f.Name))
	if strings.HasSuffix(f.Name, "/") {
		return recordRow{}, os.MkdirAll(dst, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return recordRow{}, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "creating directory", Inner: err}
	}
	h := sha256.New()
	size, err := ins.materialize(f, dst, h)
	if err != nil {
		return recordRow{}, err
	}
	return recordRow{
		path: filepath.ToSlash(mustRel(root, dst)),
		hash: "sha256=" + base64.RawURLEncoding.EncodeToString(h.Sum(nil)),
		size: size,
	}, nil
}

func mustRel(root, dst string) string {
	rel, _ := filepath.Rel(root, dst)
	return rel
}

// materialize writes f's content to dst using the Installer's link
// mode, hashing the content as it's written regardless of mode so
// RECORD always reflects the true content hash. Per spec.md §4.6
// point 3, every non-copy mode falls back to copy when unavailable.
//
// Modes other than LinkModeCopy only take effect when Cache is set:
// the entry is copied into Cache once (keyed by wheel identity and
// its path inside the wheel) and every subsequent install of the same
// wheel hard/ref/symlinks from that cached copy instead of re-reading
// the zip.
func (ins *Installer) materialize(f *zip.File, dst string, h io.Writer) (int64, error) {
	if ins.Mode == LinkModeCopy || ins.Cache == "" {
		return ins.copyEntry(f, dst, h)
	}

	cached := filepath.Join(ins.Cache, ins.wheelKey, filepath.FromSlash(f.Name))
	if _, err := os.Stat(cached); err != nil {
		if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
			return 0, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "creating cache directory", Inner: err}
		}
		if _, err := ins.copyEntry(f, cached, io.Discard); err != nil {
			return 0, err
		}
	}

	if err := linkFile(ins.Mode, cached, dst); err != nil {
		if _, err := ins.copyEntry(f, dst, io.Discard); err != nil {
			return 0, err
		}
	}
	return hashFile(dst, h)
}

func (ins *Installer) copyEntry(f *zip.File, dst string, h io.Writer) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "opening wheel entry", Inner: err}
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o644)
	if err != nil {
		return 0, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "creating file", Inner: err}
	}
	defer out.Close()

	n, err := io.Copy(io.MultiWriter(out, h), rc)
	if err != nil {
		return 0, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "writing file", Inner: err}
	}
	return n, nil
}

func hashFile(path string, h io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "reading materialized file", Inner: err}
	}
	defer f.Close()
	return io.Copy(h, f)
}

// linkFile materializes dst from src per mode, returning an error
// (never attempted twice) when the mode's underlying syscall fails so
// the caller can fall back to a plain copy.
func linkFile(mode LinkMode, src, dst string) error {
	switch mode {
	case LinkModeHardlink:
		return os.Link(src, dst)
	case LinkModeReflink:
		return reflink(src, dst)
	case LinkModeSymlink:
		if !symlinkSupported() {
			return fmt.Errorf("install: symlinks unsupported")
		}
		return os.Symlink(src, dst)
	default:
		return fmt.Errorf("install: unknown link mode %d", mode)
	}
}

// unpackDataEntry routes a <dist-info>.data/<section>/... path to the
// appropriate target root per spec.md §4.6 point 4, rewriting
// "#!python" shebangs for the scripts section.
func (ins *Installer) unpackDataEntry(f *zip.File, dataPrefix string) (*recordRow, error) {
	rel := strings.TrimPrefix(f.Name, dataPrefix)
	section, sub, ok := strings.Cut(rel, "/")
	if !ok || sub == "" {
		return nil, nil
	}
	var root string
	switch section {
	case "purelib", "platlib":
		root = ins.Dirs.SitePackages
	case "scripts":
		root = ins.Dirs.Scripts
	case "headers":
		root = ins.Dirs.Headers
	case "data":
		root = ins.Dirs.Data
	default:
		return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall,
			Message: fmt.Sprintf("unknown .data subdirectory %q", section)}
	}
	if strings.HasSuffix(f.Name, "/") {
		return nil, os.MkdirAll(filepath.Join(root, filepath.FromSlash(sub)), 0o755)
	}
	dst := filepath.Join(root, filepath.FromSlash(sub))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "creating directory", Inner: err}
	}

	rc, err := f.Open()
	if err != nil {
		return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "opening wheel entry", Inner: err}
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "reading wheel entry", Inner: err}
	}
	if section == "scripts" && bytesHasPrefix(content, "#!python") {
		content = rewriteShebang(content, ins.Dirs.Python)
	}
	mode := os.FileMode(0o644)
	if section == "scripts" {
		mode = 0o755
	}
	if err := os.WriteFile(dst, content, mode); err != nil {
		return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "writing file", Inner: err}
	}
	sum := sha256.Sum256(content)
	row := recordRow{
		path: filepath.ToSlash(mustRel(ins.Dirs.SitePackages, dst)),
		hash: "sha256=" + base64.RawURLEncoding.EncodeToString(sum[:]),
		size: int64(len(content)),
	}
	if root != ins.Dirs.SitePackages {
		// RECORD paths are relative to site-packages; entries routed
		// elsewhere are still recorded so uninstall can find them,
		// using an absolute path as uv's installer does.
		row.path = filepath.ToSlash(dst)
	}
	return &row, nil
}

func bytesHasPrefix(b []byte, prefix string) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == prefix
}

func rewriteShebang(content []byte, python string) []byte {
	nl := strings.IndexByte(string(content), '\n')
	if nl == -1 {
		return content
	}
	out := make([]byte, 0, len(content))
	out = append(out, "#!"+python...)
	out = append(out, content[nl:]...)
	return out
}

// entryPoints holds the parsed console_scripts/gui_scripts sections of
// entry_points.txt.
type entryPoints struct {
	console map[string]string
	gui     map[string]string
}

func parseEntryPoints(b []byte) entryPoints {
	ep := entryPoints{console: map[string]string{}, gui: map[string]string{}}
	var cur *map[string]string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			switch strings.TrimSuffix(strings.TrimPrefix(line, "["), "]") {
			case "console_scripts":
				cur = &ep.console
			case "gui_scripts":
				cur = &ep.gui
			default:
				cur = nil
			}
		default:
			if cur == nil {
				continue
			}
			name, target, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			(*cur)[strings.TrimSpace(name)] = strings.TrimSpace(target)
		}
	}
	return ep
}

// generateEntryPointScripts reads entry_points.txt and writes a launcher
// stub per console_scripts/gui_scripts entry, per spec.md §4.6 point 5.
func (ins *Installer) generateEntryPointScripts(zr *zip.ReadCloser, distInfo string) ([]recordRow, error) {
	b, err := readZipEntry(zr, distInfo+"/entry_points.txt")
	if err != nil {
		if err == fs.ErrNotExist {
			return nil, nil
		}
		return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "reading entry_points.txt", Inner: err}
	}
	ep := parseEntryPoints(b)
	var rows []recordRow
	for name, target := range ep.console {
		p, err := ins.writeScript(name, target, false)
		if err != nil {
			return nil, err
		}
		rows = append(rows, p)
	}
	for name, target := range ep.gui {
		p, err := ins.writeScript(name, target, true)
		if err != nil {
			return nil, err
		}
		rows = append(rows, p)
	}
	return rows, nil
}

func (ins *Installer) writeScript(name, target string, gui bool) (recordRow, error) {
	mod, fn, _ := strings.Cut(target, ":")
	scriptName := name
	if runtime.GOOS == "windows" {
		scriptName += ".exe"
	}
	dst := filepath.Join(ins.Dirs.Scripts, scriptName)
	if err := os.MkdirAll(ins.Dirs.Scripts, 0o755); err != nil {
		return recordRow{}, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "creating scripts directory", Inner: err}
	}
	body := fmt.Sprintf("#!%s\nimport sys\nfrom %s import %s\nif __name__ == \"__main__\":\n    sys.exit(%s())\n",
		ins.Dirs.Python, mod, fn, fn)
	_ = gui // GUI launchers differ only in the Windows .exe variant
	if err := os.WriteFile(dst, []byte(body), 0o755); err != nil {
		return recordRow{}, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "writing script", Inner: err}
	}
	return recordRow{path: filepath.ToSlash(dst)}, nil
}

// writeDirectURL writes <dist-info>/direct_url.json per PEP 610.
func (ins *Installer) writeDirectURL(distInfo string, origin *Origin) (string, error) {
	doc := map[string]any{"url": origin.URL}
	switch {
	case origin.VCS != "":
		doc["vcs_info"] = map[string]any{"vcs": origin.VCS, "commit_id": origin.CommitID}
	case origin.Editable:
		doc["dir_info"] = map[string]any{"editable": true}
	case origin.ArchiveHash != "":
		doc["archive_info"] = map[string]any{"hash": origin.ArchiveHash}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "encoding direct_url.json", Inner: err}
	}
	p := filepath.Join(ins.Dirs.SitePackages, distInfo, "direct_url.json")
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return "", &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "writing direct_url.json", Inner: err}
	}
	return p, nil
}

// writeRecord writes <dist-info>/RECORD: rows sorted lexicographically
// by path, with the RECORD row itself carrying an empty hash and size,
// per spec.md §4.6 point 6 / §6's PEP 376 CSV grammar.
func (ins *Installer) writeRecord(distInfo string, rows []recordRow) error {
	recordPath := filepath.Join(ins.Dirs.SitePackages, distInfo, "RECORD")
	rows = append(rows, recordRow{path: filepath.ToSlash(mustRel(ins.Dirs.SitePackages, recordPath))})

	sort.Slice(rows, func(i, j int) bool { return rows[i].path < rows[j].path })

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%s,%s\n", csvField(r.path), r.hash, sizeField(r))
	}
	if err := os.WriteFile(recordPath, []byte(b.String()), 0o644); err != nil {
		return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "writing RECORD", Inner: err}
	}
	return nil
}

func sizeField(r recordRow) string {
	if r.hash == "" {
		return ""
	}
	return fmt.Sprint(r.size)
}

func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// linksRow is one parsed LINKS entry.
type linksRow struct{ source, target string }

// applyLinks parses, validates, and creates the symlinks described by
// <dist-info>/LINKS, per spec.md §4.6 point 8 (PEP 778).
func (ins *Installer) applyLinks(zr *zip.ReadCloser, distInfo string) ([]recordRow, error) {
	b, err := readZipEntry(zr, distInfo+"/LINKS")
	if err != nil {
		if err == fs.ErrNotExist {
			return nil, nil
		}
		return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "reading LINKS", Inner: err}
	}

	var links []linksRow
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		source, target, ok := strings.Cut(line, ",")
		if !ok {
			return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "malformed LINKS row: " + line}
		}
		links = append(links, linksRow{source: strings.TrimSpace(source), target: strings.TrimSpace(target)})
	}
	if len(links) == 0 {
		return nil, nil
	}
	if !symlinkSupported() {
		return nil, &LinksNotSupportedError{Path: links[0].source}
	}
	if err := validateLinks(links); err != nil {
		return nil, err
	}

	var rows []recordRow
	for _, l := range links {
		dst := filepath.Join(ins.Dirs.SitePackages, filepath.FromSlash(l.source))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "creating directory for LINKS entry", Inner: err}
		}
		relTarget, err := filepath.Rel(filepath.Dir(dst), filepath.Join(ins.Dirs.SitePackages, filepath.FromSlash(l.target)))
		if err != nil {
			return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "computing relative LINKS target", Inner: err}
		}
		os.Remove(dst)
		if err := os.Symlink(relTarget, dst); err != nil {
			return nil, &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "creating LINKS symlink", Inner: err}
		}
		rows = append(rows, recordRow{path: filepath.ToSlash(l.source)})
	}
	return rows, nil
}

// validateLinks checks the LINKS invariants of spec.md §4.6 point 8: no
// path escapes the package root, and the source/target relation forms
// a DAG.
func validateLinks(links []linksRow) error {
	for _, l := range links {
		for _, p := range []string{l.source, l.target} {
			if path.IsAbs(p) {
				return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "LINKS path escapes package root: " + p}
			}
			depth := 0
			for _, seg := range strings.Split(path.Clean(p), "/") {
				switch seg {
				case "..":
					depth--
				case ".", "":
				default:
					depth++
				}
				if depth < 0 {
					return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "LINKS path escapes package root: " + p}
				}
			}
		}
	}

	edges := make(map[string][]string, len(links))
	for _, l := range links {
		edges[l.source] = append(edges[l.source], l.target)
	}
	state := make(map[string]int) // 0=unvisited,1=visiting,2=done
	var visit func(n string) error
	visit = func(n string) error {
		switch state[n] {
		case 1:
			return &pylock.Error{Op: "Installer.Install", Kind: pylock.ErrInstall, Message: "LINKS contains a cycle at " + n}
		case 2:
			return nil
		}
		state[n] = 1
		for _, t := range edges[n] {
			if err := visit(t); err != nil {
				return err
			}
		}
		state[n] = 2
		return nil
	}
	for _, l := range links {
		if err := visit(l.source); err != nil {
			return err
		}
	}
	return nil
}

func symlinkSupported() bool {
	if runtime.GOOS != "windows" {
		return true
	}
	dir, err := os.MkdirTemp("", "pylock-symlink-probe")
	if err != nil {
		return false
	}
	defer os.RemoveAll(dir)
	target := filepath.Join(dir, "a")
	link := filepath.Join(dir, "b")
	if err := os.WriteFile(target, nil, 0o644); err != nil {
		return false
	}
	return os.Symlink(target, link) == nil
}
