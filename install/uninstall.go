package install

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pylock-dev/pylock"
)

// Uninstall removes every file listed in distInfo's RECORD, then walks
// parent directories removing now-empty ones (stopping at
// site-packages), always removing any __pycache__ directory
// encountered along the way, per spec.md §4.6's uninstall procedure.
func (ins *Installer) Uninstall(ctx context.Context, distInfo string) error {
	recordPath := filepath.Join(ins.Dirs.SitePackages, distInfo, "RECORD")
	f, err := os.Open(recordPath)
	if err != nil {
		return &pylock.Error{Op: "Installer.Uninstall", Kind: pylock.ErrInstall, Message: "reading RECORD", Inner: err}
	}
	defer f.Close()

	dirs := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		rel, _, _ := strings.Cut(line, ",")
		rel = strings.Trim(rel, `"`)
		if rel == "" {
			continue
		}
		full := rel
		if !filepath.IsAbs(rel) {
			full = filepath.Join(ins.Dirs.SitePackages, filepath.FromSlash(rel))
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return &pylock.Error{Op: "Installer.Uninstall", Kind: pylock.ErrInstall, Message: "removing " + full, Inner: err}
		}
		dirs[filepath.Dir(full)] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return &pylock.Error{Op: "Installer.Uninstall", Kind: pylock.ErrInstall, Message: "scanning RECORD", Inner: err}
	}

	for dir := range dirs {
		pruneEmptyParents(dir, ins.Dirs.SitePackages)
	}
	return nil
}

// pruneEmptyParents removes dir and its now-empty ancestors, stopping
// at (not including) stop. Before checking whether a directory is
// empty it removes that directory's __pycache__ child, if any.
func pruneEmptyParents(dir, stop string) {
	for dir != stop && dir != filepath.Dir(dir) {
		os.RemoveAll(filepath.Join(dir, "__pycache__"))
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// removePycache removes every __pycache__ directory under root.
func removePycache(root string) {
	filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d == nil {
			return nil
		}
		if d.IsDir() && d.Name() == "__pycache__" {
			os.RemoveAll(p)
			return filepath.SkipDir
		}
		return nil
	})
}

// LegacyInstall describes an old-style setup.py install recorded as
// <name>.egg-info or <name>.egg-link rather than a RECORD-driven
// .dist-info.
type LegacyInstall struct {
	EggInfoDir  string // "<name>.egg-info", empty if this is an egg-link install
	EggLinkFile string // "<name>.egg-link", empty otherwise
	TopLevel    []string
}

// UninstallLegacy removes a legacy egg-info/egg-link install per
// spec.md §4.6: read top_level.txt for the module names to remove, and
// for an egg-link install, edit easy-install.pth under a cross-process
// lock since multiple installers could touch it concurrently.
func (ins *Installer) UninstallLegacy(ctx context.Context, legacy LegacyInstall) error {
	if legacy.EggLinkFile != "" {
		return ins.uninstallEggLink(ctx, legacy)
	}
	if err := os.RemoveAll(filepath.Join(ins.Dirs.SitePackages, legacy.EggInfoDir)); err != nil && !os.IsNotExist(err) {
		return &pylock.Error{Op: "Installer.UninstallLegacy", Kind: pylock.ErrInstall, Message: "removing egg-info directory", Inner: err}
	}
	for _, mod := range legacy.TopLevel {
		if err := os.RemoveAll(filepath.Join(ins.Dirs.SitePackages, mod)); err != nil && !os.IsNotExist(err) {
			return &pylock.Error{Op: "Installer.UninstallLegacy", Kind: pylock.ErrInstall, Message: "removing top-level module " + mod, Inner: err}
		}
	}
	return nil
}

func (ins *Installer) uninstallEggLink(ctx context.Context, legacy LegacyInstall) error {
	pthPath := filepath.Join(ins.Dirs.SitePackages, "easy-install.pth")
	lockKey := pthPath
	if ins.Locker != nil {
		if err := ins.Locker.Lock(ctx, lockKey); err != nil {
			return &pylock.Error{Op: "Installer.UninstallLegacy", Kind: pylock.ErrInstall, Message: "acquiring easy-install.pth lock", Inner: err}
		}
		defer ins.Locker.Unlock(lockKey)
	}

	linkFile := filepath.Join(ins.Dirs.SitePackages, legacy.EggLinkFile)
	b, err := os.ReadFile(linkFile)
	if err != nil && !os.IsNotExist(err) {
		return &pylock.Error{Op: "Installer.UninstallLegacy", Kind: pylock.ErrInstall, Message: "reading egg-link", Inner: err}
	}
	target := strings.TrimSpace(strings.SplitN(string(b), "\n", 2)[0])

	if err := os.Remove(linkFile); err != nil && !os.IsNotExist(err) {
		return &pylock.Error{Op: "Installer.UninstallLegacy", Kind: pylock.ErrInstall, Message: "removing egg-link", Inner: err}
	}

	pb, err := os.ReadFile(pthPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &pylock.Error{Op: "Installer.UninstallLegacy", Kind: pylock.ErrInstall, Message: "reading easy-install.pth", Inner: err}
	}
	var kept []string
	for _, line := range strings.Split(string(pb), "\n") {
		if strings.TrimSpace(line) == target {
			continue
		}
		kept = append(kept, line)
	}
	return os.WriteFile(pthPath, []byte(strings.Join(kept, "\n")), 0o644)
}
