package distdb

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/pylock-dev/pylock"
)

// ExtractSdist unpacks the source archive at archivePath (a ".tar.gz" or
// ".tgz", ".tar.xz", ".tar", or ".zip"; a ".tar.bz2", though accepted by
// [dist.SdistFilename], is rejected with an ErrCache error) into
// destDir, returning the single top-level directory the archive
// expands to (PEP 517 build frontends operate on that directory, not
// destDir itself, since sdists always wrap their contents in one
// "{name}-{version}/" prefix).
//
// Grounded in the teacher's pkg/tarfs (gzip-then-tar decoding via
// klauspost/compress) generalized from read-only ToC parsing to a
// real on-disk extraction, since BuildDispatch needs a source tree on
// disk rather than an fs.FS view of the archive.
func ExtractSdist(archivePath, destDir string) (string, error) {
	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(archivePath, destDir)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTar(archivePath, destDir, gzipDecompressor)
	case strings.HasSuffix(lower, ".tar.xz"):
		return extractTar(archivePath, destDir, xzDecompressor)
	case strings.HasSuffix(lower, ".tar.bz2"):
		return "", &pylock.Error{Op: "distdb.ExtractSdist", Kind: pylock.ErrCache, Message: "bzip2 sdists are not supported"}
	case strings.HasSuffix(lower, ".tar"):
		return extractTar(archivePath, destDir, nil)
	default:
		return "", &pylock.Error{Op: "distdb.ExtractSdist", Kind: pylock.ErrCache, Message: fmt.Sprintf("unrecognized sdist archive %q", archivePath)}
	}
}

func gzipDecompressor(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }
func xzDecompressor(r io.Reader) (io.Reader, error)   { return xz.NewReader(r) }

func extractTar(archivePath, destDir string, decompress func(io.Reader) (io.Reader, error)) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", &pylock.Error{Op: "distdb.ExtractSdist", Kind: pylock.ErrCache, Message: "opening sdist archive", Inner: err}
	}
	defer f.Close()

	var r io.Reader = f
	if decompress != nil {
		r, err = decompress(f)
		if err != nil {
			return "", &pylock.Error{Op: "distdb.ExtractSdist", Kind: pylock.ErrCache, Message: "decompressing sdist archive", Inner: err}
		}
	}

	tr := tar.NewReader(r)
	root := ""
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &pylock.Error{Op: "distdb.ExtractSdist", Kind: pylock.ErrCache, Message: "reading tar entry", Inner: err}
		}
		name, top, err := sanitizeArchiveMember(h.Name)
		if err != nil {
			return "", err
		}
		if root == "" {
			root = top
		}
		dst := filepath.Join(destDir, name)
		switch h.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return "", err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return "", err
			}
			out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileModeFor(h.Mode))
			if err != nil {
				return "", err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return "", err
			}
			out.Close()
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return "", err
			}
			os.Symlink(h.Linkname, dst)
		}
	}
	if root == "" {
		return "", &pylock.Error{Op: "distdb.ExtractSdist", Kind: pylock.ErrCache, Message: "sdist archive contained no entries"}
	}
	return filepath.Join(destDir, root), nil
}

func extractZip(archivePath, destDir string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", &pylock.Error{Op: "distdb.ExtractSdist", Kind: pylock.ErrCache, Message: "opening sdist zip", Inner: err}
	}
	defer zr.Close()

	root := ""
	for _, f := range zr.File {
		name, top, err := sanitizeArchiveMember(f.Name)
		if err != nil {
			return "", err
		}
		if root == "" {
			root = top
		}
		dst := filepath.Join(destDir, name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", err
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileModeFor(int64(f.Mode())))
		if err != nil {
			rc.Close()
			return "", err
		}
		_, err = io.Copy(out, rc)
		out.Close()
		rc.Close()
		if err != nil {
			return "", err
		}
	}
	if root == "" {
		return "", &pylock.Error{Op: "distdb.ExtractSdist", Kind: pylock.ErrCache, Message: "sdist zip contained no entries"}
	}
	return filepath.Join(destDir, root), nil
}

// sanitizeArchiveMember rejects absolute paths and "../" escapes and
// returns the cleaned relative name along with its first path
// component (the sdist's single top-level directory).
func sanitizeArchiveMember(name string) (cleaned, top string, err error) {
	cleaned = filepath.Clean(strings.ReplaceAll(name, "\\", "/"))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", "", &pylock.Error{Op: "distdb.ExtractSdist", Kind: pylock.ErrCache, Message: fmt.Sprintf("archive member %q escapes destination", name)}
	}
	parts := strings.SplitN(cleaned, "/", 2)
	return cleaned, parts[0], nil
}

func fileModeFor(mode int64) os.FileMode {
	if mode&0o111 != 0 {
		return 0o755
	}
	return 0o644
}
