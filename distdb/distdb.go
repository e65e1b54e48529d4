// Package distdb implements the DistributionDatabase (spec.md §4.4):
// the single entry point for "give me a wheel and/or metadata for
// this distribution," backed by a stable on-disk cache layout and a
// process-wide in-flight map so concurrent callers asking for the same
// distribution share one fetch.
//
// Grounded in the teacher's datastore/postgres + internal/cache for
// the content-addressed cache-entry/advisory-lock pattern, and in
// puffin-cache/src/lib.rs (original_source) for the versioned
// cache-key layout below.
package distdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pylock-dev/pylock"
	"github.com/pylock-dev/pylock/lockstore"
	"github.com/pylock-dev/pylock/metrics"
)

// CacheVersion is the current generation of the on-disk cache layout;
// bumping it invalidates every prior entry, per spec.md §4.3's
// "fingerprint format is versioned" rule extended to every shard.
const CacheVersion = 1

// Shard names the top-level cache directories of spec.md §4.4.
type Shard string

const (
	ShardSimpleIndex  Shard = "simple"
	ShardWheels       Shard = "wheels"
	ShardSdists       Shard = "sdists"
	ShardBuiltWheels  Shard = "built-wheels"
	ShardArchive      Shard = "archive"
	ShardEnvironments Shard = "environments"
)

// Layout resolves shard-relative cache paths under Root, versioned as
// "<shard>-v<CacheVersion>".
type Layout struct{ Root string }

// Dir returns the versioned shard directory, e.g. "<root>/wheels-v1".
func (l Layout) Dir(s Shard) string {
	return filepath.Join(l.Root, fmt.Sprintf("%s-v%d", s, CacheVersion))
}

// EntryPath returns the path for a single entry within shard, nested
// under bucket (e.g. "pypi" or a hash of a non-default index URL) the
// way spec.md §4.4's layout diagram lays out entries.
func (l Layout) EntryPath(s Shard, bucket, name string) string {
	return filepath.Join(l.Dir(s), bucket, name)
}

// Revision identifies the content a cache entry holds: a registry
// wheel's declared hash, a URL/path wheel's computed hash, or an
// sdist build's (source-timestamp, config-settings) derived key.
type Revision struct {
	Digest      pylock.Digest
	Fingerprint string
}

// Entry is one cached artifact: its resolved filesystem path and the
// Revision that was current when it was written.
type Entry struct {
	Path     string
	Revision Revision
}

// FetchFunc materializes a fresh Entry for a cache miss, writing to
// dir (which the Database has already created) and returning the path
// it wrote along with the Revision of what it wrote. Implementations
// live in the index/build packages and are injected here to avoid an
// import cycle.
type FetchFunc func(ctx context.Context, dir string) (Entry, error)

// Database is the DistributionDatabase: an on-disk cache tree plus the
// in-flight map and advisory locks needed to make concurrent access to
// it safe.
type Database struct {
	Layout Layout
	Locker lockstore.Locker

	inflight liveCache[string, Entry]
}

// NewDatabase returns a Database rooted at root, using locker for
// cross-process coordination (a [lockstore.Local] is sufficient for a
// single invocation).
func NewDatabase(root string, locker lockstore.Locker) *Database {
	return &Database{Layout: Layout{Root: root}, Locker: locker}
}

// Get returns the cached Entry for key (a distribution id, e.g.
// "pypi:requests:2.31.0:wheel:py3-none-any"), calling fetch on a cache
// miss or revision mismatch. Concurrent Get calls for the same key
// share one fetch, per spec.md §4.4's in-flight map requirement.
func (db *Database) Get(ctx context.Context, shard Shard, bucket, key string, want Revision, fetch FetchFunc) (Entry, error) {
	done := metrics.InFlightStarted(string(shard))
	outcome := "error"
	defer func() { done(outcome) }()

	entryKey := string(shard) + "/" + bucket + "/" + key + "@" + want.Fingerprint
	e, err := db.inflight.Get(ctx, entryKey, func(ctx context.Context, _ string) (*Entry, error) {
		return db.getOrFetch(ctx, shard, bucket, key, want, fetch)
	})
	if err != nil {
		return Entry{}, err
	}
	outcome = "ok"
	return *e, nil
}

func (db *Database) getOrFetch(ctx context.Context, shard Shard, bucket, key string, want Revision, fetch FetchFunc) (*Entry, error) {
	dir := db.Layout.EntryPath(shard, bucket, key)

	lockKey := dir
	if db.Locker != nil {
		if err := db.Locker.Lock(ctx, lockKey); err != nil {
			return nil, &pylock.Error{Op: "distdb.Get", Kind: pylock.ErrCache, Message: "acquiring entry lock", Inner: err}
		}
		defer db.Locker.Unlock(lockKey)
	}

	if e, ok := db.checkFresh(dir, want); ok {
		return &e, nil
	}

	tmp := dir + ".tmp-" + fmt.Sprint(time.Now().UnixNano())
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, &pylock.Error{Op: "distdb.Get", Kind: pylock.ErrCache, Message: "creating temp entry dir", Inner: err}
	}
	defer os.RemoveAll(tmp)

	entry, err := fetch(ctx, tmp)
	if err != nil {
		return nil, err
	}
	entry.Revision = want

	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return nil, &pylock.Error{Op: "distdb.Get", Kind: pylock.ErrCache, Message: "clearing stale entry", Inner: err}
	}
	if err := os.Rename(tmp, dir); err != nil {
		return nil, &pylock.Error{Op: "distdb.Get", Kind: pylock.ErrCache, Message: "installing fetched entry", Inner: err}
	}
	if err := os.WriteFile(dir+".revision", []byte(want.Fingerprint), 0o644); err != nil {
		return nil, &pylock.Error{Op: "distdb.Get", Kind: pylock.ErrCache, Message: "writing revision marker", Inner: err}
	}
	entry.Path = dir
	return &entry, nil
}

// checkFresh reports whether dir already holds an entry matching want,
// per spec.md §4.4's "freshness... checked before serving" rule. The
// revision is persisted as a sibling ".revision" file next to the
// entry directory.
func (db *Database) checkFresh(dir string, want Revision) (Entry, bool) {
	b, err := os.ReadFile(dir + ".revision")
	if err != nil {
		return Entry{}, false
	}
	if string(b) != want.Fingerprint {
		return Entry{}, false
	}
	if _, err := os.Stat(dir); err != nil {
		return Entry{}, false
	}
	return Entry{Path: dir, Revision: want}, true
}

// Prune removes every file or directory in each bucket of shard whose
// name (an entry directory or its ".revision" marker) isn't in keep.
// Revision fingerprints are not consulted.
func (db *Database) Prune(shard Shard, keep map[string]struct{}) error {
	root := db.Layout.Dir(shard)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("distdb: pruning %s: %w", shard, err)
	}
	for _, bucket := range entries {
		if !bucket.IsDir() {
			continue
		}
		bdir := filepath.Join(root, bucket.Name())
		items, err := os.ReadDir(bdir)
		if err != nil {
			continue
		}
		for _, it := range items {
			if _, ok := keep[it.Name()]; ok {
				continue
			}
			os.RemoveAll(filepath.Join(bdir, it.Name()))
		}
	}
	return nil
}
