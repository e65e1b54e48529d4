// Package postgres implements [lockstore.Locker] on Postgres advisory
// locks, for pylock invocations that share a cache directory across
// multiple processes or machines, and a durable cache for resolved
// index responses, mirroring the connection-pool
// and query-construction patterns of the teacher's datastore/postgres
// store.
package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pylock-dev/pylock/lockstore"
	"github.com/pylock-dev/pylock/metrics"
	"github.com/pylock-dev/pylock/xlog"
)

const tryAdvisoryXactLock = `SELECT pg_try_advisory_xact_lock($1);`

// Connect opens a pgxpool.Pool tuned for lockstore use and registers
// its connection-pool statistics with the default Prometheus registry,
// the way the teacher's datastore/postgres.Connect does for the
// indexer store.
func Connect(ctx context.Context, connString, applicationName string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("lockstore/postgres: parse conn string: %w", err)
	}
	cfg.MaxConns = 10
	const appnameKey = "application_name"
	if _, ok := cfg.ConnConfig.RuntimeParams[appnameKey]; !ok {
		cfg.ConnConfig.RuntimeParams[appnameKey] = applicationName
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("lockstore/postgres: create pool: %w", err)
	}
	stat := func() metrics.PoolStat {
		s := pool.Stat()
		return metrics.PoolStat{
			AcquireCount:         s.AcquireCount(),
			AcquiredConns:        s.AcquiredConns(),
			CanceledAcquireCount: s.CanceledAcquireCount(),
			ConstructingConns:    s.ConstructingConns(),
			EmptyAcquireCount:    s.EmptyAcquireCount(),
			IdleConns:            s.IdleConns(),
			MaxConns:             s.MaxConns(),
			TotalConns:           s.TotalConns(),
		}
	}
	if err := prometheus.Register(metrics.NewCollector(applicationName, statFunc(stat))); err != nil {
		xlog.From(ctx).Debug("pool metrics already registered", "app", applicationName)
	}
	return pool, nil
}

type statFunc func() metrics.PoolStat

func (f statFunc) Stat() metrics.PoolStat { return f() }

// Locker implements lockstore.Locker with pg_try_advisory_xact_lock,
// one transaction per held key. Releasing the lock is committing the
// transaction, so an unexpectedly dropped connection releases every
// lock it held.
type Locker struct {
	pool  *pgxpool.Pool
	retry time.Duration

	mu   sync.Mutex
	held map[string]pgx.Tx
}

var _ lockstore.Locker = (*Locker)(nil)

// New returns a Locker backed by pool, retrying a failed TryLock every
// retry interval until Lock succeeds or its context ends.
func New(pool *pgxpool.Pool, retry time.Duration) *Locker {
	return &Locker{pool: pool, retry: retry, held: make(map[string]pgx.Tx)}
}

// TryLock implements lockstore.Locker.
func (l *Locker) TryLock(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("lockstore/postgres: begin: %w", err)
	}

	var ok bool
	row := tx.QueryRow(ctx, tryAdvisoryXactLock, crushKey(key))
	if err := row.Scan(&ok); err != nil {
		tx.Rollback(ctx)
		return false, fmt.Errorf("lockstore/postgres: try lock %q: %w", key, err)
	}
	if !ok {
		tx.Rollback(ctx)
		return false, nil
	}
	l.held[key] = tx
	return true, nil
}

// Lock implements lockstore.Locker.
func (l *Locker) Lock(ctx context.Context, key string) error {
	ok, err := l.TryLock(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	t := time.NewTicker(l.retry)
	defer t.Stop()
	for !ok {
		select {
		case <-t.C:
			ok, err = l.TryLock(ctx, key)
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Unlock implements lockstore.Locker.
func (l *Locker) Unlock(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.held[key]
	if !ok {
		return fmt.Errorf("lockstore/postgres: unlock %q: not held", key)
	}
	delete(l.held, key)
	return tx.Commit(context.Background())
}

// crushKey reduces an arbitrary string key to the int64 identifier
// pg_try_advisory_xact_lock requires.
func crushKey(key string) int64 {
	h := fnv.New64a()
	io.WriteString(h, key)
	return int64(h.Sum64())
}

// IndexCacheEntry is a durable row caching one package's index
// response, keyed by (index URL, package name), per spec.md §4.3's
// "responses are cached ... keyed by (index_url, package_name)".
type IndexCacheEntry struct {
	IndexURL    string
	Package     string
	ETag        string
	LastModifed string
	Fingerprint int
	Body        []byte
	FetchedAt   time.Time
}

// GetIndexCache fetches a cached index response, returning found=false
// on a cache miss.
func GetIndexCache(ctx context.Context, pool *pgxpool.Pool, indexURL, pkg string) (e IndexCacheEntry, found bool, err error) {
	sql, args, err := goqu.Dialect("postgres").
		From("index_cache").
		Select("etag", "last_modified", "fingerprint", "body", "fetched_at").
		Where(goqu.Ex{"index_url": indexURL, "package_name": pkg}).
		ToSQL()
	if err != nil {
		return e, false, fmt.Errorf("lockstore/postgres: build query: %w", err)
	}
	row := pool.QueryRow(ctx, rebind(sql), args...)
	e.IndexURL, e.Package = indexURL, pkg
	switch err := row.Scan(&e.ETag, &e.LastModifed, &e.Fingerprint, &e.Body, &e.FetchedAt); err {
	case nil:
		return e, true, nil
	case pgx.ErrNoRows:
		return e, false, nil
	default:
		return e, false, fmt.Errorf("lockstore/postgres: scan index cache: %w", err)
	}
}

// PutIndexCache upserts a cached index response.
func PutIndexCache(ctx context.Context, pool *pgxpool.Pool, e IndexCacheEntry) error {
	rec := goqu.Record{
		"index_url":     e.IndexURL,
		"package_name":  e.Package,
		"etag":          e.ETag,
		"last_modified": e.LastModifed,
		"fingerprint":   e.Fingerprint,
		"body":          e.Body,
		"fetched_at":    e.FetchedAt,
	}
	sql, args, err := goqu.Dialect("postgres").
		Insert("index_cache").
		Rows(rec).
		OnConflict(goqu.DoUpdate("index_url, package_name", rec)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("lockstore/postgres: build upsert: %w", err)
	}
	_, err = pool.Exec(ctx, rebind(sql), args...)
	if err != nil {
		return fmt.Errorf("lockstore/postgres: upsert index cache: %w", err)
	}
	return nil
}

// rebind is a placeholder for goqu's "?" binds when pgx needs "$N";
// goqu's postgres dialect already emits "$N" directly, so this is an
// identity pass kept as a single seam in case a future goqu upgrade
// changes that default.
func rebind(sql string) string { return sql }
