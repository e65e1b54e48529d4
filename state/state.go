// Package state threads the handful of values every pylock component
// needs a shared handle to — auth caching, cross-process locking, the
// distribution database — through explicit constructors rather than
// package-level globals, per spec.md §9's "global mutable state is
// avoided" design note.
package state

import (
	"net/http"

	"github.com/pylock-dev/pylock/auth"
	"github.com/pylock-dev/pylock/distdb"
	"github.com/pylock-dev/pylock/lockstore"
)

// Shared is constructed once per invocation (one `pylock sync`, one
// `pylock install`) and passed by value or pointer into every component
// that needs it, rather than any component reaching for ambient
// package state.
type Shared struct {
	HTTP  *http.Client
	Auth  *auth.Source
	Locks lockstore.Locker
	DB    *distdb.Database

	// MaxRetries records the invocation's retry count (3 from New). No
	// component reads it; index.Client takes its retry bound from its
	// own MaxRetries field.
	MaxRetries int
}

// New constructs a Shared rooted at cacheDir, using locker for
// cross-process coordination.
func New(cacheDir string, locker lockstore.Locker, keyring auth.Keyring) *Shared {
	return &Shared{
		HTTP:       http.DefaultClient,
		Auth:       auth.NewSource(keyring),
		Locks:      locker,
		DB:         distdb.NewDatabase(cacheDir, locker),
		MaxRetries: 3,
	}
}
