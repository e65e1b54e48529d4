// Package auth implements the fixed credential-source chain spec.md
// §4.3 requires for index requests: URL userinfo, then an env-scoped
// keyring, then a global keyring, then anonymous. It is grounded in
// uv-keyring/src/mock.rs's interface shape — no OS keychain integration
// is in scope (spec.md Non-goals), so Keyring is an injectable
// interface rather than a real platform keyring.
package auth

import (
	"context"
	"net/url"
	"os"
	"strings"
)

// Credentials is a resolved username/password pair, or the zero value
// for "no credentials available".
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether c carries no credentials.
func (c Credentials) Empty() bool { return c.Username == "" && c.Password == "" }

// Keyring is the capability pylock depends on for the "global keyring"
// credential source. No in-process implementation is provided; callers
// inject a platform-specific one (or none, to skip straight to
// anonymous).
type Keyring interface {
	Get(ctx context.Context, host, username string) (password string, ok bool, err error)
}

// Source chains the four credential lookups of spec.md §4.3 in the
// fixed order: URL userinfo, environment-scoped variables, a Keyring
// implementation, and finally anonymous (Empty Credentials, nil
// error).
type Source struct {
	// Getenv defaults to os.Getenv; overridable for tests.
	Getenv func(string) string
	// Keyring is consulted after environment variables, and may be nil
	// to skip straight to anonymous.
	Keyring Keyring
}

// NewSource returns a Source with Getenv defaulted to os.Getenv.
func NewSource(kr Keyring) *Source {
	return &Source{Getenv: os.Getenv, Keyring: kr}
}

// For resolves credentials for u following the fixed chain. u's
// userinfo, if present, always wins without consulting anything else.
func (s *Source) For(ctx context.Context, u *url.URL) (Credentials, error) {
	if u.User != nil {
		pass, _ := u.User.Password()
		return Credentials{Username: u.User.Username(), Password: pass}, nil
	}
	if c, ok := s.fromEnv(u); ok {
		return c, nil
	}
	if s.Keyring != nil {
		if pass, ok, err := s.Keyring.Get(ctx, u.Host, ""); err != nil {
			return Credentials{}, err
		} else if ok {
			return Credentials{Password: pass}, nil
		}
	}
	return Credentials{}, nil
}

// fromEnv implements the "env-scoped keyring" step: UV_INDEX_<HOST>_USERNAME
// and UV_INDEX_<HOST>_PASSWORD, host upper-cased with non-alphanumerics
// replaced by underscores.
func (s *Source) fromEnv(u *url.URL) (Credentials, bool) {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	key := envHostKey(u.Hostname())
	user := getenv("UV_INDEX_" + key + "_USERNAME")
	pass := getenv("UV_INDEX_" + key + "_PASSWORD")
	if user == "" && pass == "" {
		return Credentials{}, false
	}
	return Credentials{Username: user, Password: pass}, true
}

func envHostKey(host string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(host) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
