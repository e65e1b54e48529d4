// Package index implements the PEP 691/PEP 503 package-index client:
// given one or more index URLs, fetch the list of files for a
// package, preferring the PEP 691 JSON simple API and falling back to
// the PEP 503 HTML simple API or a file:// directory listing.
//
// Grounded in the teacher's internal/httputil response-checking
// helper (folded into checkResponse below) for the retry/backoff
// transport shape, and in puffin-client/src/html.rs (original_source)
// for the HTML fallback parser.
package index

import (
	"time"

	"github.com/pylock-dev/pylock"
)

// File is one entry in a package's file list, per spec.md §4.3.
type File struct {
	Filename             string
	URL                  string
	Hashes               map[string]string
	RequiresPython       string
	Yanked               bool
	YankedReason         string
	DataDistInfoMetadata bool
	UploadTime           time.Time
}

// PreReleasePolicy governs whether pre-release candidates are
// considered, per spec.md §4.8.
type PreReleasePolicy int

const (
	PreReleaseDisallow PreReleasePolicy = iota
	PreReleaseIfNecessary
	PreReleaseAllow
	PreReleaseExplicit
)

// newCacheError builds a *pylock.Error with Kind ErrCache, used in this
// package for malformed PEP 691 JSON and PEP 503 HTML index responses.
func newCacheError(op, msg string, inner error) error {
	return &pylock.Error{Op: op, Kind: pylock.ErrCache, Message: msg, Inner: inner}
}

// newNetworkError builds a *pylock.Error classified as transient or
// permanent per spec.md §7.
func newNetworkError(op string, transient bool, msg string, inner error) error {
	kind := pylock.ErrNetworkPermanent
	if transient {
		kind = pylock.ErrNetworkTransient
	}
	return &pylock.Error{Op: op, Kind: kind, Message: msg, Inner: inner}
}
