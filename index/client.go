package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/pylock-dev/pylock/auth"
	"github.com/pylock-dev/pylock/metrics"
	"github.com/pylock-dev/pylock/xlog"
)

// acceptJSON is the PEP 691 content-negotiation header.
const acceptJSON = "application/vnd.pypi.simple.v1+json"

// Client fetches a package's file list from one or more index URLs in
// order, stopping at the first index that returns a (possibly empty)
// result, per spec.md §9's "dynamic dispatch over index backends ...
// not inheritance" design note.
type Client struct {
	IndexURLs []string
	HTTP      *http.Client
	Auth      *auth.Source
	// MaxRetries bounds the retry count for transient network errors.
	// Zero means use the package default of 3.
	MaxRetries int

	// noRange is never populated or read: Client issues no byte-range
	// requests and does not read .dist-info/METADATA from a partial
	// wheel download, so no host is ever recorded here.
	noRange map[string]bool
}

// NewClient returns a Client with sane defaults: a *http.Client tuned
// with HTTP/2 enabled (golang.org/x/net/http2's defaults, already on
// by net/http's DefaultTransport) and a 3-attempt retry budget.
func NewClient(indexURLs []string, src *auth.Source) *Client {
	return &Client{
		IndexURLs:  indexURLs,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		Auth:       src,
		MaxRetries: 3,
		noRange:    make(map[string]bool),
	}
}

// Fetch returns the file list for pkg from the first index that
// answers, trying PEP 691 JSON, then PEP 503 HTML, then a file://
// directory listing.
func (c *Client) Fetch(ctx context.Context, pkg string) ([]File, error) {
	ctx, span := metrics.StartSpan(ctx, metrics.Tracer("pylock/index"), "Client.Fetch", pkg)
	defer span.End()

	var lastErr error
	for _, base := range c.IndexURLs {
		files, err := c.fetchOne(ctx, base, pkg)
		if err == nil {
			return files, nil
		}
		lastErr = err
		xlog.From(ctx).Debug("index fetch failed, trying next", "index", base, "package", pkg, "err", err)
	}
	return nil, metrics.HandleError(span, fmt.Errorf("index: no index returned results for %q: %w", pkg, lastErr))
}

func (c *Client) fetchOne(ctx context.Context, base, pkg string) ([]File, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("index: invalid index URL %q: %w", base, err)
	}
	if u.Scheme == "file" {
		return c.fetchFileScheme(u, pkg)
	}
	u.Path = path.Join(u.Path, pkg) + "/"

	body, contentType, err := c.getWithRetry(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer body.Close()
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, newNetworkError("index.fetchOne", true, "reading response body", err)
	}

	if strings.Contains(contentType, "json") {
		return parseJSON(b)
	}
	return parseHTML(b, u)
}

// getWithRetry issues a GET, retrying transient failures (5xx,
// connection errors) up to MaxRetries times with exponential backoff,
// and surfacing 401/403 immediately after the caller's credential
// chain has already been applied once.
func (c *Client) getWithRetry(ctx context.Context, target string) (io.ReadCloser, string, error) {
	retries := c.MaxRetries
	if retries == 0 {
		retries = 3
	}
	wait := 250 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, "", ctx.Err()
			}
			wait *= 2
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, "", fmt.Errorf("index: build request: %w", err)
		}
		req.Header.Set("Accept", acceptJSON+", text/html;q=0.5")
		if c.Auth != nil {
			if cred, err := c.Auth.For(ctx, req.URL); err == nil && !cred.Empty() {
				req.SetBasicAuth(cred.Username, cred.Password)
			}
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = newNetworkError("index.getWithRetry", true, "request failed", err)
			continue
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			return resp.Body, resp.Header.Get("Content-Type"), nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			err := checkResponse(resp, http.StatusOK)
			resp.Body.Close()
			return nil, "", newNetworkError("index.getWithRetry", false, "authorization failed", err)
		case resp.StatusCode == http.StatusNotFound:
			err := checkResponse(resp, http.StatusOK)
			resp.Body.Close()
			return nil, "", newNetworkError("index.getWithRetry", false, "not found", err)
		case resp.StatusCode >= 500:
			err := checkResponse(resp, http.StatusOK)
			resp.Body.Close()
			lastErr = newNetworkError("index.getWithRetry", true, "server error", err)
			continue
		default:
			err := checkResponse(resp, http.StatusOK)
			resp.Body.Close()
			return nil, "", newNetworkError("index.getWithRetry", false, "unexpected status", err)
		}
	}
	return nil, "", lastErr
}

// checkResponse reports an error including a snippet of the body when
// resp's status isn't among acceptableCodes, folded in from the
// teacher's internal/httputil.CheckResponse.
func checkResponse(resp *http.Response, acceptableCodes ...int) error {
	if slices.Contains(acceptableCodes, resp.StatusCode) {
		return nil
	}
	limitBody, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err == nil {
		return fmt.Errorf("unexpected status code: %q for %q (body starts: %q)",
			resp.Status, resp.Request.URL.Redacted(), limitBody)
	}
	return fmt.Errorf("unexpected status code: %q for %q", resp.Status, resp.Request.URL.Redacted())
}

// fetchFileScheme implements the directory-listing fallback for
// file:// index URLs.
func (c *Client) fetchFileScheme(u *url.URL, pkg string) ([]File, error) {
	dir := path.Join(u.Path, pkg)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newNetworkError("index.fetchFileScheme", false, "package directory not found", err)
		}
		return nil, fmt.Errorf("index: reading %q: %w", dir, err)
	}
	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, File{
			Filename: e.Name(),
			URL:      (&url.URL{Scheme: "file", Path: path.Join(dir, e.Name())}).String(),
		})
	}
	return files, nil
}

// pep691Response is the PEP 691 JSON simple-index response shape.
type pep691Response struct {
	Files []pep691File `json:"files"`
}

type pep691File struct {
	Filename             string            `json:"filename"`
	URL                  string            `json:"url"`
	Hashes               map[string]string `json:"hashes"`
	RequiresPython       *string           `json:"requires-python"`
	Yanked               json.RawMessage   `json:"yanked"`
	DataDistInfoMetadata json.RawMessage   `json:"data-dist-info-metadata"`
	UploadTime           *time.Time        `json:"upload-time"`
}

func parseJSON(b []byte) ([]File, error) {
	var resp pep691Response
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, newCacheError("index.parseJSON", "malformed PEP 691 response", err)
	}
	out := make([]File, 0, len(resp.Files))
	for _, f := range resp.Files {
		rf := File{
			Filename: f.Filename,
			URL:      f.URL,
			Hashes:   f.Hashes,
		}
		if f.RequiresPython != nil {
			rf.RequiresPython = *f.RequiresPython
		}
		if f.UploadTime != nil {
			rf.UploadTime = *f.UploadTime
		}
		rf.Yanked, rf.YankedReason = parseYanked(f.Yanked)
		rf.DataDistInfoMetadata = parseBoolish(f.DataDistInfoMetadata)
		out = append(out, rf)
	}
	return out, nil
}

// parseYanked handles "yanked" being absent, false, true, or a string
// reason per PEP 691.
func parseYanked(raw json.RawMessage) (yanked bool, reason string) {
	if len(raw) == 0 {
		return false, ""
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b, ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return true, s
	}
	return false, ""
}

func parseBoolish(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b
	}
	return len(raw) > 0 && string(raw) != "null"
}

// parseHTML implements the PEP 503 HTML simple index fallback: each
// <a> tag is one file, with data-* attributes carrying the same
// metadata PEP 691 puts in JSON fields.
func parseHTML(b []byte, base *url.URL) ([]File, error) {
	doc, err := html.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, newCacheError("index.parseHTML", "malformed PEP 503 response", err)
	}
	var files []File
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			f := File{}
			var href string
			for _, a := range n.Attr {
				switch a.Key {
				case "href":
					href = a.Val
				case "data-requires-python":
					f.RequiresPython = html.UnescapeString(a.Val)
				case "data-yanked":
					f.Yanked = true
					f.YankedReason = a.Val
				case "data-dist-info-metadata", "data-core-metadata":
					f.DataDistInfoMetadata = a.Val != "" && a.Val != "false"
				}
			}
			if href != "" {
				if u, err := base.Parse(href); err == nil {
					f.URL = u.String()
					f.Hashes = hashesFromFragment(u.Fragment)
					u.Fragment = ""
					f.Filename = path.Base(u.Path)
				}
				files = append(files, f)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return files, nil
}

// hashesFromFragment parses the "#sha256=<hex>" URL fragment PEP 503
// uses to convey a file's hash out-of-band from its JSON form.
func hashesFromFragment(frag string) map[string]string {
	algo, hex, ok := strings.Cut(frag, "=")
	if !ok || hex == "" {
		return nil
	}
	return map[string]string{algo: hex}
}
