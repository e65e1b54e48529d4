package index

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pylock-dev/pylock/auth"
)

func TestFetchJSON(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", acceptJSON)
		w.Write([]byte(`{"files":[
			{"filename":"requests-2.31.0-py3-none-any.whl","url":"https://example.com/requests-2.31.0-py3-none-any.whl","hashes":{"sha256":"abc"}},
			{"filename":"requests-2.31.0.tar.gz","url":"https://example.com/requests-2.31.0.tar.gz","hashes":{"sha256":"def"},"yanked":"superseded"}
		]}`))
	}))
	defer svr.Close()

	c := NewClient([]string{svr.URL}, auth.NewSource(nil))
	files, err := c.Fetch(t.Context(), "requests")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if !files[1].Yanked || files[1].YankedReason != "superseded" {
		t.Errorf("expected second file yanked with reason, got %+v", files[1])
	}
}

func TestFetchHTML(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html><html><body>
			<a href="requests-2.31.0-py3-none-any.whl#sha256=abc">requests-2.31.0-py3-none-any.whl</a>
			<a href="requests-2.30.0.tar.gz#sha256=def" data-yanked="old release">requests-2.30.0.tar.gz</a>
		</body></html>`))
	}))
	defer svr.Close()

	c := NewClient([]string{svr.URL}, auth.NewSource(nil))
	files, err := c.Fetch(t.Context(), "requests")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].Hashes["sha256"] != "abc" {
		t.Errorf("expected hash from fragment, got %+v", files[0].Hashes)
	}
	if !files[1].Yanked {
		t.Error("expected second file yanked")
	}
}

func TestFetchNotFoundFallsThrough(t *testing.T) {
	miss := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer miss.Close()
	hit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", acceptJSON)
		w.Write([]byte(`{"files":[]}`))
	}))
	defer hit.Close()

	c := NewClient([]string{miss.URL, hit.URL}, auth.NewSource(nil))
	files, err := c.Fetch(t.Context(), "requests")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("got %d files, want 0", len(files))
	}
}
