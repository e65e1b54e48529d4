package state

import (
	"testing"

	"github.com/pylock-dev/pylock/lockstore"
)

func TestNewWiresComponents(t *testing.T) {
	s := New(t.TempDir(), &lockstore.Local{}, nil)
	if s.HTTP == nil {
		t.Error("HTTP not set")
	}
	if s.Auth == nil {
		t.Error("Auth not set")
	}
	if s.DB == nil {
		t.Error("DB not set")
	}
	if s.MaxRetries <= 0 {
		t.Error("MaxRetries should default to a positive budget")
	}
}
