package build

import (
	"context"
	"errors"
	"testing"

	"github.com/pylock-dev/pylock"
)

type fakeBackend struct {
	requires []string
	artifact string
	err      error
}

func (f *fakeBackend) Requires(context.Context, string, Hook) ([]string, error) {
	return f.requires, nil
}

func (f *fakeBackend) RunHook(context.Context, Environment, string, Hook, map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.artifact, nil
}

type fakeEnv struct{ installed []string }

func (e *fakeEnv) Install(_ context.Context, reqs []string) error {
	e.installed = append(e.installed, reqs...)
	return nil
}

type fakeEnvFactory struct{ env *fakeEnv }

func (f *fakeEnvFactory) New(context.Context, bool) (Environment, error) { return f.env, nil }

func TestDispatchRunBuildsWheel(t *testing.T) {
	backend := &fakeBackend{requires: []string{"setuptools>=61", "wheel"}, artifact: "/tmp/out/pkg-1.0-py3-none-any.whl"}
	env := &fakeEnv{}
	d, err := NewDispatch("pkg", "/src/pkg", HookBuildWheel, backend, &fakeEnvFactory{env: env}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	artifact, err := d.Run(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if artifact != backend.artifact {
		t.Errorf("Artifact = %q, want %q", artifact, backend.artifact)
	}
	if len(env.installed) != 2 {
		t.Errorf("installed %v, want the two build requirements", env.installed)
	}
}

func TestDispatchRunNoBuildIsolationSkipsInstall(t *testing.T) {
	backend := &fakeBackend{requires: []string{"setuptools"}, artifact: "whl"}
	env := &fakeEnv{}
	d, err := NewDispatch("pkg", "/src/pkg", HookBuildWheel, backend, &fakeEnvFactory{env: env}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	d.NoBuildIsolation = true
	if _, err := d.Run(t.Context()); err != nil {
		t.Fatal(err)
	}
	if len(env.installed) != 0 {
		t.Errorf("installed = %v, want none under no-build-isolation", env.installed)
	}
}

func TestDispatchRunHookErrorWrapsBuildKind(t *testing.T) {
	backend := &fakeBackend{err: errors.New("backend exploded")}
	env := &fakeEnv{}
	d, err := NewDispatch("pkg", "/src/pkg", HookBuildWheel, backend, &fakeEnvFactory{env: env}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.Run(t.Context())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, pylock.ErrBuild) {
		t.Errorf("got %v, want an error of kind pylock.ErrBuild", err)
	}
}

func TestNewDispatchDetectsCycle(t *testing.T) {
	_, err := NewDispatch("pkg-a", "/src/a", HookBuildWheel, &fakeBackend{}, &fakeEnvFactory{env: &fakeEnv{}}, nil, []string{"pkg-a", "pkg-b"})
	var cyc *CyclicBuildDependencyError
	if !errors.As(err, &cyc) {
		t.Fatalf("got %v, want *CyclicBuildDependencyError", err)
	}
}
