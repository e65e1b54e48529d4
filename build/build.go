// Package build implements BuildDispatch, the PEP 517/PEP 660 build
// frontend (spec.md §4.5): resolving a source distribution's
// build-system requirements, materializing an ephemeral environment,
// and invoking the configured backend's hook to produce a wheel.
//
// Orchestration is a small state machine, grounded in the teacher's
// internal/indexer/controller: a stateFunc per state, threaded through
// a single mutable *Dispatch the way Controller threads a
// *claircore.IndexReport through CheckManifest/FetchLayers/ScanLayers.
package build

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pylock-dev/pylock"
	"github.com/pylock-dev/pylock/xlog"
)

// State is one stage of a single build's orchestration.
type State int

const (
	// Terminal halts the state machine; Dispatch.Run returns.
	Terminal State = iota
	// ResolveRequires resolves build-system.requires (and any
	// get_requires_for_build_* hook additions) via the injected
	// Resolver.
	ResolveRequires
	// PrepareEnv creates (or reuses, under no-build-isolation) the
	// ephemeral environment and installs the resolved requirements.
	PrepareEnv
	// InvokeHook calls the backend's build hook.
	InvokeHook
	// BuildError is entered on any unrecoverable failure.
	BuildError
	// BuildFinished is the terminal success state.
	BuildFinished
)

func (s State) String() string {
	switch s {
	case Terminal:
		return "Terminal"
	case ResolveRequires:
		return "ResolveRequires"
	case PrepareEnv:
		return "PrepareEnv"
	case InvokeHook:
		return "InvokeHook"
	case BuildError:
		return "BuildError"
	case BuildFinished:
		return "BuildFinished"
	default:
		return "unknown"
	}
}

type stateFunc func(context.Context, *Dispatch) (State, error)

var stateToStateFunc = map[State]stateFunc{
	ResolveRequires: resolveRequires,
	PrepareEnv:      prepareEnv,
	InvokeHook:      invokeHook,
	BuildFinished:   buildFinished,
	BuildError:      buildError,
}

// Hook is which PEP 517/660 backend hook to invoke.
type Hook int

const (
	HookBuildWheel Hook = iota
	HookBuildEditable
	HookBuildSdist
	HookPrepareMetadataForBuildWheel
)

// Backend is the capability to run a build backend's hooks inside an
// environment, injected so this package doesn't depend on a specific
// subprocess/venv implementation.
type Backend interface {
	// Requires returns the backend's declared build-system.requires,
	// plus any additional requirements from get_requires_for_build_*.
	Requires(ctx context.Context, srcDir string, hook Hook) ([]string, error)
	// RunHook invokes hook in env, returning the path to the produced
	// artifact (a wheel, for the build hooks).
	RunHook(ctx context.Context, env Environment, srcDir string, hook Hook, configSettings map[string]string) (artifactPath string, err error)
}

// Environment is an ephemeral build environment the caller's
// environment cache vends and reclaims.
type Environment interface {
	Install(ctx context.Context, requirements []string) error
}

// EnvFactory creates or reuses an Environment for one build.
type EnvFactory interface {
	New(ctx context.Context, isolated bool) (Environment, error)
}

// Resolver is the capability to solve a set of requirement strings,
// injected to avoid an import cycle with package resolve: BuildDispatch
// "uses the same resolver" per spec.md §4.5 point 1, but resolve
// itself depends on build to turn sdists into wheels.
type Resolver interface {
	ResolveRequirementStrings(ctx context.Context, reqs []string) error
}

// CyclicBuildDependencyError is returned when package P's build
// requires Q and Q's build (transitively) requires P again.
type CyclicBuildDependencyError struct{ Package string }

func (e *CyclicBuildDependencyError) Error() string {
	return fmt.Sprintf("build: cyclic build dependency on %q", e.Package)
}

// Dispatch drives one build-hook invocation through ResolveRequires,
// PrepareEnv, and InvokeHook.
type Dispatch struct {
	// ID uniquely identifies one build invocation; Run attaches it to
	// its log lines so the output of two concurrent builds of the same
	// package can be told apart. It is not used in any directory name.
	ID               string
	Package          string
	SrcDir           string
	Hook             Hook
	ConfigSettings   map[string]string
	NoBuildIsolation bool

	Backend  Backend
	Envs     EnvFactory
	Resolver Resolver
	// BuildStack is the chain of packages currently being built for,
	// root-most first, used for cycle detection per spec.md §4.5.
	BuildStack []string

	requires []string
	env      Environment
	Artifact string

	state State
	err   error
}

// NewDispatch constructs a Dispatch for building pkg from srcDir with
// the given hook, checking stack for a build-requires cycle first.
func NewDispatch(pkg, srcDir string, hook Hook, backend Backend, envs EnvFactory, resolver Resolver, stack []string) (*Dispatch, error) {
	for _, p := range stack {
		if p == pkg {
			return nil, &CyclicBuildDependencyError{Package: pkg}
		}
	}
	return &Dispatch{
		ID:         uuid.New().String(),
		Package:    pkg,
		SrcDir:     srcDir,
		Hook:       hook,
		Backend:    backend,
		Envs:       envs,
		Resolver:   resolver,
		BuildStack: append(append([]string{}, stack...), pkg),
		state:      ResolveRequires,
	}, nil
}

// Run drives the state machine to completion, returning the built
// artifact's path on success.
func (d *Dispatch) Run(ctx context.Context) (string, error) {
	xlog.From(ctx).Debug("starting build", "build_id", d.ID, "package", d.Package, "hook", d.Hook)
	for d.state != Terminal {
		fn, ok := stateToStateFunc[d.state]
		if !ok {
			return "", fmt.Errorf("build: no stateFunc for state %s", d.state)
		}
		next, err := fn(ctx, d)
		if err != nil {
			d.err = err
			d.state = BuildError
			continue
		}
		if d.state == BuildError || d.state == BuildFinished {
			d.state = Terminal
			continue
		}
		d.state = next
	}
	if d.err != nil {
		return "", &pylock.Error{Op: "build.Dispatch.Run", Kind: pylock.ErrBuild, Message: "building " + d.Package, Inner: d.err}
	}
	return d.Artifact, nil
}

func resolveRequires(ctx context.Context, d *Dispatch) (State, error) {
	reqs, err := d.Backend.Requires(ctx, d.SrcDir, d.Hook)
	if err != nil {
		return BuildError, fmt.Errorf("reading build requirements: %w", err)
	}
	if d.Resolver != nil && len(reqs) > 0 {
		if err := d.Resolver.ResolveRequirementStrings(ctx, reqs); err != nil {
			return BuildError, fmt.Errorf("resolving build requirements: %w", err)
		}
	}
	d.requires = reqs
	return PrepareEnv, nil
}

func prepareEnv(ctx context.Context, d *Dispatch) (State, error) {
	env, err := d.Envs.New(ctx, !d.NoBuildIsolation)
	if err != nil {
		return BuildError, fmt.Errorf("creating build environment: %w", err)
	}
	if !d.NoBuildIsolation {
		if err := env.Install(ctx, d.requires); err != nil {
			return BuildError, fmt.Errorf("installing build requirements: %w", err)
		}
	}
	d.env = env
	return InvokeHook, nil
}

func invokeHook(ctx context.Context, d *Dispatch) (State, error) {
	artifact, err := d.Backend.RunHook(ctx, d.env, d.SrcDir, d.Hook, d.ConfigSettings)
	if err != nil {
		return BuildError, fmt.Errorf("running build hook: %w", err)
	}
	d.Artifact = artifact
	return BuildFinished, nil
}

func buildFinished(context.Context, *Dispatch) (State, error) { return Terminal, nil }

func buildError(context.Context, *Dispatch) (State, error) { return Terminal, nil }
