// Package xlog is the common spot for pylock logging: a thin wrapper
// around [log/slog] that lets any subsystem attach attributes to a
// context.Context without threading a *slog.Logger through every call.
package xlog

import (
	"context"
	"log/slog"
	"slices"
)

type ctxkey int

const (
	_ ctxkey = iota

	// attrsKey retrieves extra logging attributes attached to a
	// context by With/WithAttr.
	attrsKey

	// levelKey retrieves a per-call-tree minimum [slog.Level].
	levelKey
)

// With returns a context with the arguments stored as [slog.Attr],
// following the same key-value pairing rules as [slog.Logger.With].
func With(ctx context.Context, args ...any) context.Context {
	return WithAttr(ctx, argsToAttrSlice(args)...)
}

// WithAttr returns a context with the given attrs merged into any
// already attached, later keys shadowing earlier ones of the same name.
func WithAttr(ctx context.Context, attrs ...slog.Attr) context.Context {
	if v, ok := ctx.Value(attrsKey).(slog.Value); ok {
		attrs = append(v.Group(), attrs...)
	}
	seen := make(map[string]struct{}, len(attrs))
	del := func(a slog.Attr) bool {
		_, rm := seen[a.Key]
		seen[a.Key] = struct{}{}
		return rm
	}
	slices.Reverse(attrs)
	attrs = slices.DeleteFunc(attrs, del)
	slices.Reverse(attrs)
	return context.WithValue(ctx, attrsKey, slog.GroupValue(attrs...))
}

// WithLevel returns a context with the [slog.Leveler] stored at
// levelKey, letting a caller (e.g. a verbose --resolution run) lower
// the reporting threshold for a subtree of calls.
func WithLevel(ctx context.Context, l slog.Leveler) context.Context {
	return context.WithValue(ctx, levelKey, l)
}

// WrapHandler wraps next so that Handle picks up attributes and the
// level override stashed on the record's context.
func WrapHandler(next slog.Handler) slog.Handler {
	return handler{next: next}
}

type handler struct{ next slog.Handler }

var _ slog.Handler = handler{}

func (h handler) Enabled(ctx context.Context, l slog.Level) bool {
	rec := slog.Level(1<<31 - 1)
	if lv, ok := ctx.Value(levelKey).(slog.Leveler); ok {
		rec = lv.Level()
	}
	return l >= rec || h.next.Enabled(ctx, l)
}

func (h handler) Handle(ctx context.Context, r slog.Record) error {
	if v, ok := ctx.Value(attrsKey).(slog.Value); ok {
		r.AddAttrs(v.Group()...)
	}
	return h.next.Handle(ctx, r)
}

func (h handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return handler{next: h.next.WithAttrs(attrs)}
}

func (h handler) WithGroup(name string) slog.Handler {
	return handler{next: h.next.WithGroup(name)}
}

// From returns the logger to use for ctx: [slog.Default] wrapped so
// that it picks up any attributes or level override attached to ctx.
func From(ctx context.Context) *slog.Logger {
	return slog.New(WrapHandler(slog.Default().Handler()))
}

func argsToAttrSlice(args []any) []slog.Attr {
	var attr slog.Attr
	var attrs []slog.Attr
	for len(args) > 0 {
		attr, args = argsToAttr(args)
		attrs = append(attrs, attr)
	}
	return attrs
}

func argsToAttr(args []any) (slog.Attr, []any) {
	const badKey = `!BADKEY`
	switch x := args[0].(type) {
	case string:
		if len(args) == 1 {
			return slog.String(badKey, x), nil
		}
		return slog.Any(x, args[1]), args[2:]
	case slog.Attr:
		return x, args[1:]
	default:
		return slog.Any(badKey, x), args[1:]
	}
}
