package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

const redactedPlaceholder = "[REDACTED]"

// RedactFilter is a slog.Handler that scrubs known secret values from the
// message and string-valued attributes before delegating. Attributes bound
// with WithAttrs are held here rather than passed to inner, so they are
// scrubbed against the secrets known when each record is written.
type RedactFilter struct {
	inner  slog.Handler
	shared *redactSet
	bound  []boundOp
}

// boundOp is one WithGroup or WithAttrs call, in order.
type boundOp struct {
	group string
	attrs []slog.Attr
}

type redactSet struct {
	mu     sync.RWMutex
	values map[string]int
}

// NewRedactFilter wraps inner. Handlers derived through WithAttrs and
// WithGroup share the same secret set.
func NewRedactFilter(inner slog.Handler) *RedactFilter {
	return &RedactFilter{inner: inner, shared: &redactSet{values: make(map[string]int)}}
}

// RedactorFrom returns the RedactFilter behind logger, or nil.
func RedactorFrom(logger *slog.Logger) *RedactFilter {
	if logger == nil {
		return nil
	}
	f, _ := logger.Handler().(*RedactFilter)
	return f
}

// AddSecret starts redacting value. Calls are reference counted so that
// overlapping invocations sharing a value keep it redacted until the last
// RemoveSecret.
func (f *RedactFilter) AddSecret(value string) {
	if f == nil || value == "" {
		return
	}
	f.shared.mu.Lock()
	f.shared.values[value]++
	f.shared.mu.Unlock()
}

// RemoveSecret drops one reference added by AddSecret.
func (f *RedactFilter) RemoveSecret(value string) {
	if f == nil || value == "" {
		return
	}
	f.shared.mu.Lock()
	defer f.shared.mu.Unlock()
	if n := f.shared.values[value]; n > 1 {
		f.shared.values[value] = n - 1
		return
	}
	delete(f.shared.values, value)
}

func (f *RedactFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.inner.Enabled(ctx, level)
}

func (f *RedactFilter) Handle(ctx context.Context, record slog.Record) error {
	secrets := f.snapshot()
	if len(secrets) == 0 && len(f.bound) == 0 {
		return f.inner.Handle(ctx, record)
	}

	attrs := make([]slog.Attr, 0, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, redactAttr(a, secrets))
		return true
	})
	// Fold bound attrs and groups around the record's own attrs, innermost last.
	for i := len(f.bound) - 1; i >= 0; i-- {
		op := f.bound[i]
		if op.group != "" {
			attrs = []slog.Attr{{Key: op.group, Value: slog.GroupValue(attrs...)}}
			continue
		}
		scrubbed := make([]slog.Attr, 0, len(op.attrs)+len(attrs))
		for _, a := range op.attrs {
			scrubbed = append(scrubbed, redactAttr(a, secrets))
		}
		attrs = append(scrubbed, attrs...)
	}

	out := slog.NewRecord(record.Time, record.Level, scrub(record.Message, secrets), record.PC)
	out.AddAttrs(attrs...)
	return f.inner.Handle(ctx, out)
}

func (f *RedactFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return f
	}
	return f.with(boundOp{attrs: slices.Clone(attrs)})
}

func (f *RedactFilter) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.with(boundOp{group: name})
}

func (f *RedactFilter) with(op boundOp) *RedactFilter {
	bound := make([]boundOp, len(f.bound), len(f.bound)+1)
	copy(bound, f.bound)
	return &RedactFilter{inner: f.inner, shared: f.shared, bound: append(bound, op)}
}

// RedactString replaces known secret values in s.
func (f *RedactFilter) RedactString(s string) string {
	if f == nil {
		return s
	}
	return scrub(s, f.snapshot())
}

func (f *RedactFilter) snapshot() []string {
	f.shared.mu.RLock()
	defer f.shared.mu.RUnlock()
	if len(f.shared.values) == 0 {
		return nil
	}
	out := make([]string, 0, len(f.shared.values))
	for v := range f.shared.values {
		out = append(out, v)
	}
	return out
}

func redactAttr(a slog.Attr, secrets []string) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, scrub(v.String(), secrets))
	case slog.KindGroup:
		group := v.Group()
		out := make([]any, 0, len(group))
		for _, ga := range group {
			out = append(out, redactAttr(ga, secrets))
		}
		return slog.Group(a.Key, out...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok && err != nil {
			return slog.String(a.Key, scrub(err.Error(), secrets))
		}
	}
	return a
}

func scrub(s string, secrets []string) string {
	for _, secret := range secrets {
		s = strings.ReplaceAll(s, secret, redactedPlaceholder)
	}
	return s
}
