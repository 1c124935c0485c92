package logger

import (
	"context"

	pcontext "github.com/buildherd/buildherd/pkg/context"
)

// WithContext returns a logger that stamps every line with the pass ID and
// operation traced in ctx. The traced head, if any, becomes the scope.
func WithContext(ctx context.Context, log Logger) Logger {
	trace := pcontext.From(ctx)
	if trace == (pcontext.Trace{}) {
		return log
	}
	if trace.Head != "" {
		log = log.WithScope(trace.Head)
	}
	return &traced{ctx: ctx, next: log}
}

type traced struct {
	ctx  context.Context
	next Logger
}

// fields is evaluated per line so duration_ms keeps growing
func (t *traced) fields(extra []Field) []Field {
	trace := pcontext.From(t.ctx)
	out := make([]Field, 0, len(extra)+3)
	if trace.PassID != "" {
		out = append(out, WithField("pass", trace.PassID))
	}
	if trace.Operation != "" {
		out = append(out, WithField("operation", trace.Operation))
	}
	if d := pcontext.GetDuration(t.ctx); d > 0 {
		out = append(out, WithField("duration_ms", d.Milliseconds()))
	}
	return append(out, extra...)
}

func (t *traced) Info(message string, fields ...Field)  { t.next.Info(message, t.fields(fields)...) }
func (t *traced) Error(message string, fields ...Field) { t.next.Error(message, t.fields(fields)...) }
func (t *traced) Warn(message string, fields ...Field)  { t.next.Warn(message, t.fields(fields)...) }
func (t *traced) Debug(message string, fields ...Field) { t.next.Debug(message, t.fields(fields)...) }

func (t *traced) WithScope(scope string) Logger {
	return &traced{ctx: t.ctx, next: t.next.WithScope(scope)}
}
