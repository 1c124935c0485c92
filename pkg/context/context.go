// Package context carries pass tracing data on a context.Context
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Trace identifies the work a context belongs to: which polling pass, which
// operation within it, and which head is being processed
type Trace struct {
	PassID    string
	Operation string
	Head      string
	Start     time.Time
}

type traceKey struct{}

// From returns the trace recorded in ctx, zero when there is none
func From(ctx context.Context) Trace {
	if ctx == nil {
		return Trace{}
	}
	t, _ := ctx.Value(traceKey{}).(Trace)
	return t
}

func with(parent context.Context, update func(*Trace)) context.Context {
	t := From(parent)
	update(&t)
	return context.WithValue(parent, traceKey{}, t)
}

// WithPassID records the pass ID. An empty ID generates one.
func WithPassID(parent context.Context, passID string) context.Context {
	if passID == "" {
		passID = GeneratePassID()
	}
	return with(parent, func(t *Trace) { t.PassID = passID })
}

// GetPassID returns the pass ID of ctx
func GetPassID(ctx context.Context) string { return From(ctx).PassID }

// WithOperation records the operation name
func WithOperation(parent context.Context, operation string) context.Context {
	return with(parent, func(t *Trace) { t.Operation = operation })
}

// GetOperation returns the operation name of ctx
func GetOperation(ctx context.Context) string { return From(ctx).Operation }

// WithHead records the head being processed, as "owner/repo#12" or
// "owner/repo:branch"
func WithHead(parent context.Context, head string) context.Context {
	return with(parent, func(t *Trace) { t.Head = head })
}

// GetHead returns the head being processed
func GetHead(ctx context.Context) string { return From(ctx).Head }

// WithStartTime records when the current unit of work started
func WithStartTime(parent context.Context, start time.Time) context.Context {
	return with(parent, func(t *Trace) { t.Start = start })
}

// GetDuration returns the time elapsed since the recorded start, zero when
// none was recorded
func GetDuration(ctx context.Context) time.Duration {
	if start := From(ctx).Start; !start.IsZero() {
		return time.Since(start)
	}
	return 0
}

// GeneratePassID creates a new unique pass ID
func GeneratePassID() string {
	return "pass_" + uuid.New().String()
}

// NewPass derives the context of a polling pass. The head and operation of
// the parent are cleared.
func NewPass(parent context.Context) context.Context {
	return context.WithValue(parent, traceKey{}, Trace{
		PassID: GeneratePassID(),
		Start:  time.Now(),
	})
}
