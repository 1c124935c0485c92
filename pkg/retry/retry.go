// Package retry wraps remote calls that may fail transiently. Transient
// failures are retried without bound after a fixed interval; everything else
// propagates on the first occurrence.
package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/buildherd/buildherd/pkg/logger"
)

// DefaultInterval is the pause between two attempts
const DefaultInterval = 15 * time.Second

// Policy decides when and how a failed call is retried
type Policy struct {
	// Interval between attempts. Zero means DefaultInterval.
	Interval time.Duration

	// IsTransient classifies errors. Nil means IsTransient.
	IsTransient func(error) bool

	// Sleep waits between attempts. Nil means Sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger logger.Logger
}

// Do calls fn until it succeeds, fails with a non-transient error, or ctx
// is cancelled.
func Do[T any](ctx context.Context, p Policy, what string, fn func(ctx context.Context) (T, error)) (T, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	transient := p.IsTransient
	if transient == nil {
		transient = IsTransient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	log := p.Logger
	if log == nil {
		log = logger.Nop()
	}

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil || ctx.Err() != nil || !transient(err) {
			return result, err
		}

		log.Warn("Transient failure, retrying",
			logger.WithField("call", what),
			logger.WithField("attempt", attempt),
			logger.WithField("retry_in", interval.String()),
			logger.WithError(err))

		if err := sleep(ctx, interval); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Run is Do for calls without a result
func Run(ctx context.Context, p Policy, what string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, what, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

type temporary interface {
	Temporary() bool
}

// IsTransient reports whether err is a network failure or a server-side
// error worth retrying. Client timeouts are transient even though they wrap
// context.DeadlineExceeded; cancellation of the caller is decided by Do from
// its own context.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if netErr != nil {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var tmp temporary
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	return false
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
