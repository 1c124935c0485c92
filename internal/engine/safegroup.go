package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/buildherd/buildherd/pkg/logger"
)

// ErrPanic wraps a panic recovered from a SafeGroup task
var ErrPanic = errors.New("task panicked")

// SafeGroup is a bounded errgroup whose tasks cannot crash the bot: a panic
// becomes an ErrPanic error that cancels the group
type SafeGroup struct {
	group  *errgroup.Group
	logger logger.Logger
}

// NewSafeGroup creates a group running at most limit tasks at once. A limit
// below one means no bound.
func NewSafeGroup(ctx context.Context, limit int, log logger.Logger) (*SafeGroup, context.Context) {
	if log == nil {
		log = logger.Nop()
	}
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &SafeGroup{group: g, logger: log}, ctx
}

// Go runs the task named name, blocking while the group is at its limit
func (sg *SafeGroup) Go(name string, task func() error) {
	sg.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				sg.logger.Error("Task panic recovered",
					logger.WithField("task", name),
					logger.WithField("panic", r),
					logger.WithField("stack_trace", string(debug.Stack())))
				err = fmt.Errorf("%w: %s: %v", ErrPanic, name, r)
			}
		}()
		return task()
	})
}

// Wait blocks until every task returned and returns the first error
func (sg *SafeGroup) Wait() error {
	return sg.group.Wait()
}
