package engine

import (
	"context"
	"time"

	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/retry"
	"github.com/buildherd/buildherd/pkg/types"
)

// DefaultQueueGrace is the delay before a full queue is read again
const DefaultQueueGrace = 5 * time.Second

// QueueReader reports whether the build queue has room.
// jenkins.Backend implements it.
type QueueReader interface {
	IsQueueEmpty(ctx context.Context) (bool, error)
}

// QueueOptions configure the admission state machine
type QueueOptions struct {
	AlwaysQueue bool
	Grace       time.Duration
	Retry       retry.Policy
	Logger      logger.Logger

	// Sleep waits out the grace delay. Nil means retry.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnTransition is called when the admitted state changes within a pass
	OnTransition func(from, to types.QueueState)
}

// QueueAdmission decides, once per head, whether new builds may be
// triggered. Its state lives for one pass.
type QueueAdmission struct {
	reader QueueReader
	opts   QueueOptions
	state  types.QueueState
	pinned bool
}

// NewQueueAdmission creates the state machine in the unknown state
func NewQueueAdmission(reader QueueReader, opts QueueOptions) *QueueAdmission {
	if opts.Grace <= 0 {
		opts.Grace = DefaultQueueGrace
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &QueueAdmission{reader: reader, opts: opts}
}

// Reset forgets the state of the previous pass
func (q *QueueAdmission) Reset() {
	q.state = types.QueueUnknown
	q.pinned = false
}

// State returns the last admitted state
func (q *QueueAdmission) State() types.QueueState {
	return q.state
}

// Check reads the queue and returns the state to use for the next head.
// restart is set when the queue drained during the pass: heads deferred
// earlier deserve to be reconsidered first. After a restart signal the
// state stays full until Reset.
func (q *QueueAdmission) Check(ctx context.Context) (state types.QueueState, restart bool, err error) {
	if q.opts.AlwaysQueue {
		return types.QueueEmpty, false, nil
	}
	if q.pinned {
		return types.QueueFull, false, nil
	}

	observed, err := q.read(ctx)
	if err != nil {
		return q.state, false, err
	}

	previous := q.state
	switch {
	case previous == types.QueueUnknown:
		q.state = observed
	case previous == types.QueueFull && observed == types.QueueEmpty:
		q.opts.Logger.Info("Queue drained, restarting pass")
		q.pinned = true
		restart = true
	default:
		q.state = observed
	}

	if q.state != previous && q.opts.OnTransition != nil {
		q.opts.OnTransition(previous, q.state)
	}
	if restart && q.opts.OnTransition != nil {
		q.opts.OnTransition(types.QueueFull, types.QueueEmpty)
	}
	return q.state, restart, nil
}

// read returns the raw state, reading a full queue twice
func (q *QueueAdmission) read(ctx context.Context) (types.QueueState, error) {
	empty, err := q.isEmpty(ctx)
	if err != nil {
		return types.QueueUnknown, err
	}
	if empty {
		return types.QueueEmpty, nil
	}

	q.opts.Logger.Debug("Queue full, confirming",
		logger.WithField("grace", q.opts.Grace.String()))
	if err := q.opts.Sleep(ctx, q.opts.Grace); err != nil {
		return types.QueueUnknown, err
	}

	empty, err = q.isEmpty(ctx)
	if err != nil {
		return types.QueueUnknown, err
	}
	if empty {
		return types.QueueEmpty, nil
	}
	return types.QueueFull, nil
}

func (q *QueueAdmission) isEmpty(ctx context.Context) (bool, error) {
	return retry.Do(ctx, q.opts.Retry, "jenkins queue", q.reader.IsQueueEmpty)
}
