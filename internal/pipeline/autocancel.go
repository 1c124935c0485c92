package pipeline

import (
	"context"
	"sort"

	"github.com/buildherd/buildherd/internal/repository"
	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/retry"
	"github.com/buildherd/buildherd/pkg/types"
)

// AutoCancel queues the pending builds of superseded commits for
// cancellation and the pending builds of the last commit for polling.
type AutoCancel struct {
	opts Options
}

// NewAutoCancel creates the auto-cancel stage
func NewAutoCancel(opts Options) *AutoCancel {
	return &AutoCancel{opts: opts.withDefaults()}
}

func (a *AutoCancel) Name() string { return StageAutoCancel }

func (a *AutoCancel) ProcessInstruction(dc *DecisionContext, instr types.Instruction) {}

func (a *AutoCancel) Run(ctx context.Context, dc *DecisionContext) error {
	log := logger.WithContext(ctx, a.opts.Logger)
	head := dc.Head

	previous, err := retry.Do(ctx, a.opts.Retry, "history "+head.String(), func(ctx context.Context) ([]*repository.Commit, error) {
		return head.PreviousCommits(ctx, a.opts.SupersededCommits)
	})
	if err != nil {
		return err
	}

	for _, commit := range previous {
		commit.WithLogger(a.opts.Logger)
		statuses, err := retry.Do(ctx, a.opts.Retry, "statuses "+commit.String(), commit.FetchStatuses)
		if err != nil {
			return err
		}
		for _, name := range sortedContexts(statuses) {
			status := statuses[name]
			if status.State != types.StatusPending {
				continue
			}
			log.Debug("Queuing superseded build for cancellation",
				logger.WithField("commit", commit.String()),
				logger.WithField("context", name))
			dc.CancelQueue = append(dc.CancelQueue, StatusRef{Commit: commit, Status: status})
		}
	}

	last := dc.LastCommit()
	for _, name := range sortedContexts(dc.Statuses) {
		status := dc.Statuses[name]
		if status.State == types.StatusPending {
			dc.PollQueue = append(dc.PollQueue, StatusRef{Commit: last, Status: status})
		}
	}
	return nil
}

func sortedContexts(statuses map[string]types.CommitStatus) []string {
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
