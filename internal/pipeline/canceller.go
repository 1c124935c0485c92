package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/buildherd/buildherd/pkg/jenkins"
	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/types"
)

// Canceller stops superseded builds and refreshes the statuses of running
// ones. Statuses pointing outside Jenkins are left alone.
type Canceller struct {
	opts Options
}

// NewCanceller creates the canceller stage
func NewCanceller(opts Options) *Canceller {
	return &Canceller{opts: opts.withDefaults()}
}

func (c *Canceller) Name() string { return StageCanceller }

func (c *Canceller) ProcessInstruction(dc *DecisionContext, instr types.Instruction) {}

func (c *Canceller) Run(ctx context.Context, dc *DecisionContext) error {
	if c.opts.Backend == nil {
		return nil
	}
	for _, ref := range dc.CancelQueue {
		if err := c.handle(ctx, dc, ref, true); err != nil {
			return err
		}
	}
	for _, ref := range dc.PollQueue {
		if err := c.handle(ctx, dc, ref, false); err != nil {
			return err
		}
	}
	return nil
}

func (c *Canceller) handle(ctx context.Context, dc *DecisionContext, ref StatusRef, cancel bool) error {
	log := logger.WithContext(ctx, c.opts.Logger)
	url := ref.Status.TargetURL
	if url == "" || !strings.HasPrefix(url, c.opts.Backend.BaseURL()) {
		log.Debug("Ignoring status outside Jenkins",
			logger.WithField("context", ref.Status.Context),
			logger.WithField("url", url))
		return nil
	}

	next, kind := c.resolve(ctx, ref, cancel, log)
	if _, err := ref.Commit.MaybeUpdateStatus(ctx, next); err != nil {
		return err
	}
	if ref.Commit == dc.LastCommit() {
		dc.setStatus(next)
	}
	if kind != "" {
		record(ctx, c.opts, dc, ref.Commit, ref.Status.Context, kind, url)
	}
	return nil
}

// resolve computes the status a queued build deserves, stopping it when
// cancel is set and it still runs.
func (c *Canceller) resolve(ctx context.Context, ref StatusRef, cancel bool, log logger.Logger) (types.CommitStatus, types.ActionKind) {
	url := ref.Status.TargetURL
	lost := types.CommitStatus{
		Context:     ref.Status.Context,
		State:       types.StatusError,
		TargetURL:   url,
		Description: types.DescriptionLost,
	}

	build, err := c.opts.Backend.BuildFromURL(ctx, url)
	if err != nil {
		log.Warn("Build lost", logger.WithField("url", url), logger.WithError(err))
		return lost, types.ActionLost
	}
	state, err := build.Status(ctx)
	if err != nil {
		log.Warn("Build lost", logger.WithField("url", url), logger.WithError(err))
		return lost, types.ActionLost
	}

	// a queued build that started now points at its build page
	current := ref.Status
	current.TargetURL = build.URL()

	if state.IsTerminal() {
		return types.CommitStatus{
			Context:     ref.Status.Context,
			State:       state,
			TargetURL:   current.TargetURL,
			Description: finishedDescription(build, state),
		}, ""
	}

	if !cancel {
		return current, ""
	}

	if !c.opts.DryRun {
		if err := build.Stop(ctx); err != nil {
			log.Warn("Failed to stop build, retrying next pass",
				logger.WithField("url", current.TargetURL),
				logger.WithField("commit", ref.Commit.SHA),
				logger.WithError(err))
			return current, types.ActionFailed
		}
	}
	log.Info("Build cancelled", logger.WithField("url", current.TargetURL))
	return types.CommitStatus{
		Context:     ref.Status.Context,
		State:       types.StatusError,
		TargetURL:   current.TargetURL,
		Description: types.DescriptionCancelled,
	}, types.ActionCancel
}

func finishedDescription(build jenkins.Build, state types.StatusState) string {
	if build.Number() == 0 {
		return "Cancelled in queue"
	}
	switch state {
	case types.StatusSuccess:
		return fmt.Sprintf("Build #%d succeeded", build.Number())
	case types.StatusFailure:
		return fmt.Sprintf("Build #%d failed", build.Number())
	default:
		return fmt.Sprintf("Build #%d aborted", build.Number())
	}
}
