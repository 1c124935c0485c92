package pipeline

import (
	"context"
	"sort"

	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/types"
)

// Builder triggers the jobs not yet built on the last commit of a head
type Builder struct {
	opts Options
}

// NewBuilder creates the builder stage
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts.withDefaults()}
}

func (b *Builder) Name() string { return StageBuilder }

// ProcessInstruction handles rebuild and skip
func (b *Builder) ProcessInstruction(dc *DecisionContext, instr types.Instruction) {
	switch instr.Name {
	case InstructionRebuild:
		dc.RebuildFailed = instr.Date
	case InstructionSkip:
		dc.SkipPatterns = stringArgs(instr.Args)
	}
}

func (b *Builder) Run(ctx context.Context, dc *DecisionContext) error {
	log := logger.WithContext(ctx, b.opts.Logger)
	commit := dc.LastCommit()

	names := make([]string, 0, len(dc.JobSpecs))
	for name := range dc.JobSpecs {
		names = append(names, name)
	}
	sort.Strings(names)

	canTrigger := dc.QueueState == types.QueueEmpty || b.opts.AlwaysQueue
	for _, name := range commit.FilterNotBuiltContexts(names, dc.RebuildFailed) {
		spec := dc.JobSpecs[name]
		job, ok := dc.Jobs[name]
		if !ok {
			log.Warn("Configured job missing on Jenkins", logger.WithField("job", name))
			continue
		}

		if !dc.RunsOnHead(spec) || dc.Skipped(name) {
			status, err := commit.MaybeUpdateStatus(ctx, types.CommitStatus{
				Context:     name,
				State:       types.StatusSuccess,
				Description: types.DescriptionSkipped,
			})
			if err != nil {
				return err
			}
			dc.setStatus(status)
			record(ctx, b.opts, dc, commit, name, types.ActionSkip, "")
			continue
		}

		status, err := commit.MaybeUpdateStatus(ctx, types.CommitStatus{
			Context:     name,
			State:       types.StatusPending,
			Description: types.DescriptionQueued,
		})
		if err != nil {
			return err
		}
		dc.setStatus(status)

		if !canTrigger {
			log.Info("Queue is full, build deferred", logger.WithField("job", name))
			continue
		}
		if b.opts.DryRun {
			log.Info("Would trigger build", logger.WithField("job", name))
			record(ctx, b.opts, dc, commit, name, types.ActionTrigger, "dry run")
			continue
		}

		params := dc.Head.BuildParameters()
		for key, value := range spec.Parameters {
			params[key] = value
		}
		buildURL, err := job.Build(ctx, params)
		if err != nil {
			log.Error("Failed to trigger build",
				logger.WithField("job", name),
				logger.WithError(err))
			record(ctx, b.opts, dc, commit, name, types.ActionFailed, err.Error())
			continue
		}

		log.Info("Build triggered", logger.WithField("job", name), logger.WithField("url", buildURL))
		record(ctx, b.opts, dc, commit, name, types.ActionTrigger, buildURL)

		status, err = commit.MaybeUpdateStatus(ctx, types.CommitStatus{
			Context:     name,
			State:       types.StatusPending,
			TargetURL:   buildURL,
			Description: types.DescriptionTriggered,
		})
		if err != nil {
			return err
		}
		dc.setStatus(status)
	}
	return nil
}
