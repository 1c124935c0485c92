// Package pipeline turns one head into build and cancel actions through an
// ordered list of extensions.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/buildherd/buildherd/internal/repository"
	pcontext "github.com/buildherd/buildherd/pkg/context"
	"github.com/buildherd/buildherd/pkg/github"
	"github.com/buildherd/buildherd/pkg/jenkins"
	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/retry"
	"github.com/buildherd/buildherd/pkg/types"
)

// Extension is one stage of the pipeline
type Extension interface {
	Name() string

	// ProcessInstruction is called for every instruction, in date order,
	// before any stage runs
	ProcessInstruction(dc *DecisionContext, instr types.Instruction)

	// Run takes the decisions of the stage
	Run(ctx context.Context, dc *DecisionContext) error
}

// Recorder keeps a trace of side effects
type Recorder interface {
	Record(ctx context.Context, action types.Action) error
}

// Options are shared by the built-in extensions
type Options struct {
	Backend     jenkins.Backend
	DryRun      bool
	AlwaysQueue bool
	Retry       retry.Policy
	Logger      logger.Logger
	Recorder    Recorder

	// SupersededCommits bounds how far back the auto-cancel stage looks
	SupersededCommits int
}

// Pipeline runs its extensions in a fixed order
type Pipeline struct {
	extensions []Extension
	opts       Options
}

// Default stage names, in run order
const (
	StageAutoCancel = "autocancel"
	StageBuilder    = "builder"
	StageCanceller  = "canceller"
)

// New builds the default pipeline, leaving out disabled stages
func New(opts Options, disabled []string) *Pipeline {
	opts = opts.withDefaults()
	off := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		off[name] = true
	}

	var extensions []Extension
	for _, ext := range []Extension{
		NewAutoCancel(opts),
		NewBuilder(opts),
		NewCanceller(opts),
	} {
		if off[ext.Name()] {
			opts.Logger.Info("Extension disabled", logger.WithField("extension", ext.Name()))
			continue
		}
		extensions = append(extensions, ext)
	}
	return &Pipeline{extensions: extensions, opts: opts}
}

// NewWithExtensions builds a pipeline from explicit stages
func NewWithExtensions(opts Options, extensions ...Extension) *Pipeline {
	return &Pipeline{extensions: extensions, opts: opts.withDefaults()}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.SupersededCommits == 0 {
		o.SupersededCommits = 5
	}
	return o
}

// Names returns the stage names in run order
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.extensions))
	for _, ext := range p.extensions {
		names = append(names, ext.Name())
	}
	return names
}

// Run evaluates one head. An extension error aborts the head and is
// returned wrapped with the extension name.
func (p *Pipeline) Run(ctx context.Context, head repository.Head, queue types.QueueState) error {
	ctx = pcontext.WithHead(ctx, head.String())
	ctx = pcontext.WithStartTime(ctx, time.Now())
	log := logger.WithContext(ctx, p.opts.Logger)

	dc, err := p.prepare(ctx, head, queue, log)
	if err != nil {
		return err
	}

	for _, instr := range dc.Instructions {
		log.Debug("Processing instruction", logger.WithField("instruction", instr.String()))
		for _, ext := range p.extensions {
			ext.ProcessInstruction(dc, instr)
		}
	}

	for _, ext := range p.extensions {
		if err := ext.Run(ctx, dc); err != nil {
			return &ExtensionError{Extension: ext.Name(), Head: head.String(), Err: err}
		}
	}
	log.Debug("Head processed")
	return nil
}

// prepare fills a DecisionContext from the repository settings and the
// head commit.
func (p *Pipeline) prepare(ctx context.Context, head repository.Head, queue types.QueueState, log logger.Logger) (*DecisionContext, error) {
	repo := head.Repository()
	settings := repo.Settings
	if settings == nil {
		settings = &repository.Settings{}
	}

	dc := &DecisionContext{
		Head:       head,
		Repository: repo,
		Settings:   settings,
		JobSpecs:   settings.Jobs,
		Jobs:       repo.JobsByName(),
		QueueState: queue,
	}
	if dc.JobSpecs == nil {
		dc.JobSpecs = make(map[string]types.JobSpec)
	}

	statuses, err := retry.Do(ctx, p.opts.Retry, "statuses "+head.String(),
		func(ctx context.Context) (map[string]types.CommitStatus, error) {
			return head.LastCommit().FetchStatuses(ctx)
		})
	if err != nil {
		return nil, err
	}
	dc.Statuses = statuses

	comments, err := retry.Do(ctx, p.opts.Retry, "comments "+head.String(),
		func(ctx context.Context) ([]github.CommentData, error) {
			return head.Comments(ctx)
		})
	if err != nil {
		return nil, err
	}
	dc.Instructions = ParseInstructions(comments, repo, log)
	return dc, nil
}

// ExtensionError is a failure of one stage on one head
type ExtensionError struct {
	Extension string
	Head      string
	Err       error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Extension, e.Head, e.Err)
}

func (e *ExtensionError) Unwrap() error {
	return e.Err
}

// record stores an action when a recorder is configured
func record(ctx context.Context, opts Options, dc *DecisionContext, commit *repository.Commit, job string, kind types.ActionKind, detail string) {
	if opts.Recorder == nil {
		return
	}
	action := types.Action{
		Time:   time.Now(),
		PassID: pcontext.GetPassID(ctx),
		Head:   dc.Head.String(),
		Job:    job,
		Kind:   kind,
		Detail: detail,
		DryRun: opts.DryRun,
	}
	if commit != nil {
		action.SHA = commit.SHA
	}
	if err := opts.Recorder.Record(ctx, action); err != nil {
		opts.Logger.Warn("Failed to record action", logger.WithError(err))
	}
}
