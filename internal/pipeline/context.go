package pipeline

import (
	"time"

	"github.com/buildherd/buildherd/internal/repository"
	"github.com/buildherd/buildherd/pkg/jenkins"
	"github.com/buildherd/buildherd/pkg/types"
	"github.com/buildherd/buildherd/pkg/utils"
)

// StatusRef pairs a status with the commit it belongs to
type StatusRef struct {
	Commit *repository.Commit
	Status types.CommitStatus
}

// DecisionContext is the working state of one head through the pipeline.
// It is created per head and never shared.
type DecisionContext struct {
	Head       repository.Head
	Repository *repository.Repository
	Settings   *repository.Settings

	JobSpecs map[string]types.JobSpec
	Jobs     map[string]jenkins.Job

	// Statuses of the last commit, keyed by context
	Statuses map[string]types.CommitStatus

	CancelQueue []StatusRef
	PollQueue   []StatusRef

	QueueState types.QueueState

	Instructions []types.Instruction

	// RebuildFailed is the date of the latest rebuild instruction. Failures
	// older than it are built again.
	RebuildFailed time.Time

	// SkipPatterns are job name globs excluded by a skip instruction
	SkipPatterns []string
}

// LastCommit returns the commit under evaluation
func (dc *DecisionContext) LastCommit() *repository.Commit {
	return dc.Head.LastCommit()
}

// Skipped reports whether a skip instruction excludes the job
func (dc *DecisionContext) Skipped(job string) bool {
	if len(dc.SkipPatterns) == 0 {
		return false
	}
	matcher, err := utils.NewPatternMatcher(dc.SkipPatterns)
	if err != nil {
		return false
	}
	return matcher.Match(job)
}

// RunsOnHead reports whether the job branch patterns admit the head.
// Pull requests are matched on their source branch.
func (dc *DecisionContext) RunsOnHead(spec types.JobSpec) bool {
	if len(spec.Branches) == 0 {
		return true
	}
	ref := dc.Head.Ref()
	if _, ok := dc.Head.(*repository.PullRequest); ok {
		ref = "refs/heads/" + dc.Head.Name()
	}
	for _, pattern := range spec.Branches {
		if utils.MatchRef(pattern, ref) {
			return true
		}
	}
	return false
}

// setStatus records the authoritative status of the last commit
func (dc *DecisionContext) setStatus(status types.CommitStatus) {
	if dc.Statuses == nil {
		dc.Statuses = make(map[string]types.CommitStatus)
	}
	dc.Statuses[status.Context] = status
}
