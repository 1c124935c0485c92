// Package types provides the core value types shared by buildherd packages
package types

import (
	"fmt"
	"time"
)

// StatusState is the state of a commit status as understood by GitHub
type StatusState string

const (
	StatusPending StatusState = "pending"
	StatusSuccess StatusState = "success"
	StatusFailure StatusState = "failure"
	StatusError   StatusState = "error"
)

// IsTerminal reports whether no further update is expected for the state
func (s StatusState) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusError
}

// Descriptions written by buildherd itself.
const (
	DescriptionQueued    = "Queued"
	DescriptionTriggered = "Triggered"
	DescriptionSkipped   = "Skipped"
	DescriptionCancelled = "Cancelled"
	DescriptionLost      = "Build lost"
)

// CommitStatus is one reported check on a commit. Context is unique per
// commit.
type CommitStatus struct {
	Context     string      `json:"context"`
	State       StatusState `json:"state"`
	TargetURL   string      `json:"target_url,omitempty"`
	Description string      `json:"description,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at,omitempty"`
}

// Equal compares the fields GitHub stores, ignoring timestamps
func (s CommitStatus) Equal(o CommitStatus) bool {
	return s.Context == o.Context &&
		s.State == o.State &&
		s.TargetURL == o.TargetURL &&
		s.Description == o.Description
}

// String implements fmt.Stringer
func (s CommitStatus) String() string {
	return fmt.Sprintf("%s: %s (%s)", s.Context, s.State, s.Description)
}

// JobSpec is the desired state of one job on a head
type JobSpec struct {
	Name       string            `yaml:"name" json:"name"`
	Parameters map[string]string `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	// Branches restricts the refs the job runs on. Empty means every head.
	Branches []string `yaml:"branches,omitempty" json:"branches,omitempty"`
}

// Instruction is a parsed directive left by a collaborator
type Instruction struct {
	Name   string
	Author string
	Date   time.Time
	Args   interface{}
}

// String implements fmt.Stringer
func (i Instruction) String() string {
	return fmt.Sprintf("%s by @%s", i.Name, i.Author)
}

// QueueState is the admission state of the build backend queue
type QueueState int

const (
	QueueUnknown QueueState = iota
	QueueEmpty
	QueueFull
)

// String implements fmt.Stringer
func (q QueueState) String() string {
	switch q {
	case QueueEmpty:
		return "empty"
	case QueueFull:
		return "full"
	default:
		return "unknown"
	}
}

// ActionKind names a side effect taken on a head
type ActionKind string

const (
	ActionTrigger ActionKind = "trigger"
	ActionSkip    ActionKind = "skip"
	ActionCancel  ActionKind = "cancel"
	ActionLost    ActionKind = "lost"
	ActionFailed  ActionKind = "failed"
)

// Action is one side effect recorded in the journal
type Action struct {
	Time   time.Time
	PassID string
	Head   string
	SHA    string
	Job    string
	Kind   ActionKind
	Detail string
	DryRun bool
}
