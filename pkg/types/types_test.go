package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/buildherd/buildherd/pkg/types"
)

func TestStatusStateIsTerminal(t *testing.T) {
	tests := []struct {
		state types.StatusState
		want  bool
	}{
		{types.StatusPending, false},
		{types.StatusSuccess, true},
		{types.StatusFailure, true},
		{types.StatusError, true},
		{types.StatusState(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommitStatusEqual(t *testing.T) {
	base := types.CommitStatus{
		Context:     "tests",
		State:       types.StatusPending,
		TargetURL:   "https://jenkins.example/job/tests/1/",
		Description: types.DescriptionTriggered,
		UpdatedAt:   time.Now(),
	}

	later := base
	later.UpdatedAt = base.UpdatedAt.Add(time.Hour)
	if !base.Equal(later) {
		t.Error("timestamps should not matter")
	}

	changed := base
	changed.Description = types.DescriptionQueued
	if base.Equal(changed) {
		t.Error("a different description should not be equal")
	}

	moved := base
	moved.TargetURL = ""
	if base.Equal(moved) {
		t.Error("a different target URL should not be equal")
	}
}

func TestCommitStatusJSON(t *testing.T) {
	var status types.CommitStatus
	err := json.Unmarshal([]byte(`{
		"context": "tests",
		"state": "failure",
		"target_url": "https://jenkins.example/job/tests/3/",
		"description": "Build #3 failed",
		"updated_at": "2024-03-01T10:00:00Z"
	}`), &status)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.State != types.StatusFailure {
		t.Errorf("expected failure, got %s", status.State)
	}
	if status.UpdatedAt.IsZero() {
		t.Error("expected updated_at to be parsed")
	}
	if got := status.String(); got != "tests: failure (Build #3 failed)" {
		t.Errorf("unexpected string %q", got)
	}

	queued, err := json.Marshal(types.CommitStatus{Context: "tests", State: types.StatusPending, Description: types.DescriptionQueued})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(queued, &fields); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := fields["target_url"]; ok {
		t.Error("a queued status should not carry a target URL")
	}
}

func TestQueueStateString(t *testing.T) {
	tests := map[types.QueueState]string{
		types.QueueUnknown:  "unknown",
		types.QueueEmpty:    "empty",
		types.QueueFull:     "full",
		types.QueueState(9): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("QueueState(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestInstructionString(t *testing.T) {
	instr := types.Instruction{Name: "skip", Author: "alice"}
	if got := instr.String(); got != "skip by @alice" {
		t.Errorf("unexpected string %q", got)
	}
}
