package state_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildherd/buildherd/internal/state"
	"github.com/buildherd/buildherd/pkg/types"
)

func openJournal(t *testing.T) *state.Journal {
	t.Helper()
	j, err := state.Open(context.Background(), filepath.Join(t.TempDir(), "db", "journal.sqlite"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, types.Action{
		Time: at, PassID: "p1", Head: "owner/repo main", SHA: "abc", Job: "lint",
		Kind: types.ActionTrigger, Detail: "https://jenkins.example/job/lint/",
	}))
	require.NoError(t, j.Record(ctx, types.Action{
		Time: at.Add(time.Minute), Head: "owner/repo#7", Job: "test", Kind: types.ActionCancel, DryRun: true,
	}))
	require.NoError(t, j.Record(ctx, types.Action{
		Time: at.Add(2 * time.Minute), Head: "other/repo main", Kind: types.ActionSkip,
	}))

	actions, err := j.Recent(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "other/repo main", actions[0].Head)
	assert.Equal(t, types.ActionCancel, actions[1].Kind)
	assert.True(t, actions[1].DryRun)
	assert.True(t, at.Add(time.Minute).Equal(actions[1].Time))

	actions, err = j.Recent(ctx, 10, "owner/repo")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	first := actions[1]
	assert.Equal(t, "p1", first.PassID)
	assert.Equal(t, "abc", first.SHA)
	assert.Equal(t, "lint", first.Job)
	assert.Equal(t, types.ActionTrigger, first.Kind)
	assert.False(t, first.DryRun)
}

func TestJournal_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.sqlite")

	j, err := state.Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, types.Action{Head: "owner/repo main", Kind: types.ActionLost}))
	require.NoError(t, j.Close())

	j, err = state.Open(ctx, path, nil)
	require.NoError(t, err)
	defer j.Close()
	actions, err := j.Recent(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.False(t, actions[0].Time.IsZero())
}

func TestJournal_Closed(t *testing.T) {
	j := openJournal(t)
	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.Record(context.Background(), types.Action{Head: "x"}), state.ErrClosed)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := state.Open(context.Background(), " ", nil)
	assert.Error(t, err)
}
