package notifier_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/buildherd/buildherd/pkg/notifier"
	"github.com/buildherd/buildherd/pkg/types"
)

type sent struct {
	title, message string
}

func recorder(out *[]sent) notifier.SendFunc {
	return func(title, message, _ string) error {
		*out = append(*out, sent{title, message})
		return nil
	}
}

func TestNotifier_QueueTransitions(t *testing.T) {
	var got []sent
	n := notifier.New(notifier.Config{Enabled: true, Send: recorder(&got)}, nil)

	n.NotifyQueueTransition(types.QueueUnknown, types.QueueFull)
	n.NotifyQueueTransition(types.QueueEmpty, types.QueueFull)
	n.NotifyQueueTransition(types.QueueFull, types.QueueEmpty)

	if assert.Len(t, got, 2) {
		assert.Contains(t, got[0].title, "full")
		assert.Contains(t, got[1].title, "drained")
	}
}

func TestNotifier_Disabled(t *testing.T) {
	var got []sent
	n := notifier.New(notifier.Config{Send: recorder(&got)}, nil)

	n.NotifyPassFailed(errors.New("boom"))
	n.NotifyQueueTransition(types.QueueEmpty, types.QueueFull)

	assert.Empty(t, got)
}

func TestNotifier_PassDone(t *testing.T) {
	var got []sent
	n := notifier.New(notifier.Config{Enabled: true, Send: recorder(&got)}, nil)

	n.NotifyPassDone(12, 90*time.Second)
	n.NotifyPassDone(1, 1500*time.Millisecond)
	n.NotifyPassDone(0, 20*time.Millisecond)

	assert.Equal(t, "12 heads processed in 1m30s", got[0].message)
	assert.Equal(t, "1 heads processed in 1.5s", got[1].message)
	assert.Equal(t, "0 heads processed in 20ms", got[2].message)
}

func TestNotifier_SendErrorIsSwallowed(t *testing.T) {
	n := notifier.New(notifier.Config{Enabled: true, Send: func(string, string, string) error {
		return errors.New("no display")
	}}, nil)

	assert.NotPanics(t, func() { n.NotifyPassFailed(errors.New("boom")) })
}
