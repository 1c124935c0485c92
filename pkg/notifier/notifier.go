// Package notifier provides desktop notifications for the bot operator
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/types"
)

// SendFunc delivers one notification. beeep.Notify matches it.
type SendFunc func(title, message, icon string) error

// Config represents notification configuration
type Config struct {
	Enabled bool

	// Send defaults to beeep.Notify
	Send SendFunc
}

// Notifier tells the operator about queue transitions and failed passes
type Notifier struct {
	enabled bool
	send    SendFunc
	logger  logger.Logger
}

// New creates a new notifier
func New(config Config, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	send := config.Send
	if send == nil {
		send = beeep.Notify
	}
	return &Notifier{enabled: config.Enabled, send: send, logger: log}
}

// NotifyQueueTransition reports a change of the Jenkins queue state
func (n *Notifier) NotifyQueueTransition(from, to types.QueueState) {
	if from == types.QueueUnknown {
		return
	}
	switch to {
	case types.QueueFull:
		n.notify("⏳ Jenkins queue full", "New builds are deferred until the queue drains")
	case types.QueueEmpty:
		n.notify("✅ Jenkins queue drained", "Deferred builds are being triggered")
	}
}

// NotifyPassFailed reports a pass that ended on an error
func (n *Notifier) NotifyPassFailed(err error) {
	n.notify("❌ buildherd pass failed", err.Error())
}

// NotifyPassDone reports a finished pass and how long it took
func (n *Notifier) NotifyPassDone(heads int, took time.Duration) {
	n.notify("buildherd", fmt.Sprintf("%d heads processed in %s", heads, formatDuration(took)))
}

func (n *Notifier) notify(title, message string) {
	if !n.enabled {
		return
	}
	if err := n.send(title, message, ""); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithError(err))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
