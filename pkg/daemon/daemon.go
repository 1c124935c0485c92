// Package daemon ties a long-running bot to its supervisor: a PID file
// keeps two bots from sharing a Jenkins, and systemd is told when the bot
// is ready and still alive.
package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/utils"
)

// Notifier sends supervisor notifications. sd.SdNotify matches it.
type Notifier func(unsetEnvironment bool, state string) (bool, error)

// Config represents daemon configuration
type Config struct {
	// PIDFile is left empty to run without one
	PIDFile string

	// Notify defaults to the systemd notification socket
	Notify Notifier
}

// Manager manages the lifetime of the bot process
type Manager struct {
	pidFile string
	notify  Notifier
	logger  logger.Logger

	mu       sync.Mutex
	acquired bool
}

// NewManager creates a new daemon manager
func NewManager(config Config, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	notify := config.Notify
	if notify == nil {
		notify = sd.SdNotify
	}
	return &Manager{pidFile: config.PIDFile, notify: notify, logger: log}
}

// Acquire writes the PID file, failing when a live process already owns it
func (m *Manager) Acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pidFile == "" || m.acquired {
		return nil
	}
	if pid, err := readPIDFile(m.pidFile); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	if err := utils.WriteFileAtomic(m.pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	m.acquired = true
	return nil
}

// Release removes the PID file written by Acquire
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.acquired {
		return
	}
	if err := os.Remove(m.pidFile); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("Failed to remove PID file", logger.WithError(err))
	}
	m.acquired = false
}

// Running returns the PID of the live process holding pidFile
func Running(pidFile string) (int, error) {
	pid, err := readPIDFile(pidFile)
	if err != nil || !processAlive(pid) {
		return 0, ErrNotRunning
	}
	return pid, nil
}

// Ready tells the supervisor the bot finished starting
func (m *Manager) Ready() {
	m.send(sd.SdNotifyReady)
}

// Stopping tells the supervisor the bot is shutting down
func (m *Manager) Stopping() {
	m.send(sd.SdNotifyStopping)
}

// Watchdog pings the supervisor watchdog
func (m *Manager) Watchdog() {
	m.send(sd.SdNotifyWatchdog)
}

// Status publishes a one-line status to the supervisor
func (m *Manager) Status(status string) {
	m.send("STATUS=" + strings.ReplaceAll(status, "\n", " "))
}

// WatchdogInterval returns how often the supervisor expects a ping, or
// zero when no watchdog is configured
func WatchdogInterval() time.Duration {
	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return interval
}

func (m *Manager) send(state string) {
	sent, err := m.notify(false, state)
	switch {
	case err != nil:
		m.logger.Debug("Supervisor notification failed",
			logger.WithField("state", state),
			logger.WithError(err))
	case sent:
		m.logger.Debug("Supervisor notified", logger.WithField("state", state))
	}
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
