package daemon

import "errors"

var (
	// ErrAlreadyRunning means another bot holds the PID file
	ErrAlreadyRunning = errors.New("another bot is already running")

	// ErrNotRunning means no live process holds the PID file
	ErrNotRunning = errors.New("no bot is running")
)
