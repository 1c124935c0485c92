package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/buildherd/buildherd/pkg/config"
	"github.com/buildherd/buildherd/pkg/logger"
)

// ErrAlreadyRunning is returned by a second concurrent Start
var ErrAlreadyRunning = errors.New("bot is already running")

// Bot owns a poller for its whole life: the PID file, the supervisor
// notifications and the configuration watcher.
type Bot struct {
	config     *config.Config
	configPath string
	logger     logger.Logger
	deps       *Dependencies
	poller     *Poller
	reload     *config.ReloadManager

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewBot creates a bot over deps. configPath is watched for changes in
// continuous mode; empty disables hot reload.
func NewBot(cfg *config.Config, configPath string, log logger.Logger, deps *Dependencies) (*Bot, error) {
	if log == nil {
		log = logger.Nop()
	}
	b := &Bot{
		config:     cfg,
		configPath: configPath,
		logger:     log,
		deps:       deps,
	}

	var current func() *config.Config
	if configPath != "" && cfg.Continuous() {
		b.reload = config.NewReloadManager(configPath, cfg, log.WithScope("config"))
		b.reload.AddCallback(func(next *config.Config, err error) {
			if err == nil && next.Continuous() != cfg.Continuous() {
				log.Warn("Polling mode changes need a restart")
			}
		})
		current = b.reload.Current
	}

	poller, err := NewDependencyFactory(cfg, log).CreatePoller(deps, current)
	if err != nil {
		return nil, err
	}
	b.poller = poller
	return b, nil
}

// Poller returns the poller driven by the bot
func (b *Bot) Poller() *Poller {
	return b.poller
}

// StartWithContext runs the bot until ctx is cancelled, Stop is called or,
// in single pass mode, the pass ends.
func (b *Bot) StartWithContext(ctx context.Context) error {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.isRunning = true
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.cancel()
		b.mu.Unlock()
		close(done)
	}()

	if b.deps.Daemon != nil {
		if err := b.deps.Daemon.Acquire(); err != nil {
			return err
		}
		defer b.deps.Daemon.Release()
	}

	if b.reload != nil {
		if err := b.reload.StartWatching(); err != nil {
			b.logger.Warn("Configuration hot reload disabled", logger.WithError(err))
		} else {
			defer func() {
				if err := b.reload.StopWatching(); err != nil {
					b.logger.Warn("Failed to stop configuration watcher", logger.WithError(err))
				}
			}()
		}
	}

	b.logger.Info("Starting bot",
		logger.WithField("continuous", b.poller.Continuous()),
		logger.WithField("dry_run", b.config.DryRun))

	if err := b.poller.Run(ctx); err != nil {
		return fmt.Errorf("pass failed: %w", err)
	}
	return nil
}

// StopWithContext cancels the run and waits for it to wind down, or for
// ctx to expire.
func (b *Bot) StopWithContext(ctx context.Context) {
	b.mu.Lock()
	if !b.isRunning {
		b.mu.Unlock()
		return
	}
	b.cancel()
	done := b.done
	b.mu.Unlock()

	b.logger.Info("Stopping bot...")
	select {
	case <-done:
		b.logger.Info("Bot stopped gracefully")
	case <-ctx.Done():
		b.logger.Warn("Bot shutdown timed out", logger.WithError(ctx.Err()))
	}
}

// Stop stops the bot, waiting at most 30 seconds
func (b *Bot) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	b.StopWithContext(ctx)
}

// IsRunning reports whether StartWithContext is in progress
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isRunning
}

// Cleanup releases the dependencies
func (b *Bot) Cleanup() error {
	return b.deps.Close()
}
