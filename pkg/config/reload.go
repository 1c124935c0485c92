package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/utils"
)

// ErrConfigRemoved is reported to callbacks when the watched file disappears
var ErrConfigRemoved = errors.New("configuration file was removed")

// ReloadCallback is called after every reload attempt. cfg is nil when
// err is set.
type ReloadCallback func(cfg *Config, err error)

// ReloadManager watches the configuration file and keeps the last valid
// configuration. The bot picks it up at the next pass start.
type ReloadManager struct {
	configPath string
	logger     logger.Logger

	mu         sync.RWMutex
	current    *Config
	callbacks  []ReloadCallback
	modTime    time.Time
	debounce   time.Duration
	watcher    *fsnotify.Watcher
	stop       chan struct{}
	stopped    chan struct{}
	isWatching bool
}

// NewReloadManager creates a reload manager seeded with the configuration
// already loaded
func NewReloadManager(configPath string, initial *Config, log logger.Logger) *ReloadManager {
	if log == nil {
		log = logger.Nop()
	}
	return &ReloadManager{
		configPath: configPath,
		logger:     log,
		current:    initial,
		debounce:   500 * time.Millisecond,
	}
}

// AddCallback registers a callback for reload attempts
func (rm *ReloadManager) AddCallback(callback ReloadCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = append(rm.callbacks, callback)
}

// Current returns the last configuration that loaded and validated
func (rm *ReloadManager) Current() *Config {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.current
}

// SetDebouncePeriod sets how long the file must stay quiet before a reload
func (rm *ReloadManager) SetDebouncePeriod(period time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debounce = period
}

// IsWatching reports whether the file is being watched
func (rm *ReloadManager) IsWatching() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.isWatching
}

// StartWatching watches the directory of the configuration file. Editors
// replace files rather than writing them, so the file itself is not
// watched.
func (rm *ReloadManager) StartWatching() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isWatching {
		return errors.New("already watching configuration file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(rm.configPath)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	if stat, err := os.Stat(rm.configPath); err == nil {
		rm.modTime = stat.ModTime()
	}
	rm.watcher = watcher
	rm.stop = make(chan struct{})
	rm.stopped = make(chan struct{})
	rm.isWatching = true

	go rm.watch(watcher, rm.debounce, rm.stop, rm.stopped)

	rm.logger.Debug("Watching configuration file", logger.WithField("path", rm.configPath))
	return nil
}

// StopWatching stops the watcher and waits for it to exit
func (rm *ReloadManager) StopWatching() error {
	rm.mu.Lock()
	if !rm.isWatching {
		rm.mu.Unlock()
		return nil
	}
	close(rm.stop)
	stopped := rm.stopped
	err := rm.watcher.Close()
	rm.watcher = nil
	rm.isWatching = false
	rm.mu.Unlock()

	<-stopped
	return err
}

// TriggerReload reloads the file now, whatever its modification time
func (rm *ReloadManager) TriggerReload() {
	rm.mu.Lock()
	rm.modTime = time.Time{}
	rm.mu.Unlock()
	rm.reload()
}

// watch coalesces bursts of events on the configuration file into one
// reload once the file has been quiet for the debounce period
func (rm *ReloadManager) watch(watcher *fsnotify.Watcher, debounce time.Duration, stop, stopped chan struct{}) {
	defer close(stopped)
	defer func() {
		if r := recover(); r != nil {
			rm.logger.Error("Configuration watcher panic recovered", logger.WithField("panic", r))
		}
	}()

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !rm.concerns(event.Name) {
				continue
			}
			rm.logger.Debug("Configuration file event", logger.WithField("event", event.String()))
			if event.Has(fsnotify.Remove) && !utils.FileExists(rm.configPath) {
				rm.logger.Warn("Configuration file removed, keeping the current configuration",
					logger.WithField("path", rm.configPath))
				rm.notify(nil, ErrConfigRemoved)
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			rm.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			rm.logger.Error("Configuration watcher error", logger.WithError(err))
			rm.notify(nil, err)
		}
	}
}

// concerns reports whether a directory event may have changed the file,
// including the temporary files editors rename over it
func (rm *ReloadManager) concerns(eventPath string) bool {
	name := filepath.Base(rm.configPath)
	return strings.HasPrefix(filepath.Base(eventPath), name) ||
		strings.HasPrefix(filepath.Base(eventPath), "."+name)
}

func (rm *ReloadManager) reload() {
	stat, err := os.Stat(rm.configPath)
	if err != nil {
		rm.logger.Error("Failed to stat configuration file", logger.WithError(err))
		rm.notify(nil, err)
		return
	}

	rm.mu.Lock()
	if !stat.ModTime().After(rm.modTime) {
		rm.mu.Unlock()
		return
	}
	rm.modTime = stat.ModTime()
	previous := rm.current
	rm.mu.Unlock()

	cfg, err := Load(NewViper(rm.configPath))
	if err != nil {
		rm.logger.Error("Failed to reload configuration, keeping the current one", logger.WithError(err))
		rm.notify(nil, err)
		return
	}

	rm.mu.Lock()
	rm.current = cfg
	rm.mu.Unlock()

	rm.logger.Info("Configuration reloaded",
		logger.WithField("changed", strings.Join(HotChanges(previous, cfg), ",")))
	rm.notify(cfg, nil)
}

func (rm *ReloadManager) notify(cfg *Config, err error) {
	rm.mu.RLock()
	callbacks := append([]ReloadCallback(nil), rm.callbacks...)
	rm.mu.RUnlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					rm.logger.Error("Reload callback panic recovered", logger.WithField("panic", r))
				}
			}()
			callback(cfg, err)
		}()
	}
}

// HotChanges lists the keys applied at the next pass start that differ
// between two configurations
func HotChanges(previous, next *Config) []string {
	if previous == nil || next == nil {
		return nil
	}
	var changed []string
	if !reflect.DeepEqual(previous.Repositories, next.Repositories) {
		changed = append(changed, "repositories")
	}
	if !reflect.DeepEqual(previous.PRFilter, next.PRFilter) {
		changed = append(changed, "pr_filter")
	}
	if previous.CommitMaxWeeks != next.CommitMaxWeeks {
		changed = append(changed, "commit_max_weeks")
	}
	return changed
}
