package engine

import (
	"context"
	"fmt"

	"github.com/buildherd/buildherd/internal/pipeline"
	"github.com/buildherd/buildherd/internal/state"
	"github.com/buildherd/buildherd/pkg/config"
	"github.com/buildherd/buildherd/pkg/daemon"
	"github.com/buildherd/buildherd/pkg/github"
	"github.com/buildherd/buildherd/pkg/jenkins"
	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/notifier"
	"github.com/buildherd/buildherd/pkg/retry"
	"github.com/buildherd/buildherd/pkg/types"
)

// Dependencies are the services a poller is built from
type Dependencies struct {
	GitHub   GitHubAPI
	Jenkins  jenkins.Backend
	Journal  *state.Journal
	Notifier *notifier.Notifier
	Daemon   *daemon.Manager
}

// Close releases what the dependencies hold
func (d *Dependencies) Close() error {
	if d.Journal != nil {
		return d.Journal.Close()
	}
	return nil
}

// DependencyFactory creates default implementations of dependencies from
// the configuration.
type DependencyFactory struct {
	config *config.Config
	logger logger.Logger
}

// NewDependencyFactory creates a new dependency factory
func NewDependencyFactory(cfg *config.Config, log logger.Logger) *DependencyFactory {
	if log == nil {
		log = logger.Nop()
	}
	return &DependencyFactory{config: cfg, logger: log}
}

// CreateDefaults creates every dependency the bot command needs
func (f *DependencyFactory) CreateDefaults(ctx context.Context) (*Dependencies, error) {
	return f.CreateWithOverrides(ctx, Dependencies{})
}

// CreateWithOverrides creates the dependencies not given in overrides.
// Services that are overridden are never built, so their credentials may
// be missing.
func (f *DependencyFactory) CreateWithOverrides(ctx context.Context, overrides Dependencies) (*Dependencies, error) {
	deps := overrides

	if deps.GitHub == nil {
		client, err := f.CreateGitHub()
		if err != nil {
			return nil, err
		}
		deps.GitHub = client
	}
	if deps.Jenkins == nil {
		client, err := f.CreateJenkins()
		if err != nil {
			return nil, err
		}
		deps.Jenkins = client
	}
	if deps.Journal == nil {
		journal, err := f.CreateJournal(ctx)
		if err != nil {
			return nil, err
		}
		deps.Journal = journal
	}
	if deps.Notifier == nil {
		deps.Notifier = f.CreateNotifier()
	}
	if deps.Daemon == nil {
		deps.Daemon = f.CreateDaemon()
	}
	return &deps, nil
}

// RetryPolicy is the policy shared by every remote call
func (f *DependencyFactory) RetryPolicy() retry.Policy {
	return retry.Policy{Interval: f.config.RetryInterval, Logger: f.logger}
}

// CreateGitHub creates the GitHub client
func (f *DependencyFactory) CreateGitHub() (*github.Client, error) {
	if err := f.config.RequireGitHub(); err != nil {
		return nil, err
	}
	return github.NewClient(github.Options{
		BaseURL:            f.config.GitHubURL,
		Token:              f.config.GitHubToken,
		Logger:             f.logger.WithScope("github"),
		RateLimitThreshold: f.config.RateLimitThreshold,
		RequestsPerSecond:  f.config.APIRate,
	})
}

// CreateJenkins creates the Jenkins client
func (f *DependencyFactory) CreateJenkins() (*jenkins.Client, error) {
	if err := f.config.RequireJenkins(); err != nil {
		return nil, err
	}
	return jenkins.NewClient(jenkins.Options{
		URL:      f.config.JenkinsURL,
		User:     f.config.JenkinsUser,
		Token:    f.config.JenkinsToken,
		Logger:   f.logger.WithScope("jenkins"),
		QueueMax: f.config.QueueMax,
	})
}

// CreateJournal opens the action journal, nil when none is configured
func (f *DependencyFactory) CreateJournal(ctx context.Context) (*state.Journal, error) {
	if f.config.JournalPath == "" {
		return nil, nil
	}
	journal, err := state.Open(ctx, f.config.JournalPath, f.logger.WithScope("journal"))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return journal, nil
}

// CreateNotifier creates the desktop notifier
func (f *DependencyFactory) CreateNotifier() *notifier.Notifier {
	return notifier.New(notifier.Config{Enabled: f.config.Notify}, f.logger)
}

// CreateDaemon creates the process lifecycle manager
func (f *DependencyFactory) CreateDaemon() *daemon.Manager {
	return daemon.NewManager(daemon.Config{PIDFile: f.config.PIDFile}, f.logger)
}

// CreatePipeline creates the head pipeline, leaving out the disabled
// extensions
func (f *DependencyFactory) CreatePipeline(deps *Dependencies) *pipeline.Pipeline {
	opts := pipeline.Options{
		Backend:     deps.Jenkins,
		DryRun:      f.config.DryRun,
		AlwaysQueue: f.config.AlwaysQueue,
		Retry:       f.RetryPolicy(),
		Logger:      f.logger,
	}
	if deps.Journal != nil {
		opts.Recorder = deps.Journal
	}
	return pipeline.New(opts, f.config.DisabledExtensions)
}

// CreatePoller wires a poller over deps. reload, when set, supplies the
// configuration at every pass start.
func (f *DependencyFactory) CreatePoller(deps *Dependencies, reload func() *config.Config) (*Poller, error) {
	schedule, err := f.config.Schedule()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	queue := NewQueueAdmission(deps.Jenkins, QueueOptions{
		AlwaysQueue: f.config.AlwaysQueue,
		Grace:       f.config.QueueGrace,
		Retry:       f.RetryPolicy(),
		Logger:      f.logger,
		OnTransition: func(from, to types.QueueState) {
			if deps.Notifier != nil {
				deps.Notifier.NotifyQueueTransition(from, to)
			}
		},
	})

	opts := Options{
		GitHub:              deps.GitHub,
		Jenkins:             deps.Jenkins,
		Runner:              f.CreatePipeline(deps),
		Queue:               queue,
		Tunables:            TunablesFrom(f.config),
		SettingsConcurrency: f.config.SettingsConcurrency,
		Interval:            f.config.PollInterval,
		Schedule:            schedule,
		RateLimitThreshold:  f.config.RateLimitThreshold,
		WatchdogInterval:    daemon.WatchdogInterval(),
		Retry:               f.RetryPolicy(),
		Logger:              f.logger,
	}
	if deps.Daemon != nil {
		opts.Supervisor = deps.Daemon
	}
	if deps.Notifier != nil {
		opts.Observer = deps.Notifier
	}
	if reload != nil {
		opts.Reload = func() *Tunables {
			cfg := reload()
			if cfg == nil {
				return nil
			}
			tunables := TunablesFrom(cfg)
			return &tunables
		}
	}
	return NewPoller(opts), nil
}

// TunablesFrom extracts the options reread at pass start
func TunablesFrom(cfg *config.Config) Tunables {
	return Tunables{
		Repositories:   append([]string(nil), cfg.Repositories...),
		PRFilter:       append([]string(nil), cfg.PRFilter...),
		CommitMaxWeeks: cfg.CommitMaxWeeks,
	}
}
