package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/buildherd/buildherd/internal/repository"
	pcontext "github.com/buildherd/buildherd/pkg/context"
	"github.com/buildherd/buildherd/pkg/github"
	"github.com/buildherd/buildherd/pkg/jenkins"
	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/retry"
	"github.com/buildherd/buildherd/pkg/types"
	"github.com/buildherd/buildherd/pkg/utils"
)

// ErrNoRepositories is returned by a pass with nothing to manage
var ErrNoRepositories = errors.New("no repository to manage")

// PassOutcome tells the loop how a pass ended
type PassOutcome int

const (
	// PassCompleted means every head was considered
	PassCompleted PassOutcome = iota

	// PassRestart means the queue drained mid-pass and the pass should
	// start over from the highest priority heads
	PassRestart
)

func (o PassOutcome) String() string {
	if o == PassRestart {
		return "restart"
	}
	return "completed"
}

// Tunables are the options reread at every pass start
type Tunables struct {
	Repositories   []string
	PRFilter       []string
	CommitMaxWeeks int
}

// Options configure the poller
type Options struct {
	GitHub  GitHubAPI
	Jenkins jenkins.Backend
	Runner  HeadRunner
	Queue   *QueueAdmission

	Tunables Tunables

	// Reload returns the tunables to use for the next pass, nil keeps
	// the current ones
	Reload func() *Tunables

	SettingsConcurrency int

	// Interval between passes; zero with no Schedule runs a single pass
	Interval time.Duration
	Schedule cron.Schedule

	RateLimitThreshold int
	WatchdogInterval   time.Duration

	Retry      retry.Policy
	Logger     logger.Logger
	Supervisor Supervisor
	Observer   PassObserver

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Poller runs passes over every tracked repository
type Poller struct {
	opts Options
	mu   sync.Mutex
}

// NewPoller creates a poller. A nil Queue reads the Jenkins queue.
func NewPoller(opts Options) *Poller {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	if opts.SettingsConcurrency < 1 {
		opts.SettingsConcurrency = 1
	}
	if opts.Supervisor == nil {
		opts.Supervisor = nopSupervisor{}
	}
	if opts.Queue == nil && opts.Jenkins != nil {
		opts.Queue = NewQueueAdmission(opts.Jenkins, QueueOptions{Retry: opts.Retry, Logger: opts.Logger})
	}
	return &Poller{opts: opts}
}

// Continuous reports whether Run loops
func (p *Poller) Continuous() bool {
	return p.opts.Interval > 0 || p.opts.Schedule != nil
}

// Run runs a single pass, or passes until ctx is cancelled in continuous
// mode. In continuous mode pass errors are logged and the loop goes on.
func (p *Poller) Run(ctx context.Context) error {
	log := p.opts.Logger
	p.opts.Supervisor.Ready()
	defer p.opts.Supervisor.Stopping()

	if !p.Continuous() {
		_, err := p.runObservedPass(ctx)
		return err
	}

	log.Info("Starting continuous polling",
		logger.WithField("interval", p.opts.Interval.String()),
		logger.WithField("scheduled", p.opts.Schedule != nil))

	for {
		start := p.opts.Now()
		outcome, err := p.runObservedPass(ctx)
		if ctx.Err() != nil {
			log.Info("Polling stopped")
			return nil
		}
		if err != nil {
			log.Error("Pass failed", logger.WithError(err))
		}
		if outcome == PassRestart {
			continue
		}

		if purged := p.opts.GitHub.Cache().Purge(start); purged > 0 {
			log.Debug("Cache purged", logger.WithField("entries", purged))
		}

		if err := p.waitRateLimit(ctx, err); err != nil {
			return nil
		}
		if err := p.waitNextPass(ctx); err != nil {
			return nil
		}
	}
}

func (p *Poller) runObservedPass(ctx context.Context) (PassOutcome, error) {
	start := p.opts.Now()
	outcome, heads, err := p.runPass(ctx)
	if p.opts.Observer != nil && ctx.Err() == nil {
		if err != nil {
			p.opts.Observer.NotifyPassFailed(err)
		} else if outcome == PassCompleted {
			p.opts.Observer.NotifyPassDone(heads, p.opts.Now().Sub(start))
		}
	}
	return outcome, err
}

// RunPass walks every head once, by priority
func (p *Poller) RunPass(ctx context.Context) (PassOutcome, error) {
	outcome, _, err := p.runPass(ctx)
	return outcome, err
}

func (p *Poller) runPass(ctx context.Context) (PassOutcome, int, error) {
	ctx = pcontext.NewPass(ctx)
	ctx = pcontext.WithOperation(ctx, "pass")
	log := logger.WithContext(ctx, p.opts.Logger)

	p.reload()
	if p.opts.Queue != nil {
		p.opts.Queue.Reset()
	}

	user, err := retry.Do(ctx, p.opts.Retry, "whoami", p.opts.GitHub.CurrentUser)
	if err != nil {
		return PassCompleted, 0, fmt.Errorf("failed to identify the bot: %w", err)
	}
	log.Info("Pass started", logger.WithField("login", user.Login))
	p.opts.Supervisor.Status("pass running as " + user.Login)

	repos, err := p.Repositories(ctx)
	if err != nil {
		return PassCompleted, 0, err
	}

	prioritizer := NewHeadPrioritizer(p.sources(repos), log)
	defer prioritizer.Close()

	heads := 0
	continuous := p.Continuous()
	for {
		head, err := prioritizer.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil || !continuous {
				return PassCompleted, heads, err
			}
			log.Error("Failed to list heads", logger.WithError(err))
			continue
		}

		if head.IsOutdated(head.Repository().CommitMaxWeeks(), p.opts.Now()) {
			log.Debug("Skipping outdated head", logger.WithField("head", head.String()))
			continue
		}

		queue, restart, err := p.checkQueue(ctx)
		if err != nil {
			if ctx.Err() != nil || !continuous {
				return PassCompleted, heads, fmt.Errorf("failed to read the build queue: %w", err)
			}
			log.Error("Failed to read the build queue", logger.WithError(err))
		}
		if restart && continuous {
			log.Info("Restarting pass", logger.WithField("processed", heads))
			return PassRestart, heads, nil
		}

		heads++
		if err := p.opts.Runner.Run(ctx, head, queue); err != nil {
			if ctx.Err() != nil || !continuous {
				return PassCompleted, heads, err
			}
			log.Error("Head failed", logger.WithField("head", head.String()), logger.WithError(err))
		}
		p.opts.Supervisor.Watchdog()
	}

	log.Info("Pass done",
		logger.WithField("heads", heads),
		logger.WithField("duration", pcontext.GetDuration(ctx).Round(time.Millisecond).String()))
	return PassCompleted, heads, nil
}

// Repositories discovers the tracked repositories and loads their
// settings. Repositories whose settings fail to load are skipped, and so
// are those without jobs.
func (p *Poller) Repositories(ctx context.Context) ([]*repository.Repository, error) {
	log := logger.WithContext(ctx, p.opts.Logger)
	tunables := p.tunables()

	repos, err := retry.Do(ctx, p.opts.Retry, "discovery", func(ctx context.Context) ([]*repository.Repository, error) {
		return repository.Discover(ctx, p.opts.Jenkins, tunables.Repositories, log)
	})
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return nil, ErrNoRepositories
	}

	loaded, err := p.loadSettings(ctx, repos, tunables)
	if err != nil {
		return nil, err
	}

	var kept []*repository.Repository
	for i, repo := range repos {
		if !loaded[i] {
			continue
		}
		if len(repo.Settings.Jobs) == 0 {
			log.Debug("No job for repository", logger.WithField("repository", repo.String()))
			continue
		}
		kept = append(kept, repo)
	}
	log.Info("Repositories ready",
		logger.WithField("discovered", len(repos)),
		logger.WithField("kept", len(kept)))
	if len(kept) == 0 {
		return nil, ErrNoRepositories
	}
	return kept, nil
}

// loadSettings loads settings concurrently, reporting which repositories
// loaded
func (p *Poller) loadSettings(ctx context.Context, repos []*repository.Repository, tunables Tunables) ([]bool, error) {
	log := logger.WithContext(ctx, p.opts.Logger)
	defaults := repository.Defaults{CommitMaxWeeks: tunables.CommitMaxWeeks}
	loaded := make([]bool, len(repos))

	group, gctx := NewSafeGroup(ctx, p.opts.SettingsConcurrency, log)
	for i, repo := range repos {
		i, repo := i, repo
		group.Go("settings "+repo.String(), func() error {
			scoped := log.WithScope(repo.String())
			err := retry.Run(gctx, p.opts.Retry, "settings "+repo.String(), func(ctx context.Context) error {
				return repo.LoadSettings(ctx, p.opts.GitHub, defaults, scoped)
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				scoped.Warn("Skipping repository, settings failed to load", logger.WithError(err))
				return nil
			}
			loaded[i] = true
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return loaded, nil
}

// sources opens the branch and pull request streams of a repository on
// first use
func (p *Poller) sources(repos []*repository.Repository) []StreamSource {
	tunables := p.tunables()
	opts := repository.StreamOptions{
		Retry:  p.opts.Retry,
		Filter: utils.NewFilter(tunables.PRFilter),
		Logger: p.opts.Logger,
		Now:    p.opts.Now,
	}

	sources := make([]StreamSource, 0, len(repos))
	for _, repo := range repos {
		repo := repo
		sources = append(sources, StreamSource{
			Repository: repo,
			Open: func() []repository.HeadStream {
				return []repository.HeadStream{
					repository.NewBranchStream(repo, p.opts.GitHub, opts),
					repository.NewPullStream(repo, p.opts.GitHub, opts),
				}
			},
		})
	}
	return sources
}

func (p *Poller) checkQueue(ctx context.Context) (types.QueueState, bool, error) {
	if p.opts.Queue == nil {
		return types.QueueEmpty, false, nil
	}
	return p.opts.Queue.Check(ctx)
}

func (p *Poller) reload() {
	if p.opts.Reload == nil {
		return
	}
	if next := p.opts.Reload(); next != nil {
		p.mu.Lock()
		p.opts.Tunables = *next
		p.mu.Unlock()
	}
}

func (p *Poller) tunables() Tunables {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.Tunables
}

// waitRateLimit sleeps until the GitHub budget resets when the last pass
// ran it down
func (p *Poller) waitRateLimit(ctx context.Context, passErr error) error {
	remaining, _ := p.opts.GitHub.RateLimit()
	low := remaining >= 0 && remaining < p.opts.RateLimitThreshold
	if !low && !errors.Is(passErr, github.ErrRateLimitThreshold) {
		return nil
	}
	_, err := p.opts.GitHub.WaitRateLimitReset(ctx, p.opts.Now())
	return err
}

// waitNextPass sleeps until the next scheduled pass, pinging the
// supervisor watchdog meanwhile
func (p *Poller) waitNextPass(ctx context.Context) error {
	delay := p.opts.Interval
	if p.opts.Schedule != nil {
		now := p.opts.Now()
		delay = p.opts.Schedule.Next(now).Sub(now)
	}
	p.opts.Logger.Debug("Waiting for next pass", logger.WithField("delay", delay.Round(time.Second).String()))

	for delay > 0 {
		step := delay
		if half := p.opts.WatchdogInterval / 2; half > 0 && step > half {
			step = half
		}
		if err := p.opts.Sleep(ctx, step); err != nil {
			return err
		}
		delay -= step
		p.opts.Supervisor.Watchdog()
	}
	return ctx.Err()
}

type nopSupervisor struct{}

func (nopSupervisor) Ready()        {}
func (nopSupervisor) Watchdog()     {}
func (nopSupervisor) Status(string) {}
func (nopSupervisor) Stopping()     {}
