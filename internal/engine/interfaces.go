package engine

import (
	"context"
	"time"

	"github.com/buildherd/buildherd/internal/repository"
	"github.com/buildherd/buildherd/pkg/github"
	"github.com/buildherd/buildherd/pkg/types"
)

// GitHubAPI is the GitHub surface of a pass. *github.Client implements it.
type GitHubAPI interface {
	repository.API
	CurrentUser(ctx context.Context) (*github.User, error)
	Cache() *github.Cache
	RateLimit() (remaining int, reset time.Time)
	WaitRateLimitReset(ctx context.Context, now time.Time) (time.Duration, error)
}

// HeadRunner evaluates one head. *pipeline.Pipeline implements it.
type HeadRunner interface {
	Run(ctx context.Context, head repository.Head, queue types.QueueState) error
}

// Supervisor is told about the bot lifecycle. *daemon.Manager implements
// it.
type Supervisor interface {
	Ready()
	Watchdog()
	Status(status string)
	Stopping()
}

// PassObserver hears about finished and failed passes.
// *notifier.Notifier implements it.
type PassObserver interface {
	NotifyPassDone(heads int, took time.Duration)
	NotifyPassFailed(err error)
}
