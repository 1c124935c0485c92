package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/types"
)

// Commit is one commit of a head. It keeps exactly one authoritative status
// per context and posts only changes.
type Commit struct {
	Repository *Repository
	SHA        string
	Author     string
	Date       time.Time

	api StatusAPI
	log logger.Logger

	mu       sync.Mutex
	fetched  bool
	statuses map[string]types.CommitStatus
}

// NewCommit creates a commit reading and writing statuses through api
func NewCommit(repo *Repository, sha string, api StatusAPI) *Commit {
	return &Commit{
		Repository: repo,
		SHA:        sha,
		api:        api,
		log:        logger.Nop(),
		statuses:   make(map[string]types.CommitStatus),
	}
}

// WithLogger sets the logger used for status updates
func (c *Commit) WithLogger(log logger.Logger) *Commit {
	if log != nil {
		c.log = log
	}
	return c
}

// String implements fmt.Stringer
func (c *Commit) String() string {
	sha := c.SHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return fmt.Sprintf("%s@%s", c.Repository, sha)
}

// FetchStatuses loads the statuses once and returns a copy keyed by context.
func (c *Commit) FetchStatuses(ctx context.Context) (map[string]types.CommitStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetched {
		statuses, err := c.api.CommitStatuses(ctx, c.Repository.Owner, c.Repository.Name, c.SHA)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch statuses of %s: %w", c, err)
		}
		for _, status := range statuses {
			// The API lists the newest status of a context first.
			if _, seen := c.statuses[status.Context]; !seen {
				c.statuses[status.Context] = status
			}
		}
		c.fetched = true
	}
	return c.copyStatuses(), nil
}

// Status returns the authoritative status of a context
func (c *Commit) Status(name string) (types.CommitStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.statuses[name]
	return status, ok
}

// MaybeUpdateStatus posts status unless it equals the current one and
// returns the authoritative status afterwards.
func (c *Commit) MaybeUpdateStatus(ctx context.Context, status types.CommitStatus) (types.CommitStatus, error) {
	if _, err := c.FetchStatuses(ctx); err != nil {
		return types.CommitStatus{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.statuses[status.Context]; ok && current.Equal(status) {
		return current, nil
	}

	created, err := c.api.CreateStatus(ctx, c.Repository.Owner, c.Repository.Name, c.SHA, status)
	if err != nil {
		return types.CommitStatus{}, fmt.Errorf("failed to update %s status of %s: %w", status.Context, c, err)
	}

	updated := status
	if created != nil && created.Context != "" {
		updated = *created
	}
	if updated.UpdatedAt.IsZero() {
		updated.UpdatedAt = time.Now()
	}
	c.statuses[status.Context] = updated

	c.log.Info("Status updated",
		logger.WithField("commit", c.String()),
		logger.WithField("context", status.Context),
		logger.WithField("state", string(status.State)),
		logger.WithField("description", status.Description))
	return updated, nil
}

// FilterNotBuiltContexts returns the contexts still to build: without
// status, still queued, or failed before rebuildFailed.
func (c *Commit) FilterNotBuiltContexts(contexts []string, rebuildFailed time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var notBuilt []string
	for _, name := range contexts {
		status, ok := c.statuses[name]
		switch {
		case !ok:
			notBuilt = append(notBuilt, name)
		case status.State == types.StatusPending && status.Description == types.DescriptionQueued:
			notBuilt = append(notBuilt, name)
		case !rebuildFailed.IsZero() &&
			(status.State == types.StatusFailure || status.State == types.StatusError) &&
			status.UpdatedAt.Before(rebuildFailed):
			notBuilt = append(notBuilt, name)
		}
	}
	return notBuilt
}

func (c *Commit) copyStatuses() map[string]types.CommitStatus {
	out := make(map[string]types.CommitStatus, len(c.statuses))
	for k, v := range c.statuses {
		out[k] = v
	}
	return out
}
