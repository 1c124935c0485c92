package repository

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/buildherd/buildherd/pkg/github"
	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/retry"
	"github.com/buildherd/buildherd/pkg/utils"
)

// HeadStream is a lazy sequence of heads ordered by SortKey. Next returns
// io.EOF at the end.
type HeadStream interface {
	Next(ctx context.Context) (Head, error)
	Close()
}

// StreamOptions are shared by the branch and pull request streams
type StreamOptions struct {
	Retry  retry.Policy
	Filter *utils.Filter
	Logger logger.Logger
	Now    func() time.Time
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Filter == nil {
		o.Filter = utils.NewFilter(nil)
	}
	return o
}

// BranchStream yields the tracked branches of a repository in name order,
// resolving each ref only when reached.
type BranchStream struct {
	repo   *Repository
	api    API
	opts   StreamOptions
	names  []string
	pos    int
	closed bool
}

// NewBranchStream creates a stream over the repository settings branches
func NewBranchStream(repo *Repository, api API, opts StreamOptions) *BranchStream {
	var names []string
	if repo.Settings != nil {
		names = append(names, repo.Settings.Branches...)
	}
	sort.Strings(names)
	return &BranchStream{repo: repo, api: api, opts: opts.withDefaults(), names: names}
}

// Next implements HeadStream. Missing refs and outdated branches are
// skipped.
func (s *BranchStream) Next(ctx context.Context) (Head, error) {
	log := s.opts.Logger.WithScope(s.repo.String())
	for !s.closed && s.pos < len(s.names) {
		name := s.names[s.pos]
		s.pos++

		ref, err := retry.Do(ctx, s.opts.Retry, "ref "+name, func(ctx context.Context) (*github.RefData, error) {
			return s.api.Ref(ctx, s.repo.Owner, s.repo.Name, name)
		})
		if github.IsNotFound(err) {
			log.Debug("Branch not found", logger.WithField("branch", name))
			continue
		}
		if err != nil {
			return nil, err
		}

		data, err := retry.Do(ctx, s.opts.Retry, "commit "+ref.Object.SHA, func(ctx context.Context) (*github.CommitData, error) {
			return s.api.Commit(ctx, s.repo.Owner, s.repo.Name, ref.Object.SHA)
		})
		if err != nil {
			return nil, err
		}

		branch := NewBranch(s.repo, name, newCommitFromData(s.repo, *data, s.api), s.api)
		if branch.IsOutdated(s.repo.CommitMaxWeeks(), s.opts.Now()) {
			log.Debug("Skipping outdated branch", logger.WithField("branch", name))
			continue
		}
		return branch, nil
	}
	return nil, io.EOF
}

// Close implements HeadStream
func (s *BranchStream) Close() {
	s.closed = true
}

// PullStream yields the open pull requests of a repository by SortKey.
// The listing is read on the first Next; commit details are loaded per
// pull request as it is reached.
type PullStream struct {
	repo   *Repository
	api    API
	opts   StreamOptions
	pulls  []*PullRequest
	loaded bool
	pos    int
	closed bool
}

// NewPullStream creates a stream over the open pull requests
func NewPullStream(repo *Repository, api API, opts StreamOptions) *PullStream {
	return &PullStream{repo: repo, api: api, opts: opts.withDefaults()}
}

func (s *PullStream) load(ctx context.Context) error {
	listing, err := retry.Do(ctx, s.opts.Retry, "pulls "+s.repo.String(), func(ctx context.Context) ([]github.PullRequestData, error) {
		items, err := s.api.PullRequests(s.repo.Owner, s.repo.Name)
		if err != nil {
			return nil, err
		}
		defer items.Close()
		return github.Collect(ctx, items, 0)
	})
	if err != nil {
		return err
	}

	log := s.opts.Logger.WithScope(s.repo.String())
	for _, data := range listing {
		if !s.opts.Filter.Allows(data.HTMLURL) {
			log.Debug("Pull request filtered out", logger.WithField("url", data.HTMLURL))
			continue
		}
		s.pulls = append(s.pulls, NewPullRequest(s.repo, data, s.api))
	}
	sort.SliceStable(s.pulls, func(i, j int) bool {
		return s.pulls[i].SortKey().Less(s.pulls[j].SortKey())
	})
	s.loaded = true
	return nil
}

// Next implements HeadStream. Outdated pull requests are skipped.
func (s *PullStream) Next(ctx context.Context) (Head, error) {
	if s.closed {
		return nil, io.EOF
	}
	if !s.loaded {
		if err := s.load(ctx); err != nil {
			return nil, err
		}
	}

	log := s.opts.Logger.WithScope(s.repo.String())
	for s.pos < len(s.pulls) {
		pr := s.pulls[s.pos]
		s.pos++

		err := retry.Run(ctx, s.opts.Retry, "commit "+pr.commit.SHA, pr.LoadCommit)
		if err != nil {
			return nil, err
		}
		if pr.IsOutdated(s.repo.CommitMaxWeeks(), s.opts.Now()) {
			log.Debug("Skipping outdated pull request", logger.WithField("pr", pr.Number()))
			continue
		}
		return pr, nil
	}
	return nil, io.EOF
}

// Close implements HeadStream
func (s *PullStream) Close() {
	s.closed = true
	s.pulls = nil
}
