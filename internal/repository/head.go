package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/buildherd/buildherd/pkg/github"
)

const (
	// BranchPriority ranks tracked branches above ordinary pull requests
	BranchPriority = 100

	// DefaultPullRequestPriority applies without a priority label
	DefaultPullRequestPriority = 50

	urgentLabel    = "urgent"
	priorityPrefix = "priority/"
	week           = 7 * 24 * time.Hour
)

// Head is a git ref under evaluation: a tracked branch or an open pull
// request.
type Head interface {
	Repository() *Repository
	Ref() string
	Name() string
	LastCommit() *Commit
	SortKey() SortKey

	// IsOutdated reports whether the last commit is older than weeks.
	// Zero weeks disables the check.
	IsOutdated(weeks int, now time.Time) bool

	// Comments returns the discussion where instructions are left
	Comments(ctx context.Context) ([]github.CommentData, error)

	// PreviousCommits returns up to limit commits superseded by the last
	// one, newest first
	PreviousCommits(ctx context.Context, limit int) ([]*Commit, error)

	// BuildParameters are passed to every job triggered for the head
	BuildParameters() map[string]string

	String() string
}

// SortKey orders heads: urgent first, then higher priority, then name
type SortKey struct {
	Urgent   bool
	Priority int
	Name     string
}

// Less reports whether k sorts before o
func (k SortKey) Less(o SortKey) bool {
	if k.Urgent != o.Urgent {
		return k.Urgent
	}
	if k.Priority != o.Priority {
		return k.Priority > o.Priority
	}
	return k.Name < o.Name
}

// HeadID identifies a head for deduplication
func HeadID(h Head) string {
	sha := ""
	if commit := h.LastCommit(); commit != nil {
		sha = commit.SHA
	}
	return h.Repository().String() + " " + h.Ref() + " " + sha
}

func isOutdated(commit *Commit, weeks int, now time.Time) bool {
	if weeks <= 0 || commit == nil || commit.Date.IsZero() {
		return false
	}
	return now.Sub(commit.Date) > time.Duration(weeks)*week
}

func newCommitFromData(repo *Repository, data github.CommitData, api StatusAPI) *Commit {
	commit := NewCommit(repo, data.SHA, api)
	commit.Date = data.Date()
	commit.Author = data.Commit.Author.Name
	if data.Author != nil && data.Author.Login != "" {
		commit.Author = data.Author.Login
	}
	return commit
}

// Branch is a tracked branch
type Branch struct {
	repo   *Repository
	name   string
	commit *Commit
	api    API
}

// NewBranch creates a branch head from its last commit
func NewBranch(repo *Repository, name string, commit *Commit, api API) *Branch {
	return &Branch{repo: repo, name: name, commit: commit, api: api}
}

func (b *Branch) Repository() *Repository { return b.repo }
func (b *Branch) Ref() string             { return "refs/heads/" + b.name }
func (b *Branch) Name() string            { return b.name }
func (b *Branch) LastCommit() *Commit     { return b.commit }

func (b *Branch) SortKey() SortKey {
	return SortKey{Priority: BranchPriority, Name: b.name}
}

func (b *Branch) IsOutdated(weeks int, now time.Time) bool {
	return isOutdated(b.commit, weeks, now)
}

// Comments returns nothing: branches carry no discussion
func (b *Branch) Comments(ctx context.Context) ([]github.CommentData, error) {
	return nil, nil
}

func (b *Branch) PreviousCommits(ctx context.Context, limit int) ([]*Commit, error) {
	if limit <= 0 {
		return nil, nil
	}
	items, err := b.api.BranchCommits(b.repo.Owner, b.repo.Name, b.name)
	if err != nil {
		return nil, err
	}
	defer items.Close()

	history, err := github.Collect(ctx, items, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list history of %s: %w", b, err)
	}

	var commits []*Commit
	for _, data := range history {
		if data.SHA == b.commit.SHA {
			continue
		}
		commits = append(commits, newCommitFromData(b.repo, data, b.api))
		if len(commits) == limit {
			break
		}
	}
	return commits, nil
}

func (b *Branch) BuildParameters() map[string]string {
	return map[string]string{
		"GIT_REF":    b.Ref(),
		"GIT_BRANCH": b.name,
		"GIT_COMMIT": b.commit.SHA,
	}
}

func (b *Branch) String() string {
	return fmt.Sprintf("%s %s", b.repo, b.name)
}

// PullRequest is an open pull request
type PullRequest struct {
	repo   *Repository
	data   github.PullRequestData
	commit *Commit
	api    API
}

// NewPullRequest creates a pull request head. The last commit carries only
// the sha until its details are loaded.
func NewPullRequest(repo *Repository, data github.PullRequestData, api API) *PullRequest {
	return &PullRequest{
		repo:   repo,
		data:   data,
		commit: NewCommit(repo, data.Head.SHA, api),
		api:    api,
	}
}

func (p *PullRequest) Repository() *Repository { return p.repo }
func (p *PullRequest) Ref() string             { return fmt.Sprintf("refs/pull/%d/head", p.data.Number) }
func (p *PullRequest) Name() string            { return p.data.Head.Ref }
func (p *PullRequest) LastCommit() *Commit     { return p.commit }

// Number returns the pull request number
func (p *PullRequest) Number() int { return p.data.Number }

// URL returns the web URL, used as the inclusion filter token
func (p *PullRequest) URL() string { return p.data.HTMLURL }

// Author returns the login of the pull request author
func (p *PullRequest) Author() string { return p.data.User.Login }

// Urgent reports whether the pull request is labelled urgent
func (p *PullRequest) Urgent() bool {
	for _, label := range p.data.Labels {
		if strings.EqualFold(label.Name, urgentLabel) {
			return true
		}
	}
	return false
}

// Priority returns the priority/N label value, or the default
func (p *PullRequest) Priority() int {
	for _, label := range p.data.Labels {
		name := strings.ToLower(label.Name)
		if !strings.HasPrefix(name, priorityPrefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(name, priorityPrefix)); err == nil {
			return n
		}
	}
	return DefaultPullRequestPriority
}

func (p *PullRequest) SortKey() SortKey {
	return SortKey{Urgent: p.Urgent(), Priority: p.Priority(), Name: p.Name()}
}

func (p *PullRequest) IsOutdated(weeks int, now time.Time) bool {
	return isOutdated(p.commit, weeks, now)
}

// LoadCommit fetches the details of the last commit
func (p *PullRequest) LoadCommit(ctx context.Context) error {
	data, err := p.api.Commit(ctx, p.repo.Owner, p.repo.Name, p.data.Head.SHA)
	if err != nil {
		return err
	}
	p.commit.Date = data.Date()
	p.commit.Author = data.Commit.Author.Name
	if data.Author != nil && data.Author.Login != "" {
		p.commit.Author = data.Author.Login
	}
	return nil
}

func (p *PullRequest) Comments(ctx context.Context) ([]github.CommentData, error) {
	items, err := p.api.IssueComments(p.repo.Owner, p.repo.Name, p.data.Number)
	if err != nil {
		return nil, err
	}
	defer items.Close()
	return github.Collect(ctx, items, 0)
}

func (p *PullRequest) PreviousCommits(ctx context.Context, limit int) ([]*Commit, error) {
	if limit <= 0 {
		return nil, nil
	}
	items, err := p.api.PullRequestCommits(p.repo.Owner, p.repo.Name, p.data.Number)
	if err != nil {
		return nil, err
	}
	defer items.Close()

	history, err := github.Collect(ctx, items, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits of %s: %w", p, err)
	}

	var commits []*Commit
	for i := len(history) - 1; i >= 0 && len(commits) < limit; i-- {
		if history[i].SHA == p.commit.SHA {
			continue
		}
		commits = append(commits, newCommitFromData(p.repo, history[i], p.api))
	}
	return commits, nil
}

func (p *PullRequest) BuildParameters() map[string]string {
	return map[string]string{
		"GIT_REF":    p.Ref(),
		"GIT_BRANCH": p.data.Head.Ref,
		"GIT_COMMIT": p.commit.SHA,
		"PR_NUMBER":  strconv.Itoa(p.data.Number),
	}
}

func (p *PullRequest) String() string {
	return fmt.Sprintf("%s#%d", p.repo, p.data.Number)
}
