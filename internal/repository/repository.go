// Package repository models what buildherd tracks on GitHub: repositories,
// their settings, and the heads (branches and pull requests) evaluated each
// pass.
package repository

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/buildherd/buildherd/pkg/github"
	"github.com/buildherd/buildherd/pkg/jenkins"
	"github.com/buildherd/buildherd/pkg/types"
)

// StatusAPI reads and writes commit statuses
type StatusAPI interface {
	CommitStatuses(ctx context.Context, owner, name, sha string) ([]types.CommitStatus, error)
	CreateStatus(ctx context.Context, owner, name, sha string, status types.CommitStatus) (*types.CommitStatus, error)
}

// SettingsAPI reads what settings are merged from
type SettingsAPI interface {
	FileContents(ctx context.Context, owner, name, path, ref string) ([]byte, error)
	Collaborators(ctx context.Context, owner, name string) ([]github.User, error)
	ProtectedBranches(ctx context.Context, owner, name string) ([]github.BranchData, error)
}

// API is the GitHub surface the repository layer reads through.
// *github.Client implements it.
type API interface {
	StatusAPI
	SettingsAPI
	Ref(ctx context.Context, owner, name, branch string) (*github.RefData, error)
	Commit(ctx context.Context, owner, name, sha string) (*github.CommitData, error)
	PullRequests(owner, name string) (*github.Items[github.PullRequestData], error)
	BranchCommits(owner, name, branch string) (*github.Items[github.CommitData], error)
	PullRequestCommits(owner, name string, number int) (*github.Items[github.CommitData], error)
	IssueComments(owner, name string, number int) (*github.Items[github.CommentData], error)
}

// Repository is a GitHub repository with the Jenkins jobs building it.
// It is rebuilt every pass.
type Repository struct {
	Owner string
	Name  string

	// Branches configured explicitly for this repository
	Branches []string

	// Jobs whose SCM remote points at the repository
	Jobs []jenkins.Job

	// Settings merged at pass start, nil until loaded
	Settings *Settings
}

// New creates a repository
func New(owner, name string) *Repository {
	return &Repository{Owner: owner, Name: name}
}

// String implements fmt.Stringer
func (r *Repository) String() string {
	return r.Owner + "/" + r.Name
}

// URL returns the web URL of the repository
func (r *Repository) URL() string {
	return "https://github.com/" + r.String()
}

// JobsByName indexes the jobs of the repository
func (r *Repository) JobsByName() map[string]jenkins.Job {
	jobs := make(map[string]jenkins.Job, len(r.Jobs))
	for _, job := range r.Jobs {
		jobs[job.Name()] = job
	}
	return jobs
}

// IsCollaborator reports whether login may leave instructions
func (r *Repository) IsCollaborator(login string) bool {
	if r.Settings == nil {
		return false
	}
	for _, collaborator := range r.Settings.Collaborators {
		if strings.EqualFold(collaborator, login) {
			return true
		}
	}
	return false
}

// CommitMaxWeeks returns the outdated cutoff for heads of the repository
func (r *Repository) CommitMaxWeeks() int {
	if r.Settings == nil {
		return 0
	}
	return r.Settings.CommitMaxWeeks
}

// ParseSpec parses an `owner/name[:branch,...]` entry
func ParseSpec(spec string) (*Repository, error) {
	spec = strings.TrimSpace(spec)
	path, branches, _ := strings.Cut(spec, ":")

	owner, name, ok := strings.Cut(path, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepository, spec)
	}

	repo := New(owner, name)
	for _, branch := range strings.Split(branches, ",") {
		if branch = strings.TrimSpace(branch); branch != "" {
			repo.Branches = append(repo.Branches, branch)
		}
	}
	return repo, nil
}

// FromRemote parses a git remote URL pointing at GitHub. Supported forms
// are https://github.com/o/r(.git), git@github.com:o/r.git and
// ssh://git@github.com/o/r.git.
func FromRemote(remote string) (*Repository, error) {
	remote = strings.TrimSpace(remote)
	var path string

	switch {
	case strings.HasPrefix(remote, "git@"):
		host, rest, ok := strings.Cut(strings.TrimPrefix(remote, "git@"), ":")
		if !ok || !isGitHubHost(host) {
			return nil, fmt.Errorf("%w: %q", ErrNotGitHub, remote)
		}
		path = rest
	default:
		u, err := url.Parse(remote)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRepository, remote)
		}
		if !isGitHubHost(u.Hostname()) {
			return nil, fmt.Errorf("%w: %q", ErrNotGitHub, remote)
		}
		path = u.Path
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepository, remote)
	}
	return New(parts[0], parts[1]), nil
}

func isGitHubHost(host string) bool {
	return host == "github.com" || host == "www.github.com"
}

// Sort orders repositories by full name
func Sort(repos []*Repository) {
	sort.Slice(repos, func(i, j int) bool {
		return repos[i].String() < repos[j].String()
	})
}

// Age returns how old t is at now, zero for the zero time
func Age(t, now time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return now.Sub(t)
}
