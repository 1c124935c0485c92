package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buildherd/buildherd/pkg/types"
)

const perPage = "100"

// User is a GitHub account
type User struct {
	Login string `json:"login"`
	Type  string `json:"type,omitempty"`
}

// RepositoryData describes a repository as listed by the API
type RepositoryData struct {
	FullName      string `json:"full_name"`
	Name          string `json:"name"`
	Owner         User   `json:"owner"`
	DefaultBranch string `json:"default_branch"`
	Archived      bool   `json:"archived"`
	Permissions   struct {
		Admin bool `json:"admin"`
		Push  bool `json:"push"`
	} `json:"permissions"`
}

// RefData is a git reference
type RefData struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

// CommitData is a commit as returned by the commits endpoints
type CommitData struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
		Committer struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
	Author *User `json:"author"`
}

// Date returns the committer date, the moment the commit landed
func (c CommitData) Date() time.Time {
	if !c.Commit.Committer.Date.IsZero() {
		return c.Commit.Committer.Date
	}
	return c.Commit.Author.Date
}

// BranchData is a branch as listed by the branches endpoint
type BranchData struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
	Commit    struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// LabelData is an issue label
type LabelData struct {
	Name string `json:"name"`
}

// PullRequestData is an open pull request
type PullRequestData struct {
	Number    int         `json:"number"`
	Title     string      `json:"title"`
	State     string      `json:"state"`
	HTMLURL   string      `json:"html_url"`
	Draft     bool        `json:"draft"`
	User      User        `json:"user"`
	Labels    []LabelData `json:"labels"`
	UpdatedAt time.Time   `json:"updated_at"`
	Head      struct {
		Ref  string `json:"ref"`
		SHA  string `json:"sha"`
		Repo *struct {
			FullName string `json:"full_name"`
		} `json:"repo"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

// CommentData is an issue or pull request comment
type CommentData struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type contentData struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type combinedStatus struct {
	State    string               `json:"state"`
	Statuses []types.CommitStatus `json:"statuses"`
}

func repoPath(owner, name string, parts ...string) string {
	segments := []string{"repos", url.PathEscape(owner), url.PathEscape(name)}
	segments = append(segments, parts...)
	return strings.Join(segments, "/")
}

func pageParams(extra ...string) url.Values {
	params := url.Values{"per_page": {perPage}}
	for i := 0; i+1 < len(extra); i += 2 {
		params.Set(extra[i], extra[i+1])
	}
	return params
}

// CurrentUser returns the authenticated account
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	res, err := c.Get(ctx, "user", nil)
	if err != nil {
		return nil, err
	}
	var user User
	if err := res.Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// Repository returns one repository
func (c *Client) Repository(ctx context.Context, owner, name string) (*RepositoryData, error) {
	res, err := c.Get(ctx, repoPath(owner, name), nil)
	if err != nil {
		return nil, err
	}
	var repo RepositoryData
	if err := res.Decode(&repo); err != nil {
		return nil, fmt.Errorf("failed to decode repository: %w", err)
	}
	return &repo, nil
}

// UserRepositories streams the repositories the authenticated account
// can access
func (c *Client) UserRepositories() (*Items[RepositoryData], error) {
	pages, err := c.Paginate("user/repos", pageParams("sort", "full_name"))
	if err != nil {
		return nil, err
	}
	return NewItems[RepositoryData](pages), nil
}

// FileContents returns the decoded contents of path at ref. A missing file
// is reported as a *NotFoundError.
func (c *Client) FileContents(ctx context.Context, owner, name, path, ref string) ([]byte, error) {
	var params url.Values
	if ref != "" {
		params = url.Values{"ref": {ref}}
	}
	res, err := c.Get(ctx, repoPath(owner, name, "contents", strings.TrimLeft(path, "/")), params)
	if err != nil {
		return nil, err
	}
	var content contentData
	if err := res.Decode(&content); err != nil {
		return nil, fmt.Errorf("failed to decode contents: %w", err)
	}
	if content.Encoding != "base64" {
		return []byte(content.Content), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return data, nil
}

// Collaborators lists the accounts with push access to the repository
func (c *Client) Collaborators(ctx context.Context, owner, name string) ([]User, error) {
	pages, err := c.Paginate(repoPath(owner, name, "collaborators"), pageParams())
	if err != nil {
		return nil, err
	}
	return Collect(ctx, NewItems[User](pages), 0)
}

// ProtectedBranches lists the protected branches of the repository
func (c *Client) ProtectedBranches(ctx context.Context, owner, name string) ([]BranchData, error) {
	pages, err := c.Paginate(repoPath(owner, name, "branches"), pageParams("protected", "true"))
	if err != nil {
		return nil, err
	}
	return Collect(ctx, NewItems[BranchData](pages), 0)
}

// Ref resolves a branch to its head reference
func (c *Client) Ref(ctx context.Context, owner, name, branch string) (*RefData, error) {
	res, err := c.Get(ctx, repoPath(owner, name, "git", "ref", "heads", branch), nil)
	if err != nil {
		return nil, err
	}
	var ref RefData
	if err := res.Decode(&ref); err != nil {
		return nil, fmt.Errorf("failed to decode ref: %w", err)
	}
	return &ref, nil
}

// Commit returns one commit
func (c *Client) Commit(ctx context.Context, owner, name, sha string) (*CommitData, error) {
	res, err := c.Get(ctx, repoPath(owner, name, "commits", sha), nil)
	if err != nil {
		return nil, err
	}
	var commit CommitData
	if err := res.Decode(&commit); err != nil {
		return nil, fmt.Errorf("failed to decode commit: %w", err)
	}
	return &commit, nil
}

// BranchCommits streams the history of a branch, newest first
func (c *Client) BranchCommits(owner, name, branch string) (*Items[CommitData], error) {
	pages, err := c.Paginate(repoPath(owner, name, "commits"), pageParams("sha", branch))
	if err != nil {
		return nil, err
	}
	return NewItems[CommitData](pages), nil
}

// PullRequests streams the open pull requests of the repository
func (c *Client) PullRequests(owner, name string) (*Items[PullRequestData], error) {
	pages, err := c.Paginate(repoPath(owner, name, "pulls"), pageParams("state", "open"))
	if err != nil {
		return nil, err
	}
	return NewItems[PullRequestData](pages), nil
}

// PullRequest returns one pull request
func (c *Client) PullRequest(ctx context.Context, owner, name string, number int) (*PullRequestData, error) {
	res, err := c.Get(ctx, repoPath(owner, name, "pulls", strconv.Itoa(number)), nil)
	if err != nil {
		return nil, err
	}
	var pr PullRequestData
	if err := res.Decode(&pr); err != nil {
		return nil, fmt.Errorf("failed to decode pull request: %w", err)
	}
	return &pr, nil
}

// PullRequestCommits streams the commits of a pull request, oldest first
func (c *Client) PullRequestCommits(owner, name string, number int) (*Items[CommitData], error) {
	pages, err := c.Paginate(repoPath(owner, name, "pulls", strconv.Itoa(number), "commits"), pageParams())
	if err != nil {
		return nil, err
	}
	return NewItems[CommitData](pages), nil
}

// IssueComments streams the comments of an issue or pull request
func (c *Client) IssueComments(owner, name string, number int) (*Items[CommentData], error) {
	pages, err := c.Paginate(repoPath(owner, name, "issues", strconv.Itoa(number), "comments"), pageParams())
	if err != nil {
		return nil, err
	}
	return NewItems[CommentData](pages), nil
}

// CommitStatuses returns the latest status per context of a commit
func (c *Client) CommitStatuses(ctx context.Context, owner, name, sha string) ([]types.CommitStatus, error) {
	pages, err := c.Paginate(repoPath(owner, name, "commits", sha, "status"), pageParams())
	if err != nil {
		return nil, err
	}

	var statuses []types.CommitStatus
	for {
		res, err := pages.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		var combined combinedStatus
		if err := res.Decode(&combined); err != nil {
			return nil, fmt.Errorf("failed to decode statuses: %w", err)
		}
		statuses = append(statuses, combined.Statuses...)
	}
	return statuses, nil
}

// CreateStatus posts a new status on a commit
func (c *Client) CreateStatus(ctx context.Context, owner, name, sha string, status types.CommitStatus) (*types.CommitStatus, error) {
	payload := map[string]string{
		"context": status.Context,
		"state":   string(status.State),
	}
	if status.TargetURL != "" {
		payload["target_url"] = status.TargetURL
	}
	if status.Description != "" {
		payload["description"] = status.Description
	}

	res, err := c.Post(ctx, repoPath(owner, name, "statuses", sha), payload)
	if err != nil {
		return nil, err
	}
	var created types.CommitStatus
	if err := res.Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &created, nil
}
