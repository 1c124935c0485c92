package engine_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildherd/buildherd/internal/engine"
	"github.com/buildherd/buildherd/internal/repository"
	"github.com/buildherd/buildherd/pkg/github"
)

type fakeHead struct {
	repo   *repository.Repository
	name   string
	key    repository.SortKey
	commit *repository.Commit
}

func newHead(repo *repository.Repository, name string, urgent bool, priority int) *fakeHead {
	return &fakeHead{
		repo:   repo,
		name:   name,
		key:    repository.SortKey{Urgent: urgent, Priority: priority, Name: name},
		commit: repository.NewCommit(repo, "sha-"+name, nil),
	}
}

func (h *fakeHead) Repository() *repository.Repository { return h.repo }
func (h *fakeHead) Ref() string                        { return "refs/heads/" + h.name }
func (h *fakeHead) Name() string                       { return h.name }
func (h *fakeHead) LastCommit() *repository.Commit     { return h.commit }
func (h *fakeHead) SortKey() repository.SortKey        { return h.key }
func (h *fakeHead) IsOutdated(int, time.Time) bool     { return false }
func (h *fakeHead) Comments(context.Context) ([]github.CommentData, error) {
	return nil, nil
}
func (h *fakeHead) PreviousCommits(context.Context, int) ([]*repository.Commit, error) {
	return nil, nil
}
func (h *fakeHead) BuildParameters() map[string]string { return map[string]string{} }
func (h *fakeHead) String() string                     { return h.repo.Name + "/" + h.name }

type fakeStream struct {
	heads  []repository.Head
	err    error
	nexts  int
	closed bool
}

func (s *fakeStream) Next(ctx context.Context) (repository.Head, error) {
	s.nexts++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.heads) == 0 {
		return nil, io.EOF
	}
	head := s.heads[0]
	s.heads = s.heads[1:]
	return head, nil
}

func (s *fakeStream) Close() { s.closed = true }

type fixtureRepo struct {
	source   engine.StreamSource
	opened   int
	branches *fakeStream
	pulls    *fakeStream
}

func newFixtureRepo(name string, branches, pulls []repository.Head) *fixtureRepo {
	f := &fixtureRepo{
		branches: &fakeStream{heads: branches},
		pulls:    &fakeStream{heads: pulls},
	}
	f.source = engine.StreamSource{
		Repository: repository.New("o", name),
		Open: func() []repository.HeadStream {
			f.opened++
			return []repository.HeadStream{f.branches, f.pulls}
		},
	}
	return f
}

// fixture: a has a branch and a pull request, b has a branch, a pull
// request and an urgent pull request
func fixture() (*fixtureRepo, *fixtureRepo) {
	repoA := repository.New("o", "a")
	repoB := repository.New("o", "b")

	a := newFixtureRepo("a",
		[]repository.Head{newHead(repoA, "branch", false, repository.BranchPriority)},
		[]repository.Head{newHead(repoA, "pr", false, repository.DefaultPullRequestPriority)})
	b := newFixtureRepo("b",
		[]repository.Head{newHead(repoB, "branch", false, repository.BranchPriority)},
		[]repository.Head{
			newHead(repoB, "pr2", true, repository.DefaultPullRequestPriority),
			newHead(repoB, "pr1", false, repository.DefaultPullRequestPriority),
		})
	a.source.Repository = repoA
	b.source.Repository = repoB
	return a, b
}

func drain(t *testing.T, p *engine.HeadPrioritizer) []string {
	t.Helper()
	var out []string
	for {
		head, err := p.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, head.String())
	}
}

func TestHeadPrioritizer_FixtureOrder(t *testing.T) {
	a, b := fixture()
	p := engine.NewHeadPrioritizer([]engine.StreamSource{a.source, b.source}, nil)

	assert.Equal(t, []string{"a/branch", "b/pr2", "a/pr", "b/branch", "b/pr1"}, drain(t, p))
	assert.Equal(t, 1, a.opened)
	assert.Equal(t, 1, b.opened)
}

func TestHeadPrioritizer_LazyOpen(t *testing.T) {
	a, b := fixture()
	p := engine.NewHeadPrioritizer([]engine.StreamSource{a.source, b.source}, nil)

	head, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a/branch", head.String())
	assert.Equal(t, 1, a.opened)
	assert.Equal(t, 0, b.opened, "a repository is opened only when reached")
	assert.Zero(t, b.branches.nexts)

	p.Close()
	assert.True(t, a.branches.closed)
	assert.True(t, a.pulls.closed)
	assert.False(t, b.branches.closed, "never opened streams are not touched")
	assert.Equal(t, 0, b.opened)

	_, err = p.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestHeadPrioritizer_SkipsDuplicates(t *testing.T) {
	repo := repository.New("o", "a")
	main := newHead(repo, "main", false, repository.BranchPriority)
	dup := &fakeHead{repo: repo, name: "main", key: main.key, commit: main.commit}

	src := newFixtureRepo("a",
		[]repository.Head{main},
		[]repository.Head{dup, newHead(repo, "pr", false, 50)})
	src.source.Repository = repo
	p := engine.NewHeadPrioritizer([]engine.StreamSource{src.source}, nil)

	assert.Equal(t, []string{"a/main", "a/pr"}, drain(t, p))
}

func TestHeadPrioritizer_StreamErrorDropsRepository(t *testing.T) {
	a, b := fixture()
	a.pulls.err = errors.New("listing failed")
	p := engine.NewHeadPrioritizer([]engine.StreamSource{a.source, b.source}, nil)

	_, err := p.Next(context.Background())
	require.Error(t, err)
	assert.True(t, a.branches.closed)

	assert.Equal(t, []string{"b/pr2", "b/branch", "b/pr1"}, drain(t, p))
}

func TestHeadPrioritizer_Empty(t *testing.T) {
	p := engine.NewHeadPrioritizer(nil, nil)
	_, err := p.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	p.Close()
}

func TestHeadPrioritizer_Cancelled(t *testing.T) {
	a, _ := fixture()
	p := engine.NewHeadPrioritizer([]engine.StreamSource{a.source}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, a.opened)
}

func TestHeadPrioritizer_UrgentDoesNotJumpRepositories(t *testing.T) {
	repoA := repository.New("o", "a")
	repoB := repository.New("o", "b")
	a := newFixtureRepo("a", nil,
		[]repository.Head{newHead(repoA, "pr", false, repository.DefaultPullRequestPriority)})
	b := newFixtureRepo("b", nil,
		[]repository.Head{newHead(repoB, "hotfix", true, repository.DefaultPullRequestPriority)})
	a.source.Repository = repoA
	b.source.Repository = repoB

	p := engine.NewHeadPrioritizer([]engine.StreamSource{a.source, b.source}, nil)

	assert.Equal(t, []string{"a/pr", "b/hotfix"}, drain(t, p),
		"an urgent pull request waits for its repository's turn")
}
