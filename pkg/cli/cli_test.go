package cli_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildherd/buildherd/internal/engine"
	"github.com/buildherd/buildherd/internal/state"
	"github.com/buildherd/buildherd/pkg/cli"
	"github.com/buildherd/buildherd/pkg/github"
	"github.com/buildherd/buildherd/pkg/jenkins"
	"github.com/buildherd/buildherd/pkg/mocks"
	"github.com/buildherd/buildherd/pkg/types"
)

func run(t *testing.T, deps *engine.Dependencies, args ...string) (string, string, int) {
	t.Helper()
	chdir(t, t.TempDir())

	var out, errOut bytes.Buffer
	c := cli.NewCLIWithOutput(&cli.Config{Version: "1.2.3", Dependencies: deps}, &out, &errOut)
	code := c.Main(context.Background(), args)
	return out.String(), errOut.String(), code
}

func jenkinsWithJobs(t *testing.T, remotes map[string]string) *mocks.MockBackend {
	t.Helper()
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackend(ctrl)

	var jobs []jenkins.Job
	for name, remote := range remotes {
		job := mocks.NewMockJob(ctrl)
		job.EXPECT().Name().Return(name).AnyTimes()
		job.EXPECT().URL().Return("https://jenkins.example/job/" + name + "/").AnyTimes()
		job.EXPECT().SCMURLs(gomock.Any()).Return([]string{remote}, nil).AnyTimes()
		jobs = append(jobs, job)
	}
	backend.EXPECT().Jobs(gomock.Any()).Return(jobs, nil).AnyTimes()
	backend.EXPECT().BaseURL().Return("https://jenkins.example/").AnyTimes()
	backend.EXPECT().IsQueueEmpty(gomock.Any()).Return(true, nil).AnyTimes()
	return backend
}

func gitHubServer(t *testing.T, routes map[string]string) *github.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"Not Found"}`)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	client, err := github.NewClient(github.Options{BaseURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)
	return client
}

func commitJSON(sha string) string {
	return fmt.Sprintf(`{"sha":%q,"commit":{"committer":{"date":%q},"author":{"name":"dev"}}}`,
		sha, time.Now().Add(-time.Hour).UTC().Format(time.RFC3339))
}

func repoRoutes() map[string]string {
	return map[string]string{
		"/user":                         `{"login":"bot"}`,
		"/repos/o/a/branches":           `[{"name":"main"}]`,
		"/repos/o/a/collaborators":      `[]`,
		"/repos/o/a/git/ref/heads/main": `{"ref":"refs/heads/main","object":{"sha":"m1"}}`,
		"/repos/o/a/commits/m1":         commitJSON("m1"),
		"/repos/o/a/commits/p1":         commitJSON("p1"),
		"/repos/o/a/commits/p2":         commitJSON("p2"),
		"/repos/o/a/commits/m1/status":  `{"statuses":[]}`,
		"/repos/o/a/pulls": `[
			{"number":3,"html_url":"https://github.com/o/a/pull/3","head":{"ref":"feature","sha":"p1"}},
			{"number":4,"html_url":"https://github.com/o/a/pull/4","head":{"ref":"wip","sha":"p2"}}
		]`,
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, code := run(t, nil, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "buildherd v1.2.3")
}

func TestListRepositories(t *testing.T) {
	deps := &engine.Dependencies{Jenkins: jenkinsWithJobs(t, map[string]string{
		"a-tests": "https://github.com/o/a.git",
		"other":   "https://gitlab.example/o/x.git",
	})}

	out, errOut, code := run(t, deps, "list-repositories", "--repository", "o/c:main,dev")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "o/a\no/c\n", out)
}

func TestListJobs(t *testing.T) {
	deps := &engine.Dependencies{Jenkins: jenkinsWithJobs(t, map[string]string{
		"a-tests": "git@github.com:o/a.git",
	})}

	out, errOut, code := run(t, deps, "list-jobs")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "REPOSITORY")
	assert.Regexp(t, `o/a\s+a-tests\s+https://jenkins.example/job/a-tests/`, out)
}

func TestListBranches(t *testing.T) {
	deps := &engine.Dependencies{
		GitHub:  gitHubServer(t, repoRoutes()),
		Jenkins: jenkinsWithJobs(t, map[string]string{"a-tests": "https://github.com/o/a"}),
	}

	out, errOut, code := run(t, deps, "list-branches")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "o/a main\n", out)
}

func TestListPR_Filter(t *testing.T) {
	deps := &engine.Dependencies{
		GitHub:  gitHubServer(t, repoRoutes()),
		Jenkins: jenkinsWithJobs(t, map[string]string{"a-tests": "https://github.com/o/a"}),
	}

	out, errOut, code := run(t, deps, "list-pr", "--pr-filter=-/pull/4")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "o/a#3\n", out)
}

func TestListBranches_NoRepository(t *testing.T) {
	deps := &engine.Dependencies{
		GitHub:  gitHubServer(t, repoRoutes()),
		Jenkins: jenkinsWithJobs(t, nil),
	}

	out, errOut, code := run(t, deps, "list-branches")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "No repository to manage")
}

func TestMissingCredentialsExitsOne(t *testing.T) {
	t.Setenv("BUILDHERD_JENKINS_URL", "")

	_, errOut, code := run(t, nil, "list-jobs")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "missing credentials")
	assert.NotContains(t, errOut, "goroutine ")
}

func TestDebugDumpsGoroutines(t *testing.T) {
	_, errOut, code := run(t, nil, "list-jobs", "--debug")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "goroutine ")
}

func TestUnknownCommand(t *testing.T) {
	_, errOut, code := run(t, nil, "explode")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown command")
}

func TestBotSinglePass(t *testing.T) {
	deps := &engine.Dependencies{
		GitHub:  gitHubServer(t, repoRoutes()),
		Jenkins: jenkinsWithJobs(t, map[string]string{"a-tests": "https://github.com/o/a"}),
	}

	out, errOut, code := run(t, deps, "bot",
		"--disable", "autocancel", "--disable", "builder", "--disable", "canceller",
		"--pr-filter=-/pull/3", "--pr-filter=-/pull/4")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Pass completed")
}

func TestBotInvalidInterval(t *testing.T) {
	_, errOut, code := run(t, nil, "bot", "--interval", "soon")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid configuration")
}

func TestJournalCommand(t *testing.T) {
	dir := t.TempDir()
	flagPath := filepath.Join(dir, "flag.db")
	envPath := filepath.Join(dir, "env.db")
	t.Setenv("BUILDHERD_JOURNAL_PATH", envPath)

	ctx := context.Background()
	journal, err := state.Open(ctx, flagPath, nil)
	require.NoError(t, err)
	require.NoError(t, journal.Record(ctx, types.Action{
		PassID: "0123456789abcdef",
		Head:   "o/a#3",
		Job:    "a-tests",
		Kind:   types.ActionTrigger,
		DryRun: true,
	}))
	require.NoError(t, journal.Close())

	out, errOut, code := run(t, nil, "journal", "--journal", flagPath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "o/a#3")
	assert.Contains(t, out, "trigger (dry run)")

	out, errOut, code = run(t, nil, "journal")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "No action recorded", "the environment names a journal not created yet")
}

func TestJournalNotConfigured(t *testing.T) {
	_, errOut, code := run(t, nil, "journal")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, cli.ErrNoJournal.Error())
}
