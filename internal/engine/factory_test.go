package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildherd/buildherd/internal/engine"
	"github.com/buildherd/buildherd/pkg/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		CommitMaxWeeks:      4,
		SettingsConcurrency: 2,
		LogLevel:            "info",
	}
}

func TestDependencyFactory_MissingCredentials(t *testing.T) {
	factory := engine.NewDependencyFactory(baseConfig(), nil)

	_, err := factory.CreateDefaults(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingCredentials)

	_, err = factory.CreateWithOverrides(context.Background(), engine.Dependencies{
		GitHub: newGitHub(t, nil),
	})
	assert.ErrorIs(t, err, config.ErrMissingCredentials, "jenkins is still required")
}

func TestDependencyFactory_Defaults(t *testing.T) {
	cfg := baseConfig()
	cfg.GitHubToken = "token"
	cfg.GitHubURL = "https://github.example/api/v3"
	cfg.JenkinsURL = "https://jenkins.example/"
	cfg.JournalPath = filepath.Join(t.TempDir(), "journal.db")

	deps, err := engine.NewDependencyFactory(cfg, nil).CreateDefaults(context.Background())
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.GitHub)
	assert.Equal(t, "https://jenkins.example/", deps.Jenkins.BaseURL())
	assert.NotNil(t, deps.Journal)
	assert.NotNil(t, deps.Notifier)
	assert.NotNil(t, deps.Daemon)
}

func TestDependencyFactory_NoJournal(t *testing.T) {
	journal, err := engine.NewDependencyFactory(baseConfig(), nil).CreateJournal(context.Background())
	require.NoError(t, err)
	assert.Nil(t, journal)
}

func TestDependencyFactory_CreatePoller(t *testing.T) {
	cfg := baseConfig()
	cfg.PollSchedule = "*/10 * * * *"
	deps := &engine.Dependencies{
		GitHub:  newGitHub(t, gitHubRoutes()),
		Jenkins: jenkinsBackend(t),
	}

	poller, err := engine.NewDependencyFactory(cfg, nil).CreatePoller(deps, nil)
	require.NoError(t, err)
	assert.True(t, poller.Continuous())

	cfg.PollSchedule = "sometimes"
	_, err = engine.NewDependencyFactory(cfg, nil).CreatePoller(deps, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestTunablesFrom(t *testing.T) {
	cfg := baseConfig()
	cfg.Repositories = []string{"o/a:main"}
	cfg.PRFilter = []string{"-wip"}

	tunables := engine.TunablesFrom(cfg)
	cfg.Repositories[0] = "changed"

	assert.Equal(t, engine.Tunables{
		Repositories:   []string{"o/a:main"},
		PRFilter:       []string{"-wip"},
		CommitMaxWeeks: 4,
	}, tunables)
}
