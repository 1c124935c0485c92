package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildherd/buildherd/pkg/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := config.Load(config.NewViper(""))
	require.NoError(t, err)

	assert.Equal(t, "https://api.github.com", cfg.GitHubURL)
	assert.Equal(t, time.Duration(0), cfg.PollInterval)
	assert.False(t, cfg.Continuous())
	assert.Equal(t, 250, cfg.RateLimitThreshold)
	assert.Equal(t, 10.0, cfg.APIRate)
	assert.Equal(t, 4, cfg.CommitMaxWeeks)
	assert.Equal(t, 5*time.Second, cfg.QueueGrace)
	assert.Equal(t, 15*time.Second, cfg.RetryInterval)
	assert.Equal(t, 4, cfg.SettingsConcurrency)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Repositories)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildherd.yaml")
	writeFile(t, path, `
github_token: secret
jenkins_url: https://jenkins.example/
poll_interval: 30
queue_grace: 2s
repositories:
  - owner/repo:main,release
  - owner/other
pr_filter: ["-wip", "owner/repo"]
disabled_extensions: [canceller]
`)

	cfg, err := config.Load(config.NewViper(path))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.GitHubToken)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.True(t, cfg.Continuous())
	assert.Equal(t, 2*time.Second, cfg.QueueGrace)
	assert.Equal(t, []string{"owner/repo:main,release", "owner/other"}, cfg.Repositories)
	assert.Equal(t, []string{"-wip", "owner/repo"}, cfg.PRFilter)
	assert.Equal(t, []string{"canceller"}, cfg.DisabledExtensions)
	assert.NoError(t, cfg.RequireGitHub())
	assert.NoError(t, cfg.RequireJenkins())
}

func TestLoad_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildherd.json")
	writeFile(t, path, `{"poll_interval": "1m", "always_queue": true}`)

	cfg, err := config.Load(config.NewViper(path))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.True(t, cfg.AlwaysQueue)
}

func TestLoad_Environment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BUILDHERD_GITHUB_TOKEN", "from-env")
	t.Setenv("BUILDHERD_REPOSITORIES", "owner/a:main,dev owner/b")
	t.Setenv("BUILDHERD_POLL_SCHEDULE", "*/5 * * * *")

	cfg, err := config.Load(config.NewViper(""))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.GitHubToken)
	assert.Equal(t, []string{"owner/a:main,dev", "owner/b"}, cfg.Repositories)
	assert.True(t, cfg.Continuous())

	schedule, err := cfg.Schedule()
	require.NoError(t, err)
	from := time.Date(2026, 1, 1, 10, 1, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC), schedule.Next(from))
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(config.NewViper(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		return config.Config{SettingsConcurrency: 1, LogLevel: "info"}
	}

	cases := map[string]func(*config.Config){
		"bad cron":          func(c *config.Config) { c.PollSchedule = "every minute" },
		"negative interval": func(c *config.Config) { c.PollInterval = -time.Second },
		"no concurrency":    func(c *config.Config) { c.SettingsConcurrency = 0 },
		"bad level":         func(c *config.Config) { c.LogLevel = "loud" },
		"negative weeks":    func(c *config.Config) { c.CommitMaxWeeks = -1 },
		"unknown stage":     func(c *config.Config) { c.DisabledExtensions = []string{"deployer"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())
	cfg.DisabledExtensions = []string{"autocancel", "canceller"}
	assert.NoError(t, cfg.Validate())
	assert.ErrorIs(t, cfg.RequireGitHub(), config.ErrMissingCredentials)
	assert.ErrorIs(t, cfg.RequireJenkins(), config.ErrMissingCredentials)
}

func TestReloadManager_TriggerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildherd.yaml")
	writeFile(t, path, "commit_max_weeks: 2\n")
	initial, err := config.Load(config.NewViper(path))
	require.NoError(t, err)

	rm := config.NewReloadManager(path, initial, nil)
	var (
		mu     sync.Mutex
		events []error
	)
	rm.AddCallback(func(cfg *config.Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, err)
	})

	writeFile(t, path, "commit_max_weeks: 8\n")
	rm.TriggerReload()
	assert.Equal(t, 8, rm.Current().CommitMaxWeeks)

	writeFile(t, path, "settings_concurrency: 0\n")
	rm.TriggerReload()
	assert.Equal(t, 8, rm.Current().CommitMaxWeeks, "an invalid file keeps the last good configuration")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.NoError(t, events[0])
	assert.Error(t, events[1])
}

func TestReloadManager_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildherd.yaml")
	writeFile(t, path, "queue_max: 1\n")
	initial, err := config.Load(config.NewViper(path))
	require.NoError(t, err)

	rm := config.NewReloadManager(path, initial, nil)
	rm.SetDebouncePeriod(10 * time.Millisecond)
	require.NoError(t, rm.StartWatching())
	defer rm.StopWatching()
	assert.True(t, rm.IsWatching())

	// modification times may have a coarse resolution
	time.Sleep(20 * time.Millisecond)
	writeFile(t, path, "queue_max: 3\n")
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		return rm.Current().QueueMax == 3
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, rm.StopWatching())
	assert.False(t, rm.IsWatching())
}

func TestHotChanges(t *testing.T) {
	previous := &config.Config{Repositories: []string{"o/a"}, CommitMaxWeeks: 4}
	next := &config.Config{Repositories: []string{"o/a", "o/b"}, PRFilter: []string{"-wip"}, CommitMaxWeeks: 4}

	assert.Equal(t, []string{"repositories", "pr_filter"}, config.HotChanges(previous, next))
	assert.Empty(t, config.HotChanges(previous, previous))
	assert.Nil(t, config.HotChanges(nil, next))
}
