package cli

import (
	"github.com/buildherd/buildherd/internal/engine"
)

// Config holds the CLI configuration that does not come from the
// configuration file.
type Config struct {
	Version string

	// Dependencies replace the services built from the configuration.
	// Nil fields are still built.
	Dependencies *engine.Dependencies
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{Version: "dev"}
}

// flagBindings maps flags to configuration keys. Flags only override the
// file and the environment when given.
var flagBindings = map[string]string{
	"verbosity":    "log_level",
	"log-file":     "log_file",
	"debug":        "debug",
	"interval":     "poll_interval",
	"schedule":     "poll_schedule",
	"dry-run":      "dry_run",
	"always-queue": "always_queue",
	"journal":      "journal_path",
	"pid-file":     "pid_file",
	"notify":       "notify",
}

// listFlags are repeatable flags whose values may contain commas, so they
// bypass viper's flag parsing
var listFlags = map[string]string{
	"repository": "repositories",
	"pr-filter":  "pr_filter",
	"disable":    "disabled_extensions",
}
