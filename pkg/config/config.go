// Package config loads the bot configuration from a file, the environment
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the bot
const EnvPrefix = "BUILDHERD"

// DefaultConfigName is searched in the working directory when no file is
// given
const DefaultConfigName = "buildherd"

var (
	// ErrInvalidConfig wraps every validation failure
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingCredentials is returned when a command needs a service
	// that is not configured
	ErrMissingCredentials = errors.New("missing credentials")
)

// knownExtensions are the pipeline stages that may be disabled
var knownExtensions = map[string]bool{
	"autocancel": true,
	"builder":    true,
	"canceller":  true,
}

// Config is the full bot configuration
type Config struct {
	GitHubToken string `mapstructure:"github_token"`
	GitHubURL   string `mapstructure:"github_url"`

	JenkinsURL   string `mapstructure:"jenkins_url"`
	JenkinsUser  string `mapstructure:"jenkins_user"`
	JenkinsToken string `mapstructure:"jenkins_token"`

	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollSchedule string        `mapstructure:"poll_schedule"`

	AlwaysQueue bool `mapstructure:"always_queue"`
	DryRun      bool `mapstructure:"dry_run"`
	Debug       bool `mapstructure:"debug"`

	RateLimitThreshold int     `mapstructure:"rate_limit_threshold"`
	APIRate            float64 `mapstructure:"api_rate"`

	CommitMaxWeeks int      `mapstructure:"commit_max_weeks"`
	PRFilter       []string `mapstructure:"pr_filter"`
	Repositories   []string `mapstructure:"repositories"`

	QueueMax   int           `mapstructure:"queue_max"`
	QueueGrace time.Duration `mapstructure:"queue_grace"`

	RetryInterval       time.Duration `mapstructure:"retry_interval"`
	SettingsConcurrency int           `mapstructure:"settings_concurrency"`
	DisabledExtensions  []string      `mapstructure:"disabled_extensions"`

	JournalPath string `mapstructure:"journal_path"`
	PIDFile     string `mapstructure:"pid_file"`
	Notify      bool   `mapstructure:"notify"`

	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`
}

// SetDefaults registers the default of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("github_token", "")
	v.SetDefault("github_url", "https://api.github.com")
	v.SetDefault("jenkins_url", "")
	v.SetDefault("jenkins_user", "")
	v.SetDefault("jenkins_token", "")
	v.SetDefault("poll_interval", "0")
	v.SetDefault("poll_schedule", "")
	v.SetDefault("always_queue", false)
	v.SetDefault("dry_run", false)
	v.SetDefault("debug", false)
	v.SetDefault("rate_limit_threshold", 250)
	v.SetDefault("api_rate", 10.0)
	v.SetDefault("commit_max_weeks", 4)
	v.SetDefault("pr_filter", []string{})
	v.SetDefault("repositories", []string{})
	v.SetDefault("queue_max", 0)
	v.SetDefault("queue_grace", "5s")
	v.SetDefault("retry_interval", "15s")
	v.SetDefault("settings_concurrency", 4)
	v.SetDefault("disabled_extensions", []string{})
	v.SetDefault("journal_path", "")
	v.SetDefault("pid_file", "")
	v.SetDefault("notify", false)
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
}

// NewViper returns a viper instance with defaults and environment binding.
// path names the config file; empty searches buildherd.{yaml,json} in the
// working directory.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigName)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and decodes v. An explicitly named
// file must exist.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode turns the current viper state into a validated Config
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		fieldsToSliceHook(),
	)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.PRFilter = compact(cfg.PRFilter)
	cfg.Repositories = compact(cfg.Repositories)
	cfg.DisabledExtensions = compact(cfg.DisabledExtensions)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges, stage names and the cron expression
func (c *Config) Validate() error {
	var problems []string
	if c.PollInterval < 0 {
		problems = append(problems, "poll_interval must not be negative")
	}
	if c.PollSchedule != "" {
		if _, err := cron.ParseStandard(c.PollSchedule); err != nil {
			problems = append(problems, fmt.Sprintf("poll_schedule: %v", err))
		}
	}
	if c.APIRate < 0 {
		problems = append(problems, "api_rate must not be negative")
	}
	if c.RateLimitThreshold < 0 {
		problems = append(problems, "rate_limit_threshold must not be negative")
	}
	if c.CommitMaxWeeks < 0 {
		problems = append(problems, "commit_max_weeks must not be negative")
	}
	if c.QueueMax < 0 {
		problems = append(problems, "queue_max must not be negative")
	}
	if c.QueueGrace < 0 || c.RetryInterval < 0 {
		problems = append(problems, "queue_grace and retry_interval must not be negative")
	}
	if c.SettingsConcurrency < 1 {
		problems = append(problems, "settings_concurrency must be at least 1")
	}
	for _, name := range c.DisabledExtensions {
		if !knownExtensions[name] {
			problems = append(problems, fmt.Sprintf("unknown extension %q in disabled_extensions", name))
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RequireGitHub fails when no GitHub token is configured
func (c *Config) RequireGitHub() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("%w: github_token is not set", ErrMissingCredentials)
	}
	return nil
}

// RequireJenkins fails when no Jenkins URL is configured
func (c *Config) RequireJenkins() error {
	if c.JenkinsURL == "" {
		return fmt.Errorf("%w: jenkins_url is not set", ErrMissingCredentials)
	}
	return nil
}

// Continuous reports whether the bot loops instead of running one pass
func (c *Config) Continuous() bool {
	return c.PollInterval > 0 || c.PollSchedule != ""
}

// Schedule parses the cron expression, nil when none is set
func (c *Config) Schedule() (cron.Schedule, error) {
	if c.PollSchedule == "" {
		return nil, nil
	}
	return cron.ParseStandard(c.PollSchedule)
}

// secondsToDurationHook reads bare numbers as seconds
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return time.Duration(n * float64(time.Second)), nil
			}
		}
		return data, nil
	}
}

// fieldsToSliceHook splits strings on whitespace. Repository entries
// carry commas of their own.
func fieldsToSliceHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
			return data, nil
		}
		return strings.Fields(data.(string)), nil
	}
}

func compact(values []string) []string {
	out := values[:0]
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
