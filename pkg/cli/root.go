// Package cli provides the command-line interface of buildherd
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/buildherd/buildherd/internal/engine"
	"github.com/buildherd/buildherd/pkg/config"
	"github.com/buildherd/buildherd/pkg/logger"
)

// CLI holds the command tree and what the commands share
type CLI struct {
	config     *Config
	configFile string
	rootCmd    *cobra.Command
	logger     logger.Logger
	output     io.Writer
	errorOut   io.Writer

	// loaded by the persistent pre-run hook
	settings   *config.Config
	configUsed string
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}

	cli := &CLI{
		config:   cfg,
		output:   os.Stdout,
		errorOut: os.Stderr,
		logger:   logger.Nop(),
	}

	cli.setupCommands()
	return cli
}

// NewCLIWithOutput creates a CLI with custom output writers (for testing)
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	cli := NewCLI(cfg)
	cli.output = output
	cli.errorOut = errorOut
	cli.rootCmd.SetOut(output)
	cli.rootCmd.SetErr(errorOut)
	return cli
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

// Main runs the CLI and returns the process exit code. An error exits 1,
// after a goroutine dump in debug mode.
func (c *CLI) Main(ctx context.Context, args []string) int {
	err := c.ExecuteContext(ctx, args)
	if err == nil {
		return 0
	}

	c.logger.Error("Unhandled error", logger.WithError(err))
	c.printError(err.Error())
	if c.settings != nil && c.settings.Debug {
		if dump := pprof.Lookup("goroutine"); dump != nil {
			_ = dump.WriteTo(c.errorOut, 2)
		}
	}
	return 1
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "buildherd",
		Short: "Drive Jenkins builds from GitHub branches and pull requests",
		Long: `buildherd polls the GitHub repositories built by a Jenkins instance,
triggers the jobs a head still needs, reports their progress as commit
statuses and cancels the builds of superseded commits.`,

		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initializeConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("buildherd v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newBotCmd())
	c.rootCmd.AddCommand(c.newListJobsCmd())
	c.rootCmd.AddCommand(c.newListRepositoriesCmd())
	c.rootCmd.AddCommand(c.newListBranchesCmd())
	c.rootCmd.AddCommand(c.newListPRCmd())
	c.rootCmd.AddCommand(c.newJournalCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.configFile, "config", "", "config file (default: ./buildherd.yaml or ./buildherd.json)")
	flags.StringP("verbosity", "v", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this file")
	flags.Bool("debug", false, "dump goroutines on unhandled errors")
	flags.StringArray("repository", nil, "repository to manage, owner/name[:branch,...] (repeatable)")
}

// initializeConfig loads the configuration: defaults, then the file, then
// BUILDHERD_* variables, then flags.
func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	v := config.NewViper(c.configFile)

	bind := func(flags *pflag.FlagSet) error {
		for name, key := range flagBindings {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return err
				}
			}
		}
		for name, key := range listFlags {
			if flags.Changed(name) {
				values, err := flags.GetStringArray(name)
				if err != nil {
					return err
				}
				v.Set(key, values)
			}
		}
		return nil
	}
	if err := bind(cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	c.settings = cfg
	c.configUsed = v.ConfigFileUsed()
	c.logger = c.createLogger(cfg)

	if c.configUsed != "" {
		c.logger.Debug("Using config file", logger.WithField("file", c.configUsed))
	}
	return nil
}

func (c *CLI) createLogger(cfg *config.Config) logger.Logger {
	if c.errorOut == os.Stderr {
		return logger.CreateLogger(cfg.LogFile, cfg.LogLevel)
	}
	return logger.CreateLoggerWithOutput(cfg.LogLevel, c.errorOut)
}

// factory builds services from the loaded configuration
func (c *CLI) factory() *engine.DependencyFactory {
	return engine.NewDependencyFactory(c.settings, c.logger)
}

// overrides returns the injected dependencies, possibly none
func (c *CLI) overrides() engine.Dependencies {
	if c.config.Dependencies == nil {
		return engine.Dependencies{}
	}
	return *c.config.Dependencies
}

// Helper methods for structured output

func (c *CLI) printSuccess(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.GreenString("[buildherd]"), message)
}

func (c *CLI) printError(message string) {
	fmt.Fprintf(c.errorOut, "%s %s\n", color.RedString("[buildherd]"), message)
}

func (c *CLI) printInfo(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.CyanString("[buildherd]"), message)
}
