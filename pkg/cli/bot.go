package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildherd/buildherd/internal/engine"
	"github.com/buildherd/buildherd/pkg/logger"
)

func (c *CLI) newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Poll repositories and drive their builds",
		Long: `Run one pass over every head of every managed repository, or keep
polling when an interval or a schedule is set. SIGINT and SIGTERM stop the
bot after the current call.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBot(cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("interval", "", "poll continuously, waiting this long between passes (e.g. 30s, 5m, or seconds)")
	flags.String("schedule", "", "poll continuously on a cron schedule (e.g. \"*/5 * * * *\")")
	flags.Bool("dry-run", false, "log decisions without triggering or stopping builds")
	flags.Bool("always-queue", false, "trigger builds whatever the queue state")
	flags.String("journal", "", "record actions in this sqlite file")
	flags.String("pid-file", "", "refuse to start when another bot owns this PID file")
	flags.Bool("notify", false, "desktop notifications on queue changes and failed passes")
	flags.StringArray("pr-filter", nil, "pull request URL pattern, prefix with - to exclude (repeatable)")
	flags.StringArray("disable", nil, "pipeline stage to skip: autocancel, builder or canceller (repeatable)")
	return cmd
}

func (c *CLI) runBot(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := c.factory().CreateWithOverrides(ctx, c.overrides())
	if err != nil {
		return err
	}

	bot, err := engine.NewBot(c.settings, c.configUsed, c.logger, deps)
	if err != nil {
		deps.Close()
		return err
	}
	defer func() {
		if err := bot.Cleanup(); err != nil {
			c.logger.Warn("Cleanup failed", logger.WithError(err))
		}
	}()

	if err := bot.StartWithContext(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	switch {
	case ctx.Err() != nil:
		c.printInfo("Stopped")
	case !bot.Poller().Continuous():
		c.printSuccess("Pass completed")
	}
	return nil
}
