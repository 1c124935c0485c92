package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/buildherd/buildherd/pkg/types"
	"github.com/buildherd/buildherd/pkg/utils"
)

// ErrNoJournal is returned by the journal command when none is configured
var ErrNoJournal = errors.New("no journal configured, set journal_path or --journal")

func (c *CLI) newJournalCmd() *cobra.Command {
	var (
		limit int
		head  string
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the actions taken by the bot",
		Long:  `Display the most recent triggers, skips and cancellations recorded in the journal, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal := c.overrides().Journal
			if journal == nil {
				if c.settings.JournalPath == "" {
					return ErrNoJournal
				}
				if !utils.FileExists(c.settings.JournalPath) {
					c.printInfo("No action recorded")
					return nil
				}
				opened, err := c.factory().CreateJournal(cmd.Context())
				if err != nil {
					return err
				}
				defer opened.Close()
				journal = opened
			}

			actions, err := journal.Recent(cmd.Context(), limit, head)
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				c.printInfo("No action recorded")
				return nil
			}

			w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tPASS\tHEAD\tJOB\tACTION\tDETAIL")
			for _, action := range actions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					action.Time.Local().Format(time.DateTime),
					shortPass(action.PassID),
					action.Head,
					action.Job,
					actionLabel(action),
					action.Detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of actions to show")
	cmd.Flags().StringVar(&head, "head", "", "only show heads containing this text")
	cmd.Flags().String("journal", "", "sqlite journal file")
	return cmd
}

func shortPass(id string) string {
	id = strings.TrimPrefix(id, "pass_")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func actionLabel(action types.Action) string {
	label := string(action.Kind)
	if action.DryRun {
		label += " (dry run)"
	}
	switch action.Kind {
	case types.ActionTrigger:
		return color.GreenString(label)
	case types.ActionCancel, types.ActionFailed, types.ActionLost:
		return color.RedString(label)
	default:
		return color.YellowString(label)
	}
}
