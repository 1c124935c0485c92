package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "buildherd v%s (%s, %s/%s)\n",
				c.config.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
