package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/buildherd/buildherd/internal/engine"
	"github.com/buildherd/buildherd/internal/repository"
	"github.com/buildherd/buildherd/pkg/jenkins"
	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/retry"
	"github.com/buildherd/buildherd/pkg/utils"
)

func (c *CLI) newListJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-jobs",
		Short: "List managed Jenkins jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := c.discover(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "REPOSITORY\tJOB\tURL")
			for _, repo := range repos {
				for _, job := range repo.Jobs {
					fmt.Fprintf(w, "%s\t%s\t%s\n", repo, job.Name(), job.URL())
				}
			}
			return w.Flush()
		},
	}
}

func (c *CLI) newListRepositoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-repositories",
		Short: "List GitHub repositories built by this Jenkins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := c.discover(cmd.Context())
			if err != nil {
				return err
			}
			for _, repo := range repos {
				fmt.Fprintln(c.output, repo)
			}
			return nil
		},
	}
}

func (c *CLI) newListBranchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-branches",
		Short: "List branches to build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.listHeads(cmd.Context(), func(repo *repository.Repository, api engine.GitHubAPI, opts repository.StreamOptions) repository.HeadStream {
				return repository.NewBranchStream(repo, api, opts)
			})
		},
	}
}

func (c *CLI) newListPRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-pr",
		Short: "List polled pull requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.listHeads(cmd.Context(), func(repo *repository.Repository, api engine.GitHubAPI, opts repository.StreamOptions) repository.HeadStream {
				return repository.NewPullStream(repo, api, opts)
			})
		},
	}
	cmd.Flags().StringArray("pr-filter", nil, "pull request URL pattern, prefix with - to exclude (repeatable)")
	return cmd
}

// jenkins returns the injected backend or one built from the configuration
func (c *CLI) jenkins() (jenkins.Backend, error) {
	if backend := c.overrides().Jenkins; backend != nil {
		return backend, nil
	}
	return c.factory().CreateJenkins()
}

// discover lists the managed repositories without reading GitHub
func (c *CLI) discover(ctx context.Context) ([]*repository.Repository, error) {
	backend, err := c.jenkins()
	if err != nil {
		return nil, err
	}
	policy := c.factory().RetryPolicy()
	return retry.Do(ctx, policy, "discovery", func(ctx context.Context) ([]*repository.Repository, error) {
		return repository.Discover(ctx, backend, c.settings.Repositories, c.logger)
	})
}

type streamOpener func(repo *repository.Repository, api engine.GitHubAPI, opts repository.StreamOptions) repository.HeadStream

// listHeads prints the heads a pass would consider, repository by
// repository
func (c *CLI) listHeads(ctx context.Context, open streamOpener) error {
	factory := c.factory()
	deps := c.overrides()
	if deps.GitHub == nil {
		client, err := factory.CreateGitHub()
		if err != nil {
			return err
		}
		deps.GitHub = client
	}
	if deps.Jenkins == nil {
		backend, err := factory.CreateJenkins()
		if err != nil {
			return err
		}
		deps.Jenkins = backend
	}

	user, err := retry.Do(ctx, factory.RetryPolicy(), "whoami", deps.GitHub.CurrentUser)
	if err != nil {
		return fmt.Errorf("failed to identify the bot: %w", err)
	}
	c.logger.Info("Running as", logger.WithField("login", user.Login))

	poller, err := factory.CreatePoller(&deps, nil)
	if err != nil {
		return err
	}
	repos, err := poller.Repositories(ctx)
	if errors.Is(err, engine.ErrNoRepositories) {
		c.printInfo("No repository to manage")
		return nil
	}
	if err != nil {
		return err
	}

	opts := repository.StreamOptions{
		Retry:  factory.RetryPolicy(),
		Filter: utils.NewFilter(c.settings.PRFilter),
		Logger: c.logger,
	}
	for _, repo := range repos {
		c.logger.Info("Working on repository", logger.WithField("repository", repo.String()))
		if err := printStream(ctx, c.output, open(repo, deps.GitHub, opts)); err != nil {
			return err
		}
	}
	return nil
}

func printStream(ctx context.Context, out io.Writer, stream repository.HeadStream) error {
	defer stream.Close()
	for {
		head, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, head)
	}
}
