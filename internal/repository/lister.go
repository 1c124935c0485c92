package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildherd/buildherd/pkg/jenkins"
	"github.com/buildherd/buildherd/pkg/logger"
)

// Discover lists the repositories to manage: those named by Jenkins job SCM
// remotes plus the configured `owner/name[:branch,...]` entries. The result
// is deduplicated and sorted. Jobs whose configuration cannot be read are
// logged and skipped.
func Discover(ctx context.Context, backend jenkins.Backend, specs []string, log logger.Logger) ([]*Repository, error) {
	if log == nil {
		log = logger.Nop()
	}
	byName := make(map[string]*Repository)
	get := func(repo *Repository) *Repository {
		if existing, ok := byName[repo.String()]; ok {
			return existing
		}
		byName[repo.String()] = repo
		return repo
	}

	for _, spec := range specs {
		parsed, err := ParseSpec(spec)
		if err != nil {
			return nil, err
		}
		repo := get(parsed)
		if repo != parsed {
			repo.Branches = append(repo.Branches, parsed.Branches...)
		}
	}

	if backend != nil {
		jobs, err := backend.Jobs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list jenkins jobs: %w", err)
		}
		for _, job := range jobs {
			remotes, err := job.SCMURLs(ctx)
			if err != nil {
				log.Warn("Failed to read job remotes",
					logger.WithField("job", job.Name()),
					logger.WithError(err))
				continue
			}
			seen := make(map[string]bool)
			for _, remote := range remotes {
				parsed, err := FromRemote(remote)
				if errors.Is(err, ErrNotGitHub) {
					continue
				}
				if err != nil {
					log.Debug("Ignoring remote", logger.WithField("remote", remote), logger.WithError(err))
					continue
				}
				if seen[parsed.String()] {
					continue
				}
				seen[parsed.String()] = true
				repo := get(parsed)
				repo.Jobs = append(repo.Jobs, job)
			}
		}
	}

	repos := make([]*Repository, 0, len(byName))
	for _, repo := range byName {
		repos = append(repos, repo)
	}
	Sort(repos)
	return repos, nil
}
