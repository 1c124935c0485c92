package repository

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/buildherd/buildherd/pkg/github"
	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/types"
)

// SettingsPath is the optional in-repository settings file
const SettingsPath = ".github/buildherd.yml"

// Defaults are the global settings every repository starts from
type Defaults struct {
	CommitMaxWeeks int
}

// Settings is the merged per-pass configuration of one repository
type Settings struct {
	// Branches tracked in addition to pull requests, sorted
	Branches []string

	// Collaborators allowed to leave instructions
	Collaborators []string

	// Jobs keyed by job name
	Jobs map[string]types.JobSpec

	CommitMaxWeeks int
}

// JobNames returns the job spec names in order
func (s *Settings) JobNames() []string {
	names := make([]string, 0, len(s.Jobs))
	for name := range s.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type settingsFile struct {
	Branches       []string                `yaml:"branches"`
	CommitMaxWeeks *int                    `yaml:"commit_max_weeks"`
	Jobs           map[string]*jobSettings `yaml:"jobs"`
}

type jobSettings struct {
	Parameters map[string]string `yaml:"parameters"`
	Branches   []string          `yaml:"branches"`
}

// parseSettingsFile decodes the YAML settings file
func parseSettingsFile(data []byte) (*settingsFile, error) {
	var file settingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return &file, nil
}

// LoadSettings merges defaults, the configured branches, protected branches
// and the settings file into r.Settings. A missing settings file is not an
// error.
func (r *Repository) LoadSettings(ctx context.Context, api SettingsAPI, defaults Defaults, log logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	settings := &Settings{
		CommitMaxWeeks: defaults.CommitMaxWeeks,
		Jobs:           make(map[string]types.JobSpec),
	}

	branches := make(map[string]bool)
	for _, branch := range r.Branches {
		branches[branch] = true
	}

	protected, err := api.ProtectedBranches(ctx, r.Owner, r.Name)
	if err != nil {
		return fmt.Errorf("failed to list protected branches of %s: %w", r, err)
	}
	for _, branch := range protected {
		branches[branch.Name] = true
	}

	collaborators, err := api.Collaborators(ctx, r.Owner, r.Name)
	if err != nil {
		return fmt.Errorf("failed to list collaborators of %s: %w", r, err)
	}
	for _, user := range collaborators {
		settings.Collaborators = append(settings.Collaborators, user.Login)
	}

	var file *settingsFile
	data, err := api.FileContents(ctx, r.Owner, r.Name, SettingsPath, "")
	switch {
	case github.IsNotFound(err):
		log.Debug("No settings file", logger.WithField("path", SettingsPath))
	case err != nil:
		return fmt.Errorf("failed to read settings of %s: %w", r, err)
	default:
		file, err = parseSettingsFile(data)
		if err != nil {
			return fmt.Errorf("%s: %w", r, err)
		}
	}

	if file != nil {
		for _, branch := range file.Branches {
			branches[branch] = true
		}
		if file.CommitMaxWeeks != nil {
			settings.CommitMaxWeeks = *file.CommitMaxWeeks
		}
	}

	for branch := range branches {
		settings.Branches = append(settings.Branches, branch)
	}
	sort.Strings(settings.Branches)

	settings.Jobs = mergeJobSpecs(r, file, log)
	r.Settings = settings
	return nil
}

// mergeJobSpecs builds one spec per Jenkins job of the repository. When the
// settings file lists jobs, only those listed and existing in Jenkins are
// kept, with their parameters and branch restrictions.
func mergeJobSpecs(r *Repository, file *settingsFile, log logger.Logger) map[string]types.JobSpec {
	specs := make(map[string]types.JobSpec)
	if file == nil || len(file.Jobs) == 0 {
		for _, job := range r.Jobs {
			specs[job.Name()] = types.JobSpec{Name: job.Name()}
		}
		return specs
	}

	jobs := r.JobsByName()
	for name, entry := range file.Jobs {
		if _, ok := jobs[name]; !ok {
			log.Warn("Settings name an unknown job", logger.WithField("job", name))
			continue
		}
		spec := types.JobSpec{Name: name}
		if entry != nil {
			spec.Parameters = entry.Parameters
			spec.Branches = entry.Branches
		}
		specs[name] = spec
	}
	return specs
}
