package repository

import "errors"

var (
	// ErrInvalidRepository is returned for a malformed repository reference
	ErrInvalidRepository = errors.New("invalid repository")

	// ErrNotGitHub is returned for a remote hosted elsewhere
	ErrNotGitHub = errors.New("not a github remote")

	// ErrInvalidSettings is returned when the settings file does not parse
	ErrInvalidSettings = errors.New("invalid settings file")
)
