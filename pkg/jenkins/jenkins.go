// Package jenkins talks to the build backend: queue occupancy, jobs and
// builds, over the Jenkins JSON API.
package jenkins

//go:generate mockgen -destination=../mocks/jenkins.go -package=mocks github.com/buildherd/buildherd/pkg/jenkins Backend,Job,Build

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/buildherd/buildherd/pkg/types"
)

// Backend is the subset of Jenkins the engine drives
type Backend interface {
	// BaseURL is the prefix of every build URL this backend owns
	BaseURL() string

	// IsQueueEmpty reports whether the build queue accepts new work
	IsQueueEmpty(ctx context.Context) (bool, error)

	// BuildFromURL resolves a build from its web URL or from the URL of the
	// queue item that will start it
	BuildFromURL(ctx context.Context, url string) (Build, error)

	// Jobs lists every job on the instance
	Jobs(ctx context.Context) ([]Job, error)
}

// Job is a buildable Jenkins job
type Job interface {
	Name() string
	URL() string

	// Build queues a new build with the given parameters. It returns the
	// URL tracking the build, accepted by Backend.BuildFromURL: the queue
	// item Jenkins answered with, or the job's lastBuild when it gave none.
	Build(ctx context.Context, params map[string]string) (string, error)

	// SCMURLs returns the remote URLs the job checks out
	SCMURLs(ctx context.Context) ([]string, error)
}

// Build is one run of a job
type Build interface {
	// URL is the build page once the build started, the queue item before
	URL() string
	Number() int

	// Status returns the live state. A running build is pending.
	Status(ctx context.Context) (types.StatusState, error)

	// Stop aborts the build
	Stop(ctx context.Context) error
}

var (
	// ErrForeignURL is returned for a build URL outside the instance
	ErrForeignURL = errors.New("url does not belong to this jenkins")

	// ErrNotFound is returned when a job or build does not exist
	ErrNotFound = errors.New("not found")
)

// Error is a failed Jenkins API call
type Error struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("jenkins %s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("jenkins %s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call may succeed
func (e *Error) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// ResultState maps a Jenkins build result to a commit status state
func ResultState(building bool, result string) types.StatusState {
	if building {
		return types.StatusPending
	}
	switch strings.ToUpper(result) {
	case "SUCCESS":
		return types.StatusSuccess
	case "FAILURE", "UNSTABLE":
		return types.StatusFailure
	case "ABORTED", "NOT_BUILT":
		return types.StatusError
	default:
		return types.StatusPending
	}
}
