package retry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildherd/buildherd/pkg/retry"
)

type serverError struct{ code int }

func (e serverError) Error() string   { return "server error" }
func (e serverError) Temporary() bool { return e.code >= 500 }

// timeoutError mimics the error http.Client returns when its Timeout elapses
type timeoutError struct{}

func (timeoutError) Error() string   { return "context deadline exceeded (Client.Timeout exceeded while awaiting headers)" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
func (timeoutError) Unwrap() error   { return context.DeadlineExceeded }

func recordSleep(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	var slept []time.Duration
	policy := retry.Policy{Interval: time.Second, Sleep: recordSleep(&slept)}

	calls := 0
	result, err := retry.Do(context.Background(), policy, "fetch", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", serverError{code: 502}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, slept)
}

func TestDo_PropagatesPermanentErrors(t *testing.T) {
	var slept []time.Duration
	policy := retry.Policy{Sleep: recordSleep(&slept)}

	calls := 0
	_, err := retry.Do(context.Background(), policy, "fetch", func(ctx context.Context) (int, error) {
		calls++
		return 0, serverError{code: 404}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDo_StopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.Policy{
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	err := retry.Run(ctx, policy, "fetch", func(ctx context.Context) error {
		return serverError{code: 503}
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", serverError{code: 500}, true},
		{"client error", serverError{code: 400}, false},
		{"plain error", errors.New("bad input"), false},
		{"cancelled", context.Canceled, false},
		{"cancelled request", &url.Error{Op: "Get", URL: "https://api.github.com/user", Err: context.Canceled}, false},
		{"client timeout", &url.Error{Op: "Get", URL: "https://api.github.com/user", Err: timeoutError{}}, true},
		{"wrapped server error", errors.Join(errors.New("call failed"), serverError{code: 503}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.IsTransient(tt.err))
		})
	}
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient_HTTPClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := &http.Client{Timeout: 20 * time.Millisecond}
	_, err := client.Get(server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, retry.IsTransient(err), "a slow reply must be retried: %v", err)
}

func TestDo_RetriesClientTimeouts(t *testing.T) {
	var slept []time.Duration
	policy := retry.Policy{Interval: time.Second, Sleep: recordSleep(&slept)}

	calls := 0
	err := retry.Run(context.Background(), policy, "GET /user", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &url.Error{Op: "Get", URL: "https://api.github.com/user", Err: timeoutError{}}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, slept, 1)
}

func TestDo_StopsWhenCallerIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	policy := retry.Policy{Sleep: func(context.Context, time.Duration) error {
		t.Fatal("no retry once the caller is done")
		return nil
	}}
	err := retry.Run(ctx, policy, "GET /user", func(ctx context.Context) error {
		calls++
		return &url.Error{Op: "Get", URL: "https://api.github.com/user", Err: timeoutError{}}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
