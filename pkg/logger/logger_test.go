package logger_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pcontext "github.com/buildherd/buildherd/pkg/context"
	"github.com/buildherd/buildherd/pkg/logger"
)

func capture(level string) (logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.CreateLoggerWithOutput(level, &buf), &buf
}

func TestCreateLogger(t *testing.T) {
	require.NotNil(t, logger.CreateLogger("", "info"))
}

func TestCreateLogger_File(t *testing.T) {
	path := t.TempDir() + "/bot.log"
	log := logger.CreateLogger(path, "info")
	log.Info("written to the file")
	assert.FileExists(t, path)
}

func TestScopePrefix(t *testing.T) {
	log, buf := capture("info")
	log.WithScope("o/a#3").Info("triggering")
	assert.Regexp(t, `^\[\d\d:\d\d:\d\d\] INFO: \[o/a#3\] triggering\n$`, buf.String())
}

func TestFieldOrder(t *testing.T) {
	log, buf := capture("info")
	log.Info("build started",
		logger.WithField("zeta", 1),
		logger.WithField("alpha", "a"),
		logger.WithField("pass", "pass_1"),
		logger.WithError(errors.New("boom")),
	)
	assert.Contains(t, buf.String(), "{pass=pass_1, alpha=a, error=boom, zeta=1}")
}

func TestLevelFiltering(t *testing.T) {
	log, buf := capture("warn")
	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("queue is full")
	log.Error("pass failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN: queue is full")
	assert.Contains(t, out, "ERROR: pass failed")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	log, buf := capture("chatty")
	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNilOutputDiscards(t *testing.T) {
	log := logger.CreateLoggerWithOutput("debug", nil)
	assert.NotPanics(t, func() { log.Info("nobody listens") })
}

func TestWithContext(t *testing.T) {
	base, buf := capture("info")

	ctx := pcontext.WithPassID(context.Background(), "pass_1")
	ctx = pcontext.WithOperation(ctx, "pass")
	ctx = pcontext.WithHead(ctx, "o/a#12")
	ctx = pcontext.WithStartTime(ctx, time.Now().Add(-time.Second))

	logger.WithContext(ctx, base).Info("processing", logger.WithField("job", "a-tests"))

	out := buf.String()
	assert.Contains(t, out, "[o/a#12] processing")
	assert.Contains(t, out, "{pass=pass_1, operation=pass, duration_ms=")
	assert.Contains(t, out, "job=a-tests")
}

func TestWithContext_Untraced(t *testing.T) {
	base, _ := capture("info")
	assert.Same(t, base, logger.WithContext(context.Background(), base))
}
