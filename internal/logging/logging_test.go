package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunID(t *testing.T) {
	ctx := NewRun(context.Background())
	_, err := uuid.Parse(RunID(ctx))
	require.NoError(t, err)
	assert.Empty(t, RunID(context.Background()))
}

func TestJSONLoggerCarriesRunID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "debug", Format: "json"})
	require.NoError(t, err)

	ctx := WithRunID(context.Background(), "run-1")
	logger.DebugContext(ctx, "delineated", slog.Int("cells", 9))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "delineated", rec["msg"])
	assert.EqualValues(t, 9, rec["cells"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "warn"})
	require.NoError(t, err)
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsUnknownOptions(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Level: "loud"})
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, Options{Format: "xml"})
	assert.Error(t, err)
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithOutlet(WithRunID(context.Background(), "abc"), "440000,4474000")

	LogWith(ctx, logger).Info("hello")
	assert.Contains(t, buf.String(), "run_id=abc")
	assert.Contains(t, buf.String(), "outlet=440000,4474000")

	buf.Reset()
	LogWith(context.Background(), logger).Info("plain")
	assert.NotContains(t, buf.String(), "run_id")
}
