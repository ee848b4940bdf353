package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewJSONIncludesTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New("debug", FormatJSON, &buf)
	require.NoError(t, err)

	ctx := WithTraceID(context.Background(), "trace-123")
	logger.With(slog.String("component", "test")).DebugContext(ctx, "hello", slog.Int("n", 1))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "hello", record["msg"])
	require.Equal(t, "trace-123", record["trace_id"])
	require.Equal(t, "test", record["component"])
}

func TestNewRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New("warn", FormatText, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	require.Empty(t, buf.String())
	logger.Warn("shown")
	require.Contains(t, buf.String(), "msg=shown")
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	t.Parallel()

	_, err := New("loud", FormatText, nil)
	require.Error(t, err)
	_, err = New("info", "xml", nil)
	require.Error(t, err)
}

func TestTraceIDHelpers(t *testing.T) {
	t.Parallel()

	require.Empty(t, TraceID(context.Background()))
	id := NewTraceID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	require.Equal(t, id, TraceID(WithTraceID(context.Background(), id)))
}

func TestDiscardDropsEverything(t *testing.T) {
	t.Parallel()

	logger := Discard()
	require.NotNil(t, logger)
	require.False(t, logger.Enabled(context.Background(), slog.LevelError))
}
