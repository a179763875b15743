package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level LogLevel, format LogFormat) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := NewLogger(level, format)
	logger.SetOutput(buf)
	return logger, buf
}

func TestLoggerSkipsMessagesBelowLevel(t *testing.T) {
	logger, buf := newTestLogger(LevelWarn, FormatText)

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	assert.Empty(t, buf.String())

	logger.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestLoggerJSONOutputIncludesFields(t *testing.T) {
	logger, buf := newTestLogger(LevelInfo, FormatJSON)

	logger.WithField("whale", "whale-1").Info("tracking")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tracking", entry.Message)
	assert.Equal(t, "info", entry.Level)
	assert.Equal(t, "whale-1", entry.Fields["whale"])
}

func TestWithFieldDoesNotMutateParentLogger(t *testing.T) {
	logger, buf := newTestLogger(LevelInfo, FormatJSON)

	child := logger.WithField("whale", "whale-1")
	logger.Info("parent message")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Nil(t, entry.Fields["whale"], "parent logger should not inherit child's field")
	assert.NotNil(t, child)
}

func TestWithFieldsMergesMultipleFields(t *testing.T) {
	logger, buf := newTestLogger(LevelInfo, FormatJSON)

	logger.WithFields(map[string]interface{}{"a": 1, "b": "two"}).Info("merged")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, float64(1), entry.Fields["a"])
	assert.Equal(t, "two", entry.Fields["b"])
}

func TestWithErrorAddsErrorField(t *testing.T) {
	logger, buf := newTestLogger(LevelInfo, FormatJSON)

	logger.WithError(errors.New("boom")).Error("failed")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry.Fields["error"])
}

func TestErrorLevelIncludesCaller(t *testing.T) {
	logger, buf := newTestLogger(LevelInfo, FormatJSON)

	logger.Error("something broke")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotEmpty(t, entry.Caller)
}

func TestTextFormatIncludesLevelAndMessage(t *testing.T) {
	logger, buf := newTestLogger(LevelInfo, FormatText)

	logger.Info("plain text")

	assert.True(t, strings.Contains(buf.String(), "info"))
	assert.True(t, strings.Contains(buf.String(), "plain text"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLogLevel("unknown-value"))
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseLogFormat("json"))
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("unknown-value"))
}
