package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record), scanner.Text())
		records = append(records, record)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestNewWritesJSONUnderDir(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(context.Background(), WithDir(dir), WithSessionID("abc"))
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(logger.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(logger.Path()), "interp-"))
	assert.True(t, strings.HasSuffix(logger.Path(), "-abc.log"))

	logger.Logger.Info("interpreter running", "pid", 42)
	require.NoError(t, logger.Close())

	records := readRecords(t, logger.Path())
	require.Len(t, records, 2)
	assert.Equal(t, "logger initialized", records[0]["msg"])
	assert.Equal(t, "interpreter running", records[1]["msg"])
	assert.Equal(t, "abc", records[1]["session_id"])
	assert.EqualValues(t, 42, records[1]["pid"])
}

func TestNewDefaultsToHomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	logger, err := New(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })

	assert.Equal(t, filepath.Join(home, ".interp", "logs"), filepath.Dir(logger.Path()))
}

func TestLevelFiltersRecords(t *testing.T) {
	logger, err := New(context.Background(), WithDir(t.TempDir()), WithLevel("warn"))
	require.NoError(t, err)

	logger.Logger.Info("hidden")
	logger.Logger.Warn("shown")
	require.NoError(t, logger.Close())

	records := readRecords(t, logger.Path())
	require.Len(t, records, 1)
	assert.Equal(t, "shown", records[0]["msg"])
}

func TestWithSessionIDRebuildsFields(t *testing.T) {
	logger, err := New(context.Background(), WithDir(t.TempDir()))
	require.NoError(t, err)

	logger.WithSessionID(" s-1 ").WithTraceID("t-1")
	logger.Logger.Info("tagged")
	require.NoError(t, logger.Close())

	records := readRecords(t, logger.Path())
	last := records[len(records)-1]
	assert.Equal(t, "s-1", last["session_id"])
	assert.Equal(t, "t-1", last["trace_id"])
	_, hasSession := records[0]["session_id"]
	assert.False(t, hasSession)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, log.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, log.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, log.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, log.InfoLevel, ParseLevel(""))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *RuntimeLogger
	assert.NoError(t, logger.Close())
	assert.Empty(t, logger.Path())
	assert.Nil(t, logger.WithSessionID("x"))
}
