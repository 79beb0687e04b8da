// internal/utils/logger/logger_test.go
package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "sender.log")

	l, err := New(&Config{LogFile: path, MaxSize: 1, Console: &console})
	require.NoError(t, err)

	l.WithBatch("b-1", "parallel", 3).Info("batch started")
	l.WithTransaction("5sig").Debug("hidden below info")
	_ = l.Sync()

	assert.Contains(t, console.String(), "batch started")
	assert.NotContains(t, console.String(), "hidden below info")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "batch started", entry["msg"])
	assert.Equal(t, "b-1", entry["batch_id"])
	assert.Equal(t, "parallel", entry["policy"])
	assert.EqualValues(t, 3, entry["batch_size"])
	assert.Contains(t, entry, "timestamp")
}

func TestLoggerConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	l, err := New(&Config{Console: &console, Development: true})
	require.NoError(t, err)

	end := l.TrackPerformance("send")
	end()

	out := console.String()
	assert.Contains(t, out, "Starting operation")
	assert.Contains(t, out, "Operation completed")
	assert.Contains(t, out, "correlation_id")
}
