package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws.log")
	l := NewIsolatedLogger(path)

	l.Debug("WS", "dropped below file level", nil)
	l.Info("WS", "client registered", map[string]interface{}{"session_id": "s1"})
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "client registered", entry["message"])
	assert.Equal(t, "WS", entry["module"])
	assert.Equal(t, "s1", entry["details"].(map[string]interface{})["session_id"])
}

func TestNopLoggerAcceptsNilDetails(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Error("CHAT", "boom", nil)
		l.Warn("CHAT", "warn", map[string]interface{}{"error": "x"})
	})
	assert.NoError(t, l.Sync())
}
