package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternFormatter(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithWriter(&Config{Level: "debug", Pattern: "[%level] %msg %field%n"}, &buf)
	require.NoError(t, err)

	l.WithFields(map[string]interface{}{"proto": 1, "dst": "10.0.0.1"}).Debug("sent")

	assert.Equal(t, "[debug] sent dst=10.0.0.1,proto=1\n", buf.String())
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithWriter(&Config{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	l.WithError(errors.New("boom")).Warn("link write failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "link write failed", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithWriter(&Config{Level: "info"}, &buf)
	require.NoError(t, err)

	l.Debug("hidden")
	l.Trace("hidden")
	assert.Empty(t, buf.String())
	assert.False(t, l.IsDebugEnabled())
	assert.False(t, l.IsTraceEnabled())
	assert.True(t, l.IsInfoEnabled())
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(&Config{Level: "info", Format: "xml"})
	assert.Error(t, err)

	_, err = New(&Config{Level: "info", File: FileConfig{Enabled: true}})
	assert.Error(t, err)
}

func TestInitWithFileOutput(t *testing.T) {
	prev := GetLogger()
	defer SetLogger(prev)

	path := filepath.Join(t.TempDir(), "hoststack.log")
	cfg := DefaultConfig()
	cfg.File = FileConfig{Enabled: true, Path: path, MaxSizeMB: 1}

	require.NoError(t, Init(cfg))
	GetLogger().Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}

func TestMultiWriterContinuesAfterError(t *testing.T) {
	var a, b bytes.Buffer
	w := NewMultiWriter().Add(&a).Add(failingWriter{}).Add(&b)

	n, err := w.Write([]byte("x"))

	assert.Equal(t, 1, n)
	assert.Error(t, err)
	assert.Equal(t, "x", a.String())
	assert.Equal(t, "x", b.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }
