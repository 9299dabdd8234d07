// File: internal/observability/logger_test.go
package observability

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/regsmoke-cli/internal/config"
)

// memSink collects log output in memory for assertions.
type memSink struct {
	lines []byte
}

func (m *memSink) Write(p []byte) (int, error) {
	m.lines = append(m.lines, p...)
	return len(p), nil
}

func (m *memSink) Sync() error { return nil }

func TestInitialize_ConsoleFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "regsmoke-test",
	}, zapcore.Lock(sink))

	GetLogger().Info("console message")

	out := string(sink.lines)
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "console message")
	assert.Contains(t, out, colorGreen)
	assert.Contains(t, out, "regsmoke-test.")
}

func TestInitialize_JSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "regsmoke-test",
	}, zapcore.Lock(sink))

	GetLogger().Warn("structured message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(sink.lines, &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "structured message", entry["msg"])
}

func TestInitialize_LevelFiltering(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.Lock(sink))

	GetLogger().Info("should be filtered")
	GetLogger().Warn("should appear")

	out := string(sink.lines)
	assert.NotContains(t, out, "should be filtered")
	assert.Contains(t, out, "should appear")
}

func TestInitialize_InvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memSink{}
	Initialize(config.LoggerConfig{Level: "nonsense", Format: "json"}, zapcore.Lock(sink))

	GetLogger().Debug("debug hidden")
	GetLogger().Info("info visible")

	out := string(sink.lines)
	assert.NotContains(t, out, "debug hidden")
	assert.Contains(t, out, "info visible")
}

func TestInitialize_FileSinkIsJSON(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logFile := filepath.Join(t.TempDir(), "run.log")
	sink := &memSink{}
	Initialize(config.LoggerConfig{
		Level:   "info",
		Format:  "console",
		LogFile: logFile,
		MaxSize: 1,
	}, zapcore.Lock(sink))

	GetLogger().Info("file message")
	Sync()

	f, err := os.Open(logFile)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan(), "log file should contain at least one line")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "file message", entry["msg"])
}

func TestGetLogger_FallbackBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
}

func TestInitialize_OnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &memSink{}
	second := &memSink{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.Lock(first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.Lock(second))

	GetLogger().Info("routed to first sink")
	assert.Contains(t, string(first.lines), "routed to first sink")
	assert.Empty(t, second.lines)
}
