// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/internal/config"
)

// -- Test Helper Functions --

// captureOutput captures stdout for the duration of a test. The returned
// cleanup stops the capture, waits for the pipe to drain into the buffer,
// and restores the original stdout; it must run before the buffer is read.
// It is idempotent, so calling it explicitly alongside a defer is safe.
func captureOutput(t *testing.T) (*bytes.Buffer, func()) {
	t.Helper()
	originalStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = w
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			w.Close()
			<-done
			os.Stdout = originalStdout
		})
	}
	return &buf, cleanup
}

// resetGlobalLogger ensures test isolation; the logger is a global singleton.
func resetGlobalLogger() {
	once = sync.Once{}
	globalLogger.Store(nil)
}

// -- Test Cases --

func TestInitializeLogger(t *testing.T) {

	t.Run("should initialize console logger with colors", func(t *testing.T) {
		resetGlobalLogger()
		buf, cleanup := captureOutput(t)
		defer cleanup()

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "dripper-test",
			Colors: config.ColorConfig{
				Info: "green",
			},
		}
		InitializeLogger(cfg)
		logger := GetLogger()
		logger.Info("This is a test message.")
		Sync()
		cleanup()

		output := buf.String()
		assert.Contains(t, output, "INFO", "Output should contain the log level")
		assert.Contains(t, output, "This is a test message.", "Output should contain the message")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset, "Output should contain the reset color code")
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		resetGlobalLogger()
		buf, cleanup := captureOutput(t)
		defer cleanup()

		cfg := config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}
		InitializeLogger(cfg)
		logger := GetLogger()
		logger.Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()
		cleanup()

		var logEntry map[string]interface{}
		err := json.Unmarshal(buf.Bytes(), &logEntry)
		require.NoError(t, err, "Log output should be valid JSON")

		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should write to a log file if configured", func(t *testing.T) {
		resetGlobalLogger()
		tmpFile, err := os.CreateTemp("", "logger-test-*.log")
		require.NoError(t, err)
		defer os.Remove(tmpFile.Name())

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: tmpFile.Name(),
			MaxSize: 1, // 1 MB
		}
		InitializeLogger(cfg)
		logger := GetLogger()
		logger.Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(tmpFile.Name())
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.", "Log file should contain the message")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		resetGlobalLogger()
		buf, cleanup := captureOutput(t)
		defer cleanup()

		cfg1 := config.LoggerConfig{Level: "info", ServiceName: "First"}
		InitializeLogger(cfg1)
		logger1 := GetLogger()

		cfg2 := config.LoggerConfig{Level: "debug", ServiceName: "Second"}
		InitializeLogger(cfg2)
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test")
		Sync()
		cleanup()

		// The service name should be "First", not "Second".
		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		resetGlobalLogger()
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		resetGlobalLogger()
		cfg := config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"}
		InitializeLogger(cfg)

		logger := GetLogger()
		assert.Equal(t, globalLogger.Load(), logger)
	})
}
