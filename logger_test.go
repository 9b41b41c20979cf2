package asyncmqtt

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogLevel(t *testing.T) {
	t.Run("string representation", func(t *testing.T) {
		assert.Equal(t, "DEBUG", LogLevelDebug.String())
		assert.Equal(t, "INFO", LogLevelInfo.String())
		assert.Equal(t, "WARN", LogLevelWarn.String())
		assert.Equal(t, "ERROR", LogLevelError.String())
		assert.Equal(t, "NONE", LogLevelNone.String())
		assert.Equal(t, "UNKNOWN", LogLevel(99).String())
	})

	t.Run("level ordering", func(t *testing.T) {
		assert.True(t, LogLevelDebug < LogLevelInfo)
		assert.True(t, LogLevelInfo < LogLevelWarn)
		assert.True(t, LogLevelWarn < LogLevelError)
		assert.True(t, LogLevelError < LogLevelNone)
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", LogLevelDebug},
		{"DEBUG", LogLevelDebug},
		{" info ", LogLevelInfo},
		{"warn", LogLevelWarn},
		{"Warning", LogLevelWarn},
		{"error", LogLevelError},
		{"none", LogLevelNone},
		{"off", LogLevelNone},
		{"", LogLevelInfo},
		{"verbose", LogLevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.input))
		})
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()

	t.Run("all methods are no-ops", func(_ *testing.T) {
		logger.Debug("test", nil)
		logger.Info("test", nil)
		logger.Warn("test", nil)
		logger.Error("test", nil)
	})

	t.Run("with fields returns same logger", func(t *testing.T) {
		newLogger := logger.WithFields(LogFields{"key": "value"})
		assert.Equal(t, logger, newLogger)
	})

	t.Run("level operations", func(t *testing.T) {
		assert.Equal(t, LogLevelNone, logger.Level())

		logger.SetLevel(LogLevelDebug)
		assert.Equal(t, LogLevelDebug, logger.Level())
	})
}

func TestLogrusLogger(t *testing.T) {
	t.Run("debug level logs all", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogrusLogger(nil, buf, LogLevelDebug)

		logger.Debug("debug message", nil)
		logger.Info("info message", nil)
		logger.Warn("warn message", nil)
		logger.Error("error message", nil)

		output := buf.String()
		assert.Contains(t, output, `level=debug msg="debug message"`)
		assert.Contains(t, output, `level=info msg="info message"`)
		assert.Contains(t, output, `level=warning msg="warn message"`)
		assert.Contains(t, output, `level=error msg="error message"`)
	})

	t.Run("info level skips debug", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogrusLogger(nil, buf, LogLevelInfo)

		logger.Debug("debug message", nil)
		logger.Info("info message", nil)

		output := buf.String()
		assert.NotContains(t, output, "debug message")
		assert.Contains(t, output, "info message")
	})

	t.Run("none level logs nothing", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogrusLogger(nil, buf, LogLevelNone)

		logger.Error("error message", nil)

		assert.Empty(t, buf.String())
	})

	t.Run("fields", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogrusLogger(nil, buf, LogLevelInfo)

		logger.Info("connected", LogFields{LogFieldClientID: "dev1", LogFieldQoS: 1})

		output := buf.String()
		assert.Contains(t, output, "client_id=dev1")
		assert.Contains(t, output, "qos=1")
	})

	t.Run("derived logger shares level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogrusLogger(nil, buf, LogLevelInfo)
		child := logger.WithFields(LogFields{LogFieldAddress: "broker"})

		child.Debug("hidden", nil)
		assert.Empty(t, buf.String())

		logger.SetLevel(LogLevelDebug)
		assert.Equal(t, LogLevelDebug, child.Level())

		child.Debug("shown", nil)
		assert.Contains(t, buf.String(), "address=broker")
		assert.Contains(t, buf.String(), "msg=shown")
	})

	t.Run("existing logrus logger", func(t *testing.T) {
		buf := &bytes.Buffer{}
		base := logrus.New()
		base.SetOutput(buf)
		base.SetFormatter(&logrus.JSONFormatter{})

		logger := NewLogrusLogger(base, nil, LogLevelWarn)
		logger.Info("skipped", nil)
		logger.Warn("kept", LogFields{LogFieldTopic: "a/b"})

		output := buf.String()
		assert.NotContains(t, output, "skipped")
		assert.Contains(t, output, `"msg":"kept"`)
		assert.Contains(t, output, `"topic":"a/b"`)
	})
}
