package asyncmqtt

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	// LogLevelDebug is the debug log level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the info log level.
	LogLevelInfo
	// LogLevelWarn is the warn log level.
	LogLevelWarn
	// LogLevelError is the error log level.
	LogLevelError
	// LogLevelNone disables all logging.
	LogLevelNone
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// LogFields represents key-value pairs for structured logging.
type LogFields map[string]any

// Logger defines the interface for logging.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, fields LogFields)

	// Info logs an info message.
	Info(msg string, fields LogFields)

	// Warn logs a warning message.
	Warn(msg string, fields LogFields)

	// Error logs an error message.
	Error(msg string, fields LogFields)

	// WithFields returns a new logger with the given fields added.
	WithFields(fields LogFields) Logger

	// Level returns the current log level.
	Level() LogLevel

	// SetLevel sets the log level.
	SetLevel(level LogLevel)
}

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct {
	level LogLevel
}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{level: LogLevelNone}
}

// Debug does nothing.
func (n *NoOpLogger) Debug(_ string, _ LogFields) {}

// Info does nothing.
func (n *NoOpLogger) Info(_ string, _ LogFields) {}

// Warn does nothing.
func (n *NoOpLogger) Warn(_ string, _ LogFields) {}

// Error does nothing.
func (n *NoOpLogger) Error(_ string, _ LogFields) {}

// WithFields returns the same logger.
func (n *NoOpLogger) WithFields(_ LogFields) Logger {
	return n
}

// Level returns the log level.
func (n *NoOpLogger) Level() LogLevel {
	return n.level
}

// SetLevel sets the log level.
func (n *NoOpLogger) SetLevel(level LogLevel) {
	n.level = level
}

// ParseLogLevel converts a level name such as "debug" or "WARN".
// Unknown names map to LogLevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	case "NONE", "OFF":
		return LogLevelNone
	default:
		return LogLevelInfo
	}
}

// LogrusLogger adapts a logrus logger to the Logger interface.
type LogrusLogger struct {
	entry *logrus.Entry
	level *LogLevel
}

// NewLogrusLogger wraps base, or a new text logger on w when base is nil.
func NewLogrusLogger(base *logrus.Logger, w io.Writer, level LogLevel) *LogrusLogger {
	if base == nil {
		base = logrus.New()
		if w != nil {
			base.SetOutput(w)
		}
	}

	// Filtering happens here so that level changes apply to derived loggers.
	base.SetLevel(logrus.DebugLevel)

	return &LogrusLogger{
		entry: logrus.NewEntry(base),
		level: &level,
	}
}

// Debug logs a debug message.
func (l *LogrusLogger) Debug(msg string, fields LogFields) {
	if *l.level <= LogLevelDebug {
		l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
	}
}

// Info logs an info message.
func (l *LogrusLogger) Info(msg string, fields LogFields) {
	if *l.level <= LogLevelInfo {
		l.entry.WithFields(logrus.Fields(fields)).Info(msg)
	}
}

// Warn logs a warning message.
func (l *LogrusLogger) Warn(msg string, fields LogFields) {
	if *l.level <= LogLevelWarn {
		l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
	}
}

// Error logs an error message.
func (l *LogrusLogger) Error(msg string, fields LogFields) {
	if *l.level <= LogLevelError {
		l.entry.WithFields(logrus.Fields(fields)).Error(msg)
	}
}

// WithFields returns a logger that adds fields to every entry. It shares
// the level with its parent.
func (l *LogrusLogger) WithFields(fields LogFields) Logger {
	return &LogrusLogger{
		entry: l.entry.WithFields(logrus.Fields(fields)),
		level: l.level,
	}
}

// Level returns the current log level.
func (l *LogrusLogger) Level() LogLevel {
	return *l.level
}

// SetLevel sets the log level.
func (l *LogrusLogger) SetLevel(level LogLevel) {
	*l.level = level
}

// Standard field names for MQTT logging.
const (
	// LogFieldClientID is the client ID field.
	LogFieldClientID = "client_id"

	// LogFieldTopic is the topic field.
	LogFieldTopic = "topic"

	// LogFieldPacketID is the packet ID field.
	LogFieldPacketID = "packet_id"

	// LogFieldPacketType is the packet type field.
	LogFieldPacketType = "packet_type"

	// LogFieldQoS is the QoS field.
	LogFieldQoS = "qos"

	// LogFieldReasonCode is the reason code field.
	LogFieldReasonCode = "reason_code"

	// LogFieldError is the error field.
	LogFieldError = "error"

	// LogFieldAddress is the broker address field.
	LogFieldAddress = "address"

	// LogFieldState is the connection state field.
	LogFieldState = "state"

	// LogFieldBytes is the bytes field.
	LogFieldBytes = "bytes"
)
