package util

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm's default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.Success.Println(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// SetLevel sets the minimum level by name: debug, info, warn or error.
func SetLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug":
		pterm.DefaultLogger.Level = pterm.LogLevelDebug
	case "", "info":
		pterm.DefaultLogger.Level = pterm.LogLevelInfo
	case "warn", "warning":
		pterm.DefaultLogger.Level = pterm.LogLevelWarn
	case "error":
		pterm.DefaultLogger.Level = pterm.LogLevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

// ConnLogger prefixes every line with a connection id.
type ConnLogger struct {
	prefix string
}

// NewConnLogger returns a logger whose lines start with "[%08x]".
func NewConnLogger(id uint32) ConnLogger {
	return ConnLogger{prefix: fmt.Sprintf("[%08x] ", id)}
}

func (l ConnLogger) Debug(format string, args ...interface{}) {
	LogDebug(l.prefix+format, args...)
}

func (l ConnLogger) Info(format string, args ...interface{}) {
	LogInfo(l.prefix+format, args...)
}

func (l ConnLogger) Warning(format string, args ...interface{}) {
	LogWarning(l.prefix+format, args...)
}

func (l ConnLogger) Error(format string, args ...interface{}) {
	LogError(l.prefix+format, args...)
}
