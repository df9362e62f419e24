package utils

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured log fields.
type Fields = logrus.Fields

type LoggerHandler struct {
	logger *logrus.Logger
}

func NewLoggerHandler(level string) *LoggerHandler {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		ForceColors:     shouldUseColor(),
		DisableColors:   !shouldUseColor(),
	})
	logger.SetLevel(parseLogLevel(level))
	return &LoggerHandler{logger: logger}
}

func parseLogLevel(level string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "INFO":
		return logrus.InfoLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func shouldUseColor() bool {
	if strings.EqualFold(os.Getenv("NO_COLOR"), "1") || strings.EqualFold(os.Getenv("NO_COLOR"), "true") {
		return false
	}
	if strings.EqualFold(os.Getenv("LOG_COLOR"), "0") || strings.EqualFold(os.Getenv("LOG_COLOR"), "false") {
		return false
	}
	return true
}

func (l *LoggerHandler) SetLevel(level string) {
	l.logger.SetLevel(parseLogLevel(level))
}

func (l *LoggerHandler) SetUseColor(useColor bool) {
	l.logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		ForceColors:     useColor,
		DisableColors:   !useColor,
	})
}

func (l *LoggerHandler) entry() *logrus.Entry {
	return l.logger.WithField("source", callerFileName())
}

func (l *LoggerHandler) Debugf(format string, args ...interface{}) {
	l.entry().Debugf(format, args...)
}

func (l *LoggerHandler) Infof(format string, args ...interface{}) {
	l.entry().Infof(format, args...)
}

func (l *LoggerHandler) Warnf(format string, args ...interface{}) {
	l.entry().Warnf(format, args...)
}

func (l *LoggerHandler) Errorf(format string, args ...interface{}) {
	l.entry().Errorf(format, args...)
}

func (l *LoggerHandler) Fatalf(format string, args ...interface{}) {
	l.entry().Fatalf(format, args...)
}

func (l *LoggerHandler) WithFields(fields Fields) *logrus.Entry {
	return l.entry().WithFields(fields)
}

// callerFileName returns the base name of the first file outside this one.
func callerFileName() string {
	const thisFile = "logger_handler.go"

	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return "unknown"
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		base := filepath.Base(frame.File)
		if base != thisFile {
			return strings.TrimSuffix(base, filepath.Ext(base))
		}
		if !more {
			break
		}
	}

	return "unknown"
}

var defaultLogger = NewLoggerHandler(os.Getenv("LOG_LEVEL"))

func SetLogLevel(level string) {
	defaultLogger.SetLevel(level)
}

func SetLogColor(useColor bool) {
	defaultLogger.SetUseColor(useColor)
}

func Debugf(format string, args ...interface{}) {
	defaultLogger.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	defaultLogger.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	defaultLogger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	defaultLogger.Errorf(format, args...)
}

// Fatalf logs and exits the process.
func Fatalf(format string, args ...interface{}) {
	defaultLogger.Fatalf(format, args...)
}

func WithFields(fields Fields) *logrus.Entry {
	return defaultLogger.WithFields(fields)
}
