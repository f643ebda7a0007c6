// Package logging wraps logrus with the engine's log levels and the
// structured fields used across backup, restore and verification jobs.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows detailed operational information
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows all debug information
	LogLevelDebug LogLevel = "debug"
)

// Logger provides structured logging capabilities
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
}

// Config holds logger configuration
type Config struct {
	Level   LogLevel
	Output  io.Writer
	Format  string // "text" or "json"
	LogFile string
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	if config.Output != nil {
		logger.SetOutput(config.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	switch config.Level {
	case LogLevelQuiet:
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelVerbose:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}
		if config.Output == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, file))
		} else {
			logger.SetOutput(io.MultiWriter(config.Output, file))
		}
	}

	return &Logger{logger: logger, level: config.Level}, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	logger, _ := NewLogger(Config{Level: LogLevelNormal, Format: "text"})
	return logger
}

// WithFields returns an entry with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns an entry with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// LogJobTransition logs a backup job state change
func (l *Logger) LogJobTransition(jobID, kind, from, to string) {
	l.logger.WithFields(logrus.Fields{
		"operation": "job_transition",
		"job_id":    jobID,
		"kind":      kind,
		"from":      from,
		"to":        to,
	}).Info("Job state changed")
}

// LogCommandExecution logs the result of a spawned command. The command line
// is logged verbatim by the caller only after credential redaction.
func (l *Logger) LogCommandExecution(command string, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "command_execution",
		"command":   command,
		"duration":  duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Command failed")
	} else {
		l.logger.WithFields(fields).Debug("Command completed")
	}
}

// LogTransfer logs a storage backend upload or download
func (l *Logger) LogTransfer(direction, backend, key string, size int64, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "transfer",
		"direction": direction,
		"backend":   backend,
		"key":       key,
		"size":      size,
		"duration":  duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Transfer failed")
	} else {
		l.logger.WithFields(fields).Info("Transfer completed")
	}
}

// LogOperationStart logs the start of an operation and returns a function
// that logs its completion with the elapsed duration.
func (l *Logger) LogOperationStart(operation string, fields map[string]interface{}) func(error) {
	startTime := time.Now()

	logFields := logrus.Fields{"operation": operation}
	for k, v := range fields {
		logFields[k] = v
	}
	l.logger.WithFields(logFields).Debug("Operation started")

	return func(err error) {
		logFields["duration"] = time.Since(startTime).String()
		if err != nil {
			logFields["error"] = err.Error()
			l.logger.WithFields(logFields).Error("Operation failed")
		} else {
			l.logger.WithFields(logFields).Info("Operation completed")
		}
	}
}

// Standard logging methods

func (l *Logger) Info(msg string)                            { l.logger.Info(msg) }
func (l *Logger) Infof(format string, args ...interface{})   { l.logger.Infof(format, args...) }
func (l *Logger) Debug(msg string)                           { l.logger.Debug(msg) }
func (l *Logger) Debugf(format string, args ...interface{})  { l.logger.Debugf(format, args...) }
func (l *Logger) Warn(msg string)                            { l.logger.Warn(msg) }
func (l *Logger) Warnf(format string, args ...interface{})   { l.logger.Warnf(format, args...) }
func (l *Logger) Error(msg string)                           { l.logger.Error(msg) }
func (l *Logger) Errorf(format string, args ...interface{})  { l.logger.Errorf(format, args...) }

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	switch level {
	case LogLevelQuiet:
		l.logger.SetLevel(logrus.ErrorLevel)
	case LogLevelVerbose:
		l.logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		l.logger.SetLevel(logrus.TraceLevel)
	default:
		l.logger.SetLevel(logrus.InfoLevel)
	}
}
