// Package log implements a basic leveled logging service. Logs are written
// to a log file and, unless disabled, mirrored to the console.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type LogLevel int

// The level of visibility of the log output.
// ERROR is the lowest level, VERBOSE is the highest and it increases in the
// order that it is written.
const (
	ERROR LogLevel = iota
	WARN
	INFO
	DEBUG
	VERBOSE
)

// LevelFromString parses a log level name as it appears in the profile.
// Unknown names default to INFO.
func LevelFromString(s string) LogLevel {
	switch s {
	case "error":
		return ERROR
	case "warn":
		return WARN
	case "info":
		return INFO
	case "debug":
		return DEBUG
	case "verbose":
		return VERBOSE
	}
	return INFO
}

// Logger is exposed to the user and all logging is done through it.
// It handles its internal errors, so the user doesn't have to catch any.
type Logger struct {
	mu      sync.Mutex
	level   LogLevel
	logFile *os.File
	writer  io.Writer
}

// NewLogger creates a fresh Logger writing to the file at filePath and to
// stdout. Passing filePath as a blank string makes the file output go to
// os.DevNull.
func NewLogger(level LogLevel, filePath string) *Logger {
	if filePath == "" {
		filePath = os.DevNull
	}
	logFile, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Printf("Couldn't create log file: %s\n", err)
		os.Exit(1)
	}
	return &Logger{
		level:   level,
		logFile: logFile,
		writer:  io.MultiWriter(logFile, os.Stdout),
	}
}

// NewDiscardLogger creates a Logger that throws everything away. Useful for
// tests and for callers that embed the library without any log sink.
func NewDiscardLogger() *Logger {
	return &Logger{level: ERROR, writer: io.Discard}
}

// SetLevel sets the log visibility level of the Logger instance.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Error prints out the error message passed to the sinks.
func (l *Logger) Error(message string, args ...any) {
	l.write(ERROR, "ERROR", message, args...)
}

// Warn prints out the warning message passed to the sinks.
func (l *Logger) Warn(message string, args ...any) {
	l.write(WARN, "WARN", message, args...)
}

// Info prints out the information passed to the sinks.
func (l *Logger) Info(message string, args ...any) {
	l.write(INFO, "INFO", message, args...)
}

// Debug prints out the debug message passed to the sinks.
func (l *Logger) Debug(message string, args ...any) {
	l.write(DEBUG, "DEBUG", message, args...)
}

// Verbose prints out the message passed to the sinks.
func (l *Logger) Verbose(message string, args ...any) {
	l.write(VERBOSE, "VERBOSE", message, args...)
}

// Close closes the log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		_ = l.logFile.Close()
		l.logFile = nil
	}
}

func (l *Logger) write(level LogLevel, name string, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level < level || l.writer == nil {
		return
	}
	line := fmt.Sprintf(
		"%s: [%s] - %s\n",
		time.Now().Format("2006-01-02 15:04:05"),
		name,
		fmt.Sprintf(message, args...),
	)
	if _, err := l.writer.Write([]byte(line)); err != nil {
		fmt.Printf("Failed to write logs: %s\n", err)
	}
}
