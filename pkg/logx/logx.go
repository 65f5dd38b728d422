// Package logx provides structured logging with per-component loggers and an
// in-memory buffer of recent entries.
package logx

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Logger writes level-prefixed log lines tagged with a component ID.
type Logger struct {
	id     string
	logger *log.Logger
}

// Level identifies the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is a structured record of a log line, kept in the in-memory buffer.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ringBuffer stores the most recent log entries.
type ringBuffer struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
}

//nolint:gochecknoglobals // Shared buffer feeds the recent-log view
var (
	buffer = &ringBuffer{
		entries: make([]Entry, 0),
		maxSize: 1000, // Keep last 1000 entries
	}

	debugEnabled = os.Getenv("DEBUG") == "1" || os.Getenv("DEBUG") == "true"
)

// NewLogger creates a logger for the given component ID.
func NewLogger(id string) *Logger {
	return &Logger{
		id:     id,
		logger: log.New(os.Stderr, "", 0),
	}
}

// Debug logs a debug message when debug logging is enabled via DEBUG=1.
func (l *Logger) Debug(format string, args ...any) {
	if !debugEnabled {
		return
	}
	l.write(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.write(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...any) {
	l.write(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.write(LevelError, format, args...)
}

func (l *Logger) write(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().UTC().Format(time.RFC3339)

	l.logger.Printf("%s [%s] %s: %s", ts, level, l.id, msg)

	buffer.add(Entry{
		Timestamp: ts,
		Component: l.id,
		Level:     string(level),
		Message:   msg,
	})
}

func (b *ringBuffer) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, e)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// RecentEntries returns a copy of the most recent log entries, newest last.
func RecentEntries(limit int) []Entry {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()

	entries := buffer.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]Entry{}, entries...)
}
