// Package logging provides structured JSONL diagnostics logging for
// assurance. Events are appended to per-category files under the log
// root. A nil or unconfigured Logger is a safe no-op, so hot paths can
// log unconditionally.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the log
type Category string

const (
	CategoryGate         Category = "gate"
	CategoryRunner       Category = "runner"
	CategoryOrchestrator Category = "orchestrator"
	CategoryConfig       Category = "config"
	CategoryStore        Category = "store"
	CategoryServer       Category = "server"
)

// Event represents a structured log event
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Category  Category       `json:"category"`
	EventType string         `json:"type"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Logger writes structured events to one JSONL file per category.
type Logger struct {
	baseDir  string
	mu       sync.Mutex
	files    map[Category]*os.File
	minLevel Level
}

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// NewLogger creates a logger rooted at baseDir. An empty baseDir yields a
// no-op logger.
func NewLogger(baseDir string) (*Logger, error) {
	if baseDir == "" {
		return &Logger{}, nil
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Logger{
		baseDir:  baseDir,
		files:    make(map[Category]*os.File),
		minLevel: LevelInfo,
	}, nil
}

// SetMinLevel sets the minimum log level
func (l *Logger) SetMinLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// Log writes a structured event. Failures are swallowed; diagnostics
// logging must never alter control flow.
func (l *Logger) Log(level Level, category Category, eventType, message string, details map[string]any) {
	if l == nil || l.baseDir == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if levelRank[level] < levelRank[l.minLevel] {
		return
	}

	f, err := l.fileFor(category)
	if err != nil {
		return
	}

	ev := Event{
		Timestamp: time.Now(),
		Level:     level,
		Category:  category,
		EventType: eventType,
		Message:   message,
		Details:   details,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = f.Write(append(data, '\n'))
}

// Debug logs a debug-level event.
func (l *Logger) Debug(category Category, eventType, message string, details map[string]any) {
	l.Log(LevelDebug, category, eventType, message, details)
}

// Info logs an info-level event.
func (l *Logger) Info(category Category, eventType, message string, details map[string]any) {
	l.Log(LevelInfo, category, eventType, message, details)
}

// Warn logs a warn-level event.
func (l *Logger) Warn(category Category, eventType, message string, details map[string]any) {
	l.Log(LevelWarn, category, eventType, message, details)
}

// Error logs an error-level event.
func (l *Logger) Error(category Category, eventType, message string, details map[string]any) {
	l.Log(LevelError, category, eventType, message, details)
}

// Close closes all open log files.
func (l *Logger) Close() error {
	if l == nil || l.baseDir == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = make(map[Category]*os.File)
	return firstErr
}

// fileFor returns the open file for a category, creating it on first use.
// Caller must hold l.mu.
func (l *Logger) fileFor(category Category) (*os.File, error) {
	if f, ok := l.files[category]; ok {
		return f, nil
	}
	f, err := os.OpenFile(
		filepath.Join(l.baseDir, string(category)+".jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0o644,
	)
	if err != nil {
		return nil, err
	}
	l.files[category] = f
	return f, nil
}
