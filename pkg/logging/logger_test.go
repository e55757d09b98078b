package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoggerWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.Info(CategoryGate, "verdict", "allowed edit", map[string]any{
		"path":    "kamiwaza/services/authz/guard.py",
		"verdict": "ALLOW",
	})
	logger.Info(CategoryGate, "verdict", "denied edit", nil)

	f, err := os.Open(filepath.Join(dir, "gate.jsonl"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("parse line: %v", err)
		}
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].EventType != "verdict" || events[0].Category != CategoryGate {
		t.Errorf("unexpected event: %+v", events[0])
	}
	if events[0].Details["verdict"] != "ALLOW" {
		t.Errorf("details not preserved: %+v", events[0].Details)
	}
}

func TestLoggerMinLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	logger.Debug(CategoryRunner, "check_start", "suppressed by default level", nil)

	if _, err := os.Stat(filepath.Join(dir, "runner.jsonl")); !os.IsNotExist(err) {
		// The file may exist but must be empty; fileFor only opens after
		// the level check, so it should not exist at all.
		t.Errorf("debug event should be filtered, stat err = %v", err)
	}

	logger.SetMinLevel(LevelDebug)
	logger.Debug(CategoryRunner, "check_start", "now visible", nil)

	data, err := os.ReadFile(filepath.Join(dir, "runner.jsonl"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected debug event after lowering min level")
	}
}

func TestNilAndNopLoggerSafe(t *testing.T) {
	var nilLogger *Logger
	nilLogger.Info(CategoryGate, "x", "must not panic", nil)

	nop, err := NewLogger("")
	if err != nil {
		t.Fatalf("NewLogger(\"\"): %v", err)
	}
	nop.Error(CategoryStore, "x", "must not panic either", nil)
	if err := nop.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
