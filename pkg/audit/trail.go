// Package audit records every gate decision and orchestrator action as a
// JSONL security event. The trail is write-only from the engine's point
// of view: failures to append never block, and never change a verdict.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is one security event. Empty fields are omitted so Bash events
// carry no path and Edit events carry no command.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	SessionID   string         `json:"session_id,omitempty"`
	Tool        string         `json:"tool,omitempty"`
	Decision    string         `json:"decision"`
	Reason      string         `json:"reason,omitempty"`
	Path        string         `json:"path,omitempty"`
	Command     string         `json:"command,omitempty"`
	Category    string         `json:"category,omitempty"`
	Profile     string         `json:"profile,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	EvidenceDir string         `json:"evidence_dir,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Trail appends events to a day-stamped JSONL file under its root.
type Trail struct {
	root  string
	mu    sync.Mutex
	clock func() time.Time
}

// NewTrail creates a trail rooted at dir. An empty root yields a no-op
// trail.
func NewTrail(root string) *Trail {
	return &Trail{root: root, clock: time.Now}
}

// Record appends one event. The event ID and timestamp are filled in if
// unset. All failures are swallowed.
func (t *Trail) Record(ev Event) {
	if t == nil || t.root == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}

	if err := os.MkdirAll(t.root, 0o755); err != nil {
		return
	}
	path := filepath.Join(t.root, now.Format("20060102")+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = f.Write(append(data, '\n'))
}
