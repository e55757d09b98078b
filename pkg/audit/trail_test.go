package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	trail := NewTrail(dir)
	trail.clock = func() time.Time {
		return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	}

	trail.Record(Event{Tool: "Edit", Decision: "deny", Path: "secrets/.env", Category: "secret"})
	trail.Record(Event{Tool: "Bash", Decision: "allow", Command: "go test ./..."})

	f, err := os.Open(filepath.Join(dir, "20260314.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, "deny", events[0].Decision)
	assert.Equal(t, "secrets/.env", events[0].Path)
	assert.NotEmpty(t, events[0].ID)
	assert.Empty(t, events[0].Command)
	assert.Equal(t, "go test ./...", events[1].Command)
	assert.Empty(t, events[1].Path)
}

func TestNilAndEmptyTrailAreNoOps(t *testing.T) {
	var nilTrail *Trail
	nilTrail.Record(Event{Decision: "allow"})

	empty := NewTrail("")
	empty.Record(Event{Decision: "allow"})
}
