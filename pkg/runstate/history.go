package runstate

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// History is the append-only run log, kept in SQLite alongside the
// record slots. It is a best-effort side channel: readers of the gate
// never consult it, and insert failures never surface past a log line.
type History struct {
	db *sql.DB
}

// OpenHistory opens (and initializes) the history database.
func OpenHistory(dbPath string) (*History, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Single writer, occasional readers; WAL keeps a concurrent status
	// reader from blocking the runner's insert.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &History{db: db}, nil
}

// Append inserts one run row.
func (h *History) Append(rec Record) error {
	_, err := h.db.Exec(
		`INSERT INTO runs (run_id, profile, fingerprint, digest_version, classification, evidence_dir, base_branch, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.Profile,
		rec.Fingerprint,
		rec.DigestVersion,
		string(rec.Classification),
		rec.EvidenceDir,
		rec.BaseBranch,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Recent returns up to limit rows for a profile, newest first.
func (h *History) Recent(profileName string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.Query(
		`SELECT run_id, profile, fingerprint, digest_version, classification, evidence_dir, base_branch, created_at
		 FROM runs WHERE profile = ? ORDER BY id DESC LIMIT ?`,
		profileName, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var class, createdAt string
		if err := rows.Scan(&rec.RunID, &rec.Profile, &rec.Fingerprint, &rec.DigestVersion,
			&class, &rec.EvidenceDir, &rec.BaseBranch, &createdAt); err != nil {
			return nil, err
		}
		rec.Classification = Classification(class)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.Timestamp = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}
