// Package runstate persists the most recent verification outcome per
// profile. One JSON slot per profile, last-write-wins, written with a
// temp-then-rename discipline so a reader never observes a partial
// record. The verification runner is the sole writer; the gate and the
// orchestrator only read.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/assurance/pkg/errors"
	"github.com/odvcencio/assurance/pkg/fingerprint"
	"github.com/odvcencio/assurance/pkg/logging"
)

// Classification is the overall outcome of one verification run.
type Classification string

const (
	ClassPass         Classification = "PASS"
	ClassFail         Classification = "FAIL"
	ClassToolingError Classification = "TOOLING_ERROR"
)

// ExitCode maps a classification onto the CLI exit code contract.
func (c Classification) ExitCode() int {
	switch c {
	case ClassPass:
		return 0
	case ClassFail:
		return 1
	default:
		return 2
	}
}

// Record is the persisted outcome of the most recent run of a profile.
type Record struct {
	Profile        string         `json:"profile"`
	RunID          string         `json:"run_id"`
	Fingerprint    string         `json:"fingerprint"`
	DigestVersion  int            `json:"digest_version"`
	Timestamp      time.Time      `json:"timestamp"`
	Classification Classification `json:"classification"`
	EvidenceDir    string         `json:"evidence_dir"`
	BaseBranch     string         `json:"base_branch,omitempty"`
}

// Store holds one record slot per profile under a state directory.
type Store struct {
	dir     string
	logger  *logging.Logger
	history *History
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a diagnostics logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithHistory attaches the best-effort append-only run history.
func WithHistory(h *History) Option {
	return func(s *Store) { s.history = h }
}

// NewStore creates the state directory if needed.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStateWrite, "creating state directory").
			WithContext("dir", dir)
	}
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the record for a profile, or nil when absent. A record
// that cannot be parsed, or that was written under a different digest
// version, reads as absent: the gate must fail safe, not fail loud.
func (s *Store) Get(profileName string) *Record {
	data, err := os.ReadFile(s.slotPath(profileName))
	if err != nil {
		return nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn(logging.CategoryStore, "record_unreadable",
			"treating malformed run record as absent",
			map[string]any{"profile": profileName, "error": err.Error()})
		return nil
	}
	if rec.DigestVersion != fingerprint.DigestVersion {
		s.logger.Info(logging.CategoryStore, "digest_version_mismatch",
			"treating run record from older digest scheme as absent",
			map[string]any{"profile": profileName, "record_version": rec.DigestVersion})
		return nil
	}
	return &rec
}

// Put atomically replaces the record slot for rec.Profile, then appends
// to the run history. The history append is best-effort and never
// surfaces.
func (s *Store) Put(rec Record) error {
	if rec.Profile == "" {
		return errors.New(errors.ErrCodeInvalidInput, "record has no profile name")
	}
	rec.DigestVersion = fingerprint.DigestVersion

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStateWrite, "encoding run record")
	}

	slot := s.slotPath(rec.Profile)
	tmp, err := os.CreateTemp(s.dir, "."+rec.Profile+".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStateWrite, "creating temp record").
			WithContext("dir", s.dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeStateWrite, "writing temp record")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStateWrite, "closing temp record")
	}
	if err := os.Rename(tmpName, slot); err != nil {
		return errors.Wrap(err, errors.ErrCodeStateWrite, "replacing record slot").
			WithContext("slot", slot)
	}

	if s.history != nil {
		if err := s.history.Append(rec); err != nil {
			s.logger.Warn(logging.CategoryStore, "history_append_failed",
				"run history insert failed; slot write already durable",
				map[string]any{"profile": rec.Profile, "error": err.Error()})
		}
	}
	return nil
}

// IsFresh reports whether a record matches the current fingerprint. This
// is the gate's entire freshness check: age never weakens evidence, only
// a changed fingerprint does.
func IsFresh(rec *Record, currentFingerprint string) bool {
	return rec != nil && rec.Fingerprint == currentFingerprint
}

// WithinDebounce reports whether the record was produced recently enough
// that the orchestrator should skip an automatic re-run. Only the
// orchestrator consults this; the gate never does.
func WithinDebounce(rec *Record, now time.Time, window time.Duration) bool {
	return rec != nil && now.Sub(rec.Timestamp) <= window
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) slotPath(profileName string) string {
	// Profile names come from validated config, but never trust them as
	// path components.
	safe := strings.ReplaceAll(profileName, string(os.PathSeparator), "_")
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", safe))
}
