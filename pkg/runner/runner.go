// Package runner executes a profile's checks and persists the outcome.
// Every run gets its own evidence directory; the per-profile record slot
// is only replaced after all evidence is on disk, so a gate reader that
// sees a record can always follow it to the full output.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/assurance/pkg/errors"
	"github.com/odvcencio/assurance/pkg/logging"
	"github.com/odvcencio/assurance/pkg/profile"
	"github.com/odvcencio/assurance/pkg/runstate"
	"github.com/odvcencio/assurance/pkg/telemetry"
)

// DefaultCheckTimeout bounds one check command.
const DefaultCheckTimeout = 30 * time.Minute

// CheckResult is the outcome of one check command.
type CheckResult struct {
	Name           string                  `json:"name"`
	Command        string                  `json:"command"`
	Classification runstate.Classification `json:"classification"`
	ExitCode       int                     `json:"exit_code"`
	DurationMS     int64                   `json:"duration_ms"`
	EvidenceFile   string                  `json:"evidence_file"`
	Skipped        bool                    `json:"skipped,omitempty"`
}

// Summary is the run.json document written into the evidence directory.
type Summary struct {
	RunID          string                  `json:"run_id"`
	Profile        string                  `json:"profile"`
	Fingerprint    string                  `json:"fingerprint"`
	BaseBranch     string                  `json:"base_branch"`
	StartedAt      time.Time               `json:"started_at"`
	FinishedAt     time.Time               `json:"finished_at"`
	Classification runstate.Classification `json:"classification"`
	Checks         []CheckResult           `json:"checks"`
}

// Runner executes profiles. Safe for sequential use; the orchestrator
// serializes runs itself.
type Runner struct {
	store        *runstate.Store
	evidenceRoot string
	repoRoot     string
	logger       *logging.Logger
	checkTimeout time.Duration
	clock        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger attaches a diagnostics logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithCheckTimeout overrides the per-check timeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(r *Runner) { r.checkTimeout = d }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) { r.clock = clock }
}

// New creates a Runner that writes evidence under evidenceRoot and runs
// check commands with repoRoot as working directory.
func New(store *runstate.Store, evidenceRoot, repoRoot string, opts ...Option) *Runner {
	r := &Runner{
		store:        store,
		evidenceRoot: evidenceRoot,
		repoRoot:     repoRoot,
		checkTimeout: DefaultCheckTimeout,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every check of prof in order, writes the evidence
// directory, and replaces the profile's record slot as the final step.
// A FAIL check does not stop later checks; a TOOLING_ERROR does, because
// the remaining results would not be trustworthy either way.
//
// The returned record is also returned on FAIL and TOOLING_ERROR; the
// error return is reserved for the runner's own plumbing failures.
func (r *Runner) Run(ctx context.Context, prof profile.Profile, baseBranch, fp string) (*runstate.Record, error) {
	runID := ulid.Make().String()
	evidenceDir := filepath.Join(r.evidenceRoot, prof.Name, runID)
	if err := os.MkdirAll(evidenceDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTooling, "creating evidence directory").
			WithContext("dir", evidenceDir)
	}

	started := r.clock()
	r.logger.Info(logging.CategoryRunner, "run_started", "verification run started",
		map[string]any{"profile": prof.Name, "run_id": runID, "fingerprint": fp})

	overall := runstate.ClassPass
	results := make([]CheckResult, 0, len(prof.Checks))
	for i, check := range prof.Checks {
		if overall == runstate.ClassToolingError {
			results = append(results, CheckResult{
				Name:    check.Name,
				Command: check.Command,
				Skipped: true,
			})
			continue
		}

		res := r.runCheck(ctx, prof.Name, runID, check, evidenceDir, baseBranch)
		results = append(results, res)
		telemetry.CountCheck(string(res.Classification))

		switch res.Classification {
		case runstate.ClassToolingError:
			overall = runstate.ClassToolingError
			r.logger.Error(logging.CategoryRunner, "check_tooling_error",
				"check could not run; skipping the rest",
				map[string]any{"profile": prof.Name, "check": check.Name, "exit_code": res.ExitCode, "remaining": len(prof.Checks) - i - 1})
		case runstate.ClassFail:
			if overall == runstate.ClassPass {
				overall = runstate.ClassFail
			}
		}
	}

	finished := r.clock()
	summary := Summary{
		RunID:          runID,
		Profile:        prof.Name,
		Fingerprint:    fp,
		BaseBranch:     baseBranch,
		StartedAt:      started,
		FinishedAt:     finished,
		Classification: overall,
		Checks:         results,
	}
	if err := writeSummary(evidenceDir, summary); err != nil {
		r.logger.Warn(logging.CategoryRunner, "summary_write_failed",
			"run.json write failed; per-check evidence is still on disk",
			map[string]any{"profile": prof.Name, "error": err.Error()})
	}

	rec := runstate.Record{
		Profile:        prof.Name,
		RunID:          runID,
		Fingerprint:    fp,
		Timestamp:      finished,
		Classification: overall,
		EvidenceDir:    evidenceDir,
		BaseBranch:     baseBranch,
	}
	if err := r.store.Put(rec); err != nil {
		return nil, err
	}

	telemetry.CountRun(prof.Name, string(overall), finished.Sub(started))
	r.logger.Info(logging.CategoryRunner, "run_finished", "verification run finished",
		map[string]any{"profile": prof.Name, "run_id": runID, "classification": string(overall)})
	return &rec, nil
}

func (r *Runner) runCheck(ctx context.Context, profileName, runID string, check profile.CheckSpec, evidenceDir, baseBranch string) CheckResult {
	res := CheckResult{
		Name:         check.Name,
		Command:      check.Command,
		EvidenceFile: check.EvidenceFile(),
	}

	evidence, err := os.Create(filepath.Join(evidenceDir, check.EvidenceFile()))
	if err != nil {
		res.Classification = runstate.ClassToolingError
		res.ExitCode = -1
		return res
	}
	defer evidence.Close()

	checkCtx, cancel := context.WithTimeout(ctx, r.checkTimeout)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, "bash", "-lc", check.Command)
	cmd.Dir = r.repoRoot
	cmd.Stdout = evidence
	cmd.Stderr = evidence
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("ASSURANCE_BASE_BRANCH=%s", baseBranch),
		fmt.Sprintf("ASSURANCE_PROFILE=%s", profileName),
		fmt.Sprintf("ASSURANCE_RUN_ID=%s", runID),
	)

	start := r.clock()
	err = cmd.Run()
	res.DurationMS = r.clock().Sub(start).Milliseconds()

	switch {
	case err == nil:
		res.Classification = runstate.ClassPass
	case checkCtx.Err() != nil:
		// Timeout or cancellation: the check never finished, so its exit
		// status says nothing about the code under test.
		res.Classification = runstate.ClassToolingError
		res.ExitCode = -1
	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			if check.IsToolingExit(res.ExitCode) {
				res.Classification = runstate.ClassToolingError
			} else {
				res.Classification = runstate.ClassFail
			}
		} else {
			res.Classification = runstate.ClassToolingError
			res.ExitCode = -1
		}
	}
	return res
}

func writeSummary(evidenceDir string, summary Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(evidenceDir, "run.json"), data, 0o644)
}
