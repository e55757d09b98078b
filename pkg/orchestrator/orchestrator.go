// Package orchestrator drives verification at turn boundaries. It is
// triggered by the host at the end of each interactive turn, decides
// which profiles are due, and runs them sequentially. Successes stay
// quiet; only failures are surfaced back to the host.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/assurance/pkg/audit"
	"github.com/odvcencio/assurance/pkg/config"
	"github.com/odvcencio/assurance/pkg/fingerprint"
	"github.com/odvcencio/assurance/pkg/logging"
	"github.com/odvcencio/assurance/pkg/profile"
	"github.com/odvcencio/assurance/pkg/runstate"
)

// TurnEvent is the host's end-of-turn notification.
type TurnEvent struct {
	SessionID string

	// StopHookActive is set when this turn was itself produced by a
	// previous orchestrator intervention. It breaks the feedback loop.
	StopHookActive bool
}

// Outcome is one profile's result within a turn.
type Outcome struct {
	Profile        string
	Classification runstate.Classification
	EvidenceDir    string
	Err            error
}

// Result summarizes what one turn boundary did.
type Result struct {
	Ran      []Outcome
	Skipped  []string
	Failures []Outcome
}

// FailureSummary renders the failures as one host-facing line per
// profile. Empty when the turn should stay quiet.
func (r Result) FailureSummary() string {
	if len(r.Failures) == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		switch {
		case f.Err != nil:
			lines = append(lines, fmt.Sprintf("%s: verification could not run: %v", f.Profile, f.Err))
		case f.Classification == runstate.ClassToolingError:
			lines = append(lines, fmt.Sprintf("%s: verification tooling is broken, see %s", f.Profile, f.EvidenceDir))
		default:
			lines = append(lines, fmt.Sprintf("%s: verification failed, see %s", f.Profile, f.EvidenceDir))
		}
	}
	return strings.Join(lines, "\n")
}

// ProfileRunner executes one profile and persists its record.
type ProfileRunner interface {
	Run(ctx context.Context, prof profile.Profile, baseBranch, fp string) (*runstate.Record, error)
}

// Orchestrator evaluates turn boundaries.
type Orchestrator struct {
	opts     config.Options
	registry *profile.Registry
	store    *runstate.Store
	runner   ProfileRunner
	diff     func() []string
	logger   *logging.Logger
	trail    *audit.Trail
	clock    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a diagnostics logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithAuditTrail attaches the security event trail.
func WithAuditTrail(trail *audit.Trail) Option {
	return func(o *Orchestrator) { o.trail = trail }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// New creates an Orchestrator. Enable and auto-run flags travel in opts,
// never in ambient state, so two differently configured instances can
// coexist in one process.
func New(opts config.Options, registry *profile.Registry, store *runstate.Store, r ProfileRunner, diff func() []string, options ...Option) *Orchestrator {
	o := &Orchestrator{
		opts:     opts,
		registry: registry,
		store:    store,
		runner:   r,
		diff:     diff,
		clock:    time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// HandleTurnEnd runs the due profiles for one turn boundary.
func (o *Orchestrator) HandleTurnEnd(ctx context.Context, ev TurnEvent) Result {
	var res Result
	if ev.StopHookActive {
		o.logger.Debug(logging.CategoryOrchestrator, "reentry_suppressed",
			"turn was produced by a previous intervention", nil)
		return res
	}
	if !o.opts.Enabled || !o.opts.AutoRun {
		return res
	}

	changed := o.diff()
	fp := fingerprint.Fingerprint(changed)
	due := o.registry.Profiles.Select(changed, false)
	if len(due) == 0 {
		return res
	}

	now := o.clock()
	window := o.opts.DebounceWindow()
	for _, name := range due {
		prof := o.registry.Profiles.Get(name)
		if prof == nil {
			continue
		}

		rec := o.store.Get(name)
		if runstate.IsFresh(rec, fp) && runstate.WithinDebounce(rec, now, window) {
			res.Skipped = append(res.Skipped, name)
			o.logger.Debug(logging.CategoryOrchestrator, "profile_skipped",
				"fresh record inside debounce window",
				map[string]any{"profile": name, "run_id": rec.RunID})
			continue
		}

		newRec, err := o.runner.Run(ctx, *prof, o.opts.BaseBranch, fp)
		out := Outcome{Profile: name, Err: err}
		if newRec != nil {
			out.Classification = newRec.Classification
			out.EvidenceDir = newRec.EvidenceDir
		}
		res.Ran = append(res.Ran, out)
		if err != nil || out.Classification != runstate.ClassPass {
			res.Failures = append(res.Failures, out)
		}

		o.trail.Record(audit.Event{
			SessionID:   ev.SessionID,
			Decision:    "auto-run",
			Profile:     name,
			Fingerprint: fp,
			EvidenceDir: out.EvidenceDir,
			Reason:      string(out.Classification),
		})
	}

	o.logger.Info(logging.CategoryOrchestrator, "turn_handled", "turn boundary processed",
		map[string]any{
			"fingerprint": fp,
			"ran":         len(res.Ran),
			"skipped":     len(res.Skipped),
			"failures":    len(res.Failures),
		})
	return res
}
