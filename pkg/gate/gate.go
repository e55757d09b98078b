// Package gate decides whether a proposed tool action may touch the
// repository. It is a pure read-side component: it classifies the
// target, consults persisted verification evidence, and returns a
// verdict. It never runs checks and never writes run state.
package gate

import (
	"path/filepath"
	"strings"

	"github.com/odvcencio/assurance/pkg/audit"
	"github.com/odvcencio/assurance/pkg/fingerprint"
	"github.com/odvcencio/assurance/pkg/logging"
	"github.com/odvcencio/assurance/pkg/profile"
	"github.com/odvcencio/assurance/pkg/runstate"
	"github.com/odvcencio/assurance/pkg/telemetry"
)

// Verdict is the gate's answer for one attempt.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictAsk   Verdict = "ask"
	VerdictDeny  Verdict = "deny"
)

// Tools the gate knows how to judge. Unknown tools pass through.
const (
	ToolEdit  = "Edit"
	ToolWrite = "Write"
	ToolRead  = "Read"
	ToolBash  = "Bash"
)

// Request is one tool attempt presented to the gate.
type Request struct {
	Tool      string
	Path      string
	Command   string
	SessionID string
}

// Decision is the gate's verdict plus the evidence trail behind it.
type Decision struct {
	Verdict  Verdict
	Reason   string
	Category profile.Category
	Profile  string
	Record   *runstate.Record
}

// Gate evaluates requests against the security policy and run state.
type Gate struct {
	registry *profile.Registry
	store    *runstate.Store
	diff     func() []string
	repoRoot string
	logger   *logging.Logger
	trail    *audit.Trail
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger attaches a diagnostics logger.
func WithLogger(logger *logging.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithAuditTrail attaches the security event trail.
func WithAuditTrail(trail *audit.Trail) Option {
	return func(g *Gate) { g.trail = trail }
}

// New creates a Gate. diff reports the current changed-file set relative
// to the base branch; it is called once per evaluation that needs a
// fingerprint.
func New(registry *profile.Registry, store *runstate.Store, repoRoot string, diff func() []string, opts ...Option) *Gate {
	g := &Gate{
		registry: registry,
		store:    store,
		diff:     diff,
		repoRoot: repoRoot,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate returns a verdict for one request. It never returns an error:
// anything the gate cannot judge resolves to a verdict, with the
// fail-safe defaults applied for missing evidence.
func (g *Gate) Evaluate(req Request) Decision {
	var dec Decision
	switch req.Tool {
	case ToolBash:
		dec = g.evaluateCommand(req.Command)
	case ToolEdit, ToolWrite:
		dec = g.evaluatePath(req.Path, false)
	case ToolRead:
		dec = g.evaluatePath(req.Path, true)
	default:
		dec = Decision{Verdict: VerdictAllow, Reason: "tool not gated", Category: profile.CategoryOrdinary}
	}

	label := string(dec.Category)
	if req.Tool == ToolBash {
		label = "command"
	}
	telemetry.CountVerdict(label, string(dec.Verdict))
	g.record(req, dec)
	return dec
}

// evaluatePath implements the per-category state machine. readOnly marks
// tools that cannot modify the target; only the secret category gates
// reads, because secret values leak on read as surely as on write.
func (g *Gate) evaluatePath(rawPath string, readOnly bool) Decision {
	rel, inRepo := g.relativize(rawPath)
	if !inRepo {
		return Decision{Verdict: VerdictAllow, Reason: "path outside repository", Category: profile.CategoryOrdinary}
	}

	category, boundProfile := g.registry.Policy.Classify(rel)
	if category == profile.CategoryOrdinary {
		return Decision{Verdict: VerdictAllow, Reason: "ordinary path", Category: profile.CategoryOrdinary}
	}

	if category == profile.CategorySecret {
		return Decision{
			Verdict:  VerdictDeny,
			Reason:   "secret material is never edit-authorized",
			Category: profile.CategorySecret,
		}
	}
	if readOnly {
		return Decision{Verdict: VerdictAllow, Reason: "read of non-secret path", Category: category}
	}

	dec := Decision{Category: category, Profile: boundProfile}
	fallback := VerdictAsk
	if category == profile.CategoryPolicyFile {
		fallback = VerdictDeny
	}

	if boundProfile == "" {
		dec.Verdict = fallback
		dec.Reason = "no verification profile bound to category"
		return dec
	}

	rec := g.store.Get(boundProfile)
	currentFP := fingerprint.Fingerprint(g.diff())
	switch {
	case rec == nil:
		dec.Verdict = fallback
		dec.Reason = "no verification evidence for profile " + boundProfile
	case !runstate.IsFresh(rec, currentFP):
		dec.Verdict = fallback
		dec.Reason = "verification evidence is stale for profile " + boundProfile
		dec.Record = rec
	case rec.Classification != runstate.ClassPass:
		dec.Verdict = fallback
		dec.Reason = "latest verification of profile " + boundProfile + " did not pass"
		dec.Record = rec
	default:
		dec.Verdict = VerdictAllow
		dec.Reason = "fresh passing evidence from profile " + boundProfile
		dec.Record = rec
	}
	return dec
}

func (g *Gate) evaluateCommand(command string) Decision {
	command = strings.TrimSpace(command)
	if command == "" {
		return Decision{Verdict: VerdictAllow, Reason: "empty command", Category: profile.CategoryOrdinary}
	}

	if reason := profile.MatchBash(command, g.registry.Policy.Bash.Blocked); reason != "" {
		return Decision{Verdict: VerdictDeny, Reason: reason}
	}
	if reason := profile.MatchBash(command, g.registry.Policy.Bash.Confirm); reason != "" {
		return Decision{Verdict: VerdictAsk, Reason: reason}
	}
	return Decision{Verdict: VerdictAllow, Reason: "command not restricted"}
}

// relativize maps an absolute or relative path onto a repo-relative,
// forward-slash path. Paths escaping the repository are not classified.
func (g *Gate) relativize(rawPath string) (string, bool) {
	if rawPath == "" {
		return "", false
	}
	p := rawPath
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(g.repoRoot, p)
		if err != nil {
			return "", false
		}
		p = rel
	}
	p = filepath.ToSlash(filepath.Clean(p))
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}

// record writes the audit event and the gate log line. Both are
// best-effort; the verdict is already final when this runs.
func (g *Gate) record(req Request, dec Decision) {
	ev := audit.Event{
		SessionID: req.SessionID,
		Tool:      req.Tool,
		Decision:  string(dec.Verdict),
		Reason:    dec.Reason,
		Path:      req.Path,
		Command:   req.Command,
		Category:  string(dec.Category),
		Profile:   dec.Profile,
	}
	if dec.Record != nil {
		ev.Fingerprint = dec.Record.Fingerprint
		ev.EvidenceDir = dec.Record.EvidenceDir
	}
	g.trail.Record(ev)

	g.logger.Info(logging.CategoryGate, "verdict", dec.Reason, map[string]any{
		"tool":     req.Tool,
		"path":     req.Path,
		"verdict":  string(dec.Verdict),
		"category": string(dec.Category),
		"profile":  dec.Profile,
	})
}
