// Package config carries the runtime options for assurance. Options are
// an explicit value threaded into constructors rather than ambient global
// state, so two independently configured gates can coexist in one test.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/assurance/pkg/paths"
)

const (
	EnvEnabled    = "ASSURANCE_ENABLED"
	EnvAutoRun    = "ASSURANCE_AUTORUN"
	EnvBaseBranch = "ASSURANCE_BASE_BRANCH"
	EnvDebounce   = "ASSURANCE_DEBOUNCE_S"
)

// Defaults. Enforcement and auto-run are kill switches that default off:
// wiring the hooks globally must not gate unrelated repositories.
const (
	DefaultBaseBranch      = "origin/develop"
	DefaultDebounceSeconds = 300
)

// Options is the full runtime configuration for the gate, runner, and
// turn-boundary orchestrator.
type Options struct {
	// Enabled is the global kill switch. When false the gate allows
	// everything and the orchestrator does nothing.
	Enabled bool

	// AutoRun controls whether the turn-boundary orchestrator actually
	// executes due profiles, or only selects and reports them.
	AutoRun bool

	// BaseBranch is the reference the changed-file diff is computed
	// against (three-dot semantics: merge-base(base, HEAD)..HEAD).
	BaseBranch string

	// DebounceSeconds is the minimum age before a profile is
	// automatically re-run for an unchanged fingerprint. It is never
	// consulted by the gate's freshness check.
	DebounceSeconds int

	RepoRoot    string
	ConfigDir   string
	StateDir    string
	EvidenceDir string
	AuditDir    string
	LogDir      string
}

// DebounceWindow returns the debounce as a duration.
func (o Options) DebounceWindow() time.Duration {
	return time.Duration(o.DebounceSeconds) * time.Second
}

// FromEnv builds Options from the environment, applying defaults and
// resolving all directory roots relative to the repository.
func FromEnv() Options {
	root := paths.RepoRoot()
	return Options{
		Enabled:         envBool(EnvEnabled),
		AutoRun:         envBool(EnvAutoRun),
		BaseBranch:      envString(EnvBaseBranch, DefaultBaseBranch),
		DebounceSeconds: envInt(EnvDebounce, DefaultDebounceSeconds),
		RepoRoot:        root,
		ConfigDir:       paths.ConfigDir(root),
		StateDir:        paths.StateDir(root),
		EvidenceDir:     paths.EvidenceDir(root),
		AuditDir:        paths.AuditDir(root),
		LogDir:          paths.LogDir(root),
	}
}

func envBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true")
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
