// Package paths resolves the well-known directories assurance reads and
// writes: config definitions, run-state slots, evidence output, and the
// security audit trail. Every root is overridable through an environment
// variable so operators can relocate state without touching config files.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvProjectDir  = "ASSURANCE_PROJECT_DIR"
	EnvConfigDir   = "ASSURANCE_CONFIG_DIR"
	EnvStateDir    = "ASSURANCE_STATE_DIR"
	EnvEvidenceDir = "ASSURANCE_EVIDENCE_DIR"
	EnvAuditDir    = "ASSURANCE_AUDIT_DIR"
	EnvLogDir      = "ASSURANCE_LOG_DIR"
)

// RepoRoot returns the repository the gate protects. The host sets
// ASSURANCE_PROJECT_DIR when invoking hooks; otherwise the working
// directory is assumed to be the repo.
func RepoRoot() string {
	if dir := strings.TrimSpace(os.Getenv(EnvProjectDir)); dir != "" {
		return filepath.Clean(expandHomePath(dir))
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// ConfigDir holds profiles.yaml and security_policy.yaml plus their
// .local.yaml overrides.
func ConfigDir(repoRoot string) string {
	return resolve(EnvConfigDir, repoRoot, filepath.Join(".assurance", "config"))
}

// StateDir holds one run-record slot per profile plus the run history DB.
func StateDir(repoRoot string) string {
	return resolve(EnvStateDir, repoRoot, filepath.Join(".assurance", "state"))
}

// EvidenceDir is the root under which per-profile, per-run evidence
// directories are created. Runs are never deleted by assurance itself.
func EvidenceDir(repoRoot string) string {
	return resolve(EnvEvidenceDir, "", filepath.Join(os.TempDir(), "assurance", "evidence"))
}

// AuditDir holds day-stamped JSONL security-event logs.
func AuditDir(repoRoot string) string {
	return resolve(EnvAuditDir, "", filepath.Join(os.TempDir(), "assurance", "security"))
}

// LogDir holds the structured JSONL diagnostics logs.
func LogDir(repoRoot string) string {
	return resolve(EnvLogDir, repoRoot, filepath.Join(".assurance", "logs"))
}

func resolve(env, base, fallback string) string {
	if dir := strings.TrimSpace(os.Getenv(env)); dir != "" {
		return filepath.Clean(expandHomePath(dir))
	}
	if base == "" || filepath.IsAbs(fallback) {
		return fallback
	}
	return filepath.Join(base, fallback)
}

func expandHomePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}
