// Package profile loads and validates the verification profile and
// security policy definitions that drive the edit gate and the runner.
// Definitions are immutable for the life of one invocation; every process
// start reloads them from disk.
package profile

import (
	"fmt"
	"sort"

	"github.com/odvcencio/assurance/pkg/pattern"
)

// Reserved profile name for manual aggregate runs. Never auto-selected.
const AllProfiles = "all"

// Default classification of a check's exit code. 2 is the conventional
// tooling-error exit; 127 is the shell's "command not found".
var defaultToolingExits = []int{2, 127}

// CheckSpec describes one external check command of a profile.
type CheckSpec struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`

	// Evidence is the per-check log filename inside the run's evidence
	// directory. Defaults to "<name>.log".
	Evidence string `yaml:"evidence,omitempty"`

	// ToolingExitCodes classify as TOOLING_ERROR instead of FAIL.
	ToolingExitCodes []int `yaml:"tooling_exit_codes,omitempty"`
}

// IsToolingExit reports whether code means "the workflow is broken".
func (c CheckSpec) IsToolingExit(code int) bool {
	exits := c.ToolingExitCodes
	if len(exits) == 0 {
		exits = defaultToolingExits
	}
	for _, e := range exits {
		if e == code {
			return true
		}
	}
	return false
}

// EvidenceFile returns the per-check evidence filename.
func (c CheckSpec) EvidenceFile() string {
	if c.Evidence != "" {
		return c.Evidence
	}
	return c.Name + ".log"
}

// Profile is one named verification responsibility: trigger patterns
// plus the ordered checks that produce its evidence.
type Profile struct {
	Name       string      `yaml:"-"`
	Triggers   []string    `yaml:"triggers"`
	AutoSelect bool        `yaml:"-"`
	Checks     []CheckSpec `yaml:"checks"`

	// RawAutoSelect distinguishes "absent" (defaults to true) from an
	// explicit false in the YAML.
	RawAutoSelect *bool `yaml:"auto_select"`
}

// ProfileSet is the merged, validated set of profile definitions.
type ProfileSet struct {
	BaseBranch string
	Profiles   []Profile // sorted by name
	byName     map[string]*Profile
}

// NewProfileSet builds a set from already-validated profiles, sorted by
// name. Used by callers that assemble profiles in code rather than from
// YAML.
func NewProfileSet(baseBranch string, profiles []Profile) (*ProfileSet, error) {
	set := &ProfileSet{
		BaseBranch: baseBranch,
		Profiles:   make([]Profile, len(profiles)),
		byName:     make(map[string]*Profile, len(profiles)),
	}
	copy(set.Profiles, profiles)
	sort.Slice(set.Profiles, func(i, j int) bool { return set.Profiles[i].Name < set.Profiles[j].Name })
	for i := range set.Profiles {
		name := set.Profiles[i].Name
		if name == "" {
			return nil, fmt.Errorf("profile %d has no name", i)
		}
		if _, dup := set.byName[name]; dup {
			return nil, fmt.Errorf("duplicate profile %q", name)
		}
		set.byName[name] = &set.Profiles[i]
	}
	return set, nil
}

// Get returns the named profile, or nil.
func (s *ProfileSet) Get(name string) *Profile {
	if s == nil {
		return nil
	}
	return s.byName[name]
}

// Names returns all profile names in sorted order.
func (s *ProfileSet) Names() []string {
	names := make([]string, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		names = append(names, p.Name)
	}
	return names
}

// Select returns the sorted names of profiles responsible for the changed
// paths. A profile is selected iff at least one changed path matches at
// least one of its triggers. Automatic selection additionally requires
// auto_select; manual invocation bypasses that restriction. The reserved
// "all" profile is only ever chosen by explicit request.
func (s *ProfileSet) Select(changedPaths []string, manual bool) []string {
	if s == nil || len(changedPaths) == 0 {
		return nil
	}

	selected := make([]string, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		if p.Name == AllProfiles {
			continue
		}
		if !manual && !p.AutoSelect {
			continue
		}
		if len(p.Triggers) == 0 {
			continue
		}
		for _, f := range changedPaths {
			if pattern.MatchAny(f, p.Triggers) {
				selected = append(selected, p.Name)
				break
			}
		}
	}
	sort.Strings(selected)
	return selected
}

// Category classifies a candidate edit path.
type Category string

const (
	// CategorySecret paths are never edit-authorized by the gate,
	// regardless of evidence.
	CategorySecret Category = "secret"

	// CategoryPolicyFile paths change enforcement rules themselves;
	// edits require affirmative passing evidence, with no override.
	CategoryPolicyFile Category = "policy-file"

	// CategoryProtectedSurface paths may be edited after human
	// confirmation even without evidence.
	CategoryProtectedSurface Category = "protected-surface"

	// CategoryOrdinary paths are not gated.
	CategoryOrdinary Category = "ordinary"
)

func knownCategory(c Category) bool {
	switch c {
	case CategorySecret, CategoryPolicyFile, CategoryProtectedSurface:
		return true
	}
	return false
}

// CategoryRule binds path patterns to a category and, optionally, to the
// profile whose run record must be fresh and passing.
type CategoryRule struct {
	Category Category `yaml:"category"`
	Patterns []string `yaml:"patterns"`
	Profile  string   `yaml:"profile,omitempty"`
}

// CommandRule matches a shell command with an operator-facing reason.
type CommandRule struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason,omitempty"`
}

// BashPolicy holds the blocked and confirm command buckets.
type BashPolicy struct {
	Blocked []CommandRule `yaml:"blocked,omitempty"`
	Confirm []CommandRule `yaml:"confirm,omitempty"`
}

// SecurityPolicy classifies edit paths and shell commands.
type SecurityPolicy struct {
	Categories []CategoryRule `yaml:"categories"`
	Bash       BashPolicy     `yaml:"bash,omitempty"`
}

// Classify returns the category of path and the bound profile name, if
// any. Rules are evaluated in declaration order; first match wins. No
// match means ordinary.
func (p *SecurityPolicy) Classify(path string) (Category, string) {
	if p == nil {
		return CategoryOrdinary, ""
	}
	for _, rule := range p.Categories {
		if pattern.MatchAny(path, rule.Patterns) {
			return rule.Category, rule.Profile
		}
	}
	return CategoryOrdinary, ""
}

// MatchBash returns the reason of the first rule in the bucket matching
// cmd, or "" when nothing matches.
func MatchBash(cmd string, rules []CommandRule) string {
	for _, r := range rules {
		if pattern.MatchCommand(r.Pattern, cmd) {
			if r.Reason != "" {
				return r.Reason
			}
			return "matched security policy"
		}
	}
	return ""
}

// Registry bundles the merged profile set and security policy.
type Registry struct {
	Profiles *ProfileSet
	Policy   *SecurityPolicy
}
