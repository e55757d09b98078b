package profile

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/assurance/pkg/errors"
)

// Well-known definition filenames under the config directory.
const (
	ProfilesFile      = "profiles.yaml"
	ProfilesLocalFile = "profiles.local.yaml"
	PolicyFile        = "security_policy.yaml"
	PolicyLocalFile   = "security_policy.local.yaml"
	DefaultBaseBranch = "origin/develop"
)

// profilesDoc is the on-disk shape of profiles.yaml.
type profilesDoc struct {
	BaseBranch string              `yaml:"base_branch,omitempty"`
	Profiles   map[string]*Profile `yaml:"profiles"`
}

// LoadRegistry loads and merges both definition files from cfgDir.
func LoadRegistry(cfgDir string) (*Registry, error) {
	profiles, err := LoadProfiles(
		filepath.Join(cfgDir, ProfilesFile),
		filepath.Join(cfgDir, ProfilesLocalFile),
	)
	if err != nil {
		return nil, err
	}

	policy, err := LoadPolicy(
		filepath.Join(cfgDir, PolicyFile),
		filepath.Join(cfgDir, PolicyLocalFile),
	)
	if err != nil {
		return nil, err
	}

	if err := validateBindings(profiles, policy); err != nil {
		return nil, err
	}
	return &Registry{Profiles: profiles, Policy: policy}, nil
}

// Installed reports whether the base definition files exist. Hook entry
// points use this to stay permissive in repositories that never opted in.
func Installed(cfgDir string) bool {
	_, perr := os.Stat(filepath.Join(cfgDir, ProfilesFile))
	_, serr := os.Stat(filepath.Join(cfgDir, PolicyFile))
	return perr == nil && serr == nil
}

// LoadProfiles loads the base profile definitions and merges the optional
// local override. A missing override file is not an error; a missing or
// malformed base file is a load-time ConfigError.
func LoadProfiles(basePath, overridePath string) (*ProfileSet, error) {
	base, err := readProfilesDoc(basePath, true)
	if err != nil {
		return nil, err
	}

	override, err := readProfilesDoc(overridePath, false)
	if err != nil {
		return nil, err
	}
	if override != nil {
		mergeProfilesDoc(base, override)
	}

	set := &ProfileSet{
		BaseBranch: base.BaseBranch,
		byName:     make(map[string]*Profile, len(base.Profiles)),
	}
	if set.BaseBranch == "" {
		set.BaseBranch = DefaultBaseBranch
	}

	names := make([]string, 0, len(base.Profiles))
	for name := range base.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := base.Profiles[name]
		if p == nil {
			p = &Profile{}
		}
		p.Name = name
		p.AutoSelect = p.RawAutoSelect == nil || *p.RawAutoSelect
		if err := validateProfile(p); err != nil {
			return nil, err
		}
		set.Profiles = append(set.Profiles, *p)
	}
	for i := range set.Profiles {
		set.byName[set.Profiles[i].Name] = &set.Profiles[i]
	}

	if len(set.Profiles) == 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "no profiles defined").
			WithContext("path", basePath)
	}
	return set, nil
}

// LoadPolicy loads the base security policy and merges the optional
// local override.
func LoadPolicy(basePath, overridePath string) (*SecurityPolicy, error) {
	base := &SecurityPolicy{}
	if err := readYAML(basePath, base, true); err != nil {
		return nil, err
	}

	if overridePath != "" {
		override := &SecurityPolicy{}
		found, err := readOptionalYAML(overridePath, override)
		if err != nil {
			return nil, err
		}
		if found {
			mergePolicy(base, override)
		}
	}

	for i, rule := range base.Categories {
		if !knownCategory(rule.Category) {
			return nil, errors.New(errors.ErrCodeConfigInvalid, "unknown category").
				WithContext("category", string(rule.Category)).
				WithContext("rule", i)
		}
		if len(rule.Patterns) == 0 {
			return nil, errors.New(errors.ErrCodeConfigInvalid, "category rule has no patterns").
				WithContext("category", string(rule.Category))
		}
	}
	for _, r := range append(append([]CommandRule{}, base.Bash.Blocked...), base.Bash.Confirm...) {
		if r.Pattern == "" {
			return nil, errors.New(errors.ErrCodeConfigInvalid, "bash rule has empty pattern")
		}
	}
	return base, nil
}

// mergeProfilesDoc applies the override: an entry fully replaces the base
// entry of the same name, except triggers, which are unioned.
func mergeProfilesDoc(base, override *profilesDoc) {
	if override.BaseBranch != "" {
		base.BaseBranch = override.BaseBranch
	}
	if base.Profiles == nil {
		base.Profiles = make(map[string]*Profile)
	}
	for name, op := range override.Profiles {
		if op == nil {
			continue
		}
		bp, ok := base.Profiles[name]
		if !ok || bp == nil {
			base.Profiles[name] = op
			continue
		}
		merged := *op
		merged.Triggers = unionStrings(bp.Triggers, op.Triggers)
		base.Profiles[name] = &merged
	}
}

// mergePolicy applies the override: a category rule replaces the base
// rule of the same category, except patterns, which are unioned. Bash
// buckets are replaced wholesale when present.
func mergePolicy(base, override *SecurityPolicy) {
	for _, orule := range override.Categories {
		replaced := false
		for i, brule := range base.Categories {
			if brule.Category == orule.Category {
				merged := orule
				merged.Patterns = unionStrings(brule.Patterns, orule.Patterns)
				base.Categories[i] = merged
				replaced = true
				break
			}
		}
		if !replaced {
			base.Categories = append(base.Categories, orule)
		}
	}
	if len(override.Bash.Blocked) > 0 {
		base.Bash.Blocked = override.Bash.Blocked
	}
	if len(override.Bash.Confirm) > 0 {
		base.Bash.Confirm = override.Bash.Confirm
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func validateProfile(p *Profile) error {
	if p.Name == AllProfiles {
		// Aggregate pseudo-profile: checks only, no triggers required.
		return validateChecks(p)
	}
	if len(p.Checks) == 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "profile has no checks").
			WithContext("profile", p.Name)
	}
	return validateChecks(p)
}

func validateChecks(p *Profile) error {
	seen := make(map[string]struct{}, len(p.Checks))
	for i, c := range p.Checks {
		if c.Name == "" {
			return errors.New(errors.ErrCodeConfigInvalid, "check has no name").
				WithContext("profile", p.Name).
				WithContext("index", i)
		}
		if c.Command == "" {
			return errors.New(errors.ErrCodeConfigInvalid, "check has no command").
				WithContext("profile", p.Name).
				WithContext("check", c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return errors.New(errors.ErrCodeConfigInvalid, "duplicate check name").
				WithContext("profile", p.Name).
				WithContext("check", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// validateBindings rejects category rules that bind a profile the
// registry does not define.
func validateBindings(profiles *ProfileSet, policy *SecurityPolicy) error {
	for _, rule := range policy.Categories {
		if rule.Profile == "" {
			continue
		}
		if profiles.Get(rule.Profile) == nil {
			return errors.New(errors.ErrCodeConfigInvalid, "category binds unknown profile").
				WithContext("category", string(rule.Category)).
				WithContext("profile", rule.Profile)
		}
	}
	return nil
}

func readProfilesDoc(path string, required bool) (*profilesDoc, error) {
	doc := &profilesDoc{}
	if required {
		if err := readYAML(path, doc, true); err != nil {
			return nil, err
		}
		return doc, nil
	}
	found, err := readOptionalYAML(path, doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return doc, nil
}

func readYAML(path string, out any, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) && required {
			return errors.New(errors.ErrCodeConfigLoad, "missing definition file").
				WithContext("path", path).
				WithRemediation(fmt.Sprintf("create %s or set the config dir env override", path))
		}
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "reading definition file").
			WithContext("path", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigParse, "parsing definition file").
			WithContext("path", path)
	}
	return nil
}

// readOptionalYAML reads an override file. Absence is not an error; a
// present but unreadable or unparseable override is, so a broken local
// override fails closed instead of being silently ignored.
func readOptionalYAML(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeConfigLoad, "reading override file").
			WithContext("path", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeConfigParse, "parsing override file").
			WithContext("path", path)
	}
	return true, nil
}
