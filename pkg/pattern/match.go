// Package pattern implements shell-glob path matching for trigger
// patterns and security-policy path classification.
//
// Semantics: case-sensitive, path separators normalized to forward
// slashes. A "**" segment matches any number of path segments, including
// zero. A pattern without "**" is right-anchored: "authz/*.py" matches
// "kamiwaza/services/authz/guard.py". Patterns containing "**" match
// against the full path from the left.
package pattern

import (
	gopath "path"
	"regexp"
	"strings"
)

// Match reports whether path matches the glob pattern.
func Match(path, pat string) bool {
	p := normalize(path)
	q := normalize(pat)
	if p == "" || q == "" {
		return false
	}

	pseg := strings.Split(p, "/")
	qseg := strings.Split(q, "/")

	if !strings.Contains(q, "**") {
		// Right-anchored: the pattern matches the trailing segments.
		n := len(qseg)
		if len(pseg) < n {
			return false
		}
		return matchSegments(pseg[len(pseg)-n:], qseg)
	}

	return matchSegments(pseg, qseg)
}

// MatchAny reports whether path matches at least one pattern.
func MatchAny(path string, patterns []string) bool {
	for _, pat := range patterns {
		if Match(path, pat) {
			return true
		}
	}
	return false
}

// MatchCommand matches a shell command string against a glob pattern.
// Unlike path matching, "*" and "?" match any character here, slashes
// included. Used for the bash blocked/confirm buckets of the security
// policy.
func MatchCommand(pat, cmd string) bool {
	if pat == "" {
		return false
	}
	re := "^" + regexp.QuoteMeta(pat) + "$"
	re = strings.ReplaceAll(re, "\\*", ".*")
	re = strings.ReplaceAll(re, "\\?", ".")
	matched, err := regexp.MatchString(re, cmd)
	if err != nil || matched {
		return matched
	}
	// "git push *" should also match the bare "git push".
	if strings.HasSuffix(pat, " *") {
		return strings.TrimSuffix(pat, " *") == cmd
	}
	return false
}

func matchSegments(path, pat []string) bool {
	if len(pat) == 0 {
		return len(path) == 0
	}
	if pat[0] == "**" {
		if matchSegments(path, pat[1:]) {
			return true
		}
		if len(path) > 0 {
			return matchSegments(path[1:], pat)
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, err := gopath.Match(pat[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(path[1:], pat[1:])
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return strings.Trim(p, "/")
}
