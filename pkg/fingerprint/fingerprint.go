// Package fingerprint produces the deterministic digest of a changed-file
// set. Run records stamped with an equal digest were produced against the
// same set of changed files, so evidence freshness reduces to a string
// comparison.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// DigestVersion identifies the digest scheme. Bumping it invalidates all
// existing run records: readers treat a version mismatch as record-absent,
// never as malformed.
const DigestVersion = 1

// separator joins the canonical path list. Newlines cannot appear in the
// paths the diff layer emits, so two distinct sets never encode to the
// same pre-image.
const separator = "\n"

// Fingerprint returns the hex digest of the de-duplicated, sorted path
// set. Order of the input is irrelevant; any change to the set changes
// the digest.
func Fingerprint(changedPaths []string) string {
	uniq := make(map[string]struct{}, len(changedPaths))
	for _, p := range changedPaths {
		if p == "" {
			continue
		}
		uniq[p] = struct{}{}
	}

	paths := make([]string, 0, len(uniq))
	for p := range uniq {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte(separator))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Empty is the digest of the empty changed-file set.
func Empty() string {
	return Fingerprint(nil)
}

// ContainsSeparator reports whether a path would break the canonical
// encoding. The diff layer drops such paths before fingerprinting.
func ContainsSeparator(path string) bool {
	return strings.Contains(path, separator)
}
