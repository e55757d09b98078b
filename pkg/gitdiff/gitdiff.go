// Package gitdiff computes the changed-file set the fingerprint and the
// profile selection are derived from: every path that differs between
// merge-base(base, HEAD) and HEAD, matching git's three-dot diff.
package gitdiff

import (
	"sort"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/odvcencio/assurance/pkg/errors"
	"github.com/odvcencio/assurance/pkg/fingerprint"
)

// ChangedFiles returns the sorted, de-duplicated paths changed on HEAD
// relative to the merge base with baseRef. Deletions report the old
// path. Paths that would break the fingerprint encoding are dropped.
func ChangedFiles(repoRoot, baseRef string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(repoRoot, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitDiff, "opening repository").
			WithContext("root", repoRoot)
	}

	headRef, err := repo.Head()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitDiff, "resolving HEAD")
	}
	headCommit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitDiff, "loading HEAD commit")
	}

	baseHash, err := repo.ResolveRevision(plumbing.Revision(baseRef))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitDiff, "resolving base reference").
			WithContext("base", baseRef)
	}
	baseCommit, err := repo.CommitObject(*baseHash)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitDiff, "loading base commit").
			WithContext("base", baseRef)
	}

	// Three-dot semantics: diff from the merge base, not from the base
	// tip, so unrelated work merged into base does not churn the
	// fingerprint. Fall back to the base tip when histories are
	// unrelated.
	from := baseCommit
	if bases, err := baseCommit.MergeBase(headCommit); err == nil && len(bases) > 0 {
		from = bases[0]
	}

	fromTree, err := from.Tree()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitDiff, "loading merge-base tree")
	}
	toTree, err := headCommit.Tree()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitDiff, "loading HEAD tree")
	}

	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGitDiff, "diffing trees")
	}

	seen := make(map[string]struct{}, len(changes))
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		if name == "" || fingerprint.ContainsSeparator(name) {
			continue
		}
		seen[name] = struct{}{}
	}

	files := make([]string, 0, len(seen))
	for name := range seen {
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// ChangedFilesOrEmpty is the safe-default variant used on paths where a
// diff failure must not block: an unreadable repo or missing base ref
// reads as "nothing changed".
func ChangedFilesOrEmpty(repoRoot, baseRef string) []string {
	files, err := ChangedFiles(repoRoot, baseRef)
	if err != nil {
		return nil
	}
	return files
}

// Provider returns a closure over a fixed repo root and base ref,
// suitable for injecting into the gate and orchestrator.
func Provider(repoRoot, baseRef string) func() []string {
	return func() []string {
		return ChangedFilesOrEmpty(repoRoot, baseRef)
	}
}
