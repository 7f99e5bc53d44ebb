// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package gitfetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Revision is a resolved checkout target.
type Revision struct {
	Commit         string
	IsBranchHead   bool // true when rev tracked a branch head rather than an immutable tag/commit
	ResolvedBranch string
}

// ResolveRevision resolves rev against repoDir, where rev is either a bare
// commit-or-tag, or "branch:semver-req" — in the latter form the branch's
// log is walked oldest-first over annotated tags, selecting the newest
// commit whose tag satisfies the constraint and stopping at the first tag
// that no longer satisfies it (mirrors the original walk exactly rather
// than picking the max satisfying tag over the whole log, since the log is
// not guaranteed to be semver-monotonic).
func ResolveRevision(ctx context.Context, runner Runner, repoDir, rev string) (Revision, error) {
	branch, constraintStr, isSemverReq := strings.Cut(rev, ":")
	if !isSemverReq {
		commit, err := resolveCommitOrTag(ctx, runner, repoDir, rev)
		if err != nil {
			return Revision{}, err
		}
		return Revision{Commit: commit, IsBranchHead: isBranchName(ctx, runner, repoDir, rev)}, nil
	}

	constraint, err := semver.NewConstraint(constraintStr)
	if err != nil {
		return Revision{}, fmt.Errorf("invalid semver constraint %q: %w", constraintStr, err)
	}

	commit, err := walkBranchLogForSemver(ctx, runner, repoDir, branch, constraint)
	if err != nil {
		return Revision{}, err
	}
	return Revision{Commit: commit, IsBranchHead: false, ResolvedBranch: branch}, nil
}

func resolveCommitOrTag(ctx context.Context, runner Runner, repoDir, rev string) (string, error) {
	out, err := runner.Run(ctx, repoDir, "rev-parse", rev+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("resolve revision %q: %w", rev, err)
	}
	return strings.TrimSpace(out), nil
}

func isBranchName(ctx context.Context, runner Runner, repoDir, rev string) bool {
	_, err := runner.Run(ctx, repoDir, "show-ref", "--verify", "--quiet", "refs/heads/"+rev)
	return err == nil
}

// walkBranchLogForSemver walks `git log --reverse --format=%H%x09%D`
// output for branch, inspecting each commit's annotated tags (a line
// containing "tag: X"), stripping a leading "v", and tracking the newest
// commit whose tag satisfies constraint. It stops the instant a later tag
// fails to satisfy — so a log with non-monotonic semver tags can yield a
// result other than the max satisfying tag across the whole history.
func walkBranchLogForSemver(ctx context.Context, runner Runner, repoDir, branch string, constraint *semver.Constraints) (string, error) {
	out, err := runner.Run(ctx, repoDir, "log", "--reverse", "--format=%H%x09%D", branch)
	if err != nil {
		return "", fmt.Errorf("read branch log for %q: %w", branch, err)
	}

	var best string
	foundAny := false

	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		commit := parts[0]
		if len(parts) < 2 {
			continue
		}
		tag, ok := extractTag(parts[1])
		if !ok {
			continue
		}

		v, err := semver.NewVersion(strings.TrimPrefix(tag, "v"))
		if err != nil {
			continue
		}

		if constraint.Check(v) {
			best = commit
			foundAny = true
		} else if foundAny {
			// A later tag broke the constraint; stop walking forward.
			break
		}
	}

	if !foundAny {
		return "", fmt.Errorf("no tag on branch %q satisfies constraint", branch)
	}
	return best, nil
}

// extractTag pulls the first "tag: X" decoration out of a `git log
// --format=%D` ref-list field such as "HEAD -> main, tag: v1.2.0, origin/main".
func extractTag(refs string) (string, bool) {
	for _, ref := range strings.Split(refs, ",") {
		ref = strings.TrimSpace(ref)
		if tag, found := strings.CutPrefix(ref, "tag: "); found {
			return tag, true
		}
	}
	return "", false
}
