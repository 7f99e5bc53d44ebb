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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/spaces/pkg/scheduler"
	"github.com/kraklabs/spaces/pkg/store"
)

// CloneStrategy selects one of the four checkout protocols spec.md §4.3
// names.
type CloneStrategy string

const (
	// StrategyWorktree maintains a shared bare repo and adds a detached
	// worktree at the destination — cheapest for many siblings of the same
	// repo.
	StrategyWorktree CloneStrategy = "worktree"
	// StrategyDefault maintains a full clone in store/cow/... and locally
	// clones from there into the workspace.
	StrategyDefault CloneStrategy = "default"
	// StrategyBlobless is StrategyDefault with --filter=blob:none on the
	// store-side clone.
	StrategyBlobless CloneStrategy = "blobless"
	// StrategyShallow clones directly into the workspace with
	// --depth 1 --single-branch. Cannot be combined with a new-branch
	// checkout.
	StrategyShallow CloneStrategy = "shallow"
)

// ReproducibilityFlag lets the executor report back to the workspace
// (spec.md §4.8) that a branch-head checkout was observed.
type ReproducibilityFlag interface {
	ClearReproducible()
}

// LockFile gates/records resolved commits per rule name (spec.md §4.8): on
// create, an executor records its resolved commit; on apply, the executor
// checks out that recorded commit regardless of rev.
type LockFile interface {
	Get(ruleName string) (commit string, ok bool)
	Set(ruleName, commit string)
	IsApplying() bool
}

// Executor is the git fetch task body: checkout protocol, revision
// resolution, lock-file interaction, and reproducibility tracking.
type Executor struct {
	URL              string
	Rev              string
	NewBranch        string // part of the digest and rejected with StrategyShallow; no branch is created from it
	SparseCheckoutCfg []string
	Strategy         CloneStrategy
	Destination      string // absolute path inside the workspace

	Store    *store.Store
	Runner   Runner
	Lock     LockFile
	Reproducibility ReproducibilityFlag
}

var _ scheduler.Executor = (*Executor)(nil)

// Serialize returns the stable definition used as the task digest seed.
func (e *Executor) Serialize() []byte {
	def := struct {
		URL         string
		Rev         string
		NewBranch   string
		Strategy    CloneStrategy
		Destination string
	}{e.URL, e.Rev, e.NewBranch, e.Strategy, e.Destination}
	out, _ := json.Marshal(def)
	return out
}

// Execute runs the fetch. On success it scans the destination for
// rule-definition files and returns every one found as
// TaskResult.NewRuleModules; filtering out already-loaded modules is left to
// the caller.
func (e *Executor) Execute(ctx context.Context, _ scheduler.Progress, ruleName string) (scheduler.TaskResult, error) {
	if e.Runner == nil {
		e.Runner = ProcessRunner{}
	}

	var result scheduler.TaskResult
	err := withURLLock(e.URL, func() error {
		commit, branchHead, err := e.resolveTarget(ctx, ruleName)
		if err != nil {
			return err
		}

		switch e.Strategy {
		case StrategyWorktree:
			err = e.checkoutWorktree(ctx, commit)
		case StrategyShallow:
			err = e.checkoutShallow(ctx, commit)
		case StrategyBlobless, StrategyDefault:
			err = e.checkoutViaCow(ctx, commit)
		default:
			err = fmt.Errorf("unknown clone strategy %q", e.Strategy)
		}
		if err != nil {
			return err
		}

		if branchHead && e.Reproducibility != nil {
			e.Reproducibility.ClearReproducible()
		}
		if e.Lock != nil && !e.Lock.IsApplying() {
			e.Lock.Set(ruleName, commit)
		}

		modules, err := findRuleModules(e.Destination)
		if err != nil {
			return fmt.Errorf("scan %q for rule modules: %w", e.Destination, err)
		}
		result.NewRuleModules = modules
		return nil
	})
	if err != nil {
		return scheduler.TaskResult{}, fmt.Errorf("while checking out %q: %w", e.URL, err)
	}
	return result, nil
}

// resolveTarget decides the commit to check out: if a lock file is being
// applied, the recorded commit for ruleName wins unconditionally,
// regardless of Rev; otherwise Rev is resolved fresh.
func (e *Executor) resolveTarget(ctx context.Context, ruleName string) (commit string, isBranchHead bool, err error) {
	if e.Lock != nil && e.Lock.IsApplying() {
		if locked, ok := e.Lock.Get(ruleName); ok {
			return locked, false, nil
		}
	}

	bareDir, err := e.ensureBareRepo(ctx)
	if err != nil {
		return "", false, err
	}

	rev, branchErr := ResolveRevision(ctx, e.Runner, bareDir, e.Rev)
	if branchErr != nil {
		return "", false, branchErr
	}
	return rev.Commit, rev.IsBranchHead, nil
}

// ensureBareRepo makes sure the store's shared bare repository for e.URL
// exists, cloning it on first use, and returns its absolute path.
func (e *Executor) ensureBareRepo(ctx context.Context) (string, error) {
	relPath, err := e.Store.BareGitPath(e.URL)
	if err != nil {
		return "", err
	}
	bareDir := filepath.Join(e.Store.Root, relPath)

	if _, statErr := os.Stat(bareDir); os.IsNotExist(statErr) {
		lock := e.Store.Lock(relPath)
		if lockErr := lock.Lock(); lockErr != nil {
			return "", lockErr
		}
		defer lock.Unlock()

		if _, statErr := os.Stat(bareDir); os.IsNotExist(statErr) {
			if mkErr := os.MkdirAll(filepath.Dir(bareDir), 0o750); mkErr != nil {
				return "", fmt.Errorf("create store dir %q: %w", filepath.Dir(bareDir), mkErr)
			}
			if _, runErr := e.Runner.Run(ctx, filepath.Dir(bareDir), "clone", "--bare", e.URL, bareDir); runErr != nil {
				return "", fmt.Errorf("bare clone %q: %w", e.URL, runErr)
			}
		}
	} else {
		if _, runErr := e.Runner.Run(ctx, bareDir, "fetch", "--all", "--tags"); runErr != nil {
			slog.Warn("gitfetch.bare_repo.fetch_failed", "url", e.URL, "error", runErr)
		}
		if touchErr := e.Store.Touch(relPath); touchErr != nil {
			slog.Warn("gitfetch.bare_repo.touch_failed", "path", relPath, "error", touchErr)
		}
	}

	return bareDir, nil
}

// checkoutWorktree adds a detached linked worktree at e.Destination from
// the shared bare repo.
func (e *Executor) checkoutWorktree(ctx context.Context, commit string) error {
	bareDir, err := e.ensureBareRepo(ctx)
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(e.Destination); statErr == nil {
		return e.idempotentUpdate(ctx, commit)
	}

	if mkErr := os.MkdirAll(filepath.Dir(e.Destination), 0o750); mkErr != nil {
		return fmt.Errorf("create %q: %w", filepath.Dir(e.Destination), mkErr)
	}
	if _, runErr := e.Runner.Run(ctx, bareDir, "worktree", "add", "--detach", e.Destination, commit); runErr != nil {
		return fmt.Errorf("add worktree %q: %w", e.Destination, runErr)
	}
	return nil
}

// checkoutShallow clones directly into the destination with
// --depth 1 --single-branch. Incompatible with a new-branch checkout.
func (e *Executor) checkoutShallow(ctx context.Context, commit string) error {
	if e.NewBranch != "" {
		return fmt.Errorf("shallow clone strategy cannot be combined with a new-branch checkout")
	}
	if _, statErr := os.Stat(e.Destination); statErr == nil {
		return e.idempotentUpdate(ctx, commit)
	}
	if mkErr := os.MkdirAll(filepath.Dir(e.Destination), 0o750); mkErr != nil {
		return fmt.Errorf("create %q: %w", filepath.Dir(e.Destination), mkErr)
	}
	if _, runErr := e.Runner.Run(ctx, filepath.Dir(e.Destination), "clone", "--depth", "1", "--single-branch", e.URL, e.Destination); runErr != nil {
		return fmt.Errorf("shallow clone %q: %w", e.URL, runErr)
	}
	return nil
}

// checkoutViaCow maintains a local clone under store/cow/... (full or
// --filter=blob:none per Strategy), named by repo + sparse-checkout-config
// hash suffix, and locally clones from there into the workspace.
func (e *Executor) checkoutViaCow(ctx context.Context, commit string) error {
	sparseHash := sparseCheckoutHash(e.SparseCheckoutCfg)
	cowRel, err := e.Store.CowGitPath(e.URL, sparseHash)
	if err != nil {
		return err
	}
	cowDir := filepath.Join(e.Store.Root, cowRel)

	if _, statErr := os.Stat(cowDir); os.IsNotExist(statErr) {
		bareDir, bErr := e.ensureBareRepo(ctx)
		if bErr != nil {
			return bErr
		}
		if mkErr := os.MkdirAll(filepath.Dir(cowDir), 0o750); mkErr != nil {
			return fmt.Errorf("create %q: %w", filepath.Dir(cowDir), mkErr)
		}
		args := []string{"clone"}
		if e.Strategy == StrategyBlobless {
			args = append(args, "--filter=blob:none")
		}
		args = append(args, bareDir, cowDir)
		if _, runErr := e.Runner.Run(ctx, filepath.Dir(cowDir), args...); runErr != nil {
			return fmt.Errorf("cow clone %q: %w", e.URL, runErr)
		}
	}

	if _, statErr := os.Stat(e.Destination); statErr == nil {
		return e.idempotentUpdate(ctx, commit)
	}
	if mkErr := os.MkdirAll(filepath.Dir(e.Destination), 0o750); mkErr != nil {
		return fmt.Errorf("create %q: %w", filepath.Dir(e.Destination), mkErr)
	}
	if _, runErr := e.Runner.Run(ctx, filepath.Dir(e.Destination), "clone", cowDir, e.Destination); runErr != nil {
		return fmt.Errorf("workspace clone from %q: %w", cowDir, runErr)
	}
	if _, runErr := e.Runner.Run(ctx, e.Destination, "checkout", "--detach", commit); runErr != nil {
		return fmt.Errorf("checkout %q in %q: %w", commit, e.Destination, runErr)
	}
	return nil
}

// idempotentUpdate handles a workspace clone that already exists: a dirty
// tree is left alone with a warning; a clean tree tracking a remote branch
// head is pulled; otherwise it is fetched and checked out to commit.
func (e *Executor) idempotentUpdate(ctx context.Context, commit string) error {
	status, err := e.Runner.Run(ctx, e.Destination, "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("status %q: %w", e.Destination, err)
	}
	if status != "" {
		slog.Warn("gitfetch.checkout.dirty_worktree_left_alone", "path", e.Destination)
		return nil
	}

	if e.NewBranch == "" && isBranchName(ctx, e.Runner, e.Destination, e.Rev) {
		if _, pullErr := e.Runner.Run(ctx, e.Destination, "pull", "--ff-only"); pullErr != nil {
			return fmt.Errorf("pull %q: %w", e.Destination, pullErr)
		}
		return nil
	}

	if _, fetchErr := e.Runner.Run(ctx, e.Destination, "fetch", "--all", "--tags"); fetchErr != nil {
		return fmt.Errorf("fetch %q: %w", e.Destination, fetchErr)
	}
	if _, coErr := e.Runner.Run(ctx, e.Destination, "checkout", "--detach", commit); coErr != nil {
		return fmt.Errorf("checkout %q in %q: %w", commit, e.Destination, coErr)
	}
	return nil
}

// findRuleModules scans dir for rule-definition files — the loader's
// *.spaces.yaml modules.
func findRuleModules(dir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".spaces.yaml") {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
