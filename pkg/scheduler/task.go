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

package scheduler

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/kraklabs/spaces/pkg/rules"
	"lukechampine.com/blake3"
)

// Phase governs which tasks are scheduled in a given engine pass.
type Phase string

const (
	PhaseCheckout     Phase = "checkout"
	PhasePostCheckout Phase = "post_checkout"
	PhaseRun          Phase = "run"
	PhaseEvaluate     Phase = "evaluate"
	PhaseCancelled    Phase = "cancelled"
	PhaseComplete     Phase = "complete"
)

// TaskResult is an executor's only output besides error: any newly
// discovered rule-module paths (the git executor, after checkout, scans
// the new working copy for sibling rule-definition files not already
// known to the registry).
type TaskResult struct {
	NewRuleModules []string
}

// Progress is the minimal progress-reporting surface an executor needs.
// The scheduler passes nil; executors do not rely on it being set.
type Progress interface {
	SetMessage(string)
	Add(int) error
}

// Executor is the tagged union of task bodies: git fetch, HTTP/OCI archive,
// exec subprocess, kill subprocess, asset add/update, hard-link, soft-link,
// env update, create-archive, or a no-op target marker. Each concrete
// executor in pkg/gitfetch, pkg/archive, etc. implements this interface;
// the scheduler never branches on a type tag itself, it just calls Execute.
type Executor interface {
	// Serialize returns a stable byte representation of the executor's
	// definition, used as the digest seed — it must not depend on runtime
	// state such as file contents.
	Serialize() []byte
	Execute(ctx context.Context, progress Progress, ruleName string) (TaskResult, error)
}

// Task wraps a Rule with its runtime binding: executor, phase, digest, and
// readiness signal. Tasks exist for the duration of one invocation; the
// engine owns the authoritative Task map, dependents hold only the
// Signal of tasks they depend on.
type Task struct {
	Rule     *rules.Rule
	Executor Executor
	Phase    Phase
	Digest   string
	Signal   *Signal
	Result   TaskResult

	mu      sync.Mutex
	skipped bool
	skipMsg string
}

// NewTask wraps rule with its executor, starting in phase with a fresh,
// not-yet-ready signal.
func NewTask(rule *rules.Rule, executor Executor, phase Phase) *Task {
	return &Task{Rule: rule, Executor: executor, Phase: phase, Signal: NewSignal()}
}

// SetPhase atomically updates the task's phase; used by the scheduler to
// flip pending tasks to Cancelled on first failure.
func (t *Task) SetPhase(phase Phase) {
	t.mu.Lock()
	t.Phase = phase
	t.mu.Unlock()
}

func (t *Task) currentPhase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Phase
}

// MarkSkipped records why the task did not execute (cancelled, optional, or
// "same inputs"). It does not touch the Signal: the scheduler's worker sets
// it ready on return, so dependents proceed.
func (t *Task) MarkSkipped(reason string) {
	t.mu.Lock()
	t.skipped = true
	t.skipMsg = reason
	t.mu.Unlock()
}

// CalculateDigest computes Blake3(Blake3(executor-serialized) || concat(dep
// digests, in dep order)), matching the order dependency edges were added.
func (t *Task) CalculateDigest(depDigests []string) string {
	execHash := blake3.Sum256(t.Executor.Serialize())

	h := blake3.New(32, nil)
	h.Write(execHash[:])
	for _, d := range depDigests {
		h.Write([]byte(d))
	}
	sum := h.Sum(nil)
	t.Digest = hex.EncodeToString(sum)
	return t.Digest
}
