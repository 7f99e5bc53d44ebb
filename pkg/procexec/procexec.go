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

// Package procexec implements the Run-phase task bodies that spawn (or
// kill) a subprocess: the exec-subprocess and kill-subprocess executor
// variants.
package procexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kraklabs/spaces/pkg/scheduler"
)

// Expectation governs how a subprocess's exit status maps to task success.
type Expectation string

const (
	ExpectSuccess Expectation = "success" // non-zero exit = failure (default)
	ExpectFailure Expectation = "failure" // zero exit = failure
	ExpectAny     Expectation = "any"     // never fails on exit status
)

const maxLogTail = 10 << 20 // 10 MiB

// Executor runs a subprocess with a composed environment, optionally bounded
// by Timeout, logging combined output to a per-rule file under LogDir and
// honoring Expect for success/failure classification.
type Executor struct {
	Command []string
	Dir     string
	Env     map[string]string
	Expect  Expectation
	Timeout time.Duration // zero means unbounded
	LogDir  string
}

var _ scheduler.Executor = (*Executor)(nil)

// Serialize returns the stable definition used as the task digest seed.
func (e *Executor) Serialize() []byte {
	def := struct {
		Command []string
		Dir     string
		Env     map[string]string
		Expect  Expectation
	}{e.Command, e.Dir, e.Env, e.Expect}
	out, _ := json.Marshal(def)
	return out
}

// Execute runs the configured command to completion (or until Timeout
// expires, at which point the process is killed and the rule fails
// regardless of Expect).
func (e *Executor) Execute(ctx context.Context, _ scheduler.Progress, ruleName string) (scheduler.TaskResult, error) {
	if len(e.Command) == 0 {
		return scheduler.TaskResult{}, fmt.Errorf("exec rule %q: empty command", ruleName)
	}

	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, e.Command[0], e.Command[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = os.Environ()
	for k, v := range e.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	runErr := cmd.Run()

	if e.LogDir != "" {
		if writeErr := e.writeLog(ruleName, combined.Bytes()); writeErr != nil {
			return scheduler.TaskResult{}, fmt.Errorf("write log for %q: %w", ruleName, writeErr)
		}
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return scheduler.TaskResult{}, fmt.Errorf("rule %q timed out after %s", ruleName, e.Timeout)
	}

	failed := classify(e.Expect, runErr)
	if failed {
		return scheduler.TaskResult{}, fmt.Errorf("rule %q failed: %w\n%s", ruleName, runErr, tail(combined.Bytes(), maxLogTail))
	}
	return scheduler.TaskResult{}, nil
}

func classify(expect Expectation, runErr error) bool {
	switch expect {
	case ExpectAny:
		return false
	case ExpectFailure:
		return runErr == nil
	default:
		return runErr != nil
	}
}

func (e *Executor) writeLog(ruleName string, data []byte) error {
	if err := os.MkdirAll(e.LogDir, 0o750); err != nil {
		return err
	}
	name := strings.NewReplacer("/", "_", ":", "_").Replace(ruleName) + ".log"
	return os.WriteFile(filepath.Join(e.LogDir, name), data, 0o644)
}

func tail(data []byte, max int) string {
	if len(data) <= max {
		return string(data)
	}
	return "... (truncated)\n" + string(data[len(data)-max:])
}

// KillExecutor terminates a previously started long-running process,
// identified by a PID file the matching exec-subprocess rule wrote.
type KillExecutor struct {
	PIDFile string
}

var _ scheduler.Executor = (*KillExecutor)(nil)

// Serialize returns the stable definition used as the task digest seed.
func (k *KillExecutor) Serialize() []byte {
	out, _ := json.Marshal(struct{ PIDFile string }{k.PIDFile})
	return out
}

// Execute reads the PID file and kills the recorded process with
// os.Process.Kill (SIGKILL on Unix). A missing PID
// file or already-exited process is not an error: the target state (no
// process running) already holds.
func (k *KillExecutor) Execute(_ context.Context, _ scheduler.Progress, ruleName string) (scheduler.TaskResult, error) {
	data, err := os.ReadFile(k.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return scheduler.TaskResult{}, nil
		}
		return scheduler.TaskResult{}, fmt.Errorf("read pid file for %q: %w", ruleName, err)
	}

	var pid int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &pid); err != nil {
		return scheduler.TaskResult{}, fmt.Errorf("parse pid file for %q: %w", ruleName, err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return scheduler.TaskResult{}, nil
	}
	if err := proc.Kill(); err != nil && !strings.Contains(err.Error(), "process already finished") {
		return scheduler.TaskResult{}, fmt.Errorf("kill pid %d for %q: %w", pid, ruleName, err)
	}
	_ = os.Remove(k.PIDFile)
	return scheduler.TaskResult{}, nil
}
