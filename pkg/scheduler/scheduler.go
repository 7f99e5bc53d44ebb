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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kraklabs/spaces/pkg/changes"
	"github.com/kraklabs/spaces/pkg/metrics"
	"github.com/kraklabs/spaces/pkg/rules"
)

const (
	DefaultMaxQueueCount = 8
	MaxMaxQueueCount     = 64
)

// RuleMetric is the elapsed wall time of one rule's execution, recorded
// into the workspace's rule_metrics map.
type RuleMetric struct {
	RuleName   string
	ElapsedMs  int64
	SkipReason string
}

// Scheduler spawns one worker goroutine per ready rule, gated by
// MaxQueueCount in-flight, coordinating readiness via each Task's Signal
// and propagating the first failure as cooperative cancellation.
type Scheduler struct {
	Graph          GraphView
	Tasks          map[string]*Task
	Tracker        *changes.Tracker
	InputsDigests  map[string]string // rule name -> last-successful digest
	MaxQueueCount  int
	EnabledOptions map[string]bool // Optional-type rules explicitly enabled

	metricsMu sync.Mutex
	Metrics   []RuleMetric

	sem chan struct{}

	firstErrOnce sync.Once
	firstErr     error
	cancelled    chan struct{}
}

// GraphView is the subset of *graph.Graph the scheduler depends on; kept
// as an interface so tests can supply a fake without importing pkg/graph.
type GraphView interface {
	Deps(task string) []string
}

// NewScheduler returns a scheduler over tasks, clamping maxQueueCount into
// [1, MaxMaxQueueCount] (defaulting to DefaultMaxQueueCount when 0).
func NewScheduler(g GraphView, tasks map[string]*Task, tracker *changes.Tracker, inputsDigests map[string]string, maxQueueCount int) *Scheduler {
	if maxQueueCount <= 0 {
		maxQueueCount = DefaultMaxQueueCount
	}
	if maxQueueCount > MaxMaxQueueCount {
		maxQueueCount = MaxMaxQueueCount
	}
	return &Scheduler{
		Graph:         g,
		Tasks:         tasks,
		Tracker:       tracker,
		InputsDigests: inputsDigests,
		MaxQueueCount: maxQueueCount,
		sem:           make(chan struct{}, maxQueueCount),
		cancelled:     make(chan struct{}),
	}
}

// Run executes every task in order whose Phase equals currentPhase,
// waiting for each one's dependencies to signal ready first. It blocks
// until every spawned worker has joined, then returns the first error
// encountered (nil on full success).
func (s *Scheduler) Run(ctx context.Context, order []string, currentPhase Phase) error {
	var wg sync.WaitGroup

	for _, name := range order {
		task, ok := s.Tasks[name]
		if !ok || task.Phase != currentPhase {
			continue
		}
		wg.Add(1)
		go s.runWorker(ctx, &wg, name, task)
	}

	wg.Wait()
	return s.firstErr
}

func (s *Scheduler) runWorker(ctx context.Context, wg *sync.WaitGroup, name string, task *Task) {
	defer wg.Done()
	defer task.Signal.SetReadyNotifyAll()

	start := time.Now()

	for _, dep := range s.Graph.Deps(name) {
		depTask, ok := s.Tasks[dep]
		if !ok {
			continue
		}
		depTask.Signal.Wait(s.isCancelled)
	}

	if s.isCancelled() {
		task.SetPhase(PhaseCancelled)
		task.MarkSkipped("cancelled")
		s.recordMetric(name, start, "cancelled")
		return
	}

	if task.currentPhase() == PhaseCancelled {
		task.MarkSkipped("cancelled")
		s.recordMetric(name, start, "cancelled")
		return
	}

	if task.Rule.Type == rules.TypeOptional && !s.EnabledOptions[name] {
		task.MarkSkipped("optional, not enabled")
		s.recordMetric(name, start, "optional_not_enabled")
		return
	}

	var digest string
	if len(task.Rule.Inputs) > 0 && s.Tracker != nil {
		if err := s.Tracker.Refresh(task.Rule.Inputs); err != nil {
			s.fail(fmt.Errorf("while refreshing inputs for %q: %w", name, err))
			task.SetPhase(PhaseCancelled)
			s.recordMetric(name, start, "error")
			return
		}
		digest = s.Tracker.Digest(name, task.Rule.Inputs)
		if s.InputsDigests[name] == digest {
			task.MarkSkipped("same inputs")
			task.SetPhase(PhaseComplete)
			s.recordMetric(name, start, "same_inputs")
			return
		}
	}

	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	slog.Info("scheduler.task.execute", "rule", name)
	result, err := task.Executor.Execute(ctx, nil, name)
	if err != nil {
		s.fail(fmt.Errorf("while running %q: %w", name, err))
		task.SetPhase(PhaseCancelled)
		s.recordMetric(name, start, "error")
		return
	}
	task.Result = result
	if digest != "" {
		s.InputsDigests[name] = digest
	}

	task.SetPhase(PhaseComplete)
	s.recordMetric(name, start, "")
}

func (s *Scheduler) isCancelled() bool {
	select {
	case <-s.cancelled:
		return true
	default:
		return false
	}
}

// fail records err as the invocation's first error (subsequent calls are
// ignored) and flips every still-pending task to Cancelled so pending
// workers short-circuit after their dep-wait rather than hang.
func (s *Scheduler) fail(err error) {
	s.firstErrOnce.Do(func() {
		s.firstErr = err
		close(s.cancelled)
		for _, t := range s.Tasks {
			if t.currentPhase() != PhaseComplete {
				t.SetPhase(PhaseCancelled)
			}
		}
	})
}

func (s *Scheduler) recordMetric(name string, start time.Time, skipReason string) {
	elapsed := time.Since(start)

	s.metricsMu.Lock()
	s.Metrics = append(s.Metrics, RuleMetric{
		RuleName:   name,
		ElapsedMs:  elapsed.Milliseconds(),
		SkipReason: skipReason,
	})
	s.metricsMu.Unlock()

	outcome := "ok"
	switch skipReason {
	case "":
	case "error":
		outcome = "error"
	default:
		outcome = "skipped_" + skipReason
	}
	metrics.TasksExecuted.WithLabelValues(outcome).Inc()
	metrics.TaskDurationSeconds.Observe(elapsed.Seconds())
}
