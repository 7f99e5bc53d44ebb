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

// Package engine wires the store, rule registry, dependency graph,
// scheduler, and workspace state together into a single explicit value —
// replacing the process-wide singletons the original tool relied on for
// the same concerns (its global store handle, global workspace state, and
// global rule registry).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kraklabs/spaces/pkg/archive"
	"github.com/kraklabs/spaces/pkg/changes"
	"github.com/kraklabs/spaces/pkg/gitfetch"
	"github.com/kraklabs/spaces/pkg/graph"
	"github.com/kraklabs/spaces/pkg/loader"
	"github.com/kraklabs/spaces/pkg/ops"
	"github.com/kraklabs/spaces/pkg/procexec"
	"github.com/kraklabs/spaces/pkg/rules"
	"github.com/kraklabs/spaces/pkg/scheduler"
	"github.com/kraklabs/spaces/pkg/store"
	"github.com/kraklabs/spaces/pkg/workspace"
)

// Engine is the single value an invocation threads through every phase.
type Engine struct {
	Store     *store.Store
	Workspace *workspace.State
	Registry  *rules.Registry
	Graph     *graph.Graph
	Tasks     map[string]*scheduler.Task

	MaxQueueCount  int
	EnabledOptions map[string]bool

	tracker *changes.Tracker
}

// Open constructs an Engine rooted at workspaceDir: opens (or creates) the
// content store, loads persisted workspace settings, and prepares an empty
// rule registry/graph ready for LoadModules.
func Open(workspaceDir, relativePath string, maxQueueCount int) (*Engine, error) {
	st, err := store.Open()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ws, err := workspace.Load(workspaceDir, relativePath)
	if err != nil {
		return nil, fmt.Errorf("load workspace state: %w", err)
	}
	ws.Settings.StorePath = st.Root

	return &Engine{
		Store:          st,
		Workspace:      ws,
		Registry:       rules.NewRegistry(),
		Graph:          graph.New(),
		Tasks:          map[string]*scheduler.Task{},
		MaxQueueCount:  maxQueueCount,
		EnabledOptions: map[string]bool{},
		tracker:        changes.NewTracker(workspaceDir, nil),
	}, nil
}

// LoadModules parses each rule-module file, sanitizes its rules into the
// registry, and binds each rule to a scheduler.Task wrapping the
// appropriate executor. Newly discovered modules returned by a checkout
// task (TaskResult.NewRuleModules) should be fed back through this same
// method as checkout tasks complete.
func (e *Engine) LoadModules(paths []string) error {
	for _, path := range paths {
		mod, err := loader.Load(path)
		if err != nil {
			return err
		}
		scriptDir := mod.Dir

		for _, decl := range mod.Rules {
			rule := decl.ToRule()
			if err := e.Registry.Insert(rule, scriptDir); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			inserted, _ := e.Registry.Get(rule.Name)

			exec, phase, err := e.bindExecutor(decl, inserted)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			e.Graph.AddTask(inserted.Name)
			e.Tasks[inserted.Name] = scheduler.NewTask(inserted, exec, phase)
		}
	}

	for name, task := range e.Tasks {
		for _, dep := range task.Rule.Deps {
			if !rules.IsDepRule(dep) {
				continue // glob dependency, not a graph edge
			}
			if !e.Graph.Has(dep) {
				return fmt.Errorf("rule %q depends on unknown rule %q", name, dep)
			}
			if err := e.Graph.AddDependency(name, dep); err != nil {
				return err
			}
		}
	}
	return nil
}

// bindExecutor constructs the concrete scheduler.Executor for decl, giving
// it the engine context (store, workspace) it needs.
func (e *Engine) bindExecutor(decl loader.RuleDecl, rule *rules.Rule) (scheduler.Executor, scheduler.Phase, error) {
	dest := rule.WorkingDirectory
	if dest != "" && strings.HasPrefix(dest, "//") {
		dest = filepath.Join(e.Workspace.AbsolutePath, strings.TrimPrefix(dest, "//"))
	}

	switch {
	case decl.Git != nil:
		g := decl.Git
		strategy := gitfetch.StrategyDefault
		if g.Strategy != "" {
			strategy = gitfetch.CloneStrategy(g.Strategy)
		}
		destination := g.Destination
		if destination != "" && !filepath.IsAbs(destination) {
			destination = filepath.Join(e.Workspace.AbsolutePath, destination)
		}
		return &gitfetch.Executor{
			URL:               g.URL,
			Rev:               g.Rev,
			NewBranch:         g.NewBranch,
			SparseCheckoutCfg: g.SparseCheckout,
			Strategy:          strategy,
			Destination:       destination,
			Store:             e.Store,
			Lock:              e.Workspace,
			Reproducibility:   e.Workspace,
		}, scheduler.PhaseCheckout, nil

	case decl.Archive != nil:
		a := decl.Archive
		spec := archive.Archive{
			URL:         a.URL,
			SHA256:      a.SHA256,
			StripPrefix: a.StripPrefix,
			AddPrefix:   a.AddPrefix,
			Includes:    a.Includes,
			Excludes:    a.Excludes,
			Link:        archive.LinkHard,
		}
		if a.Link == "none" {
			spec.Link = archive.LinkNone
		}
		ex := &archive.Executor{
			Archive:      spec,
			StorePath:    e.Store.Root,
			SpacesKey:    rule.Name,
			WorkspaceDir: e.Workspace.AbsolutePath,
		}
		if a.OCI != nil {
			ex.OCI = &archive.OCIRef{
				Reference:     a.OCI.Reference,
				DigestPointer: a.OCI.DigestPointer,
				NamePointer:   a.OCI.NamePointer,
			}
		}
		return ex, scheduler.PhaseCheckout, nil

	case decl.Exec != nil:
		x := decl.Exec
		expect := procexec.ExpectSuccess
		if x.Expect != "" {
			expect = procexec.Expectation(x.Expect)
		}
		dir := x.Dir
		if dir == "" {
			dir = dest
		}
		if dir == "" {
			dir = e.Workspace.AbsolutePath
		}
		return &procexec.Executor{
			Command: x.Command,
			Dir:     dir,
			Env:     mergeEnv(e.Workspace.ComposeEnv(), x.Env),
			Expect:  expect,
			Timeout: time.Duration(x.Timeout) * time.Second,
			LogDir:  e.Workspace.LogDirectory,
		}, scheduler.PhaseRun, nil

	case decl.Kill != nil:
		return &procexec.KillExecutor{PIDFile: decl.Kill.PIDFile}, scheduler.PhaseRun, nil

	case decl.Asset != nil:
		a := decl.Asset
		mode := os.FileMode(a.Mode)
		path := a.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(e.Workspace.AbsolutePath, path)
		}
		return &ops.AssetExecutor{
			Path:    path,
			Content: []byte(a.Content),
			Mode:    mode,
			State:   e.Workspace,
		}, scheduler.PhasePostCheckout, nil

	case decl.Link != nil:
		l := decl.Link
		target := l.Target
		if !filepath.IsAbs(target) {
			target = filepath.Join(e.Workspace.AbsolutePath, target)
		}
		return &ops.LinkExecutor{Source: l.Source, Target: target, Soft: l.Soft}, scheduler.PhasePostCheckout, nil

	case decl.Env != nil:
		return &ops.EnvExecutor{Vars: decl.Env.Vars, Env: e.Workspace.Env}, scheduler.PhasePostCheckout, nil

	case decl.ArchiveCreate != nil:
		c := decl.ArchiveCreate
		destination := c.Destination
		if !filepath.IsAbs(destination) {
			destination = filepath.Join(e.Workspace.AbsolutePath, destination)
		}
		return &ops.ArchiveCreateExecutor{Sources: c.Sources, Destination: destination}, scheduler.PhaseRun, nil

	default:
		return ops.NoOpExecutor{}, scheduler.PhaseRun, nil
	}
}

func mergeEnv(base map[string]string, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// RunPhase sorts tasks for the given phase (target-scoped if target is
// non-empty) and hands the order to a fresh Scheduler.
func (e *Engine) RunPhase(ctx context.Context, target string, phase scheduler.Phase) error {
	order, err := e.Graph.GetSortedTasks(target)
	if err != nil {
		return err
	}
	if target != "" {
		e.promoteOptionals(order)
	}

	e.assignDigests(order)

	sched := scheduler.NewScheduler(e.Graph, e.Tasks, e.tracker, e.inputsDigests(), e.MaxQueueCount)
	sched.EnabledOptions = e.EnabledOptions

	slog.Info("engine.phase.run", "phase", phase, "tasks", len(order))
	err = sched.Run(ctx, order, phase)
	for _, m := range sched.Metrics {
		e.Workspace.RecordMetric(workspace.RuleMetric{RuleName: m.RuleName, ElapsedMs: m.ElapsedMs, SkipReason: m.SkipReason})
	}
	return err
}

// NewlyDiscoveredModules returns the rule-module paths surfaced by checkout
// tasks' TaskResult that are not yet in known, adding each returned path to
// known.
func (e *Engine) NewlyDiscoveredModules(known map[string]bool) []string {
	var fresh []string
	for _, task := range e.Tasks {
		for _, path := range task.Result.NewRuleModules {
			if !known[path] {
				known[path] = true
				fresh = append(fresh, path)
			}
		}
	}
	return fresh
}

// promoteOptionals flips every Optional task reachable in order to enabled,
// per the target-scoped "Optional tasks on the path are included" rule.
func (e *Engine) promoteOptionals(order []string) {
	for _, name := range order {
		if task, ok := e.Tasks[name]; ok && task.Rule.Type == rules.TypeOptional {
			e.EnabledOptions[name] = true
		}
	}
}

// assignDigests computes each task's CalculateDigest in dependency order
// (order is already deps-first from GetSortedTasks).
func (e *Engine) assignDigests(order []string) {
	for _, name := range order {
		task, ok := e.Tasks[name]
		if !ok {
			continue
		}
		var depDigests []string
		for _, dep := range e.Graph.Deps(name) {
			if depTask, ok := e.Tasks[dep]; ok {
				depDigests = append(depDigests, depTask.Digest)
			}
		}
		task.CalculateDigest(depDigests)
	}
}

func (e *Engine) inputsDigests() map[string]string {
	digests := map[string]string{}
	if e.Workspace.Settings.Digest != "" {
		digests["//"] = e.Workspace.Settings.Digest
	}
	return digests
}
