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

package main

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/spaces/pkg/engine"
	"github.com/kraklabs/spaces/pkg/procexec"
	"github.com/kraklabs/spaces/pkg/scheduler"
)

// runRun executes the Run phase, optionally scoped to a single target. Any
// arguments following a literal "--" are appended to the target's exec
// invocation, letting a caller pass e.g. test filters straight through.
func runRun(args []string, g globalFlags) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	target := fs.String("target", "", "Limit the run to this rule and its dependencies")
	if err := fs.Parse(args); err != nil {
		return fail("%v", err)
	}

	var extraArgs []string
	if dash := fs.ArgsLenAtDash(); dash >= 0 {
		extraArgs = fs.Args()[dash:]
	}

	root, relative, err := findWorkspaceRoot()
	if err != nil {
		return fail("%v", err)
	}

	e, err := engine.Open(root, relative, 0)
	if err != nil {
		return fail("%v", err)
	}

	scripts := e.Workspace.Settings.Order
	if len(scripts) == 0 {
		return fail("workspace at %s has no recorded rule modules; run 'spaces checkout' first", root)
	}
	if err := e.LoadModules(scripts); err != nil {
		return fail("%v", err)
	}

	if len(extraArgs) > 0 {
		if *target == "" {
			return fail("-- extra arguments require --target")
		}
		task, ok := e.Tasks[*target]
		if !ok {
			return fail("unknown target %q", *target)
		}
		if procExec, ok := task.Executor.(*procexec.Executor); ok {
			procExec.Command = append(append([]string{}, procExec.Command...), extraArgs...)
		} else {
			return fail("--  extra arguments only apply to exec-subprocess targets")
		}
	}

	ctx := context.Background()
	if err := e.RunPhase(ctx, *target, scheduler.PhaseRun); err != nil {
		return fail("run failed: %v", err)
	}

	if err := e.Workspace.SaveMetrics(); err != nil {
		return fail("save workspace metrics: %v", err)
	}

	colorSuccess.Println("run complete")
	return 0
}
