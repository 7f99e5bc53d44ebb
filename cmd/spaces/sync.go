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

	"github.com/kraklabs/spaces/pkg/config"
	"github.com/kraklabs/spaces/pkg/engine"
	"github.com/kraklabs/spaces/pkg/scheduler"
)

// runSync re-resolves an existing workspace in place: it reloads the same
// rule modules recorded at checkout time and re-runs the checkout and
// post-checkout phases, picking up any upstream changes without recreating
// the workspace directory.
func runSync(args []string, g globalFlags) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	maxQueue := fs.Int("max-queue", 0, "Maximum concurrent checkout tasks (default from config)")
	if err := fs.Parse(args); err != nil {
		return fail("%v", err)
	}
	if *maxQueue == 0 {
		if cfg, err := config.Load(g.Config); err == nil {
			*maxQueue = cfg.MaxQueueCount
		}
	}

	root, relative, err := findWorkspaceRoot()
	if err != nil {
		return fail("%v", err)
	}

	e, err := engine.Open(root, relative, *maxQueue)
	if err != nil {
		return fail("%v", err)
	}

	scripts := e.Workspace.Settings.Order
	if len(scripts) == 0 {
		return fail("workspace at %s has no recorded rule modules; run 'spaces checkout' first", root)
	}

	known := map[string]bool{}
	for _, s := range scripts {
		known[s] = true
	}

	if err := e.LoadModules(scripts); err != nil {
		return fail("%v", err)
	}

	ctx := context.Background()
	if err := e.RunPhase(ctx, "", scheduler.PhaseCheckout); err != nil {
		return fail("checkout failed: %v", err)
	}

	for {
		fresh := e.NewlyDiscoveredModules(known)
		if len(fresh) == 0 {
			break
		}
		if err := e.LoadModules(fresh); err != nil {
			return fail("%v", err)
		}
		if err := e.RunPhase(ctx, "", scheduler.PhaseCheckout); err != nil {
			return fail("checkout failed: %v", err)
		}
	}

	if _, err := e.Workspace.NewLogDirectory(); err != nil {
		return fail("%v", err)
	}

	if err := e.RunPhase(ctx, "", scheduler.PhasePostCheckout); err != nil {
		return fail("post-checkout failed: %v", err)
	}

	e.Workspace.Settings.Order = order(known)
	e.Workspace.Settings.SpacesVersion = version
	if err := e.Workspace.Save(); err != nil {
		return fail("save workspace settings: %v", err)
	}
	if err := e.Workspace.SaveMetrics(); err != nil {
		return fail("save workspace metrics: %v", err)
	}

	colorSuccess.Printf("synced workspace at %s\n", root)
	return 0
}
