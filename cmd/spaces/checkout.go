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
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/spaces/pkg/config"
	"github.com/kraklabs/spaces/pkg/engine"
	"github.com/kraklabs/spaces/pkg/scheduler"
	"github.com/kraklabs/spaces/pkg/workspace"
)

func runCheckout(args []string, g globalFlags) int {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	name := fs.String("name", "", "Workspace directory to create")
	script := fs.String("script", "", "Comma-separated list of rule-module files to load first")
	maxQueue := fs.Int("max-queue", 0, "Maximum concurrent checkout tasks (default from config)")
	if err := fs.Parse(args); err != nil {
		return fail("%v", err)
	}
	if *maxQueue == 0 {
		if cfg, err := config.Load(g.Config); err == nil {
			*maxQueue = cfg.MaxQueueCount
		}
	}

	if *name == "" || *script == "" {
		return fail("checkout requires --name and --script")
	}

	absName, err := filepath.Abs(*name)
	if err != nil {
		return fail("resolve workspace path: %v", err)
	}
	if err := os.MkdirAll(absName, 0o750); err != nil {
		return fail("create workspace directory %q: %v", absName, err)
	}

	e, err := engine.Open(absName, ".", *maxQueue)
	if err != nil {
		return fail("%v", err)
	}

	scripts := splitAndResolve(*script, absName)
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

	ledger, err := workspace.OpenLedger(e.Store.Root)
	if err == nil {
		_ = ledger.Register(workspace.Record{
			Name:         filepath.Base(absName),
			AbsolutePath: absName,
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		})
	}

	colorSuccess.Printf("checked out workspace at %s\n", absName)
	return 0
}

func splitAndResolve(list, workspaceDir string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !filepath.IsAbs(part) {
			part = filepath.Join(workspaceDir, part)
		}
		out = append(out, part)
	}
	return out
}

func order(known map[string]bool) []string {
	out := make([]string, 0, len(known))
	for k := range known {
		out = append(out, k)
	}
	return out
}
