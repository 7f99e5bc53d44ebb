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
	"encoding/json"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/spaces/pkg/engine"
)

// runEvaluate builds and prints the sorted task list across all phases,
// each task labelled with its phase, without executing anything, letting a
// caller inspect scheduling order
// and dependency resolution before committing to a real run.
func runEvaluate(args []string, g globalFlags) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	target := fs.String("target", "", "Limit evaluation to this rule and its dependencies")
	if err := fs.Parse(args); err != nil {
		return fail("%v", err)
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

	order, err := e.Graph.GetSortedTasks(*target)
	if err != nil {
		return fail("%v", err)
	}

	if g.JSON {
		data, err := json.MarshalIndent(order, "", "  ")
		if err != nil {
			return fail("%v", err)
		}
		fmt.Println(string(data))
		return 0
	}

	for _, name := range order {
		task := e.Tasks[name]
		fmt.Printf("%s  [%s]\n", name, task.Phase)
	}
	return 0
}
