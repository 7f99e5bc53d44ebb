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
	"fmt"
	"os"
	"path/filepath"
)

// findWorkspaceRoot walks up from the current directory looking for a
// ".spaces" directory, mirroring the teacher's config-file discovery walk.
func findWorkspaceRoot() (root, relative string, err error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("get working directory: %w", err)
	}
	start := dir

	for {
		if _, statErr := os.Stat(filepath.Join(dir, ".spaces")); statErr == nil {
			rel, relErr := filepath.Rel(dir, start)
			if relErr != nil {
				rel = "."
			}
			return dir, rel, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", "", fmt.Errorf("no .spaces workspace found in %q or any parent directory; run 'spaces checkout' first", start)
}

// scannedModules returns every rule module recorded in the workspace's
// persisted settings (populated by prior checkouts), in recorded order,
// resolving relative entries against root.
func scannedModules(order []string, root string) []string {
	out := make([]string, 0, len(order))
	for _, rel := range order {
		if filepath.IsAbs(rel) {
			out = append(out, rel)
			continue
		}
		out = append(out, filepath.Join(root, rel))
	}
	return out
}
