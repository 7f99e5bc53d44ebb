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

// Package rules holds the Rule type the loader yields into the engine, and
// the name-sanitization logic applied before a rule enters the registry.
package rules

// Type is the phase-relevant classification of a rule.
type Type string

const (
	TypeSetup     Type = "setup"
	TypeRun       Type = "run"
	TypeOptional  Type = "optional"
	TypeTest      Type = "test"
	TypeClean     Type = "clean"
	TypePreCommit Type = "pre_commit"
)

// Rule is a named, declarative description of work. Rule names are
// globally unique within an invocation and take the form "//<path>:<local>".
type Rule struct {
	Name string
	Type Type

	// Deps are textual dependencies: other rule names, or glob dependencies
	// prefixed "+" (include) / "-" (exclude).
	Deps []string

	Inputs    []string // include/exclude globs gating re-run
	Outputs   []string // include/exclude globs of produced paths
	Platforms []string // empty means "all platforms"
	Help      string

	// WorkingDirectory, if set and not rooted at "//", is prefixed with the
	// loading script's directory during sanitization.
	WorkingDirectory string
}

// IsDepRule reports whether dep names another rule (as opposed to a glob
// dependency prefixed "+"/"-").
func IsDepRule(dep string) bool {
	return len(dep) == 0 || (dep[0] != '+' && dep[0] != '-')
}
