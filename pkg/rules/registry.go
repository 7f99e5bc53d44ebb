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

package rules

import (
	"fmt"
	"log/slog"
	"strings"
)

// Registry collects sanitized Rule declarations from the loader, keyed by
// their globally-unique sanitized name.
type Registry struct {
	rules    map[string]*Rule
	warnings []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: map[string]*Rule{}}
}

// Sanitize rewrites rule in place per spec §4.5: the rule name and every
// textual rule-dependency are prefixed with scriptDir when they do not
// already start with "//"; input globs of the form "+//..." / "-//..." are
// rewritten workspace-root-relative ("+..." / "-...").
func Sanitize(rule *Rule, scriptDir string) {
	rule.Name = sanitizeName(rule.Name, scriptDir)

	for i, dep := range rule.Deps {
		if IsDepRule(dep) {
			rule.Deps[i] = sanitizeName(dep, scriptDir)
		}
	}

	for i, glob := range rule.Inputs {
		rule.Inputs[i] = sanitizeGlob(glob)
	}

	if rule.WorkingDirectory != "" && !strings.HasPrefix(rule.WorkingDirectory, "//") {
		rule.WorkingDirectory = scriptDir + "/" + rule.WorkingDirectory
	}
}

func sanitizeName(name, scriptDir string) string {
	if strings.HasPrefix(name, "//") {
		return name
	}
	sep := ":"
	if strings.Contains(name, ":") {
		sep = "/"
	}
	return scriptDir + sep + name
}

// sanitizeGlob rewrites a "+//..."/"-//..." glob to be workspace-root
// relative ("+..."/"-..."). The full-workspace glob warning is raised by
// Insert, not here.
func sanitizeGlob(glob string) string {
	if len(glob) < 2 {
		return glob
	}
	prefix, rest := glob[:1], glob[1:]
	if (prefix == "+" || prefix == "-") && strings.HasPrefix(rest, "//") {
		return prefix + strings.TrimPrefix(rest, "//")
	}
	return glob
}

// Insert sanitizes rule against scriptDir and adds it to the registry. It
// is a hard error to insert a rule whose sanitized name already exists.
func (r *Registry) Insert(rule Rule, scriptDir string) error {
	Sanitize(&rule, scriptDir)

	if _, exists := r.rules[rule.Name]; exists {
		return fmt.Errorf("duplicate rule name %q", rule.Name)
	}

	for _, glob := range rule.Inputs {
		if strings.HasPrefix(glob, "+**") {
			r.warnings = append(r.warnings, fmt.Sprintf("rule %q declares a full-workspace input glob %q — this is a performance hazard", rule.Name, glob))
		}
	}

	r.rules[rule.Name] = &rule
	slog.Debug("rules.registry.insert", "rule", rule.Name, "type", rule.Type)
	return nil
}

// Get returns the rule with the given sanitized name, if any.
func (r *Registry) Get(name string) (*Rule, bool) {
	rule, ok := r.rules[name]
	return rule, ok
}

// All returns every registered rule, in no particular order.
func (r *Registry) All() []*Rule {
	out := make([]*Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	return out
}

// Warnings returns deferred warnings accumulated during Insert.
func (r *Registry) Warnings() []string {
	return r.warnings
}
