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

// Package changes implements the change-detection subsystem: glob-filtered
// file walks, modification-time fast paths, and Blake3 content hashing used
// to compute per-rule input digests.
package changes

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IsGlobInclude returns the bare pattern (with its "+" prefix stripped) if
// glob is an include pattern, or "", false if it is an exclude pattern
// ("-" prefix). An empty include ("+") is normalized to ".".
func IsGlobInclude(glob string) (string, bool) {
	if glob == "" {
		return "", false
	}
	if glob[0] == '-' {
		return "", false
	}
	rest := glob
	if glob[0] == '+' {
		rest = glob[1:]
	}
	if rest == "" {
		rest = "."
	}
	return rest, true
}

// MatchGlobs reports whether input is admitted by the given set of
// "+"/"-" prefixed glob patterns: at least one include pattern must match;
// if any exclude pattern also matches, the result flips to false.
func MatchGlobs(globs []string, input string) bool {
	input = strings.TrimPrefix(input, "./")

	for _, g := range globs {
		if !strings.HasPrefix(g, "+") {
			continue
		}
		pattern := strings.TrimPrefix(g, "+")
		ok, _ := doublestar.Match(pattern, input)
		if !ok {
			continue
		}
		for _, e := range globs {
			if !strings.HasPrefix(e, "-") {
				continue
			}
			excludePattern := strings.TrimPrefix(e, "-")
			if excluded, _ := doublestar.Match(excludePattern, input); excluded {
				return false
			}
		}
		return true
	}
	return false
}

// Validate requires every pattern to be "+"- or "-"-prefixed, and requires
// at least one include pattern to be present.
func Validate(globs []string) error {
	hasInclude := false
	for _, g := range globs {
		switch {
		case strings.HasPrefix(g, "+"):
			hasInclude = true
		case strings.HasPrefix(g, "-"):
		default:
			return fmt.Errorf("invalid glob pattern %q: must begin with '+' or '-'", g)
		}
	}
	if !hasInclude {
		return fmt.Errorf("if globs are specified, at least one must be an include (start with '+')")
	}
	return nil
}
