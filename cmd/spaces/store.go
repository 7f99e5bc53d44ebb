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
	"github.com/kraklabs/spaces/pkg/archive"
	"github.com/kraklabs/spaces/pkg/store"
)

func runStore(args []string, g globalFlags) int {
	if len(args) == 0 {
		return fail("store requires a subcommand: fix or info")
	}

	st, err := store.Open()
	if err != nil {
		return fail("%v", err)
	}

	switch args[0] {
	case "info":
		if fixNeeded := st.Manifest.ShowInfo(); fixNeeded {
			colorWarn.Println("store has stale or missing entries; run `spaces store fix`")
		} else {
			colorSuccess.Println("store is clean")
		}
		return 0

	case "fix":
		st.Manifest.Fix(archive.CheckDownloadedArchive)
		if err := st.Manifest.Save(); err != nil {
			return fail("%v", err)
		}
		colorSuccess.Println("store fixed")
		return 0

	default:
		return fail("unknown store subcommand %q", args[0])
	}
}
