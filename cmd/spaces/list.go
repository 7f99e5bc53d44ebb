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

	"github.com/kraklabs/spaces/pkg/store"
	"github.com/kraklabs/spaces/pkg/workspace"
)

// runList enumerates every workspace ever checked out against this store,
// dropping entries whose directory no longer exists on disk.
func runList(args []string, g globalFlags) int {
	st, err := store.Open()
	if err != nil {
		return fail("%v", err)
	}

	ledger, err := workspace.OpenLedger(st.Root)
	if err != nil {
		return fail("%v", err)
	}

	records := ledger.List()

	if g.JSON {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fail("%v", err)
		}
		fmt.Println(string(data))
		return 0
	}

	if len(records) == 0 {
		colorInfo.Println("no workspaces registered")
		return 0
	}
	for _, rec := range records {
		fmt.Printf("%s\t%s\t%s\n", rec.Name, rec.AbsolutePath, rec.CreatedAt)
	}
	return 0
}
