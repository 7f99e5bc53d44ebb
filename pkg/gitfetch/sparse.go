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

package gitfetch

import (
	"encoding/hex"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

// sparseCheckoutHash returns a short Blake3-hex fingerprint of a sorted
// sparse-checkout config, used as the "+<sparse-hash>" suffix
// distinguishing store/cow clones of the same repo with different sparse
// configurations. An empty config hashes to "".
func sparseCheckoutHash(cfg []string) string {
	if len(cfg) == 0 {
		return ""
	}
	sorted := append([]string(nil), cfg...)
	sort.Strings(sorted)

	h := blake3.New(16, nil)
	h.Write([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}
