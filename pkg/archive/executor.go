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

package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kraklabs/spaces/pkg/scheduler"
)

// Executor is the HTTP/OCI archive task body.
type Executor struct {
	Archive        Archive
	StorePath      string
	SpacesKey      string
	WorkspaceDir   string
	SpaceDirectory string
	OCI            *OCIRef // non-nil selects the oras pull variant
}

var _ scheduler.Executor = (*Executor)(nil)

// Serialize returns the stable definition used as the task digest seed.
func (e *Executor) Serialize() []byte {
	out, _ := json.Marshal(e.Archive)
	return out
}

// Execute downloads/verifies/extracts the archive and links it into the
// workspace.
func (e *Executor) Execute(ctx context.Context, _ scheduler.Progress, ruleName string) (scheduler.TaskResult, error) {
	a := e.Archive
	if e.OCI != nil {
		resolved, err := e.OCI.Pull(ctx, e.StorePath)
		if err != nil {
			return scheduler.TaskResult{}, fmt.Errorf("oras pull for %q: %w", ruleName, err)
		}
		a.URL = resolved.CanonicalURL
		a.SHA256 = resolved.Digest
	}

	h, err := New(e.StorePath, e.SpacesKey, a)
	if err != nil {
		return scheduler.TaskResult{}, fmt.Errorf("resolve archive %q: %w", ruleName, err)
	}

	if err := h.Sync(ctx); err != nil {
		return scheduler.TaskResult{}, fmt.Errorf("sync archive %q: %w", ruleName, err)
	}
	if err := h.CreateLinks(e.WorkspaceDir, e.SpaceDirectory); err != nil {
		return scheduler.TaskResult{}, fmt.Errorf("link archive %q into workspace: %w", ruleName, err)
	}

	return scheduler.TaskResult{}, nil
}
