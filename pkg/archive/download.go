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
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

const maxRedirects = 16

// Download streams the archive's URL to a tempfile beside the final
// destination, then renames it into place. Concurrent downloads of the
// same URL are harmless: the final rename is last-writer-wins.
func (h *HttpArchive) Download(ctx context.Context) error {
	if parent := filepath.Dir(h.fullPathToArchive); parent != "." {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("create %q: %w", parent, err)
		}
	}

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.archive.URL, nil)
	if err != nil {
		return fmt.Errorf("build request for %q: %w", h.archive.URL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %q: %w", h.archive.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %q: unexpected status %s", h.archive.URL, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.fullPathToArchive), ".download-*")
	if err != nil {
		return fmt.Errorf("create tempfile for %q: %w", h.archive.URL, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("download %q: %w", h.archive.URL, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close tempfile for %q: %w", h.archive.URL, err)
	}

	if err := os.Rename(tmpPath, h.fullPathToArchive); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place %q: %w", h.fullPathToArchive, err)
	}
	return nil
}

// Sync downloads (if required), verifies, and extracts (if required).
func (h *HttpArchive) Sync(ctx context.Context) error {
	if h.IsDownloadRequired() {
		if err := h.Download(ctx); err != nil {
			return err
		}
		if err := h.Verify(); err != nil {
			return err
		}
	}
	return h.Extract(ctx)
}
