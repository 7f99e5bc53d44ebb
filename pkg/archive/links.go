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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// CreateLinks hard-links (when a.Link is LinkHard) every extracted file
// matched by the archive's include/exclude globs into
// <workspaceDir>/<add_prefix or space_directory>/<strip_prefix'd path>.
// Directory entries are skipped, not symlinked; the files beneath them are
// linked one by one.
func (h *HttpArchive) CreateLinks(workspaceDir, spaceDirectory string) error {
	allFiles, err := h.loadFilesManifest()
	if err != nil {
		return fmt.Errorf("load files manifest: %w", err)
	}

	files := filterFiles(allFiles, h.archive.Includes, h.archive.Excludes)

	targetPrefix := filepath.Join(workspaceDir, spaceDirectory)
	if h.archive.AddPrefix != "" {
		targetPrefix = filepath.Join(workspaceDir, h.archive.AddPrefix)
	}

	for _, file := range files {
		source := filepath.Join(h.PathToExtractedFiles(), file)
		if info, statErr := os.Lstat(source); statErr == nil && info.IsDir() {
			continue
		}

		relTarget := file
		if h.archive.StripPrefix != "" {
			stripped, ok := strings.CutPrefix(file, h.archive.StripPrefix)
			if !ok {
				continue
			}
			relTarget = strings.TrimPrefix(stripped, "/")
		}

		targetPath := filepath.Join(targetPrefix, relTarget)

		switch h.archive.Link {
		case LinkHard:
			if err := CreateHardLink(targetPath, source); err != nil {
				return fmt.Errorf("hard link %q -> %q: %w", targetPath, source, err)
			}
		case LinkNone:
		}
	}
	return nil
}

func filterFiles(all, includes, excludes []string) []string {
	var matched []string
	for _, file := range all {
		isMatch := len(includes) == 0
		for _, pattern := range includes {
			if ok, _ := doublestar.Match(pattern, file); ok {
				isMatch = true
				break
			}
		}
		if isMatch {
			matched = append(matched, file)
		}
	}

	if len(excludes) == 0 {
		return matched
	}
	var out []string
	for _, file := range matched {
		excluded := false
		for _, pattern := range excludes {
			if ok, _ := doublestar.Match(pattern, file); ok {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, file)
		}
	}
	return out
}
