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
	"os"
	"path/filepath"

	"github.com/mholt/archiver/v4"
)

// Extract unpacks the archive into PathToExtractedFiles(), writing a
// <archive>_files.json manifest of every relative path it wrote. A raw (non-archive)
// download is treated as a single-file "extraction": the manifest lists
// just its own name.
func (h *HttpArchive) Extract(ctx context.Context) error {
	if !h.isExtractRequired() {
		return nil
	}
	if err := os.MkdirAll(h.PathToExtractedFiles(), 0o750); err != nil {
		return fmt.Errorf("create %q: %w", h.PathToExtractedFiles(), err)
	}

	if h.extension == "" {
		return h.saveFilesManifest([]string{filepath.Base(h.fullPathToArchive)})
	}

	src, err := os.Open(h.fullPathToArchive)
	if err != nil {
		return fmt.Errorf("open %q: %w", h.fullPathToArchive, err)
	}
	defer src.Close()

	format, stream, err := archiver.Identify(filepath.Base(h.fullPathToArchive), src)
	if err != nil {
		return fmt.Errorf("identify archive format for %q: %w", h.fullPathToArchive, err)
	}
	extractor, ok := format.(archiver.Extractor)
	if !ok {
		return fmt.Errorf("format for %q does not support extraction", h.fullPathToArchive)
	}

	destRoot := h.PathToExtractedFiles()
	var extracted []string

	err = extractor.Extract(ctx, stream, nil, func(ctx context.Context, f archiver.File) error {
		rel := f.NameInArchive
		extracted = append(extracted, rel)
		target := filepath.Join(destRoot, rel)

		if f.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}

		if f.LinkTarget != "" {
			return os.Symlink(f.LinkTarget, target)
		}

		r, err := f.Open()
		if err != nil {
			return fmt.Errorf("open archive member %q: %w", rel, err)
		}
		defer r.Close()

		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
		if err != nil {
			return fmt.Errorf("create %q: %w", target, err)
		}
		defer out.Close()

		if _, err := io.Copy(out, r); err != nil {
			return fmt.Errorf("write %q: %w", target, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("extract %q: %w", h.fullPathToArchive, err)
	}

	return h.saveFilesManifest(extracted)
}
