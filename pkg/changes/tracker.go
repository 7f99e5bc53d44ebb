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

package changes

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lukechampine.com/blake3"
)

// DetailType discriminates what kind of filesystem entry an Entry records.
type DetailType int

const (
	DetailNone DetailType = iota
	DetailFile
	DetailSymlink
	DetailDirectory
)

// Entry is the per-path change record: the last observed modification time
// and a detail describing the entry's content. For files, Hash is
// authoritative; ModTime is only a fast-path filter.
type Entry struct {
	ModTime    time.Time
	Detail     DetailType
	Hash       string // hex Blake3, DetailFile only
	LinkTarget string // DetailSymlink only
}

// Tracker walks a workspace root, admitting paths via an include/exclude
// glob set, and maintains a map of per-path Entry records across runs.
type Tracker struct {
	Root        string
	SkipFolders map[string]bool
	Entries     map[string]Entry
}

// NewTracker returns a Tracker over root. ".git" and ".spaces" are always
// pruned, in addition to any names in skipFolders.
func NewTracker(root string, skipFolders []string) *Tracker {
	skip := map[string]bool{".git": true, ".spaces": true}
	for _, f := range skipFolders {
		skip[f] = true
	}
	return &Tracker{Root: root, SkipFolders: skip, Entries: map[string]Entry{}}
}

// IsModified reports whether now differs from stored: a missing stored
// time (no entry yet) or a missing current time (metadata read failed) is
// always reported modified, forcing a re-hash rather than risking a stale
// skip.
func IsModified(now, stored *time.Time) bool {
	if stored == nil || now == nil {
		return true
	}
	return !now.Equal(*stored)
}

// Refresh walks Root, admitting non-directory entries matched by globs
// (directories are walked, not recorded), and updates t.Entries: unchanged-mtime paths keep their stored
// detail, changed or new paths are re-read and (for files) re-hashed.
func (t *Tracker) Refresh(globs []string) error {
	seen := map[string]bool{}

	err := filepath.WalkDir(t.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(t.Root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if t.SkipFolders[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !MatchGlobs(globs, filepath.ToSlash(rel)) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Treat an unreadable entry as modified; it will be retried
			// next run rather than silently skipped.
			seen[rel] = true
			t.Entries[rel] = Entry{Detail: DetailNone}
			return nil
		}
		seen[rel] = true

		modTime := info.ModTime()
		existing, had := t.Entries[rel]
		if had && !IsModified(&modTime, ptrTime(existing.ModTime)) {
			return nil
		}

		entry := Entry{ModTime: modTime}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, lErr := os.Readlink(path)
			if lErr != nil {
				return fmt.Errorf("read symlink %q: %w", path, lErr)
			}
			entry.Detail = DetailSymlink
			entry.LinkTarget = target
		case info.Mode().IsRegular():
			hash, hErr := hashFile(path)
			if hErr != nil {
				return fmt.Errorf("hash %q: %w", path, hErr)
			}
			entry.Detail = DetailFile
			entry.Hash = hash
		default:
			entry.Detail = DetailDirectory
		}
		t.Entries[rel] = entry
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %q: %w", t.Root, err)
	}

	for rel := range t.Entries {
		if !seen[rel] {
			delete(t.Entries, rel)
		}
	}
	return nil
}

func ptrTime(t time.Time) *time.Time { return &t }

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Digest returns Blake3(seed || sorted(hashes of files matched by globs))
// hex-encoded. Sorting by path makes the digest deterministic regardless of
// map iteration order.
func (t *Tracker) Digest(seed string, globs []string) string {
	var paths []string
	for rel, entry := range t.Entries {
		if entry.Detail != DetailFile {
			continue
		}
		if !MatchGlobs(globs, filepath.ToSlash(rel)) {
			continue
		}
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	h := blake3.New(32, nil)
	h.Write([]byte(seed))
	for _, rel := range paths {
		h.Write([]byte(t.Entries[rel].Hash))
	}

	slog.Debug("changes.tracker.digest", "seed", seed, "matched_files", len(paths))
	return hex.EncodeToString(h.Sum(nil))
}
