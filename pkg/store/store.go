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

package store

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Store is the content-addressed cache rooted at $SPACES_HOME/.spaces/store
// (or $HOME/.spaces/store). It owns the store manifest and hands out file
// locks scoped to paths beneath its root.
type Store struct {
	Root     string
	Manifest *Manifest
}

// Open resolves the store root (SPACES_HOME env var, else $HOME) and loads
// its manifest, creating the root directory if necessary.
func Open() (*Store, error) {
	root, err := DefaultRoot()
	if err != nil {
		return nil, err
	}
	return OpenAt(root)
}

// DefaultRoot returns $SPACES_HOME/.spaces/store, falling back to
// $HOME/.spaces/store.
func DefaultRoot() (string, error) {
	if home := os.Getenv("SPACES_HOME"); home != "" {
		return filepath.Join(home, ".spaces", "store"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".spaces", "store"), nil
}

// OpenAt opens (creating if absent) a store rooted at the given path.
func OpenAt(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create store root %q: %w", root, err)
	}
	manifest, err := LoadManifest(root)
	if err != nil {
		return nil, err
	}
	return &Store{Root: root, Manifest: manifest}, nil
}

// BareGitPath returns the store-relative path of the bare repository for
// url, e.g. "https/github.com/kraklabs/spaces.git".
func (s *Store) BareGitPath(rawURL string) (string, error) {
	scheme, host, path, err := urlToSchemeHostPath(rawURL)
	if err != nil {
		return "", err
	}
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".git") {
		name += ".git"
	}
	dir := filepath.Join(scheme, host, filepath.Dir(path))
	return filepath.Join(dir, name), nil
}

// CowGitPath returns the store-relative path of the copy-on-write local
// clone used as the upstream for workspace working copies. sparseHash, if
// non-empty, is appended as a "+<hash>" suffix distinguishing clones with
// different sparse-checkout configurations of the same repo.
func (s *Store) CowGitPath(rawURL, sparseHash string) (string, error) {
	bare, err := s.BareGitPath(rawURL)
	if err != nil {
		return "", err
	}
	if sparseHash != "" {
		bare = bare + "+" + sparseHash
	}
	return filepath.Join("cow", bare), nil
}

// ArchiveRelPath returns the store-relative directory for an archive URL
// (not including the sha256-named file itself): "<scheme>/<host>/<path>".
func (s *Store) ArchiveRelPath(rawURL string) (string, error) {
	scheme, host, path, err := urlToSchemeHostPath(rawURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(scheme, host, path), nil
}

// urlToSchemeHostPath implements the store's url_to_relative_path_and_name
// decomposition: scheme, host, and url path, independent of the `.git`
// bookkeeping BareGitPath layers on top.
func urlToSchemeHostPath(rawURL string) (scheme, host, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", "", "", fmt.Errorf("no host in url %q", rawURL)
	}
	return u.Scheme, u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// Lock returns a new cross-process FileLock guarding relPath beneath the
// store root.
func (s *Store) Lock(relPath string) *FileLock {
	return NewFileLock(filepath.Join(s.Root, relPath))
}

// Touch records relPath as freshly used in the store manifest.
func (s *Store) Touch(relPath string) error {
	return s.Manifest.AddEntry(relPath)
}
