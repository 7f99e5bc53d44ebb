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
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// OCIRef describes an OCI registry reference fetched via the `oras` CLI
// rather than a direct HTTP GET.
type OCIRef struct {
	Reference     string // e.g. "ghcr.io/org/artifact:tag"
	DigestPointer string // JSON pointer into `oras manifest fetch` output, e.g. "/layers/0/digest"
	NamePointer   string // JSON pointer to the filename, e.g. "/layers/0/annotations/org.opencontainers.image.title"
}

// Resolved is what Pull produces: the canonical store URL to file the pull
// under, and the digest to verify against.
type Resolved struct {
	CanonicalURL string
	Digest       string
}

// Pull fetches the manifest, extracts digest and filename at the
// configured JSON pointers, invokes `oras pull`, then renames the pulled
// file to the canonical sha256-named store path so it rejoins the normal
// archive pipeline.
func (o *OCIRef) Pull(ctx context.Context, storePath string) (Resolved, error) {
	manifestOut, err := exec.CommandContext(ctx, "oras", "manifest", "fetch", o.Reference).Output()
	if err != nil {
		return Resolved{}, fmt.Errorf("oras manifest fetch %q: %w", o.Reference, err)
	}

	var manifest any
	if err := json.Unmarshal(manifestOut, &manifest); err != nil {
		return Resolved{}, fmt.Errorf("parse manifest for %q: %w", o.Reference, err)
	}

	digest, err := jsonPointer(manifest, o.DigestPointer)
	if err != nil {
		return Resolved{}, fmt.Errorf("extract digest from manifest (%s): %w", o.DigestPointer, err)
	}
	name, err := jsonPointer(manifest, o.NamePointer)
	if err != nil {
		return Resolved{}, fmt.Errorf("extract filename from manifest (%s): %w", o.NamePointer, err)
	}

	outDir := filepath.Join(storePath, "oci", sanitizeRef(o.Reference))
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return Resolved{}, fmt.Errorf("create %q: %w", outDir, err)
	}

	if out, err := exec.CommandContext(ctx, "oras", "pull", o.Reference, "--output", outDir).CombinedOutput(); err != nil {
		return Resolved{}, fmt.Errorf("oras pull %q: %w (%s)", o.Reference, err, strings.TrimSpace(string(out)))
	}

	pulledPath := filepath.Join(outDir, name)
	ext := driverExtension(name)
	digestShort := strings.TrimPrefix(digest, "sha256:")
	canonicalName := digestShort
	if ext != "" {
		canonicalName += "." + ext
	}
	canonicalPath := filepath.Join(outDir, canonicalName)
	if err := os.Rename(pulledPath, canonicalPath); err != nil {
		return Resolved{}, fmt.Errorf("rename pulled artifact %q -> %q: %w", pulledPath, canonicalPath, err)
	}

	return Resolved{CanonicalURL: "file://" + canonicalPath, Digest: digestShort}, nil
}

func sanitizeRef(ref string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(ref)
}

// jsonPointer resolves an RFC 6901-lite pointer ("/a/0/b") against an
// already-decoded JSON value.
func jsonPointer(v any, pointer string) (string, error) {
	if pointer == "" {
		return "", fmt.Errorf("empty pointer")
	}
	cur := v
	for _, part := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return "", fmt.Errorf("no such key %q", part)
			}
			cur = next
		case []any:
			idx := 0
			if _, err := fmt.Sscanf(part, "%d", &idx); err != nil {
				return "", fmt.Errorf("invalid array index %q", part)
			}
			if idx < 0 || idx >= len(node) {
				return "", fmt.Errorf("index %d out of range", idx)
			}
			cur = node[idx]
		default:
			return "", fmt.Errorf("cannot descend into %T at %q", cur, part)
		}
	}
	s, ok := cur.(string)
	if !ok {
		return "", fmt.Errorf("value at %q is not a string", pointer)
	}
	return s, nil
}
