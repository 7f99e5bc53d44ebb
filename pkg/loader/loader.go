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

// Package loader reads rule-module files (*.spaces.yaml) into Rule
// declarations plus their executor definitions. The embedded
// scripting-language interpreter that the original tool uses to let users
// write rule modules as code is treated as an opaque, external layer (its
// output — a flat list of rule declarations — is the loader's actual
// input); this package is the declarative consumer side of that
// boundary, styled on the teacher's own yaml.v3 config-loading convention.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/spaces/pkg/rules"
)

// GitSpec declares a git-fetch checkout rule's executor.
type GitSpec struct {
	URL              string   `yaml:"url"`
	Rev              string   `yaml:"rev"`
	NewBranch        string   `yaml:"new_branch,omitempty"`
	SparseCheckout   []string `yaml:"sparse_checkout,omitempty"`
	Strategy         string   `yaml:"strategy,omitempty"` // worktree|default|blobless|shallow
	Destination      string   `yaml:"destination"`
}

// ArchiveSpec declares an HTTP/OCI archive checkout rule's executor.
type ArchiveSpec struct {
	URL         string   `yaml:"url"`
	SHA256      string   `yaml:"sha256,omitempty"`
	StripPrefix string   `yaml:"strip_prefix,omitempty"`
	AddPrefix   string   `yaml:"add_prefix,omitempty"`
	Includes    []string `yaml:"includes,omitempty"`
	Excludes    []string `yaml:"excludes,omitempty"`
	Link        string   `yaml:"link,omitempty"` // hard|none
	OCI         *struct {
		Reference     string `yaml:"reference"`
		DigestPointer string `yaml:"digest_pointer"`
		NamePointer   string `yaml:"name_pointer"`
	} `yaml:"oci,omitempty"`
}

// ExecSpec declares a Run-phase subprocess rule's executor.
type ExecSpec struct {
	Command []string          `yaml:"command"`
	Dir     string            `yaml:"dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Expect  string            `yaml:"expect,omitempty"` // success|failure|any
	Timeout int               `yaml:"timeout_seconds,omitempty"`
}

// KillSpec declares a kill-subprocess rule's executor.
type KillSpec struct {
	PIDFile string `yaml:"pid_file"`
}

// AssetSpec declares an add/update-asset rule's executor.
type AssetSpec struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
	Mode    uint32 `yaml:"mode,omitempty"`
}

// LinkSpec declares an add-hard-link/add-soft-link rule's executor.
type LinkSpec struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Soft   bool   `yaml:"soft,omitempty"`
}

// EnvSpec declares an update-env rule's executor.
type EnvSpec struct {
	Vars map[string]string `yaml:"vars"`
}

// ArchiveCreateSpec declares a create-archive rule's executor.
type ArchiveCreateSpec struct {
	Sources     []string `yaml:"sources"`
	Destination string   `yaml:"destination"`
}

// RuleDecl is one entry in a rule module's `rules:` list: the declarative
// Rule fields plus exactly one populated executor spec.
type RuleDecl struct {
	Name             string   `yaml:"name"`
	Type             string   `yaml:"type,omitempty"`
	Deps             []string `yaml:"deps,omitempty"`
	Inputs           []string `yaml:"inputs,omitempty"`
	Outputs          []string `yaml:"outputs,omitempty"`
	Platforms        []string `yaml:"platforms,omitempty"`
	Help             string   `yaml:"help,omitempty"`
	WorkingDirectory string   `yaml:"working_directory,omitempty"`

	Git           *GitSpec           `yaml:"git,omitempty"`
	Archive       *ArchiveSpec       `yaml:"archive,omitempty"`
	Exec          *ExecSpec          `yaml:"exec,omitempty"`
	Kill          *KillSpec          `yaml:"kill,omitempty"`
	Asset         *AssetSpec         `yaml:"asset,omitempty"`
	Link          *LinkSpec          `yaml:"link,omitempty"`
	Env           *EnvSpec           `yaml:"env,omitempty"`
	ArchiveCreate *ArchiveCreateSpec `yaml:"create_archive,omitempty"`
	NoOp          bool               `yaml:"noop,omitempty"`
}

// Module is one parsed rule-module file.
type Module struct {
	Path  string
	Dir   string // scriptDir used for name sanitization: Path's directory, relative-path-style
	Rules []RuleDecl
}

// Load parses a single rule-module file.
func Load(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule module %q: %w", path, err)
	}

	var doc struct {
		Rules []RuleDecl `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rule module %q: %w", path, err)
	}

	return &Module{
		Path:  path,
		Dir:   "//" + filepath.ToSlash(filepath.Dir(path)),
		Rules: doc.Rules,
	}, nil
}

// ToRule converts a declaration's shared fields into a rules.Rule; the
// caller binds the matching executor spec to a scheduler.Task separately
// (pkg/engine owns that wiring since it alone has the store/workspace
// context an executor needs).
func (d RuleDecl) ToRule() rules.Rule {
	t := rules.Type(d.Type)
	if t == "" {
		t = rules.TypeRun
	}
	return rules.Rule{
		Name:             d.Name,
		Type:             t,
		Deps:             d.Deps,
		Inputs:           d.Inputs,
		Outputs:          d.Outputs,
		Platforms:        d.Platforms,
		Help:             d.Help,
		WorkingDirectory: d.WorkingDirectory,
	}
}
