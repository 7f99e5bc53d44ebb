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

// Package config loads the global ~/.spaces/config.yaml: store location
// overrides, default clone strategy, and max queue count, independent of
// any per-workspace settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configVersion = "1"

// Config is the ~/.spaces/config.yaml document.
type Config struct {
	Version        string `yaml:"version"`
	StorePath      string `yaml:"store_path,omitempty"`
	CloneStrategy  string `yaml:"clone_strategy,omitempty"` // worktree|default|blobless|shallow
	MaxQueueCount  int    `yaml:"max_queue_count,omitempty"`
	MetricsAddr    string `yaml:"metrics_addr,omitempty"` // non-empty enables the /metrics endpoint
}

// Default returns the built-in defaults applied when no config file exists.
func Default() *Config {
	return &Config{
		Version:       configVersion,
		CloneStrategy: "default",
		MaxQueueCount: 8,
	}
}

// Path returns $SPACES_HOME/.spaces/config.yaml (or $HOME/.spaces/config.yaml).
func Path() (string, error) {
	if home := os.Getenv("SPACES_HOME"); home != "" {
		return filepath.Join(home, ".spaces", "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".spaces", "config.yaml"), nil
}

// Load reads the global config, falling back to Default() if no file
// exists. An explicit path overrides the default resolution.
func Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create %q: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}
