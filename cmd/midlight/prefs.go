// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// cliPrefs holds optional per-project CLI display preferences, read from
// .midlight/cli.yaml the same way the teacher reads .cie/project.yaml:
// file-based defaults that an explicit flag always overrides.
type cliPrefs struct {
	JSON    bool `yaml:"json"`
	NoColor bool `yaml:"no_color"`
}

// loadCLIPrefs reads .midlight/cli.yaml in dir if present. A missing file is
// not an error: it just means no overrides apply.
func loadCLIPrefs(dir string) cliPrefs {
	path := filepath.Join(dir, ".midlight", "cli.yaml")
	data, err := os.ReadFile(path) //nolint:gosec // dir is the process's own working directory
	if err != nil {
		return cliPrefs{}
	}
	var p cliPrefs
	if err := yaml.Unmarshal(data, &p); err != nil {
		return cliPrefs{}
	}
	return p
}
