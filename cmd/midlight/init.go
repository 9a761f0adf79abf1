// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/midlightapp/midlight/internal/ui"
)

// runInit executes the 'init' CLI command, creating ".midlight/" in the
// current directory with its default configuration and subdirectories.
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: midlight init [options]

Description:
  Create a .midlight/ directory in the current working directory with
  its default configuration (config.json) and the object/image/
  checkpoint/draft/recovery/sidecar subdirectories.

  Safe to run more than once: an existing .midlight/ is left untouched
  other than filling in any missing subdirectory.

`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	w := openWorkspace(globals)
	_ = w

	cwd, _ := os.Getwd()
	ui.Success(fmt.Sprintf("Initialized .midlight/ in %s", cwd))
	addToGitignore(cwd)
}

// addToGitignore adds ".midlight/" to the project's .gitignore if present
// and not already listed, mirroring the teacher's init-time convenience.
func addToGitignore(dir string) {
	path := filepath.Join(dir, ".gitignore")
	content, err := os.ReadFile(path) //nolint:gosec // dir is the process's own working directory
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == ".midlight/" || line == ".midlight" || line == "/.midlight/" || line == "/.midlight" {
			return
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // dir is the process's own working directory
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, _ = f.WriteString("\n")
	}
	_, _ = f.WriteString("\n# midlight local state\n.midlight/\n")
	ui.Info("Added .midlight/ to .gitignore")
}
