// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/midlightapp/midlight/internal/errors"
	"github.com/midlightapp/midlight/internal/ui"
)

// runReset executes 'midlight reset', deleting the current project's entire
// .midlight/ directory: every object, image, checkpoint, draft, recovery
// log, and sidecar. Destructive and requires --yes.
func runReset(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	confirm := fs.Bool("yes", false, "Confirm the reset (required)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: midlight reset [options]

Description:
  WARNING: This is a destructive operation that deletes all local
  version history for the current project: every checkpoint, draft,
  stored image, and recovery log under .midlight/.

  Your Markdown documents themselves are not touched, but every
  saved checkpoint and draft becomes unrecoverable.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if !*confirm {
		errors.FatalError(errors.NewPreconditionError(
			"confirmation required",
			"the --yes flag is required to confirm this destructive operation",
			"run 'midlight reset --yes' to confirm",
		), globals.JSON)
	}

	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError("cannot access working directory", "", "", err), globals.JSON)
	}

	midlightDir := filepath.Join(cwd, ".midlight")
	if _, err := os.Stat(midlightDir); os.IsNotExist(err) {
		ui.Info("No .midlight directory found; nothing to reset.")
		return
	}

	if err := os.RemoveAll(midlightDir); err != nil {
		errors.FatalError(errors.NewIoError("cannot delete .midlight directory", midlightDir, "check filesystem permissions", err), globals.JSON)
	}

	ui.Success("Reset complete. All local version history has been deleted.")
}
