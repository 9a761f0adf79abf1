// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"log/slog"
	"os"

	"github.com/midlightapp/midlight/internal/errors"
	"github.com/midlightapp/midlight/pkg/workspace"
)

// openWorkspace resolves the current directory's Workspace, exiting the
// process with a formatted error on failure. Every subcommand but "init"
// calls this first.
func openWorkspace(globals GlobalFlags) *workspace.Workspace {
	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError("cannot access working directory", "", "", err), globals.JSON)
	}

	logLevel := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		logLevel = slog.LevelDebug
	case globals.Verbose == 1:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	w, err := workspace.Open(cwd, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	return w
}
