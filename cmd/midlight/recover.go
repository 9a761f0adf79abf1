// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/midlightapp/midlight/internal/errors"
	"github.com/midlightapp/midlight/internal/ui"
	"github.com/midlightapp/midlight/pkg/checkpoint"
)

// runRecover dispatches 'midlight recover <subcommand> ...'.
func runRecover(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		recoverUsage()
		os.Exit(1)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "scan":
		runRecoverScan(rest, globals)
	case "apply":
		runRecoverApply(rest, globals)
	case "discard":
		runRecoverDiscard(rest, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown recover subcommand: %s\n", sub)
		recoverUsage()
		os.Exit(1)
	}
}

func recoverUsage() {
	fmt.Fprintf(os.Stderr, `Usage: midlight recover <subcommand> ...

Subcommands:
  scan              List every file with unsaved write-ahead-log content
  apply <file>       Write a file's WAL content back over the on-disk document
  discard <file>      Delete a file's WAL content without applying it

`)
}

func runRecoverScan(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("recover scan", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	w := openWorkspace(globals)
	entries, err := w.Recovery.CheckForRecovery()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(entries)
		return
	}

	if len(entries) == 0 {
		ui.Info("No files with pending recovery content.")
		return
	}

	ui.Header("Pending recovery")
	for _, e := range entries {
		fmt.Printf("  %s  %s\n", e.FileKey, e.WALTime.Format("2006-01-02T15:04:05Z07:00"))
	}
}

func runRecoverApply(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("recover apply", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		recoverUsage()
		os.Exit(1)
	}
	file := fs.Arg(0)

	w := openWorkspace(globals)
	loaded, err := w.LoadFromRecovery(file)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	res, err := w.Save(file, loaded.Doc, checkpoint.TriggerRestore)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if res.CheckpointCreated != nil {
		ui.Success(fmt.Sprintf("Applied recovery content for %s, checkpoint %s", file, res.CheckpointCreated.ID))
	} else {
		ui.Success(fmt.Sprintf("Applied recovery content for %s", file))
	}
}

func runRecoverDiscard(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("recover discard", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		recoverUsage()
		os.Exit(1)
	}
	file := fs.Arg(0)

	w := openWorkspace(globals)
	if err := w.DiscardRecovery(file); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	ui.Success(fmt.Sprintf("Discarded recovery content for %s", file))
}
