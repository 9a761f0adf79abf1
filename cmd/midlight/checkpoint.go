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
)

// runCheckpoint dispatches 'midlight checkpoint <subcommand> ...'.
func runCheckpoint(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		checkpointUsage()
		os.Exit(1)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		runCheckpointList(rest, globals)
	case "show":
		runCheckpointShow(rest, globals)
	case "restore":
		runCheckpointRestore(rest, globals)
	case "label":
		runCheckpointLabel(rest, globals)
	case "unlabel":
		runCheckpointUnlabel(rest, globals)
	case "delete":
		runCheckpointDelete(rest, globals)
	case "compare":
		runCheckpointCompare(rest, globals)
	case "diff":
		runCheckpointDiff(rest, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown checkpoint subcommand: %s\n", sub)
		checkpointUsage()
		os.Exit(1)
	}
}

func checkpointUsage() {
	fmt.Fprintf(os.Stderr, `Usage: midlight checkpoint <subcommand> ...

Subcommands:
  list <file>                   List a document's checkpoints, newest first
  show <file> <id>              Print a checkpoint's Markdown content
  restore <file> <id>           Restore a checkpoint as the new head
  label <file> <id> <label>     Turn an auto-checkpoint into a bookmark
  unlabel <file> <id>           Turn a bookmark back into an auto-checkpoint
  delete <file> <id>            Delete a checkpoint, reparenting its child
  compare <file> <id1> <id2>    Print two checkpoints' Markdown side by side
  diff <file> <id1> <id2>       Print a line diff between two checkpoints

`)
}

func runCheckpointList(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("checkpoint list", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		checkpointUsage()
		os.Exit(1)
	}
	file := fs.Arg(0)

	w := openWorkspace(globals)
	list, err := w.Checkpoints.List(file)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(list)
		return
	}

	ui.Header(fmt.Sprintf("Checkpoints: %s", file))
	for _, c := range list {
		label := ""
		if c.Label != "" {
			label = " " + ui.DimText("("+c.Label+")")
		}
		fmt.Printf("  %s  %-8s %-10s %s%s\n", c.ID, c.Type, c.Trigger, c.Timestamp, label)
	}
}

func runCheckpointShow(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("checkpoint show", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		checkpointUsage()
		os.Exit(1)
	}
	file, id := fs.Arg(0), fs.Arg(1)

	w := openWorkspace(globals)
	content, err := w.Checkpoints.Content(file, id)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	fmt.Print(content.Markdown)
}

func runCheckpointRestore(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("checkpoint restore", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		checkpointUsage()
		os.Exit(1)
	}
	file, id := fs.Arg(0), fs.Arg(1)

	w := openWorkspace(globals)
	content, err := w.Checkpoints.Restore(file, id)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	abs := file
	if err := os.WriteFile(abs, []byte(content.Markdown), 0o644); err != nil { //nolint:gosec // user-supplied project file path
		errors.FatalError(errors.NewIoError("cannot write restored document", abs, "check filesystem permissions", err), globals.JSON)
	}
	ui.Success(fmt.Sprintf("Restored %s from checkpoint %s", file, id))
}

func runCheckpointLabel(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("checkpoint label", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 3 {
		checkpointUsage()
		os.Exit(1)
	}
	file, id, label := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	w := openWorkspace(globals)
	ok, err := w.Checkpoints.Label(file, id, label)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if !ok {
		errors.FatalError(errors.NewNotFoundError("checkpoint not found", id, "", nil), globals.JSON)
	}
	ui.Success(fmt.Sprintf("Labeled %s as %q", id, label))
}

func runCheckpointUnlabel(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("checkpoint unlabel", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		checkpointUsage()
		os.Exit(1)
	}
	file, id := fs.Arg(0), fs.Arg(1)

	w := openWorkspace(globals)
	ok, err := w.Checkpoints.Unlabel(file, id)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if !ok {
		errors.FatalError(errors.NewNotFoundError("checkpoint not found", id, "", nil), globals.JSON)
	}
	ui.Success(fmt.Sprintf("Unlabeled %s", id))
}

func runCheckpointDelete(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("checkpoint delete", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		checkpointUsage()
		os.Exit(1)
	}
	file, id := fs.Arg(0), fs.Arg(1)

	w := openWorkspace(globals)
	ok, err := w.Checkpoints.Delete(file, id)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if !ok {
		errors.FatalError(errors.NewNotFoundError("checkpoint not found", id, "", nil), globals.JSON)
	}
	ui.Success(fmt.Sprintf("Deleted checkpoint %s", id))
}

func runCheckpointCompare(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("checkpoint compare", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 3 {
		checkpointUsage()
		os.Exit(1)
	}
	file, a, b := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	w := openWorkspace(globals)
	ca, cb, err := w.Checkpoints.Compare(file, a, b)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	ui.Header(fmt.Sprintf("--- %s ---", a))
	fmt.Print(ca.Markdown)
	fmt.Println()
	ui.Header(fmt.Sprintf("--- %s ---", b))
	fmt.Print(cb.Markdown)
}

func runCheckpointDiff(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("checkpoint diff", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 3 {
		checkpointUsage()
		os.Exit(1)
	}
	file, a, b := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	w := openWorkspace(globals)
	ca, cb, err := w.Checkpoints.Compare(file, a, b)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	printLineDiff(ca.Markdown, cb.Markdown)
}
