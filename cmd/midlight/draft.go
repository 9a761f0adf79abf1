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

// runDraft dispatches 'midlight draft <subcommand> ...'.
func runDraft(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		draftUsage()
		os.Exit(1)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "create":
		runDraftCreate(rest, globals)
	case "list":
		runDraftList(rest, globals)
	case "show":
		runDraftShow(rest, globals)
	case "apply":
		runDraftApply(rest, globals)
	case "discard":
		runDraftDiscard(rest, globals)
	case "delete":
		runDraftDelete(rest, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown draft subcommand: %s\n", sub)
		draftUsage()
		os.Exit(1)
	}
}

func draftUsage() {
	fmt.Fprintf(os.Stderr, `Usage: midlight draft <subcommand> ...

Subcommands:
  create <file> <name> [source-checkpoint-id]   Start a draft from the file's current head (or a given checkpoint)
  list <file>                                   List a document's drafts
  show <file> <draft-id>                        Print a draft's current head Markdown
  apply <file> <draft-id>                        Write the draft's head content back to the document and checkpoint it
  discard <file> <draft-id>                      Archive a draft without deleting it
  delete <file> <draft-id>                       Delete a draft's file entirely

`)
}

func runDraftCreate(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("draft create", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		draftUsage()
		os.Exit(1)
	}
	file, name := fs.Arg(0), fs.Arg(1)

	w := openWorkspace(globals)

	sourceID := fs.Arg(2)
	if sourceID == "" {
		head, err := w.Checkpoints.HeadID(file)
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		sourceID = head
	}

	var markdown, sidecar string
	if sourceID != "" {
		content, err := w.Checkpoints.Content(file, sourceID)
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		markdown, sidecar = content.Markdown, content.Sidecar
	}

	d, err := w.Drafts.Create(file, name, sourceID, markdown, sidecar)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	ui.Success(fmt.Sprintf("Created draft %s (%q) from checkpoint %s", d.ID, d.Name, sourceID))
}

func runDraftList(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("draft list", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		draftUsage()
		os.Exit(1)
	}
	file := fs.Arg(0)

	w := openWorkspace(globals)
	list, err := w.Drafts.List(file)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(list)
		return
	}

	ui.Header(fmt.Sprintf("Drafts: %s", file))
	for _, d := range list {
		fmt.Printf("  %s  %-10s %-8s %s\n", d.ID, d.Name, d.Status, d.Modified)
	}
}

func runDraftShow(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("draft show", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		draftUsage()
		os.Exit(1)
	}
	file, draftID := fs.Arg(0), fs.Arg(1)

	w := openWorkspace(globals)
	content, err := w.Drafts.HeadContent(file, draftID)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	fmt.Print(content.Markdown)
}

func runDraftApply(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("draft apply", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		draftUsage()
		os.Exit(1)
	}
	file, draftID := fs.Arg(0), fs.Arg(1)

	w := openWorkspace(globals)
	res, err := w.ApplyDraft(file, draftID)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if res.CheckpointCreated != nil {
		ui.Success(fmt.Sprintf("Applied draft %s to %s, checkpoint %s", draftID, file, res.CheckpointCreated.ID))
	} else {
		ui.Success(fmt.Sprintf("Applied draft %s to %s", draftID, file))
	}
}

func runDraftDiscard(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("draft discard", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		draftUsage()
		os.Exit(1)
	}
	file, draftID := fs.Arg(0), fs.Arg(1)

	w := openWorkspace(globals)
	if err := w.Drafts.Discard(file, draftID); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	ui.Success(fmt.Sprintf("Discarded draft %s", draftID))
}

func runDraftDelete(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("draft delete", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		draftUsage()
		os.Exit(1)
	}
	file, draftID := fs.Arg(0), fs.Arg(1)

	w := openWorkspace(globals)
	if err := w.Drafts.Delete(file, draftID); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	ui.Success(fmt.Sprintf("Deleted draft %s", draftID))
}
