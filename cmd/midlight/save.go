// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/midlightapp/midlight/internal/errors"
	"github.com/midlightapp/midlight/internal/ui"
	"github.com/midlightapp/midlight/pkg/checkpoint"
)

// runSave executes 'midlight save <file>', loading the file's current
// on-disk Markdown (re-normalizing block ids through a deserialize/
// serialize round trip), clearing its WAL, and asking the Checkpoint
// Manager whether the save warrants a new checkpoint. This is the CLI's
// stand-in for the editor's save path (spec §4.7).
func runSave(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	bookmark := fs.String("bookmark", "", "Force a labeled checkpoint (bypasses gating)")
	closing := fs.Bool("close", false, "Mark this save as a file-close save")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: midlight save [options] <file>

Description:
  Re-serialize a document and ask the Checkpoint Manager whether this
  save warrants a new checkpoint, per the configured gating policy.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	file := fs.Arg(0)

	w := openWorkspace(globals)

	loaded, err := w.Load(file)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	trigger := checkpoint.TriggerInterval
	if *closing {
		trigger = checkpoint.TriggerFileClose
	}
	if *bookmark != "" {
		trigger = checkpoint.TriggerBookmark
	}

	res, err := w.Save(file, loaded.Doc, trigger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if *bookmark != "" && res.CheckpointCreated != nil {
		if _, err := w.Checkpoints.Label(file, res.CheckpointCreated.ID, *bookmark); err != nil {
			errors.FatalError(err, globals.JSON)
		}
	}

	if res.CheckpointCreated != nil {
		ui.Success(fmt.Sprintf("Saved %s, checkpoint %s", file, res.CheckpointCreated.ID))
	} else {
		ui.Success(fmt.Sprintf("Saved %s (no new checkpoint)", file))
	}
}
