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

// statusResult is the JSON shape of 'midlight status'.
type statusResult struct {
	File          string `json:"file"`
	Checkpoints   int    `json:"checkpoints"`
	Drafts        int    `json:"drafts"`
	HasRecovery   bool   `json:"has_recovery"`
	RecoveryTime  string `json:"recovery_time,omitempty"`
	HeadID        string `json:"head_checkpoint_id,omitempty"`
}

// runStatus executes 'midlight status <file>'.
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: midlight status <file>

Description:
  Show a document's checkpoint count, draft count, and whether it has
  pending recovery content.

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

	checkpoints, err := w.Checkpoints.List(file)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	drafts, err := w.Drafts.List(file)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	head, err := w.Checkpoints.HeadID(file)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	result := statusResult{File: file, Checkpoints: len(checkpoints), Drafts: len(drafts), HeadID: head}
	if ts, ok := w.Recovery.RecoveryTimestamp(file); ok {
		result.HasRecovery = true
		result.RecoveryTime = ts.Format("2006-01-02T15:04:05Z07:00")
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	ui.Header(fmt.Sprintf("midlight status: %s", file))
	fmt.Printf("  %s %d\n", ui.Label("Checkpoints:"), result.Checkpoints)
	fmt.Printf("  %s %d\n", ui.Label("Drafts:"), result.Drafts)
	if result.HeadID != "" {
		fmt.Printf("  %s %s\n", ui.Label("Head:"), result.HeadID)
	}
	if result.HasRecovery {
		ui.Warningf("Unsaved recovery content from %s", result.RecoveryTime)
	}
}
