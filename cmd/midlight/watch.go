// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	flag "github.com/spf13/pflag"

	"github.com/midlightapp/midlight/internal/errors"
	"github.com/midlightapp/midlight/internal/ui"
	"github.com/midlightapp/midlight/pkg/checkpoint"
	"github.com/midlightapp/midlight/pkg/workspace"
)

const watchDebounce = 2 * time.Second

// runWatch executes 'midlight watch <file>', updating the file's write-ahead
// log whenever it changes on disk outside of midlight (e.g. an external
// editor or sync client) and running the checkpoint gate on each settle.
// Debounced the same way the teacher's repository watcher coalesces bursts
// of filesystem events before acting on them.
func runWatch(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: midlight watch <file>

Description:
  Watch a document for external changes, refreshing its recovery
  write-ahead log and checkpoint history as edits settle. Runs until
  interrupted.

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

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errors.FatalError(errors.NewInternalError("cannot create file watcher", err.Error(), "", err), globals.JSON)
	}
	defer watcher.Close()

	if err := watcher.Add(file); err != nil {
		errors.FatalError(errors.NewIoError("cannot watch file", file, "check that the file exists", err), globals.JSON)
	}

	ui.Info(fmt.Sprintf("Watching %s for external changes (Ctrl-C to stop)", file))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var debounceTimer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(watchDebounce)
			timerCh = debounceTimer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ui.Warningf("watch error: %v", err)
		case <-timerCh:
			timerCh = nil
			handleWatchSettle(w, file, globals)
		case <-sigCh:
			return
		}
	}
}

func handleWatchSettle(w *workspace.Workspace, file string, globals GlobalFlags) {
	content, err := os.ReadFile(file)
	if err != nil {
		ui.Warningf("cannot read %s: %v", file, err)
		return
	}
	if err := w.Recovery.UpdateWALNow(file, string(content)); err != nil {
		ui.Warningf("cannot update recovery log for %s: %v", file, err)
		return
	}

	loaded, err := w.Load(file)
	if err != nil {
		ui.Warningf("cannot parse %s: %v", file, err)
		return
	}
	res, err := w.Save(file, loaded.Doc, checkpoint.TriggerInterval)
	if err != nil {
		ui.Warningf("cannot checkpoint %s: %v", file, err)
		return
	}
	if res.CheckpointCreated != nil {
		ui.Success(fmt.Sprintf("Checkpoint %s (external change)", res.CheckpointCreated.ID))
	}
}
