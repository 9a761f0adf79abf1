// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/midlightapp/midlight/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the global CLI flags that apply to all commands.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)

	// Stop parsing at the first non-flag argument so subcommand flags
	// like "reset --yes" reach their own FlagSets.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `midlight - local document versioning engine

Usage:
  midlight <command> [options]

Commands:
  init          Create .midlight/ in the current directory
  status        Show a document's checkpoint/draft/recovery summary
  save          Save a file's current content and maybe checkpoint it
  checkpoint    list/show/restore/label/unlabel/delete/compare/diff
  draft         create/list/apply/discard/delete
  recover       scan/apply/discard pending WAL recovery content
  gc            Reclaim blobs and images no longer referenced
  watch         Watch a file and write its WAL on external edits
  reset         Delete all local .midlight state (destructive!)

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  -V, --version     Show version and exit

For detailed command help: midlight <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("midlight version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if cwd, err := os.Getwd(); err == nil {
		prefs := loadCLIPrefs(cwd)
		if prefs.JSON && !*jsonOutput {
			*jsonOutput = true
		}
		if prefs.NoColor && !*noColor {
			*noColor = true
		}
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintln(os.Stderr, "Error: cannot use --quiet and --verbose together")
		os.Exit(1)
	}
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}

	ui.AutoDetect()
	if globals.NoColor {
		ui.DisableColor()
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "save":
		runSave(cmdArgs, globals)
	case "checkpoint":
		runCheckpoint(cmdArgs, globals)
	case "draft":
		runDraft(cmdArgs, globals)
	case "recover":
		runRecover(cmdArgs, globals)
	case "gc":
		runGC(cmdArgs, globals)
	case "watch":
		runWatch(cmdArgs, globals)
	case "reset":
		runReset(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
