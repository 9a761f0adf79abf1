// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/midlightapp/midlight/internal/errors"
	"github.com/midlightapp/midlight/internal/ui"
)

// runGC executes 'midlight gc', sweeping the object store and image store for
// blobs no longer referenced by any checkpoint, draft, or sidecar.
func runGC(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("gc", flag.ExitOnError)
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: midlight gc [options]

Description:
  Remove content-addressed blobs from the object store and image store that
  are no longer referenced by any checkpoint, draft, or sidecar. Write-ahead
  logs, history files, and sidecars themselves are never touched.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
	}

	w := openWorkspace(globals)

	var bar *progressbar.ProgressBar
	if !globals.JSON && !globals.Quiet {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Sweeping unreferenced blobs"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetWriter(os.Stderr),
		)
	}

	result, err := w.RunGC()
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if globals.JSON {
		fmt.Printf("{\"object_bytes_freed\":%d,\"image_bytes_freed\":%d}\n", result.ObjectBytesFreed, result.ImageBytesFreed)
		return
	}

	ui.Success(fmt.Sprintf("Freed %d bytes of objects, %d bytes of images", result.ObjectBytesFreed, result.ImageBytesFreed))
}
