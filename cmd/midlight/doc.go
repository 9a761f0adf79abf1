// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the midlight CLI, an operator harness over the
// local document-versioning engine (object store, image store, recovery,
// checkpoints, drafts). It is not the application's editor UI or RPC
// shell — those are out of scope (spec §1) — but a way to inspect and
// drive the same on-disk state those surfaces would use.
//
// Usage:
//
//	midlight init                        Create .midlight/ in the current directory
//	midlight status <file>                Show a document's checkpoint/draft/recovery summary
//	midlight save <file>                  Save the current content of a file and checkpoint it
//	midlight checkpoint list <file>       List a document's checkpoints
//	midlight checkpoint restore <file> <id>
//	midlight draft create <file> <name>   Start a draft
//	midlight recover scan                 List files with pending recovery content
//	midlight gc                           Reclaim unreferenced blobs and images
//	midlight watch <file>                 Watch a file and WAL external edits
package main
