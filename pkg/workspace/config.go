// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"

	xerrors "github.com/midlightapp/midlight/internal/errors"
)

// ConfigVersion is the current workspace config schema version.
const ConfigVersion = 1

// VersioningConfig governs the Checkpoint Manager (spec §3).
type VersioningConfig struct {
	Enabled               bool  `json:"enabled"`
	CheckpointIntervalMs  int64 `json:"checkpoint_interval_ms"`
	MinChangeChars        int   `json:"min_change_chars"`
	MaxCheckpointsPerFile int   `json:"max_checkpoints_per_file"`
	RetentionDays         int   `json:"retention_days"`
}

// RecoveryConfig governs the Recovery Manager (spec §3).
type RecoveryConfig struct {
	WALIntervalMs int64 `json:"wal_interval_ms"`
}

// TierConfig governs per-plan limits (spec §3).
type TierConfig struct {
	MaxActiveDrafts int `json:"max_active_drafts"`
}

// Config is the workspace-wide configuration persisted at
// ".midlight/config.json" (spec §3, §6).
type Config struct {
	Version    int              `json:"version"`
	Versioning VersioningConfig `json:"versioning"`
	Recovery   RecoveryConfig   `json:"recovery"`
	Tier       TierConfig       `json:"tier"`
}

// DefaultConfig returns the configuration written on first init.
func DefaultConfig() Config {
	return Config{
		Version: ConfigVersion,
		Versioning: VersioningConfig{
			Enabled:               true,
			CheckpointIntervalMs:  30_000,
			MinChangeChars:        50,
			MaxCheckpointsPerFile: 100,
			RetentionDays:         30,
		},
		Recovery: RecoveryConfig{WALIntervalMs: 5_000},
		Tier:     TierConfig{MaxActiveDrafts: 5},
	}
}

func configPath(root string) string {
	return filepath.Join(root, "config.json")
}

// loadOrInitConfig loads ".midlight/config.json", writing the default
// configuration if it does not yet exist.
func loadOrInitConfig(midlightRoot string) (Config, error) {
	path := configPath(midlightRoot)
	data, err := os.ReadFile(path) //nolint:gosec // path is workspace-internal
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			if err := saveConfig(midlightRoot, cfg); err != nil {
				return Config{}, err
			}
			return cfg, nil
		}
		return Config{}, xerrors.NewIoError("cannot read workspace config", path, "", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, xerrors.NewInvalidFormatError("corrupt workspace config", path, "delete or repair config.json to reset to defaults", err)
	}
	if cfg.Version == 0 {
		cfg.Version = ConfigVersion
	}
	return cfg, nil
}

func saveConfig(midlightRoot string, cfg Config) error {
	path := configPath(midlightRoot)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return xerrors.NewInternalError("cannot encode workspace config", "", "", err)
	}
	tmp, err := os.CreateTemp(midlightRoot, "config-*.tmp")
	if err != nil {
		return xerrors.NewIoError("cannot create temp config file", midlightRoot, "check filesystem permissions", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot write workspace config", path, "", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot close temp config file", tmpPath, "", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return xerrors.NewIoError("cannot finalize workspace config", path, "check filesystem permissions", err)
	}
	return nil
}
