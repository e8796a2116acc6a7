// Package config defines the persistent configuration stored alongside the
// snapshots and the runtime settings layered on top of it from the command
// line.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/paulschiretz/pgl-profile/pkg/buildinfo"
	"github.com/paulschiretz/pgl-profile/pkg/flagparse"
	"github.com/paulschiretz/pgl-profile/pkg/plog"
	"github.com/paulschiretz/pgl-profile/pkg/policy"
	"github.com/paulschiretz/pgl-profile/pkg/util"
)

// ConfigFileName is the name of the configuration file inside the storage root.
const ConfigFileName = "pgl-profile.config.json"

// EngineConfig tunes the concurrency of a run.
type EngineConfig struct {
	UserWorkers   int `json:"userWorkers"`
	SyncWorkers   int `json:"syncWorkers"`
	MirrorWorkers int `json:"mirrorWorkers"`
	BufferSizeKB  int `json:"bufferSizeKB"`
}

// MirrorConfig tunes the file copy behavior of the mirror primitive.
type MirrorConfig struct {
	RetryCount           int `json:"retryCount"`
	RetryWaitSeconds     int `json:"retryWaitSeconds"`
	ModTimeWindowSeconds int `json:"modTimeWindowSeconds"`
}

// RuntimeConfig holds per-invocation settings that are never persisted.
type RuntimeConfig struct {
	DryRun  bool   `json:"-"`
	Force   bool   `json:"-"`
	LogFile string `json:"-"`
}

// Config is the complete configuration of a run. StorageRoot is deliberately
// not serialized so a copied config file cannot point the tool at the wrong
// snapshot store.
type Config struct {
	Version  string `json:"version"`
	LogLevel string `json:"logLevel"`

	StorageRoot string `json:"-"`
	ProfilesDir string `json:"profilesDir"`

	// DefaultCleanAfterDays and DefaultCleanAlways seed the policy record
	// created for a user seen for the first time. The JSON key keeps the
	// historical double-l spelling for compatibility with existing files.
	DefaultCleanAfterDays int      `json:"defaultCleanAfterDays"`
	DefaultCleanAlways    []string `json:"defaultCleanAllways"`

	Engine EngineConfig `json:"engine"`
	Mirror MirrorConfig `json:"mirror"`

	Runtime RuntimeConfig `json:"-"`
}

// NewDefault returns the configuration used when no config file exists yet.
func NewDefault() Config {
	profilesDir := "/home"
	if runtime.GOOS == "windows" {
		profilesDir = `C:\Users`
	}
	return Config{
		Version:               buildinfo.Version,
		LogLevel:              "info",
		ProfilesDir:           profilesDir,
		DefaultCleanAfterDays: 1,
		DefaultCleanAlways: []string{
			"AppData/Local/Temp",
			"AppData/Local/Microsoft/Windows/INetCache",
			"Downloads",
			".cache",
		},
		Engine: EngineConfig{
			UserWorkers:   1,
			SyncWorkers:   4,
			MirrorWorkers: 4,
			BufferSizeKB:  256,
		},
		Mirror: MirrorConfig{
			RetryCount:           3,
			RetryWaitSeconds:     5,
			ModTimeWindowSeconds: 1,
		},
	}
}

// Load attempts to load "pgl-profile.config.json" from the storage root.
// If the file doesn't exist, it returns the default config without an error.
// If the file exists but fails to parse, it returns an error and a zero-value config.
func Load(storageRoot string) (Config, error) {
	absRoot, err := filepath.Abs(storageRoot)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for storage root %s: %w", storageRoot, err)
	}

	configPath := filepath.Join(absRoot, ConfigFileName)

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := NewDefault()
			cfg.StorageRoot = absRoot
			return cfg, nil
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", configPath)
	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the JSON file.
	config := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	config.StorageRoot = absRoot

	// NOTE: if config.Version differs from the binary version we can add a
	// migration step here.
	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate creates or overwrites the config file in the storage root.
func Generate(configToGenerate Config) error {
	configPath := filepath.Join(configToGenerate.StorageRoot, ConfigFileName)
	jsonData, err := json.MarshalIndent(configToGenerate, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	if err := os.WriteFile(configPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", configPath)
	return nil
}

// Validate checks the configuration for logical errors and inconsistencies.
func (c *Config) Validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("storage root cannot be empty")
	}
	if c.ProfilesDir == "" {
		return fmt.Errorf("profiles directory cannot be empty")
	}

	var err error
	c.StorageRoot, err = util.ExpandPath(c.StorageRoot)
	if err != nil {
		return fmt.Errorf("could not expand storage root: %w", err)
	}
	c.StorageRoot = filepath.Clean(c.StorageRoot)

	c.ProfilesDir, err = util.ExpandPath(c.ProfilesDir)
	if err != nil {
		return fmt.Errorf("could not expand profiles directory: %w", err)
	}
	c.ProfilesDir = filepath.Clean(c.ProfilesDir)

	if c.StorageRoot == c.ProfilesDir {
		return fmt.Errorf("storage root and profiles directory cannot be the same path (%s)", c.StorageRoot)
	}

	if c.DefaultCleanAfterDays < 0 {
		return fmt.Errorf("defaultCleanAfterDays cannot be negative, got %d", c.DefaultCleanAfterDays)
	}
	for _, rel := range c.DefaultCleanAlways {
		if err := policy.ValidateRelPath(rel); err != nil {
			return fmt.Errorf("invalid defaultCleanAllways entry: %w", err)
		}
	}

	if c.Engine.UserWorkers < 1 {
		return fmt.Errorf("userWorkers must be at least 1, got %d", c.Engine.UserWorkers)
	}
	if c.Engine.SyncWorkers < 1 {
		return fmt.Errorf("syncWorkers must be at least 1, got %d", c.Engine.SyncWorkers)
	}
	if c.Engine.MirrorWorkers < 1 {
		return fmt.Errorf("mirrorWorkers must be at least 1, got %d", c.Engine.MirrorWorkers)
	}
	if c.Engine.BufferSizeKB < 1 {
		return fmt.Errorf("bufferSizeKB must be at least 1, got %d", c.Engine.BufferSizeKB)
	}
	if c.Mirror.RetryCount < 0 {
		return fmt.Errorf("retryCount cannot be negative, got %d", c.Mirror.RetryCount)
	}
	if c.Mirror.RetryWaitSeconds < 0 {
		return fmt.Errorf("retryWaitSeconds cannot be negative, got %d", c.Mirror.RetryWaitSeconds)
	}
	if c.Mirror.ModTimeWindowSeconds < 0 {
		return fmt.Errorf("modTimeWindowSeconds cannot be negative, got %d", c.Mirror.ModTimeWindowSeconds)
	}
	return nil
}

// LogSummary prints a user-friendly summary of the active configuration.
func (c *Config) LogSummary() {
	plog.Info("Active configuration",
		"log_level", c.LogLevel,
		"storage_root", c.StorageRoot,
		"profiles_dir", c.ProfilesDir,
		"dry_run", c.Runtime.DryRun,
		"force", c.Runtime.Force,
		"user_workers", c.Engine.UserWorkers,
		"sync_workers", c.Engine.SyncWorkers,
		"mirror_workers", c.Engine.MirrorWorkers,
		"buffer_size_kb", c.Engine.BufferSizeKB,
		"retry_count", c.Mirror.RetryCount,
		"retry_wait_s", c.Mirror.RetryWaitSeconds,
		"mod_time_window_s", c.Mirror.ModTimeWindowSeconds,
	)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "root":
			merged.StorageRoot = value.(string)
		case "profiles":
			merged.ProfilesDir = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "log":
			merged.Runtime.LogFile = value.(string)
		case "dry-run":
			merged.Runtime.DryRun = value.(bool)
		case "force":
			switch command {
			case flagparse.Restore:
				merged.Runtime.Force = value.(bool)
			default:
			}
		case "user-workers":
			merged.Engine.UserWorkers = value.(int)
		case "sync-workers":
			merged.Engine.SyncWorkers = value.(int)
		case "mirror-workers":
			merged.Engine.MirrorWorkers = value.(int)
		case "buffer-size-kb":
			merged.Engine.BufferSizeKB = value.(int)
		case "retry-count":
			merged.Mirror.RetryCount = value.(int)
		case "retry-wait":
			merged.Mirror.RetryWaitSeconds = value.(int)
		case "mod-time-window":
			merged.Mirror.ModTimeWindowSeconds = value.(int)
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
