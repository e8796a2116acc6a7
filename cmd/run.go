// Package cmd implements the subcommands of the pgl-profile binary. Each
// Run function receives the flag map produced by flagparse and owns the full
// lifecycle of its run: config resolution, logging setup, execution and the
// end-of-run summary.
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/paulschiretz/pgl-profile/pkg/buildinfo"
	"github.com/paulschiretz/pgl-profile/pkg/config"
	"github.com/paulschiretz/pgl-profile/pkg/engine"
	"github.com/paulschiretz/pgl-profile/pkg/flagparse"
	"github.com/paulschiretz/pgl-profile/pkg/logfile"
	"github.com/paulschiretz/pgl-profile/pkg/pathmirror"
	"github.com/paulschiretz/pgl-profile/pkg/plog"
	"github.com/paulschiretz/pgl-profile/pkg/policy"
	"github.com/paulschiretz/pgl-profile/pkg/protect"
	"github.com/paulschiretz/pgl-profile/pkg/report"
	"github.com/paulschiretz/pgl-profile/pkg/snapshot"
)

// setupRun resolves the final run configuration and prepares logging.
// The returned writer is the run log file (nil when file logging is off) and
// teardown must be deferred by the caller.
func setupRun(command flagparse.Command, flagMap map[string]interface{}) (config.Config, io.Writer, func(), error) {
	// The storage root is the anchor of everything, so it is mandatory.
	rootPath, ok := flagMap["root"].(string)
	if !ok || rootPath == "" {
		return config.Config{}, nil, nil, fmt.Errorf("the -root flag is required")
	}

	// Load config from the storage root, or use defaults if not found.
	loadedConfig, err := config.Load(rootPath)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to load configuration from storage root: %w", err)
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(command, loadedConfig, flagMap)

	if err := runConfig.Validate(); err != nil {
		return config.Config{}, nil, nil, err
	}

	// Set the global log level based on the final configuration.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	runID := uuid.NewString()
	teardown := func() {}
	var logSink io.Writer
	if runConfig.Runtime.LogFile != "" {
		file, err := logfile.Open(runConfig.Runtime.LogFile, runID, time.Now())
		if err != nil {
			return config.Config{}, nil, nil, fmt.Errorf("cannot open run log: %w", err)
		}
		// Console streams keep their level split; the run log gets a copy
		// of everything.
		plog.SetFileOutput(file)
		logSink = file
		teardown = func() {
			plog.ResetOutput()
			file.Close()
		}
	}

	plog.Info("Run starting", "run_id", runID, "command", command.String(), "version", buildinfo.Version)
	runConfig.LogSummary()
	return runConfig, logSink, teardown, nil
}

// newRunner wires the engine from the run configuration.
func newRunner(cfg config.Config) *engine.Runner {
	policies := policy.NewStore(cfg.StorageRoot, policy.Defaults{
		CleanAfterDays: cfg.DefaultCleanAfterDays,
		CleanAlways:    cfg.DefaultCleanAlways,
	})
	snapshots := snapshot.NewStore(cfg.StorageRoot)
	mirrorer := pathmirror.NewNative(pathmirror.Config{
		SyncWorkers:   cfg.Engine.SyncWorkers,
		MirrorWorkers: cfg.Engine.MirrorWorkers,
		BufferSizeKB:  cfg.Engine.BufferSizeKB,
		RetryCount:    cfg.Mirror.RetryCount,
		RetryWait:     time.Duration(cfg.Mirror.RetryWaitSeconds) * time.Second,
		ModTimeWindow: time.Duration(cfg.Mirror.ModTimeWindowSeconds) * time.Second,
	})
	return engine.NewRunner(cfg, policies, snapshots, mirrorer, protect.New())
}

// printSummary renders the run results on the console and, when file
// logging is active, as a plain copy in the run log.
func printSummary(results []report.Result, logSink io.Writer) {
	if len(results) == 0 {
		return
	}
	report.NewPrinter(os.Stdout).Summary(results)
	if logSink != nil {
		report.NewPlainPrinter(logSink).Summary(results)
	}
}

// selectedUsers pulls the parsed -users list out of the flag map.
func selectedUsers(flagMap map[string]interface{}) []string {
	users, _ := flagMap["users"].([]string)
	return users
}
