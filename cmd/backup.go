package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/paulschiretz/pgl-profile/pkg/buildinfo"
	"github.com/paulschiretz/pgl-profile/pkg/flagparse"
	"github.com/paulschiretz/pgl-profile/pkg/plog"
)

// RunBackup handles the logic for the backup subcommand.
func RunBackup(ctx context.Context, flagMap map[string]interface{}) error {
	users := selectedUsers(flagMap)
	if len(users) == 0 {
		return fmt.Errorf("the -users flag is required to run a backup")
	}

	runConfig, logSink, teardown, err := setupRun(flagparse.Backup, flagMap)
	if err != nil {
		return err
	}
	defer teardown()

	runner := newRunner(runConfig)

	startTime := time.Now()
	results, err := runner.ExecuteBackup(ctx, users)
	duration := time.Since(startTime).Round(time.Millisecond)

	printSummary(results, logSink)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" backup finished successfully.", "duration", duration)
	return nil
}
