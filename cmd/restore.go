package cmd

import (
	"context"
	"time"

	"github.com/paulschiretz/pgl-profile/pkg/buildinfo"
	"github.com/paulschiretz/pgl-profile/pkg/flagparse"
	"github.com/paulschiretz/pgl-profile/pkg/plog"
)

// RunRestore handles the logic for the restore subcommand. Without -users
// every user with a policy record in the storage root is processed.
func RunRestore(ctx context.Context, flagMap map[string]interface{}) error {
	runConfig, logSink, teardown, err := setupRun(flagparse.Restore, flagMap)
	if err != nil {
		return err
	}
	defer teardown()

	runner := newRunner(runConfig)

	startTime := time.Now()
	results, err := runner.ExecuteRestore(ctx, selectedUsers(flagMap), runConfig.Runtime.Force)
	duration := time.Since(startTime).Round(time.Millisecond)

	printSummary(results, logSink)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" restore finished successfully.", "duration", duration)
	return nil
}
