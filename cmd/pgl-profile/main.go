package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulschiretz/pgl-profile/cmd"
	"github.com/paulschiretz/pgl-profile/pkg/buildinfo"
	"github.com/paulschiretz/pgl-profile/pkg/flagparse"
	"github.com/paulschiretz/pgl-profile/pkg/plog"
)

func main() {
	command, flagMap, err := flagparse.Parse(os.Args[1:])
	if err != nil {
		plog.Error("Invalid command line", "error", err)
		os.Exit(2)
	}

	// A second signal kills the process the default way; the first one
	// cancels the run context so workers can stop cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	switch command {
	case flagparse.Backup:
		runErr = cmd.RunBackup(ctx, flagMap)
	case flagparse.Restore:
		runErr = cmd.RunRestore(ctx, flagMap)
	case flagparse.Version:
		runErr = cmd.RunVersion(buildinfo.Name, buildinfo.Version)
	case flagparse.None:
		// Help was already printed.
		return
	}

	if runErr != nil {
		plog.Error(buildinfo.Name+" failed", "error", runErr)
		os.Exit(1)
	}
}
