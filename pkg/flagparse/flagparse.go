// Package flagparse turns the command line into a subcommand plus a map of
// explicitly set flag values that can be overlaid on a loaded configuration.
package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-profile/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	LogLevel *string
	LogFile  *string
	DryRun   *bool

	// Shared: Backup / Restore
	Root          *string
	Profiles      *string
	Users         *string
	UserWorkers   *int
	SyncWorkers   *int
	MirrorWorkers *int
	BufferSizeKB  *int
	RetryCount    *int
	RetryWait     *int
	ModTimeWindow *int

	// Restore specific
	Force *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'info', 'warn', 'error'.")
	f.LogFile = fs.String("log", "", "Path of the rotating run log file. Empty disables file logging.")
	f.DryRun = fs.Bool("dry-run", false, "Show what would be done without making any changes.")
}

func registerSharedFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Root = fs.String("root", "", "Snapshot storage root directory. (Required)")
	f.Profiles = fs.String("profiles", "", "Directory holding the per-user profile directories.")
	f.Users = fs.String("users", "", "Comma-separated list of usernames to process.")

	f.UserWorkers = fs.Int("user-workers", 0, "Number of users processed concurrently.")
	f.SyncWorkers = fs.Int("sync-workers", 0, "Number of worker goroutines for file copies.")
	f.MirrorWorkers = fs.Int("mirror-workers", 0, "Number of worker goroutines for mirror deletions.")
	f.BufferSizeKB = fs.Int("buffer-size-kb", 0, "Size of the I/O buffer in kilobytes for file copies.")
	f.RetryCount = fs.Int("retry-count", 0, "Number of retries for failed file copies.")
	f.RetryWait = fs.Int("retry-wait", 0, "Seconds to wait between retries.")
	f.ModTimeWindow = fs.Int("mod-time-window", 1, "Time window in seconds to consider file modification times equal (0=exact).")
}

func registerRestoreFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Force = fs.Bool("force", false, "Force a full restore for every selected user, overriding skipUser and elapsed-day checks.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command and flag map.
func Parse(args []string) (Command, map[string]interface{}, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	f := &cliFlags{}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	switch command {
	case Backup:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerSharedFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Snapshot the selected user profiles into the storage root.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Restore:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerSharedFlags(fs, f)
		registerRestoreFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Restore or clean the selected user profiles from their snapshots.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Version:
		return command, nil, nil

	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]interface{}, error) {
	// Create a map of the flags that were explicitly set by the user, along with their values.
	// This map is used to selectively override the base configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "log", f.LogFile)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)

	addIfUsed(flagMap, usedFlags, "root", f.Root)
	addIfUsed(flagMap, usedFlags, "profiles", f.Profiles)
	addIfUsed(flagMap, usedFlags, "user-workers", f.UserWorkers)
	addIfUsed(flagMap, usedFlags, "sync-workers", f.SyncWorkers)
	addIfUsed(flagMap, usedFlags, "mirror-workers", f.MirrorWorkers)
	addIfUsed(flagMap, usedFlags, "buffer-size-kb", f.BufferSizeKB)
	addIfUsed(flagMap, usedFlags, "retry-count", f.RetryCount)
	addIfUsed(flagMap, usedFlags, "retry-wait", f.RetryWait)
	addIfUsed(flagMap, usedFlags, "mod-time-window", f.ModTimeWindow)

	addIfUsed(flagMap, usedFlags, "force", f.Force)

	addParsedIfUsed(flagMap, usedFlags, "users", f.Users, ParseUserList)

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// ParseUserList splits a comma- or whitespace-separated list of usernames,
// dropping empty entries and duplicates while preserving first-seen order.
func ParseUserList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	seen := make(map[string]bool, len(fields))
	var users []string
	for _, u := range fields {
		if seen[u] {
			continue
		}
		seen[u] = true
		users = append(users, u)
	}
	return users
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Policy-driven user profile snapshot and restore for shared machines.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  backup      Snapshot user profiles into the storage root\n")
	fmt.Fprintf(fs.Output(), "  restore     Restore or clean user profiles from their snapshots\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Policy-driven user profile snapshot and restore for shared machines.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}
