// Package logfile manages the small rotating run log. The file is appended
// to run after run and truncated once it outgrows its size cap, so it always
// holds the most recent activity without ever growing unbounded.
package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-profile/pkg/buildinfo"
	"github.com/paulschiretz/pgl-profile/pkg/util"
)

// MaxSizeBytes is the size above which the log file is truncated before the
// next run writes to it.
const MaxSizeBytes = 8 * 1024

// Open opens the run log at path and writes the run header. A file larger
// than MaxSizeBytes is truncated first; otherwise the run is appended.
func Open(path, runID string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), util.WithUserWritePermission(util.UserWritableDirPerms)); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	info, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat log file %s: %w", path, err)
	}
	if err == nil && info.Size() > MaxSizeBytes {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, util.UserWritableFilePerms)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	header := fmt.Sprintf("==== %s %s run %s started %s ====\n",
		buildinfo.Name, buildinfo.Version, runID, now.Format(time.RFC3339))
	if _, err := file.WriteString(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write run header to %s: %w", path, err)
	}
	return file, nil
}
