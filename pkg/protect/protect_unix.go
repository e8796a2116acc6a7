//go:build !windows

package protect

import (
	"fmt"
	"os"

	"github.com/paulschiretz/pgl-profile/pkg/plog"
)

// platformProtect restricts the directory to its administrative owner on
// Unix-like systems: mode 0700, and root ownership when running as root.
// There is no hidden attribute on Unix; hiding is a naming convention only.
func platformProtect(path string) error {
	if err := os.Chmod(path, 0700); err != nil {
		return fmt.Errorf("failed to restrict permissions on %s: %w", path, err)
	}

	if os.Geteuid() == 0 {
		if err := os.Chown(path, 0, 0); err != nil {
			return fmt.Errorf("failed to set root ownership on %s: %w", path, err)
		}
	} else {
		// Without root we cannot transfer ownership; the 0700 mode still
		// keeps other users out.
		plog.Debug("Not running as root, leaving directory ownership unchanged", "path", path)
	}
	return nil
}
