//go:build windows

package protect

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/windows"
)

// Well-known SIDs, used instead of account names so the grant works on
// localized Windows installations where "Administrators" is spelled differently.
const (
	sidAdministrators = "*S-1-5-32-544"
	sidSystem         = "*S-1-5-18"
)

// platformProtect hides the directory and replaces its ACL with full control
// for Administrators and SYSTEM only.
func platformProtect(path string) error {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return fmt.Errorf("invalid path %s: %w", path, err)
	}
	if err := windows.SetFileAttributes(pathPtr, windows.FILE_ATTRIBUTE_HIDDEN|windows.FILE_ATTRIBUTE_SYSTEM); err != nil {
		return fmt.Errorf("failed to hide directory %s: %w", path, err)
	}

	// icacls: drop inherited ACEs, then grant full control to the
	// administrative principals, inheritable to the whole subtree.
	cmd := exec.Command("icacls", path,
		"/inheritance:r",
		"/grant:r", sidAdministrators+":(OI)(CI)F",
		"/grant:r", sidSystem+":(OI)(CI)F",
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("icacls failed for %s: %w (output: %s)", path, err, output)
	}
	return nil
}
