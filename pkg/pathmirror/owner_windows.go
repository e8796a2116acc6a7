//go:build windows

package pathmirror

import "os"

// preserveOwner is a no-op on Windows. NTFS ownership follows the creating
// account and ACLs are inherited from the parent directory, which is the
// behavior profile restores rely on.
func preserveOwner(srcInfo os.FileInfo, dst string) error {
	return nil
}
