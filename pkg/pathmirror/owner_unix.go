//go:build !windows

package pathmirror

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/paulschiretz/pgl-profile/pkg/plog"
)

// preserveOwner carries the source uid/gid over to the copied path. Changing
// ownership requires root; permission errors are logged and tolerated so the
// tool stays usable for unprivileged runs.
func preserveOwner(srcInfo os.FileInfo, dst string) error {
	stat, ok := srcInfo.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if err := unix.Lchown(dst, int(stat.Uid), int(stat.Gid)); err != nil {
		if errors.Is(err, unix.EPERM) {
			plog.Debug("Cannot preserve ownership without privileges", "path", dst)
			return nil
		}
		return err
	}
	return nil
}
