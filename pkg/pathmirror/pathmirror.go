// Package pathmirror implements the directory mirroring primitive: making a
// destination tree an exact copy of a source tree, including deletion of
// extraneous destination entries, while preserving permission, timestamp and
// (where the platform supports it) ownership metadata.
package pathmirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulschiretz/pgl-profile/pkg/plog"
	"github.com/paulschiretz/pgl-profile/pkg/util"
)

// Options control a single Mirror call.
type Options struct {
	// ExcludeRootFiles lists exact file names directly under the source and
	// destination roots that are neither copied nor deleted (e.g. the
	// snapshot metadata file when restoring into a live profile).
	ExcludeRootFiles []string

	// DryRun logs the planned work without touching the destination.
	DryRun bool
}

// Mirrorer defines the interface for a directory mirroring implementation.
type Mirrorer interface {
	Mirror(ctx context.Context, src, dst string, opts Options) error
}

// Config holds the performance and retry tuning of the native engine.
type Config struct {
	SyncWorkers   int
	MirrorWorkers int
	BufferSizeKB  int
	RetryCount    int
	RetryWait     time.Duration
	// ModTimeWindow is the time window to consider file modification times
	// equal, absorbing filesystem timestamp precision differences.
	ModTimeWindow time.Duration
}

// NativeMirrorer is the cross-platform Go implementation of the mirror
// primitive. It never follows symbolic links or junctions.
type NativeMirrorer struct {
	cfg          Config
	ioBufferPool *sync.Pool
}

// NewNative creates a native mirrorer with the given tuning. Zero values are
// replaced with safe defaults.
func NewNative(cfg Config) *NativeMirrorer {
	if cfg.SyncWorkers < 1 {
		cfg.SyncWorkers = 4
	}
	if cfg.MirrorWorkers < 1 {
		cfg.MirrorWorkers = 4
	}
	if cfg.BufferSizeKB < 1 {
		cfg.BufferSizeKB = 256
	}
	bufSize := cfg.BufferSizeKB * 1024
	return &NativeMirrorer{
		cfg: cfg,
		ioBufferPool: &sync.Pool{
			New: func() any {
				buf := make([]byte, bufSize)
				return &buf
			},
		},
	}
}

// Mirror makes dst an exact copy of src. A directory source runs the full
// concurrent sync+mirror pipeline; a single-file source (a cleanAllways
// entry may name a file) is copied directly.
func (m *NativeMirrorer) Mirror(ctx context.Context, src, dst string, opts Options) error {
	// Check for cancellation before starting the heavy work.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	srcInfo, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("cannot access mirror source %s: %w", src, err)
	}

	if !srcInfo.IsDir() {
		return m.mirrorFile(ctx, src, dst, srcInfo, opts)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &mirrorRun{
		m:           m,
		ctx:         runCtx,
		cancel:      cancel,
		src:         src,
		dst:         dst,
		opts:        opts,
		sourcePaths: make(map[string]struct{}),
	}
	if err := run.execute(srcInfo); err != nil {
		return fmt.Errorf("mirror %s -> %s failed: %w", src, dst, err)
	}
	return nil
}

// mirrorFile replaces dst with a copy of the single file at src.
func (m *NativeMirrorer) mirrorFile(ctx context.Context, src, dst string, srcInfo os.FileInfo, opts Options) error {
	if !srcInfo.Mode().IsRegular() {
		return fmt.Errorf("mirror source %s is neither a directory nor a regular file", src)
	}

	if opts.DryRun {
		plog.Info("[DRY RUN] Would replace file", "src", src, "dst", dst)
		return nil
	}

	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to remove stale destination %s: %w", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), util.WithUserWritePermission(util.UserWritableDirPerms)); err != nil {
		return fmt.Errorf("failed to create destination directory for %s: %w", dst, err)
	}
	return m.copyFileWithRetry(ctx, src, dst, srcInfo)
}

// copyFileWithRetry copies one file, retrying transient failures with a wait
// between attempts.
func (m *NativeMirrorer) copyFileWithRetry(ctx context.Context, src, dst string, srcInfo os.FileInfo) error {
	var lastErr error
	for i := 0; i <= m.cfg.RetryCount; i++ {
		if i > 0 {
			plog.Warn("Retrying file copy", "file", src, "attempt", fmt.Sprintf("%d/%d", i, m.cfg.RetryCount), "after", m.cfg.RetryWait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.cfg.RetryWait):
			}
		}
		lastErr = m.copyFileOnce(src, dst, srcInfo)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
	}
	return fmt.Errorf("failed to copy file %s after %d retries: %w", src, m.cfg.RetryCount, lastErr)
}

// copyFileOnce handles the low-level details of copying a single file.
// It ensures atomicity by writing to a temporary file first and then renaming it.
func (m *NativeMirrorer) copyFileOnce(src, dst string, srcInfo os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer in.Close()

	dstDir := filepath.Dir(dst)
	out, err := os.CreateTemp(dstDir, "pgl-profile-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dstDir, err)
	}

	tempPath := out.Name()
	// If the rename succeeds, tempPath is cleared and this removal is a no-op.
	defer func() {
		if tempPath != "" {
			os.Remove(tempPath)
		}
	}()

	bufPtr := m.ioBufferPool.Get().(*[]byte)
	defer m.ioBufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(out, in, *bufPtr); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy content from %s: %w", src, err)
	}

	if err := out.Chmod(srcInfo.Mode().Perm()); err != nil {
		out.Close()
		return fmt.Errorf("failed to set permissions on temporary file %s: %w", tempPath, err)
	}

	// Close flushes data to disk. It MUST happen before Chtimes, because
	// closing can update the modification time.
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file %s: %w", tempPath, err)
	}

	if err := os.Chtimes(tempPath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return fmt.Errorf("failed to set timestamps on %s: %w", tempPath, err)
	}

	if err := preserveOwner(srcInfo, tempPath); err != nil {
		return fmt.Errorf("failed to preserve ownership for %s: %w", dst, err)
	}

	if err := os.Rename(tempPath, dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", tempPath, err)
	}
	tempPath = ""
	return nil
}
