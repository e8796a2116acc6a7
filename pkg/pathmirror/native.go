package pathmirror

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/paulschiretz/pgl-profile/pkg/plog"
	"github.com/paulschiretz/pgl-profile/pkg/util"
)

// mirrorTask describes one source entry for the worker pool.
type mirrorTask struct {
	relPath string // slash-separated, relative to the source root
	absSrc  string
	info    os.FileInfo
}

// mirrorRun holds the state of a single directory Mirror call. The pipeline
// has a producer (the source walk) feeding a pool of sync workers, followed
// by a mirror phase that deletes destination entries absent from the source
// and a final pass that applies directory metadata.
type mirrorRun struct {
	m      *NativeMirrorer
	ctx    context.Context
	cancel context.CancelFunc

	src  string
	dst  string
	opts Options

	// sourcePaths and dirTasks are written only by the producer goroutine
	// and read only after the worker pool has drained.
	sourcePaths map[string]struct{}
	dirTasks    []mirrorTask

	// dirSFGroup deduplicates concurrent creation of the same destination
	// directory across workers; createdDirs short-circuits repeat lookups.
	dirSFGroup  singleflight.Group
	createdDirs sync.Map

	errOnce  sync.Once
	firstErr error
}

// fail records the first error of the run and cancels all other work.
func (r *mirrorRun) fail(err error) {
	r.errOnce.Do(func() {
		r.firstErr = err
		r.cancel()
	})
}

func (r *mirrorRun) execute(srcInfo os.FileInfo) error {
	if !r.opts.DryRun {
		if err := os.MkdirAll(r.dst, util.WithUserWritePermission(srcInfo.Mode().Perm())); err != nil {
			return fmt.Errorf("failed to create destination root %s: %w", r.dst, err)
		}
	}

	tasks := make(chan mirrorTask, 64)
	var wg sync.WaitGroup
	for i := 0; i < r.m.cfg.SyncWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.syncWorker(tasks)
		}()
	}

	r.produce(tasks)
	close(tasks)
	wg.Wait()

	if r.firstErr != nil {
		return r.firstErr
	}

	if err := r.mirrorExtras(); err != nil {
		r.fail(err)
		return r.firstErr
	}

	if !r.opts.DryRun {
		if err := r.finalizeDirMetadata(); err != nil {
			r.fail(err)
		}
	}
	return r.firstErr
}

// produce walks the source tree and feeds every entry to the worker pool.
// Symbolic links and junction points are never followed or copied; because
// they are not recorded in sourcePaths, stale copies on the destination are
// removed by the mirror phase.
func (r *mirrorRun) produce(tasks chan<- mirrorTask) {
	err := filepath.WalkDir(r.src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk source %s: %w", p, err)
		}
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == r.src {
			return nil
		}

		rel, err := filepath.Rel(r.src, p)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", p, err)
		}
		relKey := filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			plog.Debug("Skipping symbolic link", "path", p)
			return nil
		}

		if filepath.Dir(rel) == "." && !d.IsDir() && slices.Contains(r.opts.ExcludeRootFiles, d.Name()) {
			plog.Debug("Skipping excluded root file", "path", p)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat source entry %s: %w", p, err)
		}

		r.sourcePaths[relKey] = struct{}{}
		task := mirrorTask{relPath: relKey, absSrc: p, info: info}
		if info.IsDir() {
			r.dirTasks = append(r.dirTasks, task)
		}

		select {
		case tasks <- task:
		case <-r.ctx.Done():
			return r.ctx.Err()
		}
		return nil
	})
	if err != nil && err != r.ctx.Err() {
		r.fail(err)
	}
}

// syncWorker consumes tasks until the channel closes. After a failure the
// remaining tasks are drained without processing so the producer never blocks.
func (r *mirrorRun) syncWorker(tasks <-chan mirrorTask) {
	for task := range tasks {
		if r.ctx.Err() != nil {
			continue
		}
		if err := r.processTask(task); err != nil {
			r.fail(err)
		}
	}
}

func (r *mirrorRun) processTask(task mirrorTask) error {
	absDst := filepath.Join(r.dst, filepath.FromSlash(task.relPath))
	if task.info.IsDir() {
		return r.ensureDir(task.relPath, absDst)
	}
	if !task.info.Mode().IsRegular() {
		plog.Debug("Skipping special file", "path", task.absSrc, "mode", task.info.Mode().String())
		return nil
	}
	return r.syncFile(task, absDst)
}

// ensureDir creates a destination directory exactly once across the pool.
// A destination file occupying the directory's path is removed first.
func (r *mirrorRun) ensureDir(relPath, absPath string) error {
	if _, ok := r.createdDirs.Load(relPath); ok {
		return nil
	}
	_, err, _ := r.dirSFGroup.Do(relPath, func() (interface{}, error) {
		if _, ok := r.createdDirs.Load(relPath); ok {
			return nil, nil
		}
		if r.opts.DryRun {
			plog.Info("[DRY RUN] Would create directory", "path", absPath)
			r.createdDirs.Store(relPath, true)
			return nil, nil
		}
		if info, lerr := os.Lstat(absPath); lerr == nil && !info.IsDir() {
			if rerr := os.Remove(absPath); rerr != nil {
				return nil, fmt.Errorf("failed to replace file with directory at %s: %w", absPath, rerr)
			}
		}
		if merr := os.MkdirAll(absPath, util.WithUserWritePermission(util.UserWritableDirPerms)); merr != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", absPath, merr)
		}
		r.createdDirs.Store(relPath, true)
		return nil, nil
	})
	return err
}

// syncFile brings one destination file up to date with its source. Files
// whose size matches and whose modification times agree within the
// configured window are skipped.
func (r *mirrorRun) syncFile(task mirrorTask, absDst string) error {
	dstInfo, err := os.Lstat(absDst)
	if err == nil {
		if dstInfo.IsDir() {
			if r.opts.DryRun {
				plog.Info("[DRY RUN] Would replace directory with file", "path", absDst)
				return nil
			}
			if rerr := os.RemoveAll(absDst); rerr != nil {
				return fmt.Errorf("failed to replace directory with file at %s: %w", absDst, rerr)
			}
		} else if r.unchanged(task.info, dstInfo) {
			return nil
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat destination %s: %w", absDst, err)
	}

	if r.opts.DryRun {
		plog.Info("[DRY RUN] Would copy file", "src", task.absSrc, "dst", absDst)
		return nil
	}

	if parent := filepath.ToSlash(filepath.Dir(filepath.FromSlash(task.relPath))); parent != "." {
		if derr := r.ensureDir(parent, filepath.Dir(absDst)); derr != nil {
			return derr
		}
	}
	return r.m.copyFileWithRetry(r.ctx, task.absSrc, absDst, task.info)
}

func (r *mirrorRun) unchanged(srcInfo, dstInfo os.FileInfo) bool {
	if !srcInfo.Mode().IsRegular() || !dstInfo.Mode().IsRegular() {
		return false
	}
	if srcInfo.Size() != dstInfo.Size() {
		return false
	}
	delta := srcInfo.ModTime().Sub(dstInfo.ModTime())
	if delta < 0 {
		delta = -delta
	}
	return delta <= r.m.cfg.ModTimeWindow
}

// mirrorExtras deletes destination entries that have no source counterpart.
// Extra directories are pruned without descending into them; extra files are
// removed by a small worker pool.
func (r *mirrorRun) mirrorExtras() error {
	var extraFiles []string
	var extraDirs []string

	err := filepath.WalkDir(r.dst, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to walk destination %s: %w", p, err)
		}
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == r.dst {
			return nil
		}

		rel, err := filepath.Rel(r.dst, p)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", p, err)
		}
		if filepath.Dir(rel) == "." && !d.IsDir() && slices.Contains(r.opts.ExcludeRootFiles, d.Name()) {
			return nil
		}
		if _, ok := r.sourcePaths[filepath.ToSlash(rel)]; ok {
			return nil
		}

		if d.IsDir() {
			extraDirs = append(extraDirs, p)
			return fs.SkipDir
		}
		extraFiles = append(extraFiles, p)
		return nil
	})
	if err != nil {
		return err
	}

	if r.opts.DryRun {
		for _, p := range extraFiles {
			plog.Info("[DRY RUN] Would delete file", "path", p)
		}
		for _, p := range extraDirs {
			plog.Info("[DRY RUN] Would delete directory", "path", p)
		}
		return nil
	}

	if len(extraFiles) > 0 {
		deletions := make(chan string, 64)
		var wg sync.WaitGroup
		for i := 0; i < r.m.cfg.MirrorWorkers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for p := range deletions {
					if r.ctx.Err() != nil {
						continue
					}
					if rerr := os.Remove(p); rerr != nil && !os.IsNotExist(rerr) {
						r.fail(fmt.Errorf("failed to delete extraneous file %s: %w", p, rerr))
					}
				}
			}()
		}
		for _, p := range extraFiles {
			deletions <- p
		}
		close(deletions)
		wg.Wait()
		if r.firstErr != nil {
			return r.firstErr
		}
	}

	for _, p := range extraDirs {
		if rerr := os.RemoveAll(p); rerr != nil {
			return fmt.Errorf("failed to delete extraneous directory %s: %w", p, rerr)
		}
	}
	return nil
}

// finalizeDirMetadata applies directory permissions, timestamps and
// ownership after all file work is done, so copies into a directory cannot
// disturb its restored modification time.
func (r *mirrorRun) finalizeDirMetadata() error {
	for _, task := range r.dirTasks {
		absDst := filepath.Join(r.dst, filepath.FromSlash(task.relPath))
		if err := os.Chmod(absDst, util.WithUserWritePermission(task.info.Mode().Perm())); err != nil {
			return fmt.Errorf("failed to set permissions on directory %s: %w", absDst, err)
		}
		if err := preserveOwner(task.info, absDst); err != nil {
			return fmt.Errorf("failed to preserve ownership for directory %s: %w", absDst, err)
		}
		if err := os.Chtimes(absDst, task.info.ModTime(), task.info.ModTime()); err != nil {
			return fmt.Errorf("failed to set timestamps on directory %s: %w", absDst, err)
		}
	}
	return nil
}
