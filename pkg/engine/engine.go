// Package engine orchestrates backup and restore runs across users. Each
// user is processed independently; one user's failure is recorded in the run
// results and never aborts the remaining users.
package engine

import (
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-profile/pkg/config"
	"github.com/paulschiretz/pgl-profile/pkg/pathmirror"
	"github.com/paulschiretz/pgl-profile/pkg/policy"
	"github.com/paulschiretz/pgl-profile/pkg/snapshot"
)

// Runner executes backup and restore operations against one storage root.
type Runner struct {
	cfg       config.Config
	policies  *policy.Store
	snapshots *snapshot.Store
	mirrorer  pathmirror.Mirrorer
	protector snapshot.Protector

	// now is swappable for tests that need a fixed calendar day.
	now func() time.Time
}

// NewRunner wires a runner from its collaborators.
func NewRunner(cfg config.Config, policies *policy.Store, snapshots *snapshot.Store, mirrorer pathmirror.Mirrorer, protector snapshot.Protector) *Runner {
	return &Runner{
		cfg:       cfg,
		policies:  policies,
		snapshots: snapshots,
		mirrorer:  mirrorer,
		protector: protector,
		now:       time.Now,
	}
}

// profileDir returns the live profile directory of a user.
func (r *Runner) profileDir(user string) string {
	return filepath.Join(r.cfg.ProfilesDir, user)
}

// today returns the current local calendar day.
func (r *Runner) today() policy.Date {
	return policy.DateOf(r.now())
}

// mirrorOptions returns the base options for mirror calls of this run.
func (r *Runner) mirrorOptions() pathmirror.Options {
	return pathmirror.Options{DryRun: r.cfg.Runtime.DryRun}
}
