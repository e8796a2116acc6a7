package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-profile/pkg/buildinfo"
	"github.com/paulschiretz/pgl-profile/pkg/config"
	"github.com/paulschiretz/pgl-profile/pkg/plog"
	"github.com/paulschiretz/pgl-profile/pkg/policy"
	"github.com/paulschiretz/pgl-profile/pkg/report"
	"github.com/paulschiretz/pgl-profile/pkg/snapshot"
	"github.com/paulschiretz/pgl-profile/pkg/util"
)

// ExecuteBackup snapshots the profiles of the given users into the storage
// root. A storage root that cannot be prepared is the only globally fatal
// condition; everything else is isolated per user.
func (r *Runner) ExecuteBackup(ctx context.Context, users []string) ([]report.Result, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("no users selected for backup")
	}

	if !r.cfg.Runtime.DryRun {
		created, err := r.snapshots.EnsureRoot(r.protector)
		if err != nil {
			return nil, fmt.Errorf("cannot prepare storage root: %w", err)
		}
		if created {
			// Seed a config file so later runs against this root pick up
			// the same settings. Not having one is never fatal.
			if err := config.Generate(r.cfg); err != nil {
				plog.Warn("Could not write default config file", "error", err)
			}
		}
	}

	results := make([]report.Result, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Engine.UserWorkers)
	for i, user := range users {
		i, user := i, user
		g.Go(func() error {
			results[i] = r.backupUser(gctx, user)
			return nil
		})
	}
	g.Wait()

	if failures := report.CountTerminal(results); failures > 0 {
		return results, fmt.Errorf("%d of %d users failed", failures, len(users))
	}
	return results, nil
}

// backupUser replaces the stored snapshot of one user with a fresh copy of
// the live profile.
func (r *Runner) backupUser(ctx context.Context, user string) report.Result {
	if err := util.ValidateUsername(user); err != nil {
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: err}
	}

	profile := r.profileDir(user)
	info, err := os.Stat(profile)
	if err != nil {
		if os.IsNotExist(err) {
			plog.Warn("User has no profile directory, nothing to back up", "user", user, "path", profile)
			return report.Result{User: user, Outcome: report.OutcomeWarnNoProfile}
		}
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: fmt.Errorf("cannot access profile %s: %w", profile, err)}
	}
	if !info.IsDir() {
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: fmt.Errorf("profile path %s is not a directory", profile)}
	}

	plog.Info("Backing up profile", "user", user, "source", profile)

	var meta snapshot.Meta
	if !r.cfg.Runtime.DryRun {
		// The identity record is captured before the removal below so it
		// survives the rebuild.
		meta = r.snapshotMeta(user)
		// The snapshot is rebuilt from scratch so a previous, possibly
		// partial snapshot can never leak stale entries into it.
		if err := r.snapshots.Remove(user); err != nil {
			return report.Result{User: user, Outcome: report.OutcomeFailed, Err: fmt.Errorf("cannot remove previous snapshot: %w", err)}
		}
	}

	if err := r.mirrorer.Mirror(ctx, profile, r.snapshots.Dir(user), r.mirrorOptions()); err != nil {
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: err}
	}

	if !r.cfg.Runtime.DryRun {
		if err := r.snapshots.WriteMeta(user, meta); err != nil {
			return report.Result{User: user, Outcome: report.OutcomeFailed, Err: fmt.Errorf("snapshot copied but metadata write failed: %w", err)}
		}
	}

	if err := r.ensurePolicy(user); err != nil {
		var invalid *policy.InvalidPolicyError
		if errors.As(err, &invalid) {
			// An existing but broken record is left untouched for an
			// administrator to inspect.
			plog.Warn("Existing policy record is invalid, leaving it as is", "user", user, "error", err)
			return report.Result{User: user, Outcome: report.OutcomeWarnBadPolicy, Err: err}
		}
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: err}
	}

	return report.Result{User: user, Outcome: report.OutcomeBackedUp}
}

// snapshotMeta returns the identity record to stamp into a user's snapshot.
// An existing snapshot keeps its identity, so re-running a backup against an
// unchanged profile reproduces the snapshot subtree byte for byte. A fresh
// identity is minted only on first contact or when the old record is
// unreadable.
func (r *Runner) snapshotMeta(user string) snapshot.Meta {
	if prior, err := r.snapshots.ReadMeta(user); err == nil && prior.Username == user {
		return prior
	}
	return snapshot.Meta{
		Version:      buildinfo.Version,
		UUID:         uuid.NewString(),
		Username:     user,
		TimestampUTC: r.now().UTC().Truncate(time.Second),
	}
}

// ensurePolicy guarantees a user has a policy record, creating the default
// one on first contact.
func (r *Runner) ensurePolicy(user string) error {
	_, err := r.policies.Load(user)
	if err == nil {
		return nil
	}
	if !errors.Is(err, policy.ErrNotFound) {
		return err
	}
	if r.cfg.Runtime.DryRun {
		plog.Info("[DRY RUN] Would create default policy record", "user", user)
		return nil
	}
	_, err = r.policies.CreateDefault(user, r.today())
	return err
}
