package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-profile/pkg/pathmirror"
	"github.com/paulschiretz/pgl-profile/pkg/plog"
	"github.com/paulschiretz/pgl-profile/pkg/policy"
	"github.com/paulschiretz/pgl-profile/pkg/report"
	"github.com/paulschiretz/pgl-profile/pkg/snapshot"
	"github.com/paulschiretz/pgl-profile/pkg/util"
)

// ExecuteRestore evaluates each selected user's policy and performs the
// resulting action. With an empty user list every user with a policy record
// is processed.
func (r *Runner) ExecuteRestore(ctx context.Context, users []string, force bool) ([]report.Result, error) {
	if len(users) == 0 {
		var err error
		users, err = r.policies.ListKnownUsers()
		if err != nil {
			return nil, fmt.Errorf("cannot enumerate known users: %w", err)
		}
		if len(users) == 0 {
			plog.Info("No known users in storage root, nothing to restore")
			return nil, nil
		}
		plog.Info("No users specified, restoring all known users", "count", len(users))
	}

	results := make([]report.Result, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Engine.UserWorkers)
	for i, user := range users {
		i, user := i, user
		g.Go(func() error {
			results[i] = r.restoreUser(gctx, user, force)
			return nil
		})
	}
	g.Wait()

	if failures := report.CountTerminal(results); failures > 0 {
		return results, fmt.Errorf("%d of %d users failed", failures, len(users))
	}
	return results, nil
}

// restoreUser loads one user's policy, decides the action and applies it.
func (r *Runner) restoreUser(ctx context.Context, user string, force bool) report.Result {
	if err := util.ValidateUsername(user); err != nil {
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: err}
	}

	exists, err := r.snapshots.Exists(user)
	if err != nil {
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: err}
	}
	if !exists {
		plog.Warn("User has no snapshot, nothing to restore from", "user", user)
		return report.Result{User: user, Outcome: report.OutcomeWarnNoSnapshot}
	}
	if meta, err := r.snapshots.ReadMeta(user); err == nil {
		plog.Debug("Using snapshot", "user", user, "snapshot_uuid", meta.UUID,
			"created", meta.TimestampUTC, "written_by", meta.Version)
	}

	pol, err := r.policies.Load(user)
	if err != nil {
		// A missing or broken record never touches the user's profile.
		if errors.Is(err, policy.ErrNotFound) {
			plog.Warn("User has no policy record, leaving profile untouched", "user", user)
			return report.Result{User: user, Outcome: report.OutcomeWarnNoPolicy}
		}
		var invalid *policy.InvalidPolicyError
		if errors.As(err, &invalid) {
			plog.Warn("Policy record is invalid, leaving profile untouched", "user", user, "error", err)
			return report.Result{User: user, Outcome: report.OutcomeWarnBadPolicy, Err: err}
		}
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: err}
	}

	today := r.today()
	action := policy.Decide(pol, force, today)
	plog.Info("Policy evaluated", "user", user, "action", action.String(),
		"clean_after_days", pol.CleanAfterDays, "last_clean", pol.LastClean.String(), "force", force)

	switch action {
	case policy.ActionSkip:
		return report.Result{User: user, Outcome: report.OutcomeSkipped}
	case policy.ActionFullRestore:
		return r.fullRestore(ctx, user, pol, today)
	default:
		return r.partialClean(ctx, user, pol)
	}
}

// fullRestore replaces the live profile with the snapshot and advances the
// schedule state.
func (r *Runner) fullRestore(ctx context.Context, user string, pol policy.Policy, today policy.Date) report.Result {
	profile := r.profileDir(user)

	if r.cfg.Runtime.DryRun {
		plog.Info("[DRY RUN] Would fully restore profile", "user", user, "path", profile)
	} else if err := os.RemoveAll(profile); err != nil {
		return report.Result{User: user, Outcome: report.OutcomeFailed, Err: fmt.Errorf("cannot remove live profile %s: %w", profile, err)}
	}

	opts := r.mirrorOptions()
	opts.ExcludeRootFiles = []string{snapshot.MetaFileName}
	if err := r.mirrorer.Mirror(ctx, r.snapshots.Dir(user), profile, opts); err != nil {
		// The old profile is already gone. This is the worst state a user
		// can be left in and is reported as its own outcome.
		plog.Error("Profile removed but restore from snapshot failed", "user", user, "error", err)
		return report.Result{User: user, Outcome: report.OutcomeFailedProfileAbsent, Err: err}
	}

	if r.cfg.Runtime.DryRun {
		return report.Result{User: user, Outcome: report.OutcomeFullRestored, Detail: "dry run"}
	}

	pol.LastClean = today
	if err := r.policies.Save(user, pol); err != nil {
		// The profile itself is fine, only the schedule state is stale.
		return report.Result{
			User:    user,
			Outcome: report.OutcomeFailed,
			Detail:  "profile restored but schedule state not updated",
			Err:     err,
		}
	}
	return report.Result{User: user, Outcome: report.OutcomeFullRestored}
}

// partialClean resets only the cleanAllways subpaths from the snapshot.
// Subpaths absent from the snapshot are skipped; schedule state is not
// advanced by partial cleans.
func (r *Runner) partialClean(ctx context.Context, user string, pol policy.Policy) report.Result {
	profile := r.profileDir(user)
	snapDir := r.snapshots.Dir(user)

	for _, rel := range pol.CleanAlways {
		native := filepath.FromSlash(rel)
		snapPath := filepath.Join(snapDir, native)
		if _, err := os.Lstat(snapPath); err != nil {
			if os.IsNotExist(err) {
				plog.Debug("Always-clean path not in snapshot, skipping", "user", user, "path", rel)
				continue
			}
			return report.Result{User: user, Outcome: report.OutcomeFailed, Err: fmt.Errorf("cannot access snapshot path %s: %w", snapPath, err)}
		}

		livePath := filepath.Join(profile, native)
		if r.cfg.Runtime.DryRun {
			plog.Info("[DRY RUN] Would reset always-clean path", "user", user, "path", rel)
		} else if err := os.RemoveAll(livePath); err != nil {
			return report.Result{User: user, Outcome: report.OutcomeFailed, Err: fmt.Errorf("cannot remove live path %s: %w", livePath, err)}
		}

		if err := r.mirrorer.Mirror(ctx, snapPath, livePath, pathmirror.Options{DryRun: r.cfg.Runtime.DryRun}); err != nil {
			return report.Result{User: user, Outcome: report.OutcomeFailed, Err: err}
		}
	}
	return report.Result{User: user, Outcome: report.OutcomePartialCleaned}
}
