package policy

import (
	"fmt"

	"github.com/paulschiretz/pgl-profile/pkg/util"
)

// Action is the outcome of evaluating a policy for one user on one invocation.
type Action int

const (
	// ActionSkip leaves the user's profile untouched.
	ActionSkip Action = iota
	// ActionFullRestore destructively replaces the entire live profile with the snapshot.
	ActionFullRestore
	// ActionPartialClean resets only the cleanAllways subpaths from the snapshot.
	ActionPartialClean
)

var actionToString = map[Action]string{
	ActionSkip:         "skip",
	ActionFullRestore:  "full-restore",
	ActionPartialClean: "partial-clean",
}

var stringToAction map[string]Action

func init() {
	stringToAction = util.InvertMap(actionToString)
}

// String returns the string representation of an Action.
func (a Action) String() string {
	if str, ok := actionToString[a]; ok {
		return str
	}
	return fmt.Sprintf("unknown_action(%d)", a)
}

// parseAction maps an action name back to its Action.
func parseAction(s string) (Action, error) {
	if action, ok := stringToAction[s]; ok {
		return action, nil
	}
	return 0, fmt.Errorf("invalid action: %q. Must be 'skip', 'full-restore', or 'partial-clean'", s)
}

// Decide evaluates a valid policy against the current date and the force
// override, returning the action to take. It is a pure function: an invalid
// policy must be rejected by the caller before evaluation ever runs.
//
// The rules apply in order:
//  1. Without force, a skipped user is never touched.
//  2. Force, a zero cleanAfterDays, or enough elapsed whole calendar days
//     since lastClean triggers a full restore.
//  3. Everything else is a partial (always-clean) restore.
func Decide(p Policy, force bool, today Date) Action {
	if !force && p.SkipUser {
		return ActionSkip
	}
	if force || p.CleanAfterDays == 0 {
		return ActionFullRestore
	}
	if p.LastClean.DaysUntil(today) >= p.CleanAfterDays {
		return ActionFullRestore
	}
	return ActionPartialClean
}
