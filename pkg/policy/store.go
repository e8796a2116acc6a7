package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/paulschiretz/pgl-profile/pkg/plog"
	"github.com/paulschiretz/pgl-profile/pkg/util"
)

// Defaults holds the values seeded into a freshly created policy record.
type Defaults struct {
	CleanAfterDays int
	CleanAlways    []string
}

// Store persists per-user policy records as "<username>.policy.yaml" files
// inside the storage root.
//
// Reads and writes for the same user are serialized in-process via a per-user
// mutex. Concurrent separate-process invocations against the same storage
// root are out of scope (single-writer assumption, an operational constraint
// of the tool).
type Store struct {
	dir      string
	defaults Defaults

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewStore creates a policy store rooted at dir.
func NewStore(dir string, defaults Defaults) *Store {
	return &Store{
		dir:       dir,
		defaults:  defaults,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// path returns the policy file path for a user.
func (s *Store) path(user string) string {
	return filepath.Join(s.dir, user+FileSuffix)
}

// userLock returns the mutex guarding a single user's record.
func (s *Store) userLock(user string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[user]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[user] = l
	}
	return l
}

// Load reads and strictly parses the persisted record for a user.
// It returns ErrNotFound when no record exists and *InvalidPolicyError when
// the record fails validation.
func (s *Store) Load(user string) (Policy, error) {
	if err := util.ValidateUsername(user); err != nil {
		return Policy{}, &InvalidPolicyError{User: user, Reason: "invalid username", Err: err}
	}

	l := s.userLock(user)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(s.path(user))
	if err != nil {
		if os.IsNotExist(err) {
			return Policy{}, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		return Policy{}, fmt.Errorf("failed to read policy record for user %q: %w", user, err)
	}

	return decodeRecord(user, data)
}

// Save serializes and writes the record, overwriting any prior version.
// The write goes to a temporary file in the same directory first and is then
// renamed into place, so an interrupted run can never leave a torn record
// behind at the canonical path.
func (s *Store) Save(user string, p Policy) error {
	if err := util.ValidateUsername(user); err != nil {
		return fmt.Errorf("cannot save policy: %w", err)
	}
	if p.LastClean.IsZero() {
		return fmt.Errorf("cannot save policy for user %q: lastClean is not set", user)
	}

	l := s.userLock(user)
	l.Lock()
	defer l.Unlock()

	data, err := encodeRecord(p)
	if err != nil {
		return fmt.Errorf("failed to marshal policy for user %q: %w", user, err)
	}

	target := s.path(user)
	tmpF, err := os.CreateTemp(s.dir, user+".policy.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp policy file: %w", err)
	}
	tmpPath := tmpF.Name()
	// Clean up the temp file on any failure path. After a successful rename
	// the file no longer exists and the removal is a no-op.
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary policy file", "path", tmpPath, "error", err)
		}
	}()

	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to write policy record: %w", err)
	}
	if err := tmpF.Chmod(util.UserWritableFilePerms); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to set permissions on policy record: %w", err)
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to sync policy record: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp policy file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("failed to rename policy record into place: %w", err)
	}
	return nil
}

// CreateDefault writes a fresh policy record for a user, seeded with the
// store defaults and lastClean set to today. The caller is responsible for
// only invoking this when no record exists yet.
func (s *Store) CreateDefault(user string, today Date) (Policy, error) {
	p := Policy{
		CleanAfterDays: s.defaults.CleanAfterDays,
		SkipUser:       false,
		CleanAlways:    append([]string(nil), s.defaults.CleanAlways...),
		LastClean:      today,
	}
	if err := s.Save(user, p); err != nil {
		return Policy{}, err
	}
	plog.Info("Created default policy record", "user", user, "cleanAfterDays", p.CleanAfterDays)
	return p, nil
}

// ListKnownUsers enumerates usernames with an existing policy record,
// sorted for deterministic processing order.
func (s *Store) ListKnownUsers() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage root %s: %w", s.dir, err)
	}

	var users []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, FileSuffix) {
			continue
		}
		user := strings.TrimSuffix(name, FileSuffix)
		if user == "" {
			continue
		}
		users = append(users, user)
	}
	sort.Strings(users)
	return users, nil
}
