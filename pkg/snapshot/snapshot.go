// Package snapshot tracks the stored profile mirrors under the protected
// storage root: one subtree per managed user, named after the username,
// next to that user's policy record.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-profile/pkg/plog"
	"github.com/paulschiretz/pgl-profile/pkg/util"
)

// MetaFileName is the name of the snapshot metadata file written into each
// snapshot subtree. It is excluded when mirroring a snapshot back into a
// live profile.
const MetaFileName = ".pgl-profile.meta.json"

// Meta identifies one snapshot. It is minted when a user is first backed up
// and carried over verbatim by later backups, so backing up an unchanged
// profile reproduces the snapshot subtree byte for byte.
type Meta struct {
	Version      string    `json:"version"`
	UUID         string    `json:"uuid"`
	Username     string    `json:"username"`
	TimestampUTC time.Time `json:"timestampUTC"`
}

// Protector restricts a directory to administrative access.
type Protector interface {
	Protect(path string) error
}

// Store exposes the layout of the snapshot storage root.
type Store struct {
	root string
}

// NewStore creates a snapshot store over the given storage root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the storage root path.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the snapshot subtree path for a user.
func (s *Store) Dir(user string) string {
	return filepath.Join(s.root, user)
}

// Exists reports whether a snapshot subtree exists for the user.
func (s *Store) Exists(user string) (bool, error) {
	if err := util.ValidateUsername(user); err != nil {
		return false, err
	}
	info, err := os.Stat(s.Dir(user))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat snapshot for user %q: %w", user, err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("snapshot path for user %q exists but is not a directory", user)
	}
	return true, nil
}

// Remove deletes the entire snapshot subtree for a user. The policy record
// next to it is left alone; a backup removes and rebuilds snapshots while
// keeping the user's existing policy.
func (s *Store) Remove(user string) error {
	if err := util.ValidateUsername(user); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Dir(user)); err != nil {
		return fmt.Errorf("failed to remove snapshot for user %q: %w", user, err)
	}
	return nil
}

// WriteMeta writes the snapshot metadata file into the user's snapshot subtree.
func (s *Store) WriteMeta(user string, m Meta) error {
	metaPath := filepath.Join(s.Dir(user), MetaFileName)
	jsonData, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal snapshot meta data: %w", err)
	}
	if err := os.WriteFile(metaPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write snapshot meta file %s: %w", metaPath, err)
	}
	return nil
}

// ReadMeta opens and parses the snapshot metadata file for a user.
func (s *Store) ReadMeta(user string) (Meta, error) {
	metaPath := filepath.Join(s.Dir(user), MetaFileName)
	f, err := os.Open(metaPath)
	if err != nil {
		// Note: os.IsNotExist errors are handled by the caller.
		return Meta{}, err
	}
	defer f.Close()

	var m Meta
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return Meta{}, fmt.Errorf("could not parse snapshot meta file %s: %w. It may be corrupt", metaPath, err)
	}
	return m, nil
}

// EnsureRoot makes sure the storage root exists. On fresh creation it applies
// the protection primitive exactly once and reports created=true so the
// caller can seed any root-level defaults. Failure here is the only globally
// fatal condition of a backup run.
func (s *Store) EnsureRoot(protector Protector) (created bool, err error) {
	info, err := os.Stat(s.root)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("storage root %s exists but is not a directory", s.root)
		}
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, fmt.Errorf("cannot access storage root %s: %w", s.root, err)
	}

	if err := os.MkdirAll(s.root, 0700); err != nil {
		return false, fmt.Errorf("failed to create storage root %s: %w", s.root, err)
	}
	plog.Info("Created snapshot storage root", "path", s.root)

	if err := protector.Protect(s.root); err != nil {
		return true, fmt.Errorf("failed to protect storage root %s: %w", s.root, err)
	}
	return true, nil
}
