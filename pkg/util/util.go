package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Permission constants for file and directory modes.
const (
	// PermUserWrite is the user-write permission bit (0200).
	PermUserWrite os.FileMode = 0200

	// UserWritableDirPerms represents the standard permissions for newly created directories (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
	// UserWritableFilePerms represents the standard permissions for newly created files (rw-r--r--).
	UserWritableFilePerms os.FileMode = 0644
)

// WithUserWritePermission ensures that any directory/file permission has the owner-write
// bit (0200) set. This prevents the managing user from being locked out on subsequent runs
// when snapshotting profile trees that contain read-only directories.
func WithUserWritePermission(basePerm os.FileMode) os.FileMode {
	return basePerm | PermUserWrite
}

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil // No tilde, return as-is.
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}

	// Replace the tilde with the home directory.
	return filepath.Join(home, path[1:]), nil
}

// InvertMap takes a map[K]V and returns a map[V]K.
// It's a generic helper for creating reverse lookup maps for enums.
func InvertMap[K comparable, V comparable](m map[K]V) map[V]K {
	inv := make(map[V]K, len(m))
	for k, v := range m {
		inv[v] = k
	}
	return inv
}

// ValidateUsername rejects usernames that cannot safely name a snapshot
// directory or policy file. Usernames become path components under the
// storage root, so separators and dot-names must never pass through.
func ValidateUsername(user string) error {
	if strings.TrimSpace(user) == "" {
		return fmt.Errorf("username is empty")
	}
	if user == "." || user == ".." {
		return fmt.Errorf("username %q is not a valid name", user)
	}
	if strings.ContainsAny(user, `/\`) || user != filepath.Base(user) {
		return fmt.Errorf("username %q must not contain path separators", user)
	}
	return nil
}
