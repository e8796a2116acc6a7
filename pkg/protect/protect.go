// Package protect implements the directory protection primitive: marking the
// snapshot storage root hidden and restricting access to an administrative
// principal. The mechanism is platform specific; see the build-tagged files.
package protect

// DirProtector applies administrative access restriction to directories.
type DirProtector struct{}

// New creates a DirProtector.
func New() *DirProtector {
	return &DirProtector{}
}

// Protect marks the directory hidden and restricts access and ownership to
// an administrative principal. The outcome is always checked: a failure here
// must surface to the caller instead of being ignored.
func (p *DirProtector) Protect(path string) error {
	return platformProtect(path)
}
