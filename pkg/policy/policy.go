// Package policy implements the per-user reset policy: the persisted record
// that governs whether a user's profile is fully restored from its snapshot,
// partially cleaned, or left alone on session start.
//
// Records are stored one-per-user as YAML files next to the user's snapshot.
// Parsing is deliberately strict: a record with missing required fields, an
// unparseable date, or a malformed value is rejected as invalid rather than
// silently defaulted, so a typo in a hand-edited file can never flip a user
// into an unintended reset schedule.
package policy

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileSuffix is appended to the username to form the policy file name
// inside the storage root, e.g. "alice.policy.yaml".
const FileSuffix = ".policy.yaml"

// Policy is the per-user reset configuration.
type Policy struct {
	// CleanAfterDays is the number of whole calendar days that must elapse
	// since LastClean before the next full restore triggers automatically.
	// 0 means every invocation triggers a full restore.
	CleanAfterDays int

	// SkipUser excludes the user from automatic restore entirely,
	// unless a force override is supplied.
	SkipUser bool

	// CleanAlways lists subpaths (relative to the profile root) that are
	// mirrored from the snapshot on every invocation that does not trigger
	// a full restore.
	CleanAlways []string

	// LastClean is the date of the most recent full restore (or the backup
	// creation date as a seed value). Day granularity only.
	LastClean Date
}

// ErrNotFound is returned by Store.Load when no policy record exists for the user.
var ErrNotFound = errors.New("no policy record for user")

// InvalidPolicyError describes a policy record that failed strict validation.
// The affected user is skipped and left untouched by the caller.
type InvalidPolicyError struct {
	User   string
	Reason string
	Err    error
}

func (e *InvalidPolicyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid policy for user %q: %s: %v", e.User, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid policy for user %q: %s", e.User, e.Reason)
}

func (e *InvalidPolicyError) Unwrap() error { return e.Err }

// policyRecord is the wire form of a Policy. Required fields are pointers so
// that an absent field can be distinguished from its zero value.
//
// The "cleanAllways" key keeps the double-l spelling of the legacy format so
// existing records stay readable.
type policyRecord struct {
	CleanAfterDays *int     `yaml:"cleanAfterDays"`
	SkipUser       *bool    `yaml:"skipUser"`
	CleanAlways    []string `yaml:"cleanAllways"`
	LastClean      *Date    `yaml:"lastClean"`
}

// decodeRecord strictly parses a serialized policy record.
func decodeRecord(user string, data []byte) (Policy, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)

	var rec policyRecord
	if err := dec.Decode(&rec); err != nil {
		return Policy{}, &InvalidPolicyError{User: user, Reason: "malformed record", Err: err}
	}

	if rec.CleanAfterDays == nil {
		return Policy{}, &InvalidPolicyError{User: user, Reason: "cleanAfterDays is missing"}
	}
	if *rec.CleanAfterDays < 0 {
		return Policy{}, &InvalidPolicyError{User: user, Reason: fmt.Sprintf("cleanAfterDays must be non-negative, got %d", *rec.CleanAfterDays)}
	}
	if rec.LastClean == nil {
		return Policy{}, &InvalidPolicyError{User: user, Reason: "lastClean is missing"}
	}
	for _, rel := range rec.CleanAlways {
		if err := ValidateRelPath(rel); err != nil {
			return Policy{}, &InvalidPolicyError{User: user, Reason: "invalid cleanAllways entry", Err: err}
		}
	}

	p := Policy{
		CleanAfterDays: *rec.CleanAfterDays,
		CleanAlways:    rec.CleanAlways,
		LastClean:      *rec.LastClean,
	}
	// skipUser and cleanAllways may be absent: absence is not malformation,
	// it simply means "never skip" and "nothing to always-clean".
	if rec.SkipUser != nil {
		p.SkipUser = *rec.SkipUser
	}
	return p, nil
}

// encodeRecord serializes a Policy into its wire form.
func encodeRecord(p Policy) ([]byte, error) {
	rec := policyRecord{
		CleanAfterDays: &p.CleanAfterDays,
		SkipUser:       &p.SkipUser,
		CleanAlways:    p.CleanAlways,
		LastClean:      &p.LastClean,
	}
	return yaml.Marshal(&rec)
}

// ValidateRelPath checks that a cleanAllways entry resolves inside the
// profile tree: it must be relative and must not traverse above the root.
func ValidateRelPath(rel string) error {
	if strings.TrimSpace(rel) == "" {
		return fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return fmt.Errorf("path %q must be relative to the profile root", rel)
	}
	clean := path.Clean(filepath.ToSlash(rel))
	if clean == "." {
		return fmt.Errorf("path %q resolves to the profile root itself", rel)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path %q escapes the profile root", rel)
	}
	return nil
}

// --- Date ---

// dateLayout is the wire format for policy dates.
const dateLayout = "2006-01-02"

// Date is a calendar date with day granularity. The schedule evaluation
// deliberately ignores wall-clock time: two invocations on the same calendar
// day are equivalent as far as the reset schedule is concerned.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate constructs a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{year: year, month: month, day: day}
}

// DateOf truncates a point in time to its local calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

// ParseDate strictly parses a "YYYY-MM-DD" date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether the date is the zero value.
func (d Date) IsZero() bool {
	return d.year == 0 && d.month == 0 && d.day == 0
}

// String returns the "YYYY-MM-DD" form.
func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

// Time returns the date as midnight UTC, for arithmetic.
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the number of whole calendar days from d to other.
// The result is negative when other precedes d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time().Sub(d.Time()).Hours() / 24)
}

// MarshalYAML implements the yaml.Marshaler interface.
func (d Date) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface. Anything that is
// not a plain "YYYY-MM-DD" scalar is rejected.
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	// Reading the raw scalar accepts both quoted and unquoted dates; an
	// unquoted date resolves to a timestamp tag and would not decode into
	// a plain string.
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("lastClean should be a %q date string", dateLayout)
	}
	parsed, err := ParseDate(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
