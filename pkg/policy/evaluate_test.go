package policy

import (
	"testing"
	"time"
)

func TestDecide(t *testing.T) {
	base := Policy{
		CleanAfterDays: 1,
		SkipUser:       false,
		CleanAlways:    []string{"cache"},
		LastClean:      NewDate(2024, time.January, 1),
	}

	testCases := []struct {
		name     string
		modify   func(p *Policy)
		force    bool
		today    Date
		expected Action
	}{
		{
			name:     "Overdue schedule triggers full restore",
			today:    NewDate(2024, time.January, 3), // 2 days elapsed >= 1
			expected: ActionFullRestore,
		},
		{
			name:     "Exactly at the threshold triggers full restore",
			today:    NewDate(2024, time.January, 2), // 1 day elapsed >= 1
			expected: ActionFullRestore,
		},
		{
			name:     "Same day falls through to partial clean",
			today:    NewDate(2024, time.January, 1), // 0 days elapsed < 1
			expected: ActionPartialClean,
		},
		{
			name:     "Skipped user is never touched without force",
			modify:   func(p *Policy) { p.SkipUser = true },
			today:    NewDate(2024, time.January, 10),
			expected: ActionSkip,
		},
		{
			name: "Skip wins over a zero-day schedule",
			modify: func(p *Policy) {
				p.SkipUser = true
				p.CleanAfterDays = 0
			},
			today:    NewDate(2024, time.January, 1),
			expected: ActionSkip,
		},
		{
			name:     "Force overrides skipUser",
			modify:   func(p *Policy) { p.SkipUser = true },
			force:    true,
			today:    NewDate(2024, time.January, 1),
			expected: ActionFullRestore,
		},
		{
			name:     "Force restores even when the schedule is not due",
			force:    true,
			today:    NewDate(2024, time.January, 1),
			expected: ActionFullRestore,
		},
		{
			name:     "Zero cleanAfterDays always restores",
			modify:   func(p *Policy) { p.CleanAfterDays = 0 },
			today:    NewDate(2024, time.January, 1),
			expected: ActionFullRestore,
		},
		{
			name: "Zero cleanAfterDays restores even with a future lastClean",
			modify: func(p *Policy) {
				p.CleanAfterDays = 0
				p.LastClean = NewDate(2024, time.February, 1)
			},
			today:    NewDate(2024, time.January, 1),
			expected: ActionFullRestore,
		},
		{
			name:     "Long schedule stays partial until due",
			modify:   func(p *Policy) { p.CleanAfterDays = 7 },
			today:    NewDate(2024, time.January, 7), // 6 days elapsed < 7
			expected: ActionPartialClean,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			if tc.modify != nil {
				tc.modify(&p)
			}
			if got := Decide(p, tc.force, tc.today); got != tc.expected {
				t.Errorf("Decide() = %s, expected %s", got, tc.expected)
			}
		})
	}
}

// Force must never yield a skip, regardless of the policy contents.
func TestDecideForceNeverSkips(t *testing.T) {
	policies := []Policy{
		{CleanAfterDays: 0, SkipUser: true, LastClean: NewDate(2024, time.January, 1)},
		{CleanAfterDays: 365, SkipUser: true, LastClean: NewDate(2024, time.January, 1)},
		{CleanAfterDays: 1, SkipUser: false, LastClean: NewDate(2030, time.January, 1)},
	}
	for _, p := range policies {
		if got := Decide(p, true, NewDate(2024, time.June, 1)); got == ActionSkip {
			t.Errorf("Decide(force=true) returned Skip for %+v", p)
		}
	}
}

func TestActionString(t *testing.T) {
	testCases := []struct {
		action   Action
		expected string
	}{
		{ActionSkip, "skip"},
		{ActionFullRestore, "full-restore"},
		{ActionPartialClean, "partial-clean"},
	}
	for _, tc := range testCases {
		if tc.action.String() != tc.expected {
			t.Errorf("Action(%d).String() = %q, expected %q", tc.action, tc.action.String(), tc.expected)
		}
		parsed, err := parseAction(tc.expected)
		if err != nil || parsed != tc.action {
			t.Errorf("parseAction(%q) = %v, %v", tc.expected, parsed, err)
		}
	}

	if _, err := parseAction("bogus"); err == nil {
		t.Error("expected parseAction to reject an unknown action")
	}
}
