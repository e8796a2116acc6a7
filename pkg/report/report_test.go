package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestOutcomeStringRoundTrip(t *testing.T) {
	outcomes := []Outcome{
		OutcomeBackedUp, OutcomeFullRestored, OutcomePartialCleaned,
		OutcomeSkipped, OutcomeWarnNoProfile, OutcomeWarnNoSnapshot,
		OutcomeWarnNoPolicy, OutcomeWarnBadPolicy, OutcomeFailed,
		OutcomeFailedProfileAbsent,
	}
	for _, o := range outcomes {
		parsed, err := parseOutcome(o.String())
		if err != nil {
			t.Errorf("parseOutcome(%q) failed: %v", o.String(), err)
			continue
		}
		if parsed != o {
			t.Errorf("parseOutcome(%q) = %v, want %v", o.String(), parsed, o)
		}
	}
	if _, err := parseOutcome("bogus"); err == nil {
		t.Error("parseOutcome accepted an unknown outcome")
	}
}

func TestOutcomeClassification(t *testing.T) {
	if !OutcomeFailed.Terminal() || !OutcomeFailedProfileAbsent.Terminal() {
		t.Error("failure outcomes must be terminal")
	}
	if OutcomeWarnNoProfile.Terminal() || OutcomeSkipped.Terminal() {
		t.Error("warnings and skips must not be terminal")
	}
	if !OutcomeWarnBadPolicy.Warning() || OutcomeBackedUp.Warning() {
		t.Error("warning classification is wrong")
	}
}

func TestResultLine(t *testing.T) {
	r := Result{User: "alice", Outcome: OutcomeFailed, Detail: "policy not updated", Err: errors.New("disk full")}
	line := r.Line()
	for _, want := range []string{"alice", "failed", "policy not updated", "disk full"} {
		if !strings.Contains(line, want) {
			t.Errorf("Line() = %q, missing %q", line, want)
		}
	}
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)
	results := []Result{
		{User: "alice", Outcome: OutcomeFullRestored},
		{User: "bob", Outcome: OutcomeWarnNoSnapshot},
		{User: "carol", Outcome: OutcomeFailedProfileAbsent, Err: errors.New("copy interrupted")},
	}
	p.Summary(results)

	out := buf.String()
	for _, want := range []string{
		"alice", "fully restored",
		"bob", "no snapshot",
		"carol", "failed, profile absent", "copy interrupted",
		"3 users: 1 ok, 1 warnings, 1 failures",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q, got:\n%s", want, out)
		}
	}
}

func TestCountTerminal(t *testing.T) {
	results := []Result{
		{Outcome: OutcomeBackedUp},
		{Outcome: OutcomeFailed},
		{Outcome: OutcomeWarnBadPolicy},
		{Outcome: OutcomeFailedProfileAbsent},
	}
	if got := CountTerminal(results); got != 2 {
		t.Errorf("CountTerminal = %d, want 2", got)
	}
}
