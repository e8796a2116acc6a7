// Package report collects per-user run results and renders the end-of-run
// summary for the console and the log file.
package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/paulschiretz/pgl-profile/pkg/util"
)

// Outcome classifies how processing one user ended.
type Outcome int

const (
	OutcomeBackedUp Outcome = iota
	OutcomeFullRestored
	OutcomePartialCleaned
	OutcomeSkipped
	OutcomeWarnNoProfile
	OutcomeWarnNoSnapshot
	OutcomeWarnNoPolicy
	OutcomeWarnBadPolicy
	OutcomeFailed
	// OutcomeFailedProfileAbsent marks the worst failure: the live profile
	// was removed but the copy back from the snapshot did not complete, so
	// the user currently has no profile on disk.
	OutcomeFailedProfileAbsent
)

var outcomeToString = map[Outcome]string{
	OutcomeBackedUp:            "backed up",
	OutcomeFullRestored:        "fully restored",
	OutcomePartialCleaned:      "partially cleaned",
	OutcomeSkipped:             "skipped",
	OutcomeWarnNoProfile:       "no profile directory",
	OutcomeWarnNoSnapshot:      "no snapshot",
	OutcomeWarnNoPolicy:        "no policy record",
	OutcomeWarnBadPolicy:       "invalid policy",
	OutcomeFailed:              "failed",
	OutcomeFailedProfileAbsent: "failed, profile absent",
}

var stringToOutcome = util.InvertMap(outcomeToString)

func (o Outcome) String() string {
	if s, ok := outcomeToString[o]; ok {
		return s
	}
	return "unknown"
}

// Terminal reports whether the outcome counts as a failure for the purpose
// of the process exit code. Warnings are not terminal.
func (o Outcome) Terminal() bool {
	return o == OutcomeFailed || o == OutcomeFailedProfileAbsent
}

// Warning reports whether the outcome is a non-fatal anomaly.
func (o Outcome) Warning() bool {
	switch o {
	case OutcomeWarnNoProfile, OutcomeWarnNoSnapshot, OutcomeWarnNoPolicy, OutcomeWarnBadPolicy:
		return true
	}
	return false
}

// parseOutcome converts the summary string back into an Outcome.
func parseOutcome(s string) (Outcome, error) {
	if o, ok := stringToOutcome[s]; ok {
		return o, nil
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

// Result records what happened to one user during a run.
type Result struct {
	User    string
	Outcome Outcome
	Detail  string
	Err     error
}

// Line renders the result as a single summary row.
func (r Result) Line() string {
	line := fmt.Sprintf("%-20s %s", r.User, r.Outcome)
	if r.Detail != "" {
		line += " (" + r.Detail + ")"
	}
	if r.Err != nil {
		line += ": " + r.Err.Error()
	}
	return line
}

// Printer writes the run summary. Colors are injected so the same printer
// renders the console output and, with the plain variant, the log file.
type Printer struct {
	w     io.Writer
	good  func(format string, a ...interface{}) string
	warn  func(format string, a ...interface{}) string
	bad   func(format string, a ...interface{}) string
	title func(format string, a ...interface{}) string
}

// NewPrinter returns a color printer for terminal output.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:     w,
		good:  color.New(color.FgGreen).Sprintf,
		warn:  color.New(color.FgYellow).Sprintf,
		bad:   color.New(color.FgRed, color.Bold).Sprintf,
		title: color.New(color.Bold).Sprintf,
	}
}

// NewPlainPrinter returns a printer without any color escapes, suitable for
// log files.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{
		w:     w,
		good:  fmt.Sprintf,
		warn:  fmt.Sprintf,
		bad:   fmt.Sprintf,
		title: fmt.Sprintf,
	}
}

// Summary writes one row per result followed by aggregate counts.
func (p *Printer) Summary(results []Result) {
	fmt.Fprintln(p.w, p.title("%s", "Run summary:"))

	var ok, warnings, failures int
	for _, r := range results {
		switch {
		case r.Outcome.Terminal():
			failures++
			fmt.Fprintln(p.w, "  "+p.bad("%s", r.Line()))
		case r.Outcome.Warning():
			warnings++
			fmt.Fprintln(p.w, "  "+p.warn("%s", r.Line()))
		default:
			ok++
			fmt.Fprintln(p.w, "  "+p.good("%s", r.Line()))
		}
	}

	totals := fmt.Sprintf("%d users: %d ok, %d warnings, %d failures", len(results), ok, warnings, failures)
	if failures > 0 {
		fmt.Fprintln(p.w, p.bad("%s", totals))
	} else if warnings > 0 {
		fmt.Fprintln(p.w, p.warn("%s", totals))
	} else {
		fmt.Fprintln(p.w, p.good("%s", totals))
	}
}

// CountTerminal returns how many results ended in a terminal failure.
func CountTerminal(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Outcome.Terminal() {
			n++
		}
	}
	return n
}
