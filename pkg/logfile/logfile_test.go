package logfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpenAppendsRunHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pgl-profile.log")
	now := time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC)

	first, err := Open(path, "run-one", now)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := first.WriteString("first run output\n"); err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}
	first.Close()

	second, err := Open(path, "run-two", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	second.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	content := string(data)
	for _, want := range []string{"run-one", "first run output", "run-two", "2024-01-02T08:30:00Z"} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q, got:\n%s", want, content)
		}
	}
}

func TestOpenTruncatesOversizedLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pgl-profile.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", MaxSizeBytes+1)), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	file, err := Open(path, "run-after-rotation", time.Now())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	file.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "xxx") {
		t.Error("oversized log was not truncated")
	}
	if !strings.Contains(content, "run-after-rotation") {
		t.Errorf("log missing the new run header, got:\n%s", content)
	}
}

func TestOpenKeepsLogAtCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pgl-profile.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", MaxSizeBytes)), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Exactly at the cap the file is not yet rotated.
	file, err := Open(path, "run", time.Now())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	file.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "xxx") {
		t.Error("log at the size cap was truncated")
	}
}
