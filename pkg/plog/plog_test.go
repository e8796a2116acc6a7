package plog

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestPlogLevels(t *testing.T) {
	// --- Setup: Redirect plog output to capture log output ---
	var logBuf bytes.Buffer
	SetOutput(&logBuf)
	t.Cleanup(func() {
		SetLevel(slog.LevelInfo)
		ResetOutput()
	})

	t.Run("Logs all levels when level is Debug", func(t *testing.T) {
		logBuf.Reset()
		SetLevel(slog.LevelDebug)

		Debug("debug message", "key", "val1")
		Info("info message", "key", "val2")
		Warn("warn message")

		output := logBuf.String()

		if !strings.Contains(output, "level=DEBUG msg=\"debug message\" key=val1") {
			t.Errorf("expected debug message to be logged, but it wasn't. Got: %s", output)
		}
		if !strings.Contains(output, "level=INFO msg=\"info message\" key=val2") {
			t.Errorf("expected info message to be logged, but it wasn't. Got: %s", output)
		}
		if !strings.Contains(output, "level=WARN msg=\"warn message\"") {
			t.Errorf("expected warn message to be logged, but it wasn't. Got: %s", output)
		}
	})

	t.Run("Suppresses lower levels when level is Warn", func(t *testing.T) {
		logBuf.Reset()
		SetLevel(slog.LevelWarn)

		Debug("debug message")
		Info("info message")
		Error("error message")

		output := logBuf.String()

		if strings.Contains(output, "level=DEBUG") || strings.Contains(output, "level=INFO") {
			t.Errorf("expected no debug or info output at warn level, but got: %s", output)
		}
		if !strings.Contains(output, "level=ERROR msg=\"error message\"") {
			t.Errorf("expected error message to be logged, but it wasn't. Got: %s", output)
		}
	})
}

func TestSetFileOutputKeepsConsoleSplit(t *testing.T) {
	var fileBuf bytes.Buffer

	origStdout, origStderr := os.Stdout, os.Stderr
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	os.Stdout, os.Stderr = outW, errW
	// The console writers are captured at construction time, so the logger
	// must be built after the streams are swapped.
	SetFileOutput(&fileBuf)
	t.Cleanup(func() {
		os.Stdout, os.Stderr = origStdout, origStderr
		ResetOutput()
	})

	Info("tee info")
	Warn("tee warn")

	outW.Close()
	errW.Close()
	stdout, err := io.ReadAll(outR)
	if err != nil {
		t.Fatalf("reading stdout capture failed: %v", err)
	}
	stderr, err := io.ReadAll(errR)
	if err != nil {
		t.Fatalf("reading stderr capture failed: %v", err)
	}

	if !strings.Contains(string(stdout), "tee info") || strings.Contains(string(stdout), "tee warn") {
		t.Errorf("stdout should carry only the info record, got: %s", stdout)
	}
	if !strings.Contains(string(stderr), "tee warn") || strings.Contains(string(stderr), "tee info") {
		t.Errorf("stderr should carry only the warn record, got: %s", stderr)
	}
	fileOutput := fileBuf.String()
	if !strings.Contains(fileOutput, "tee info") || !strings.Contains(fileOutput, "tee warn") {
		t.Errorf("run log should carry both records, got: %s", fileOutput)
	}
}

func TestLevelFromString(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" Error ", slog.LevelError},
		{"bogus", slog.LevelInfo}, // unknown names fall back to info
		{"", slog.LevelInfo},
	}

	for _, tc := range testCases {
		if got := LevelFromString(tc.input); got != tc.expected {
			t.Errorf("LevelFromString(%q) = %v, expected %v", tc.input, got, tc.expected)
		}
	}
}
