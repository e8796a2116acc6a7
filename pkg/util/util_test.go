package util

import (
	"os"
	"testing"
)

func TestWithUserWritePermission(t *testing.T) {
	testCases := []struct {
		name     string
		input    os.FileMode
		expected os.FileMode
	}{
		{
			name:     "Read-only permission",
			input:    0444, // r--r--r--
			expected: 0644, // rw-r--r--
		},
		{
			name:     "Already has write permission",
			input:    0755, // rwxr-xr-x
			expected: 0755, // rwxr-xr-x (should not change)
		},
		{
			name:     "No permissions",
			input:    0000, // ---------
			expected: 0200, // -w-------
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := WithUserWritePermission(tc.input)
			if result != tc.expected {
				t.Errorf("expected permission %o, but got %o", tc.expected, result)
			}
		})
	}
}

func TestInvertMap(t *testing.T) {
	m := map[int]string{1: "one", 2: "two"}
	inv := InvertMap(m)
	if len(inv) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(inv))
	}
	if inv["one"] != 1 || inv["two"] != 2 {
		t.Errorf("unexpected inverted map: %v", inv)
	}
}

func TestValidateUsername(t *testing.T) {
	valid := []string{"alice", "bob.smith", "student-07", "Lab User"}
	for _, user := range valid {
		if err := ValidateUsername(user); err != nil {
			t.Errorf("expected %q to be valid, got error: %v", user, err)
		}
	}

	invalid := []string{"", "   ", ".", "..", "a/b", `a\b`, "../etc"}
	for _, user := range invalid {
		if err := ValidateUsername(user); err == nil {
			t.Errorf("expected %q to be rejected, but it passed", user)
		}
	}
}
