package policy

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(dir, Defaults{
		CleanAfterDays: 1,
		CleanAlways:    []string{"cache", "Downloads"},
	})
	return store, dir
}

func TestStoreSaveLoad(t *testing.T) {
	store, _ := newTestStore(t)

	want := Policy{
		CleanAfterDays: 5,
		SkipUser:       true,
		CleanAlways:    []string{"cache/tmp"},
		LastClean:      NewDate(2024, time.April, 2),
	}

	if err := store.Save("alice", want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load("alice")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round-trip mismatch:\n got: %+v\nwant: %+v", got, want)
	}
}

func TestStoreLoadNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Load("ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing record, got: %v", err)
	}
}

func TestStoreLoadInvalidRecord(t *testing.T) {
	store, dir := newTestStore(t)

	// A record with lastClean missing must be rejected, not defaulted.
	path := filepath.Join(dir, "bob"+FileSuffix)
	if err := os.WriteFile(path, []byte("cleanAfterDays: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write test record: %v", err)
	}

	_, err := store.Load("bob")
	var invalid *InvalidPolicyError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidPolicyError, got: %v", err)
	}
	if invalid.User != "bob" {
		t.Errorf("expected error for user 'bob', got %q", invalid.User)
	}
}

func TestStoreLoadRejectsBadUsername(t *testing.T) {
	store, _ := newTestStore(t)

	for _, user := range []string{"", "../escape", `a\b`} {
		if _, err := store.Load(user); err == nil {
			t.Errorf("expected Load(%q) to fail, but it succeeded", user)
		}
		if err := store.Save(user, Policy{LastClean: NewDate(2024, time.January, 1)}); err == nil {
			t.Errorf("expected Save(%q) to fail, but it succeeded", user)
		}
	}
}

func TestStoreSaveRejectsZeroLastClean(t *testing.T) {
	store, dir := newTestStore(t)

	// A record without a schedule anchor would fail strict validation on the
	// next Load, so it must never reach disk.
	if err := store.Save("frank", Policy{CleanAfterDays: 1}); err == nil {
		t.Fatal("expected Save to reject a zero lastClean, but it succeeded")
	}
	if _, err := os.Stat(filepath.Join(dir, "frank"+FileSuffix)); !os.IsNotExist(err) {
		t.Errorf("expected no record on disk, stat err = %v", err)
	}
}

func TestStoreCreateDefault(t *testing.T) {
	store, _ := newTestStore(t)

	today := NewDate(2024, time.June, 1)
	created, err := store.CreateDefault("carol", today)
	if err != nil {
		t.Fatalf("CreateDefault failed: %v", err)
	}
	if created.CleanAfterDays != 1 || created.SkipUser {
		t.Errorf("unexpected default policy: %+v", created)
	}
	if created.LastClean != today {
		t.Errorf("expected lastClean to be seeded with today, got %s", created.LastClean)
	}

	loaded, err := store.Load("carol")
	if err != nil {
		t.Fatalf("Load after CreateDefault failed: %v", err)
	}
	if !reflect.DeepEqual(loaded.CleanAlways, []string{"cache", "Downloads"}) {
		t.Errorf("expected default cleanAllways list, got %v", loaded.CleanAlways)
	}
}

func TestStoreSaveOverwrites(t *testing.T) {
	store, _ := newTestStore(t)

	first := Policy{CleanAfterDays: 1, LastClean: NewDate(2024, time.January, 1)}
	second := Policy{CleanAfterDays: 9, LastClean: NewDate(2024, time.February, 2)}

	if err := store.Save("dave", first); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := store.Save("dave", second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := store.Load("dave")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.CleanAfterDays != 9 || got.LastClean != second.LastClean {
		t.Errorf("expected second record to win, got %+v", got)
	}
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	store, dir := newTestStore(t)

	if err := store.Save("erin", Policy{CleanAfterDays: 2, LastClean: NewDate(2024, time.May, 5)}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no leftover temp files, found: %v", matches)
	}
}

func TestStoreListKnownUsers(t *testing.T) {
	store, dir := newTestStore(t)

	t.Run("Empty Root", func(t *testing.T) {
		users, err := store.ListKnownUsers()
		if err != nil {
			t.Fatalf("ListKnownUsers failed: %v", err)
		}
		if len(users) != 0 {
			t.Errorf("expected no users, got %v", users)
		}
	})

	t.Run("Records And Noise", func(t *testing.T) {
		for _, user := range []string{"zoe", "alice", "bob"} {
			if err := store.Save(user, Policy{CleanAfterDays: 1, LastClean: NewDate(2024, time.January, 1)}); err != nil {
				t.Fatalf("Save(%s) failed: %v", user, err)
			}
		}
		// Snapshot directories and unrelated files must not be listed.
		if err := os.Mkdir(filepath.Join(dir, "alice"), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}

		users, err := store.ListKnownUsers()
		if err != nil {
			t.Fatalf("ListKnownUsers failed: %v", err)
		}
		expected := []string{"alice", "bob", "zoe"}
		if !reflect.DeepEqual(users, expected) {
			t.Errorf("expected %v, got %v", expected, users)
		}
	})

	t.Run("Missing Root", func(t *testing.T) {
		missing := NewStore(filepath.Join(dir, "nope"), Defaults{})
		if _, err := missing.ListKnownUsers(); err == nil {
			t.Error("expected an error for a missing storage root, got nil")
		}
	})
}
