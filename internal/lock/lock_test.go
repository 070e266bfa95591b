package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return NewStore(t.TempDir(), opts...)
}

func TestAcquire_Fresh(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	res, err := s.Acquire("2.1-add-parser", "S1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Acquired {
		t.Fatal("expected Acquired")
	}
	lk, err := s.Read("2.1-add-parser")
	if err != nil {
		t.Fatal(err)
	}
	if lk.SessionID != "S1" {
		t.Errorf("session_id = %q, want S1", lk.SessionID)
	}
	if lk.AcquiredAt.IsZero() {
		t.Error("acquired_at not set")
	}
}

func TestAcquire_Contested(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if _, err := s.Acquire("2.1-x", "S1"); err != nil {
		t.Fatal(err)
	}
	res, err := s.Acquire("2.1-x", "S2")
	if err != nil {
		t.Fatal(err)
	}
	if res.Acquired {
		t.Fatal("expected Contested")
	}
	if res.HolderSessionID != "S1" {
		t.Errorf("holder = %q, want S1", res.HolderSessionID)
	}
}

func TestAcquire_StaleReclaim(t *testing.T) {
	t.Parallel()
	now := time.Now()
	s := newTestStore(t, WithClock(func() time.Time { return now }))
	if _, err := s.Acquire("2.1-x", "S-dead"); err != nil {
		t.Fatal(err)
	}
	// Five hours later the 4h default threshold has passed.
	now = now.Add(5 * time.Hour)
	res, err := s.Acquire("2.1-x", "S2")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Acquired {
		t.Fatalf("expected stale lock reclaimed, got holder %q", res.HolderSessionID)
	}
	lk, err := s.Read("2.1-x")
	if err != nil {
		t.Fatal(err)
	}
	if lk.SessionID != "S2" {
		t.Errorf("session_id = %q, want S2", lk.SessionID)
	}
}

func TestAcquire_MalformedReclaimed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewStore(dir)
	if err := os.WriteFile(filepath.Join(dir, "2.1-x.lock"), []byte("{garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := s.Acquire("2.1-x", "S1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Acquired {
		t.Error("malformed lock should be reclaimable")
	}
}

func TestUpdate_OwnershipEnforced(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if _, err := s.Acquire("2.1-x", "S1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Update("2.1-x", "S1", "/work/wt/2.1-x", "S1/subagents/7"); err != nil {
		t.Fatal(err)
	}
	lk, err := s.Read("2.1-x")
	if err != nil {
		t.Fatal(err)
	}
	if lk.Worktrees["/work/wt/2.1-x"] != "S1/subagents/7" {
		t.Errorf("worktrees = %v", lk.Worktrees)
	}
	if err := s.Update("2.1-x", "S2", "/elsewhere", "S2"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("foreign update error = %v, want ErrNotOwner", err)
	}
}

func TestRelease(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if _, err := s.Acquire("2.1-x", "S1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Release("2.1-x", "S2"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("foreign release error = %v, want ErrNotOwner", err)
	}
	if err := s.Release("2.1-x", "S1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read("2.1-x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("lock should be gone, got %v", err)
	}
	// Idempotent.
	if err := s.Release("2.1-x", "S1"); err != nil {
		t.Errorf("second release: %v", err)
	}
}

func TestForceRelease(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if _, err := s.Acquire("2.1-x", "S1"); err != nil {
		t.Fatal(err)
	}
	if err := s.ForceRelease("2.1-x"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read("2.1-x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("lock should be gone, got %v", err)
	}
}

func TestList_SkipsMalformed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewStore(dir)
	if _, err := s.Acquire("1.0-a", "S1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Acquire("2.0-b", "S2"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "3.0-c.lock"), []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (malformed skipped)", len(entries))
	}
	if entries[0].IssueID != "1.0-a" || entries[1].IssueID != "2.0-b" {
		t.Errorf("entries not sorted by issue: %v", entries)
	}
}

func TestHolder(t *testing.T) {
	t.Parallel()
	now := time.Now()
	s := newTestStore(t, WithClock(func() time.Time { return now }))
	holder, err := s.Holder("2.1-x")
	if err != nil || holder != "" {
		t.Errorf("holder of absent lock = %q, %v", holder, err)
	}
	if _, err := s.Acquire("2.1-x", "S1"); err != nil {
		t.Fatal(err)
	}
	holder, err = s.Holder("2.1-x")
	if err != nil || holder != "S1" {
		t.Errorf("holder = %q, %v; want S1", holder, err)
	}
	now = now.Add(5 * time.Hour)
	holder, err = s.Holder("2.1-x")
	if err != nil || holder != "" {
		t.Errorf("stale lock holder = %q, want empty", holder)
	}
}

type fakeRegistry struct{ live map[string]bool }

func (f *fakeRegistry) IsLive(sessionID string, _ time.Duration) bool {
	return f.live[sessionID]
}

func TestIsStale_LiveSessionKeepsLock(t *testing.T) {
	t.Parallel()
	now := time.Now()
	reg := &fakeRegistry{live: map[string]bool{"S1": true}}
	s := newTestStore(t, WithClock(func() time.Time { return now }), WithRegistry(reg))
	if _, err := s.Acquire("2.1-x", "S1"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(6 * time.Hour)
	lk, err := s.Read("2.1-x")
	if err != nil {
		t.Fatal(err)
	}
	if s.IsStale(lk) {
		t.Error("old lock with live owner should not be stale")
	}
	reg.live["S1"] = false
	if !s.IsStale(lk) {
		t.Error("old lock with dead owner should be stale")
	}
}

func TestAcquireReleaseRoundTrip_LeavesNoFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s := NewStore(dir)
	if _, err := s.Acquire("2.1-x", "S1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Release("2.1-x", "S1"); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".lock" {
			t.Errorf("leftover lock file %s", entry.Name())
		}
	}
}
