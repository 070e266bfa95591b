package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cowwoc/cat/internal/lock"
	"github.com/cowwoc/cat/internal/session"
)

// writeAgedLock plants a lock file whose acquired_at is hours in the
// past, bypassing Acquire's own timestamping.
func writeAgedLock(t *testing.T, root, issueID, sessionID string, age time.Duration) {
	t.Helper()
	dir := lock.DirFor(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	lk := lock.Lock{
		SessionID:  sessionID,
		AcquiredAt: time.Now().Add(-age),
		Worktrees:  map[string]string{},
	}
	data, err := json.Marshal(lk)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, issueID+".lock"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRepoLockStore_LiveSessionKeepsOldLockFresh(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	root := t.TempDir()
	const owner = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	writeAgedLock(t, root, "2.1-x", owner, 6*time.Hour)

	// Without a session directory the owner is not live: stale.
	entries, err := repoLockStore(root).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].Stale {
		t.Fatalf("entries = %+v, want one stale lock", entries)
	}

	// A recently touched session dir under the host config keeps the
	// lock fresh despite its age.
	if _, err := session.NewDir(filepath.Join(home, ".claude"), owner); err != nil {
		t.Fatal(err)
	}
	entries, err = repoLockStore(root).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Stale {
		t.Fatalf("entries = %+v, want one fresh lock", entries)
	}
}
