// Package lock implements the on-disk issue lock protocol.
//
// One lock file per issue lives under {repo}/.claude/cat/locks/. The file
// content is JSON: the owning session, the acquisition time, and a map of
// worktree paths to the agent currently editing there. Processes on the
// same machine serialize mutations with an OS advisory lock; the files
// themselves are written with temp+rename so a killed process never
// leaves a torn lock behind.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/cowwoc/cat/internal/session"
)

var (
	// ErrNotOwner indicates the caller's session does not own the lock.
	ErrNotOwner = errors.New("lock not owned by this session")

	// ErrMalformed indicates the lock file could not be parsed.
	ErrMalformed = errors.New("malformed lock file")

	// ErrNotFound indicates no lock file exists for the issue.
	ErrNotFound = errors.New("lock not found")
)

// DefaultStaleThreshold is how old a lock must be before it can be
// treated as abandoned.
const DefaultStaleThreshold = 4 * time.Hour

// Lock is the persisted content of an issue lock file.
type Lock struct {
	SessionID  string            `json:"session_id"`
	AcquiredAt time.Time         `json:"acquired_at"`
	Worktrees  map[string]string `json:"worktrees"`
}

// Entry is one lock as reported by List.
type Entry struct {
	IssueID    string            `json:"issue_id"`
	SessionID  string            `json:"session_id"`
	AgeSeconds int64             `json:"age_seconds"`
	Worktrees  map[string]string `json:"worktrees"`
	Stale      bool              `json:"stale"`
}

// AcquireResult reports the outcome of an acquisition attempt.
type AcquireResult struct {
	Acquired        bool
	HolderSessionID string // set when contested
}

// Store manages the lock directory for one repository.
type Store struct {
	dir       string
	threshold time.Duration
	registry  session.Registry // nil: age threshold alone decides staleness
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithStaleThreshold overrides the default staleness age.
func WithStaleThreshold(d time.Duration) Option {
	return func(s *Store) { s.threshold = d }
}

// WithRegistry supplies a live-session registry. When present, a lock is
// stale only if it is old AND its owner is not live.
func WithRegistry(r session.Registry) Option {
	return func(s *Store) { s.registry = r }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store rooted at the given locks directory.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:       dir,
		threshold: DefaultStaleThreshold,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DirFor returns the locks directory for a repository root.
func DirFor(repoRoot string) string {
	return filepath.Join(repoRoot, ".claude", "cat", "locks")
}

func (s *Store) lockPath(issueID string) string {
	return filepath.Join(s.dir, issueID+".lock")
}

// withDirLock runs fn while holding the advisory lock that serializes
// mutations to the locks directory across processes on this machine.
func (s *Store) withDirLock(fn func() error) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating locks dir: %w", err)
	}
	fl := flock.New(filepath.Join(s.dir, ".locks.flock"))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring directory lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()
	return fn()
}

// writeLock persists a lock with temp-file + atomic rename.
func (s *Store) writeLock(issueID string, lk *Lock) error {
	data, err := json.MarshalIndent(lk, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lock: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+issueID+".lock.tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp lock: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp lock: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp lock: %w", err)
	}
	if err := os.Rename(tmpName, s.lockPath(issueID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming lock into place: %w", err)
	}
	return nil
}

// Read loads and parses one lock file.
func (s *Store) Read(issueID string) (*Lock, error) {
	return s.readFile(s.lockPath(issueID))
}

func (s *Store) readFile(path string) (*Lock, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading lock: %w", err)
	}
	var lk Lock
	if err := json.Unmarshal(data, &lk); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if lk.SessionID == "" || lk.AcquiredAt.IsZero() {
		return nil, fmt.Errorf("%w: %s: missing session_id or acquired_at", ErrMalformed, path)
	}
	if lk.Worktrees == nil {
		lk.Worktrees = map[string]string{}
	}
	return &lk, nil
}

// IsStale reports whether a lock is old enough to reclaim. With a
// registry configured, a live owning session keeps even an old lock
// fresh; without one (hook handlers that only see the filesystem), age
// alone decides.
func (s *Store) IsStale(lk *Lock) bool {
	age := s.now().Sub(lk.AcquiredAt)
	if age < s.threshold {
		return false
	}
	if s.registry != nil && s.registry.IsLive(lk.SessionID, s.threshold) {
		return false
	}
	return true
}

// Acquire attempts to take the lock for an issue. A non-stale existing
// lock held by another session yields Contested; a stale lock is treated
// as absent and overwritten. Re-acquiring one's own lock succeeds and
// refreshes acquired_at.
func (s *Store) Acquire(issueID, sessionID string) (*AcquireResult, error) {
	var result *AcquireResult
	err := s.withDirLock(func() error {
		existing, err := s.Read(issueID)
		switch {
		case err == nil:
			if existing.SessionID != sessionID && !s.IsStale(existing) {
				result = &AcquireResult{HolderSessionID: existing.SessionID}
				return nil
			}
			// Stale or our own: fall through and overwrite.
		case errors.Is(err, ErrNotFound):
		case errors.Is(err, ErrMalformed):
			// A torn lock cannot name an owner; reclaim it.
			s.logger.Debug("reclaiming malformed lock", "issue", issueID, "error", err)
		default:
			return err
		}
		lk := &Lock{
			SessionID:  sessionID,
			AcquiredAt: s.now().UTC(),
			Worktrees:  map[string]string{},
		}
		if err := s.writeLock(issueID, lk); err != nil {
			return err
		}
		result = &AcquireResult{Acquired: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Update merges {worktreePath: agentID} into the worktrees map of the
// caller's own lock.
func (s *Store) Update(issueID, sessionID, worktreePath, agentID string) error {
	return s.withDirLock(func() error {
		lk, err := s.Read(issueID)
		if err != nil {
			return err
		}
		if lk.SessionID != sessionID {
			return fmt.Errorf("%w: %s held by %s", ErrNotOwner, issueID, lk.SessionID)
		}
		lk.Worktrees[worktreePath] = agentID
		return s.writeLock(issueID, lk)
	})
}

// Release deletes the lock iff owned by sessionID. Releasing an absent
// lock is a no-op.
func (s *Store) Release(issueID, sessionID string) error {
	return s.withDirLock(func() error {
		lk, err := s.Read(issueID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil && !errors.Is(err, ErrMalformed) {
			return err
		}
		if err == nil && lk.SessionID != sessionID {
			return fmt.Errorf("%w: %s held by %s", ErrNotOwner, issueID, lk.SessionID)
		}
		return removeIfExists(s.lockPath(issueID))
	})
}

// ForceRelease deletes the lock regardless of owner. Used only by the
// cleanup command.
func (s *Store) ForceRelease(issueID string) error {
	return s.withDirLock(func() error {
		return removeIfExists(s.lockPath(issueID))
	})
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock: %w", err)
	}
	return nil
}

// List returns every parseable lock, sorted by issue id. Malformed locks
// are skipped with a debug log so one corrupt file cannot hide the rest.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading locks dir: %w", err)
	}
	var locks []Entry
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".lock") {
			continue
		}
		issueID := strings.TrimSuffix(name, ".lock")
		lk, err := s.readFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Debug("skipping malformed lock", "file", name, "error", err)
			continue
		}
		locks = append(locks, Entry{
			IssueID:    issueID,
			SessionID:  lk.SessionID,
			AgeSeconds: int64(s.now().Sub(lk.AcquiredAt).Seconds()),
			Worktrees:  lk.Worktrees,
			Stale:      s.IsStale(lk),
		})
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].IssueID < locks[j].IssueID })
	return locks, nil
}

// Holder returns the owning session of a non-stale lock for the issue,
// or "" when the issue is effectively unlocked.
func (s *Store) Holder(issueID string) (string, error) {
	lk, err := s.Read(issueID)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if s.IsStale(lk) {
		return "", nil
	}
	return lk.SessionID, nil
}
