package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Dir is a session's transient scratch directory under the host config
// root: {config}/projects/-workspace/{session-id}/. It holds skill-load
// markers, failure counters, and warning-emitted flags. Missing entries
// are normal; readers treat them as absent state.
type Dir struct {
	path string
}

// WorkspaceProjects returns the per-project directory under the host
// config root where session directories live.
func WorkspaceProjects(configRoot string) string {
	return filepath.Join(configRoot, "projects", "-workspace")
}

// NewDir returns the session directory for a session id, creating it.
func NewDir(configRoot, sessionID string) (*Dir, error) {
	path := filepath.Join(WorkspaceProjects(configRoot), sessionID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating session dir: %w", err)
	}
	return &Dir{path: path}, nil
}

// OpenDir returns the session directory without creating it. The returned
// Dir's markers all read as absent when the directory does not exist.
func OpenDir(configRoot, sessionID string) *Dir {
	return &Dir{path: filepath.Join(WorkspaceProjects(configRoot), sessionID)}
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// SetMarker creates an empty marker file.
func (d *Dir) SetMarker(name string) error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.path, name), nil, 0o644); err != nil {
		return fmt.Errorf("writing marker %s: %w", name, err)
	}
	return nil
}

// HasMarker reports whether a marker file exists.
func (d *Dir) HasMarker(name string) bool {
	_, err := os.Stat(filepath.Join(d.path, name))
	return err == nil
}

// ClearMarker removes a marker file. Idempotent.
func (d *Dir) ClearMarker(name string) error {
	err := os.Remove(filepath.Join(d.path, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing marker %s: %w", name, err)
	}
	return nil
}

// SkillsLoadedMarker is the marker name recording that an agent's skills
// were loaded this session.
func SkillsLoadedMarker(agentID string) string {
	return "skills-loaded-" + strings.ReplaceAll(agentID, "/", "-")
}

// TerminalWarningMarker records that the terminal-setup warning was
// already emitted this session.
const TerminalWarningMarker = "terminal-warning-emitted"

// failureCountFile returns the counter file for a tool.
func (d *Dir) failureCountFile(tool string) string {
	return filepath.Join(d.path, "failure-count-"+tool)
}

// FailureCount returns the recorded consecutive failure count for a tool.
func (d *Dir) FailureCount(tool string) int {
	data, err := os.ReadFile(d.failureCountFile(tool))
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// IncrementFailureCount bumps and persists the failure counter, returning
// the new value.
func (d *Dir) IncrementFailureCount(tool string) (int, error) {
	n := d.FailureCount(tool) + 1
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return 0, fmt.Errorf("creating session dir: %w", err)
	}
	if err := os.WriteFile(d.failureCountFile(tool), []byte(strconv.Itoa(n)), 0o644); err != nil {
		return 0, fmt.Errorf("writing failure count: %w", err)
	}
	return n, nil
}

// ResetFailureCount clears the failure counter for a tool.
func (d *Dir) ResetFailureCount(tool string) error {
	err := os.Remove(d.failureCountFile(tool))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("resetting failure count: %w", err)
	}
	return nil
}

// Registry lists sessions considered live, for stale-lock arbitration.
type Registry interface {
	// IsLive reports whether the session has shown activity within the
	// given window.
	IsLive(sessionID string, within time.Duration) bool
}

// DirRegistry implements Registry by checking session directory mtimes
// under the host config root. A session whose scratch directory was
// touched within the window counts as live.
type DirRegistry struct {
	ConfigRoot string
}

// IsLive implements Registry.
func (r *DirRegistry) IsLive(sessionID string, within time.Duration) bool {
	info, err := os.Stat(filepath.Join(WorkspaceProjects(r.ConfigRoot), sessionID))
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < within
}
