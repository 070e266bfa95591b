// Package paths provides path normalization for security decisions.
// Gates must never compare raw strings; everything is normalized and,
// where the path exists, symlink-resolved first.
package paths

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoMainWorktree indicates no enclosing git repository was found.
var ErrNoMainWorktree = errors.New("no enclosing git repository")

// Resolve expands ~, joins relative paths against cwd, normalizes . and ..
// segments, and resolves symlinks when the path (or its nearest existing
// ancestor) exists. The result is always absolute.
func Resolve(pathArg, cwd string) string {
	p := expandHome(pathArg)
	if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	}
	p = filepath.Clean(p)
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	// Path does not exist yet. Resolve the deepest existing ancestor so a
	// symlinked parent cannot smuggle the target outside a protected tree.
	dir, base := filepath.Split(p)
	dir = filepath.Clean(dir)
	if dir != p {
		return filepath.Join(Resolve(dir, cwd), base)
	}
	return p
}

func expandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// IsInsideOrEqual reports whether path is target or contained within it.
// Both arguments must already be normalized absolute paths.
func IsInsideOrEqual(path, target string) bool {
	if path == target {
		return true
	}
	sep := string(filepath.Separator)
	if target == sep {
		return strings.HasPrefix(path, sep)
	}
	return strings.HasPrefix(path, target+sep)
}

// FindMainWorktree walks upward from start until it finds a directory
// containing a `.git` directory. A `.git` file (a linked worktree's
// gitdir pointer) does not count: the main worktree has the real
// directory.
func FindMainWorktree(start string) (string, error) {
	dir := filepath.Clean(start)
	for {
		info, err := os.Stat(filepath.Join(dir, ".git"))
		if err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoMainWorktree
		}
		dir = parent
	}
}

// IsSafeWorktreePath validates a path recovered from a lock file before it
// is handed to the assistant as a `cd` target: absolute, no parent-dir
// escapes, no control characters, and inside the project root.
func IsSafeWorktreePath(path, projectRoot string) bool {
	if !filepath.IsAbs(path) {
		return false
	}
	for _, r := range path {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	for _, seg := range strings.Split(path, string(filepath.Separator)) {
		if seg == ".." {
			return false
		}
	}
	return IsInsideOrEqual(filepath.Clean(path), filepath.Clean(projectRoot))
}
