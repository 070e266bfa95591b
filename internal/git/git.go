// Package git provides a wrapper for git operations via subprocess.
package git

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cowwoc/cat/internal/proc"
)

// GitError contains raw output from a git command so callers can observe
// exactly what git said and decide what to do.
type GitError struct {
	Command string // the git subcommand that failed (e.g. "merge", "rebase")
	Args    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *GitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("git %s: %s", e.Command, e.Stderr)
	}
	return fmt.Sprintf("git %s: %v", e.Command, e.Err)
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// ErrNotSingleLine is returned by RunSingleLine when git printed zero or
// multiple lines.
var ErrNotSingleLine = errors.New("expected exactly one line of output")

// IndexLockRetries is how many times index.lock contention is retried.
const IndexLockRetries = 3

// IndexLockBackoff is the linear backoff between index.lock retries.
const IndexLockBackoff = time.Second

// Git wraps git operations for a working directory.
type Git struct {
	workDir string
	runner  *proc.Runner
	sleep   func(time.Duration) // swapped out by tests
}

// New creates a new Git wrapper for the given directory.
func New(workDir string) *Git {
	return &Git{workDir: workDir, runner: &proc.Runner{}, sleep: time.Sleep}
}

// WorkDir returns the working directory for this Git instance.
func (g *Git) WorkDir() string {
	return g.workDir
}

// Run executes a git command and returns trimmed stdout, failing on any
// non-zero exit.
func (g *Git) Run(args ...string) (string, error) {
	res, err := g.runner.Run(append([]string{"git"}, args...), proc.Options{Dir: g.workDir})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", g.wrapError(res, args)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// RunSingleLine runs a git command and asserts stdout is exactly one line.
func (g *Git) RunSingleLine(args ...string) (string, error) {
	out, err := g.Run(args...)
	if err != nil {
		return "", err
	}
	if out == "" || strings.Contains(out, "\n") {
		return "", fmt.Errorf("git %s: %w: %q", args[0], ErrNotSingleLine, out)
	}
	return out, nil
}

// runExit executes a git command and returns the exit code alongside the
// output. Used where exit 1 is a signal, not a failure (merge-base
// --is-ancestor, show-ref).
func (g *Git) runExit(args ...string) (string, string, int, error) {
	res, err := g.runner.Run(append([]string{"git"}, args...), proc.Options{Dir: g.workDir})
	if err != nil {
		return "", "", -1, err
	}
	return strings.TrimSpace(string(res.Stdout)), strings.TrimSpace(string(res.Stderr)), res.ExitCode, nil
}

func (g *Git) wrapError(res *proc.Result, args []string) error {
	command := ""
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			command = arg
			break
		}
	}
	if command == "" && len(args) > 0 {
		command = args[0]
	}
	return &GitError{
		Command: command,
		Args:    args,
		Stdout:  strings.TrimSpace(string(res.Stdout)),
		Stderr:  strings.TrimSpace(string(res.Stderr)),
		Err:     fmt.Errorf("exit status %d", res.ExitCode),
	}
}

// Head returns the commit hash of HEAD.
func (g *Git) Head() (string, error) {
	return g.RunSingleLine("rev-parse", "HEAD")
}

// Rev returns the commit hash for the given ref.
func (g *Git) Rev(ref string) (string, error) {
	return g.RunSingleLine("rev-parse", ref)
}

// CurrentBranch returns the current branch name.
func (g *Git) CurrentBranch() (string, error) {
	return g.RunSingleLine("rev-parse", "--abbrev-ref", "HEAD")
}

// GitDir returns the absolute path of the git directory for this worktree.
func (g *Git) GitDir() (string, error) {
	return g.RunSingleLine("rev-parse", "--absolute-git-dir")
}

// CommonDir returns the shared git directory (the main repository's .git),
// even when called from a linked worktree.
func (g *Git) CommonDir() (string, error) {
	return g.RunSingleLine("rev-parse", "--path-format=absolute", "--git-common-dir")
}

// IsClean reports whether the working tree has no uncommitted changes.
func (g *Git) IsClean() (bool, error) {
	out, err := g.Run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// StatusBranch returns the first line of `git status -b --porcelain`,
// which encodes the upstream tracking relationship.
func (g *Git) StatusBranch() (string, error) {
	out, err := g.Run("status", "-b", "--porcelain")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(out, "\n")
	return line, nil
}

// PushRef resolves @{push} for the current branch. Returns ("", nil) when
// no push destination is configured.
func (g *Git) PushRef() (string, error) {
	out, _, code, err := g.runExit("rev-parse", "--verify", "@{push}")
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", nil
	}
	return out, nil
}

// IsAncestor checks if ancestor is an ancestor of descendant.
func (g *Git) IsAncestor(ancestor, descendant string) (bool, error) {
	_, stderr, code, err := g.runExit("merge-base", "--is-ancestor", ancestor, descendant)
	if err != nil {
		return false, err
	}
	switch code {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("merge-base --is-ancestor: %s", stderr)
	}
}

// MergeBase returns the merge base of two refs.
func (g *Git) MergeBase(a, b string) (string, error) {
	return g.RunSingleLine("merge-base", a, b)
}

// CommitsAhead returns how many commits branch has that base does not.
func (g *Git) CommitsAhead(base, branch string) (int, error) {
	out, err := g.RunSingleLine("rev-list", "--count", base+".."+branch)
	if err != nil {
		return 0, err
	}
	var count int
	if _, err := fmt.Sscanf(out, "%d", &count); err != nil {
		return 0, fmt.Errorf("parsing commit count %q: %w", out, err)
	}
	return count, nil
}

// LogOneline returns up to limit one-line summaries for base..branch.
func (g *Git) LogOneline(base, branch string, limit int) ([]string, error) {
	out, err := g.Run("log", "--oneline", fmt.Sprintf("-%d", limit), base+".."+branch)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// LogGrep returns oneline commits on ref whose message matches pattern.
func (g *Git) LogGrep(ref, pattern string, limit int) ([]string, error) {
	out, err := g.Run("log", "--oneline", fmt.Sprintf("-%d", limit), "--grep="+pattern, ref)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CommitFiles holds a commit summary plus the files it touched.
type CommitFiles struct {
	Summary string
	Files   []string
}

// LogNameOnly returns the last limit commits on ref with the files each
// one touched.
func (g *Git) LogNameOnly(ref string, limit int) ([]CommitFiles, error) {
	out, err := g.Run("log", "--oneline", "--name-only", fmt.Sprintf("-%d", limit), ref)
	if err != nil {
		return nil, err
	}
	var commits []CommitFiles
	var current *CommitFiles
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		// Oneline summaries start with an abbreviated hash followed by a
		// space; file lines are bare paths.
		if isCommitSummary(line) {
			if current != nil {
				commits = append(commits, *current)
			}
			current = &CommitFiles{Summary: line}
			continue
		}
		if current != nil {
			current.Files = append(current.Files, line)
		}
	}
	if current != nil {
		commits = append(commits, *current)
	}
	return commits, nil
}

func isCommitSummary(line string) bool {
	hash, rest, ok := strings.Cut(line, " ")
	if !ok || len(hash) < 7 || len(hash) > 40 {
		return false
	}
	for _, r := range hash {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return rest != ""
}

// BranchExists checks if a branch exists locally.
func (g *Git) BranchExists(name string) (bool, error) {
	_, _, code, err := g.runExit("show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// CreateBranch creates a new branch at the current HEAD.
func (g *Git) CreateBranch(name string) error {
	_, err := g.Run("branch", name)
	return err
}

// DeleteBranch deletes a local branch.
func (g *Git) DeleteBranch(name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := g.Run("branch", flag, name)
	return err
}

// Fetch fetches a branch from the remote.
func (g *Git) Fetch(remote, branch string) error {
	_, err := g.Run("fetch", remote, branch)
	return err
}

// Rebase rebases the current branch onto the given ref.
func (g *Git) Rebase(onto string) error {
	_, err := g.Run("rebase", onto)
	return err
}

// RebaseOnto runs `git rebase --onto newBase upstream branch`. Used by
// merge-and-cleanup to avoid re-applying commits already on the base.
func (g *Git) RebaseOnto(newBase, upstream, branch string) error {
	_, err := g.Run("rebase", "--onto", newBase, upstream, branch)
	return err
}

// AbortRebase aborts a rebase in progress.
func (g *Git) AbortRebase() error {
	_, err := g.Run("rebase", "--abort")
	return err
}

// ConflictingFiles returns the list of unmerged files.
func (g *Git) ConflictingFiles() ([]string, error) {
	out, err := g.Run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var files []string
	for _, f := range strings.Split(out, "\n") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

// DiffQuiet reports whether refA and refB have identical content.
func (g *Git) DiffQuiet(refA, refB string) (bool, error) {
	_, stderr, code, err := g.runExit("diff", "--quiet", refA, refB)
	if err != nil {
		return false, err
	}
	switch code {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("diff --quiet: %s", stderr)
	}
}

// DiffStat returns the diff-stat between two refs.
func (g *Git) DiffStat(refA, refB string) (string, error) {
	return g.Run("diff", "--stat", refA, refB)
}

// Amend amends the HEAD commit. With message empty, --no-edit keeps the
// existing message.
func (g *Git) Amend(message string) error {
	args := []string{"commit", "--amend"}
	if message != "" {
		args = append(args, "-m", message)
	} else {
		args = append(args, "--no-edit")
	}
	_, err := g.Run(args...)
	return err
}

// isIndexLockError matches git's complaint about a concurrent writer
// holding .git/index.lock.
func isIndexLockError(err error) bool {
	var gitErr *GitError
	if !errors.As(err, &gitErr) {
		return false
	}
	return strings.Contains(gitErr.Stderr, "index.lock")
}

// runWithIndexLockRetry retries op on index.lock contention with linear
// backoff, then gives up with the original error.
func (g *Git) runWithIndexLockRetry(op func() error) error {
	var err error
	for attempt := 1; attempt <= IndexLockRetries; attempt++ {
		err = op()
		if err == nil || !isIndexLockError(err) {
			return err
		}
		if attempt < IndexLockRetries {
			g.sleep(IndexLockBackoff)
		}
	}
	return fmt.Errorf("index.lock still held after %d attempts: %w", IndexLockRetries, err)
}

// MergeFFOnly fast-forward merges ref into the current branch, retrying
// index.lock contention.
func (g *Git) MergeFFOnly(ref string) error {
	return g.runWithIndexLockRetry(func() error {
		_, err := g.Run("merge", "--ff-only", ref)
		return err
	})
}

// FetchWithRetry fetches a branch, retrying index.lock contention.
func (g *Git) FetchWithRetry(remote, branch string) error {
	return g.runWithIndexLockRetry(func() error {
		return g.Fetch(remote, branch)
	})
}

// Worktree represents a git worktree.
type Worktree struct {
	Path   string
	Branch string
	Commit string
}

// WorktreeAdd creates a new worktree at the given path with a new branch
// forked from HEAD.
func (g *Git) WorktreeAdd(path, branch string) error {
	_, err := g.Run("worktree", "add", "-b", branch, path, "HEAD")
	return err
}

// WorktreeRemove removes a worktree.
func (g *Git) WorktreeRemove(path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := g.Run(args...)
	return err
}

// WorktreePrune removes worktree entries for deleted paths.
func (g *Git) WorktreePrune() error {
	_, err := g.Run("worktree", "prune")
	return err
}

// WorktreeList returns all worktrees for this repository.
func (g *Git) WorktreeList() ([]Worktree, error) {
	out, err := g.Run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var worktrees []Worktree
	var current Worktree
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			if current.Path != "" {
				worktrees = append(worktrees, current)
				current = Worktree{}
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		}
	}
	if current.Path != "" {
		worktrees = append(worktrees, current)
	}
	return worktrees, nil
}
