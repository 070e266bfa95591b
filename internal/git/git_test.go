package git

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitRun(t, dir, "init", "--initial-branch=main")
	gitRun(t, dir, "config", "user.email", "test@test.com")
	gitRun(t, dir, "config", "user.name", "Test User")
	writeAndCommit(t, dir, "README.md", "# repo\n", "initial")
	return dir
}

func writeAndCommit(t *testing.T, dir, file, content, message string) {
	t.Helper()
	path := filepath.Join(dir, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	gitRun(t, dir, "add", file)
	gitRun(t, dir, "commit", "-m", message)
}

func TestHeadAndCurrentBranch(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)
	head, err := g.Head()
	if err != nil {
		t.Fatal(err)
	}
	if len(head) != 40 {
		t.Errorf("head = %q", head)
	}
	branch, err := g.CurrentBranch()
	if err != nil {
		t.Fatal(err)
	}
	if branch != "main" {
		t.Errorf("branch = %q", branch)
	}
}

func TestIsClean(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)
	clean, err := g.IsClean()
	if err != nil {
		t.Fatal(err)
	}
	if !clean {
		t.Error("fresh repo not clean")
	}
	if err := os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	clean, err = g.IsClean()
	if err != nil {
		t.Fatal(err)
	}
	if clean {
		t.Error("untracked file not detected")
	}
}

func TestIsAncestorAndMergeBase(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)
	base, _ := g.Head()
	gitRun(t, dir, "checkout", "-b", "feature")
	writeAndCommit(t, dir, "f.txt", "f\n", "feature work")

	ok, err := g.IsAncestor(base, "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("base not ancestor of feature")
	}
	ok, err = g.IsAncestor("HEAD", base)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("feature reported as ancestor of base")
	}
	mb, err := g.MergeBase("main", "feature")
	if err != nil {
		t.Fatal(err)
	}
	if mb != base {
		t.Errorf("merge base = %s, want %s", mb, base)
	}
}

func TestCommitsAheadAndLogOneline(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)
	gitRun(t, dir, "checkout", "-b", "feature")
	writeAndCommit(t, dir, "a.txt", "a\n", "first change")
	writeAndCommit(t, dir, "b.txt", "b\n", "second change")

	ahead, err := g.CommitsAhead("main", "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if ahead != 2 {
		t.Errorf("ahead = %d", ahead)
	}
	lines, err := g.LogOneline("main", "HEAD", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || !strings.Contains(lines[0], "second change") {
		t.Errorf("log = %v", lines)
	}
}

func TestLogNameOnly(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)
	writeAndCommit(t, dir, "src/parser.go", "package parser\n", "add parser")

	commits, err := g.LogNameOnly("HEAD", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 {
		t.Fatalf("commits = %+v", commits)
	}
	if !strings.Contains(commits[0].Summary, "add parser") {
		t.Errorf("summary = %q", commits[0].Summary)
	}
	if len(commits[0].Files) != 1 || commits[0].Files[0] != "src/parser.go" {
		t.Errorf("files = %v", commits[0].Files)
	}
}

func TestBranchLifecycle(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)

	exists, err := g.BranchExists("topic")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("absent branch reported present")
	}
	if err := g.CreateBranch("topic"); err != nil {
		t.Fatal(err)
	}
	exists, err = g.BranchExists("topic")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("created branch not found")
	}
	if err := g.DeleteBranch("topic", false); err != nil {
		t.Fatal(err)
	}
	exists, _ = g.BranchExists("topic")
	if exists {
		t.Error("deleted branch still present")
	}
}

func TestRunSingleLine_RejectsMultiline(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	writeAndCommit(t, dir, "x.txt", "x\n", "second")
	g := New(dir)
	_, err := g.RunSingleLine("log", "--oneline")
	if !errors.Is(err, ErrNotSingleLine) {
		t.Errorf("err = %v", err)
	}
}

func TestGitError_CarriesStderr(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)
	_, err := g.Run("rev-parse", "--verify", "refs/heads/nope")
	var gitErr *GitError
	if !errors.As(err, &gitErr) {
		t.Fatalf("err = %T %v", err, err)
	}
	if gitErr.Command != "rev-parse" {
		t.Errorf("command = %q", gitErr.Command)
	}
	if gitErr.Stderr == "" {
		t.Error("stderr empty")
	}
}

func TestPushRef_NoUpstream(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)
	ref, err := g.PushRef()
	if err != nil {
		t.Fatal(err)
	}
	if ref != "" {
		t.Errorf("ref = %q", ref)
	}
}

func TestWorktreeAddListRemove(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)
	wt := filepath.Join(dir, ".claude", "cat", "worktrees", "1.0-x")
	if err := g.WorktreeAdd(wt, "1.0-x"); err != nil {
		t.Fatal(err)
	}

	list, err := g.WorktreeList()
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, w := range list {
		if w.Branch == "refs/heads/1.0-x" || w.Branch == "1.0-x" {
			found = true
			if w.Path == "" || w.Commit == "" {
				t.Errorf("worktree entry incomplete: %+v", w)
			}
		}
	}
	if !found {
		t.Fatalf("worktree branch missing from list: %+v", list)
	}

	if err := g.WorktreeRemove(wt, false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(wt); !os.IsNotExist(err) {
		t.Error("worktree dir still present")
	}
}

func TestMergeFFOnly(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)
	gitRun(t, dir, "checkout", "-b", "feature")
	writeAndCommit(t, dir, "f.txt", "f\n", "feature work")
	gitRun(t, dir, "checkout", "main")

	if err := g.MergeFFOnly("feature"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "f.txt")); err != nil {
		t.Error("merged file missing")
	}
}

func TestIndexLockRetry(t *testing.T) {
	t.Parallel()
	dir := initRepo(t)
	g := New(dir)
	var slept int
	g.sleep = func(time.Duration) { slept++ }

	gitRun(t, dir, "checkout", "-b", "feature")
	writeAndCommit(t, dir, "f.txt", "f\n", "feature work")
	gitRun(t, dir, "checkout", "main")

	// A held index.lock makes every merge attempt fail the same way.
	lockPath := filepath.Join(dir, ".git", "index.lock")
	if err := os.WriteFile(lockPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	err := g.MergeFFOnly("feature")
	if err == nil {
		t.Fatal("merge succeeded despite index.lock")
	}
	if !strings.Contains(err.Error(), "index.lock") {
		t.Errorf("err = %v", err)
	}
	if slept != IndexLockRetries-1 {
		t.Errorf("slept %d times, want %d", slept, IndexLockRetries-1)
	}
}
