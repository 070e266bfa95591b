package hooks

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cowwoc/cat/internal/lock"
	"github.com/cowwoc/cat/internal/session"
)

func writeInput(t *testing.T, sessionID, cwd, filePath string) *Input {
	t.Helper()
	raw, err := json.Marshal(FileToolInput{FilePath: filePath})
	if err != nil {
		t.Fatal(err)
	}
	return &Input{
		SessionID:     sessionID,
		CWD:           cwd,
		HookEventName: "PreToolUse",
		ToolName:      "Write",
		ToolInput:     raw,
	}
}

func TestWriteIsolationGuard_RedirectsIntoWorktree(t *testing.T) {
	t.Parallel()
	repo := newRepoDir(t)
	wt := filepath.Join(repo, ".claude", "cat", "worktrees", "2.1-x")
	if err := os.MkdirAll(wt, 0o755); err != nil {
		t.Fatal(err)
	}
	g := &WriteIsolationGuard{ActiveWorktree: func(*Input) string { return wt }}

	out, err := g.Handle(writeInput(t, "s1", wt, filepath.Join(repo, "pkg", "main.go")))
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || !out.Block {
		t.Fatal("write outside worktree not blocked")
	}
	corrected := filepath.Join(wt, "pkg", "main.go")
	if !strings.Contains(out.Reason, corrected) {
		t.Errorf("reason lacks corrected path %s: %q", corrected, out.Reason)
	}

	// Writes inside the worktree pass.
	out, err = g.Handle(writeInput(t, "s1", wt, filepath.Join(wt, "pkg", "main.go")))
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("in-worktree write blocked: %+v", out)
	}
}

func TestWriteIsolationGuard_IgnoresFilesOutsideProject(t *testing.T) {
	t.Parallel()
	repo := newRepoDir(t)
	wt := filepath.Join(repo, ".claude", "cat", "worktrees", "2.1-x")
	if err := os.MkdirAll(wt, 0o755); err != nil {
		t.Fatal(err)
	}
	g := &WriteIsolationGuard{ActiveWorktree: func(*Input) string { return wt }}
	out, err := g.Handle(writeInput(t, "s1", wt, filepath.Join(t.TempDir(), "scratch.txt")))
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("out-of-project write blocked: %+v", out)
	}
}

func TestWriteIsolationGuard_NoActiveWorktree(t *testing.T) {
	t.Parallel()
	repo := newRepoDir(t)
	g := &WriteIsolationGuard{ActiveWorktree: func(*Input) string { return "" }}
	out, err := g.Handle(writeInput(t, "s1", repo, filepath.Join(repo, "a.go")))
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("write without an active worktree blocked: %+v", out)
	}
}

func TestCommitScopeChecker(t *testing.T) {
	t.Parallel()
	c := CommitScopeChecker{}
	out, err := c.Handle(bashInput(t, "s1", "/tmp",
		`git commit -m "feat(parser): add lexer; fix(locks): stale sweep"`))
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || len(out.Warnings) != 1 {
		t.Fatalf("out = %+v", out)
	}
	if !strings.Contains(out.Warnings[0], "parser") || !strings.Contains(out.Warnings[0], "locks") {
		t.Errorf("warning = %q", out.Warnings[0])
	}

	out, err = c.Handle(bashInput(t, "s1", "/tmp", `git commit -m "feat(parser): add lexer"`))
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("single-scope commit flagged: %+v", out)
	}

	out, err = c.Handle(bashInput(t, "s1", "/tmp", "ls -la"))
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("non-commit flagged: %+v", out)
	}
}

func TestRebaseTargetParsing(t *testing.T) {
	t.Parallel()
	cases := []struct {
		command string
		target  string
		ok      bool
	}{
		{"git rebase main", "main", true},
		{"git rebase -i main", "main", true},
		{"git rebase --onto a b c", "", false},
		{"git rebase --abort", "", false},
		{"git status", "", false},
		{"cd x && git rebase origin/main", "origin/main", true},
	}
	for _, tc := range cases {
		target, ok := rebaseTarget(tc.command)
		if target != tc.target || ok != tc.ok {
			t.Errorf("rebaseTarget(%q) = %q, %v; want %q, %v", tc.command, target, ok, tc.target, tc.ok)
		}
	}
}

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func assistantLine(text string) string {
	return `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":` + mustJSON(text) + `}]}}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newStatusEnforcer(t *testing.T, skillRan bool) *StatusOutputEnforcer {
	t.Helper()
	configRoot := t.TempDir()
	return &StatusOutputEnforcer{
		SessionDir: func(sessionID string) (*session.Dir, error) {
			return session.NewDir(configRoot, sessionID)
		},
		LastAssistantTurn: lastAssistantTurn,
		StatusSkillRan:    func(string) bool { return skillRan },
	}
}

func TestStatusOutputEnforcer_BlocksThenFailsFast(t *testing.T) {
	t.Parallel()
	e := newStatusEnforcer(t, true)
	transcript := writeTranscript(t, assistantLine("work done, no box"))
	in := &Input{SessionID: "s1", TranscriptPath: transcript, HookEventName: "Stop"}

	out, err := e.Handle(in)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || !out.Block {
		t.Fatal("first violation should block")
	}

	out, err = e.Handle(in)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || out.Block {
		t.Fatalf("second violation should warn, not block: %+v", out)
	}
}

func TestStatusOutputEnforcer_PassesWithBox(t *testing.T) {
	t.Parallel()
	e := newStatusEnforcer(t, true)
	transcript := writeTranscript(t, assistantLine("done\n"+StatusBoxMarker+"\nall good"))
	out, err := e.Handle(&Input{SessionID: "s1", TranscriptPath: transcript})
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("box present but blocked: %+v", out)
	}
}

func TestStatusOutputEnforcer_SkillNotRun(t *testing.T) {
	t.Parallel()
	e := newStatusEnforcer(t, false)
	out, err := e.Handle(&Input{SessionID: "s1", TranscriptPath: "/nonexistent"})
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("enforcer ran without the skill: %+v", out)
	}
}

func TestStatusOutputEnforcer_StopHookActiveNeverLoops(t *testing.T) {
	t.Parallel()
	e := newStatusEnforcer(t, true)
	out, err := e.Handle(&Input{SessionID: "s1", StopHookActive: true})
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("re-entered stop hook produced %+v", out)
	}
}

func TestWorktreeRestorer(t *testing.T) {
	t.Parallel()
	repo := newRepoDir(t)
	wt := filepath.Join(repo, ".claude", "cat", "worktrees", "2.1-x")
	if err := os.MkdirAll(wt, 0o755); err != nil {
		t.Fatal(err)
	}
	locks := lock.NewStore(lock.DirFor(repo))
	if _, err := locks.Acquire("2.1-x", "s1"); err != nil {
		t.Fatal(err)
	}
	if err := locks.Update("2.1-x", "s1", wt, "s1"); err != nil {
		t.Fatal(err)
	}
	r := &WorktreeRestorer{Exists: dirExists}

	out, err := r.Handle(&Input{SessionID: "s1", CWD: repo, Source: "resume"})
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || !strings.Contains(out.Context, "cd "+wt) {
		t.Fatalf("out = %+v", out)
	}

	// Fresh sessions get nothing.
	out, err = r.Handle(&Input{SessionID: "s1", CWD: repo, Source: "startup"})
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("non-resume restored: %+v", out)
	}

	// Another session's lock is ignored.
	out, err = r.Handle(&Input{SessionID: "s2", CWD: repo, Source: "resume"})
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("foreign lock restored: %+v", out)
	}
}

func TestEventFor(t *testing.T) {
	t.Parallel()
	cases := []struct {
		event string
		tool  string
		want  Event
	}{
		{"PreToolUse", "Bash", EventPreBash},
		{"PreToolUse", "Write", EventPreWrite},
		{"PreToolUse", "Edit", EventPreWrite},
		{"PreToolUse", "Read", EventPreRead},
		{"PreToolUse", "AskUserQuestion", EventPreAsk},
		{"PreToolUse", "Glob", EventPreToolUse},
		{"PostToolUse", "Bash", EventPostBash},
		{"PostToolUse", "Write", EventPostToolUse},
		{"SessionStart", "", EventSessionStart},
		{"Stop", "", EventStop},
	}
	for _, tc := range cases {
		got := EventFor(&Input{HookEventName: tc.event, ToolName: tc.tool})
		if got != tc.want {
			t.Errorf("EventFor(%s/%s) = %s, want %s", tc.event, tc.tool, got, tc.want)
		}
	}
}
