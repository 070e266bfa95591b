// Package skilloutput renders the dynamic blocks spliced into skill
// markdown. Renderers read repository state but never mutate it.
package skilloutput

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cowwoc/cat/internal/config"
	"github.com/cowwoc/cat/internal/deps"
	"github.com/cowwoc/cat/internal/git"
	"github.com/cowwoc/cat/internal/issue"
	"github.com/cowwoc/cat/internal/lock"
)

// Context gives renderers read access to the repository.
type Context struct {
	RepoRoot string
}

// Renderer produces the body for one output type. The sub argument is
// the part after the first dot in the requested type ("settings" for
// "config.settings"), empty when there is none.
type Renderer func(ctx *Context, sub string, args []string) (string, error)

// renderers maps the base type name to its renderer.
var renderers = map[string]Renderer{
	"status":        renderStatus,
	"config":        renderConfig,
	"issues":        renderIssues,
	"work-complete": renderWorkComplete,
}

// Render dispatches a dotted type like "config.settings" and wraps the
// renderer's output for the skill preprocessor.
func Render(ctx *Context, typeArg string, args []string) (string, error) {
	base, sub, _ := strings.Cut(typeArg, ".")
	r, ok := renderers[base]
	if !ok {
		return "", fmt.Errorf("unknown output type %q", typeArg)
	}
	body, err := r(ctx, sub, args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<output type=%q>\n%s\n</output>", typeArg, strings.TrimRight(body, "\n")), nil
}

// titleCaser renders config keys and statuses as display labels.
var titleCaser = cases.Title(language.English)

// renderStatus produces the status box the Stop enforcer looks for.
func renderStatus(ctx *Context, _ string, _ []string) (string, error) {
	store, err := issue.Load(issue.DirFor(ctx.RepoRoot))
	if err != nil {
		return "", err
	}
	counts := map[issue.Status]int{}
	for _, iss := range store.All() {
		if iss.State != nil {
			counts[iss.State.Status]++
		}
	}
	locks, err := lock.NewStore(lock.DirFor(ctx.RepoRoot)).List()
	if err != nil {
		return "", err
	}
	branch := "unknown"
	if b, err := git.New(ctx.RepoRoot).CurrentBranch(); err == nil {
		branch = b
	}

	var b strings.Builder
	b.WriteString("=== CAT STATUS ===\n")
	fmt.Fprintf(&b, "Branch: %s\n", branch)
	fmt.Fprintf(&b, "Issues: %d open, %d in progress, %d closed, %d decomposed\n",
		counts[issue.StatusOpen], counts[issue.StatusInProgress],
		counts[issue.StatusClosed], counts[issue.StatusDecomposed])
	fmt.Fprintf(&b, "Active locks: %d\n", len(locks))
	for _, entry := range locks {
		state := "fresh"
		if entry.Stale {
			state = "stale"
		}
		fmt.Fprintf(&b, "  %s held by %s (%s)\n", entry.IssueID, entry.SessionID, state)
	}
	b.WriteString("==================")
	return b.String(), nil
}

// renderConfig lists the effective configuration. "config.settings" is
// the only sub-type.
func renderConfig(ctx *Context, sub string, _ []string) (string, error) {
	if sub != "" && sub != "settings" {
		return "", fmt.Errorf("unknown config output %q", sub)
	}
	cfg, err := config.Load(ctx.RepoRoot)
	if err != nil {
		return "", err
	}
	rows := []struct {
		label string
		value string
	}{
		{"Auto Remove Worktrees", fmt.Sprintf("%t", cfg.AutoRemoveWorktrees)},
		{"Trust", string(cfg.Trust)},
		{"Verify", string(cfg.Verify)},
		{"Curiosity", string(cfg.Curiosity)},
		{"Effort", string(cfg.Effort)},
		{"Patience", string(cfg.Patience)},
		{"Completion Workflow", cfg.CompletionWorkflow},
		{"Review Threshold", string(cfg.ReviewThreshold)},
	}
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%s: %s\n", row.label, titleCaser.String(row.value))
	}
	return b.String(), nil
}

// renderIssues lists issues; "issues.blocked" restricts to blocked ones.
func renderIssues(ctx *Context, sub string, _ []string) (string, error) {
	store, err := issue.Load(issue.DirFor(ctx.RepoRoot))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	switch sub {
	case "", "list":
		for _, iss := range store.All() {
			status := "unknown"
			if iss.State != nil {
				status = string(iss.State.Status)
			}
			fmt.Fprintf(&b, "%s  [%s]\n", iss.Qualified, status)
		}
		if b.Len() == 0 {
			b.WriteString("No issues found.\n")
		}
	case "blocked":
		blocked := deps.Build(store).BlockedIssues()
		ids := make([]string, 0, len(blocked))
		for id := range blocked {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			var reasons []string
			for _, blocker := range blocked[id] {
				reasons = append(reasons, fmt.Sprintf("%s (%s)", blocker.Ref, blocker.Status))
			}
			fmt.Fprintf(&b, "%s blocked by %s\n", id, strings.Join(reasons, ", "))
		}
		if b.Len() == 0 {
			b.WriteString("No blocked issues.\n")
		}
	default:
		return "", fmt.Errorf("unknown issues output %q", sub)
	}
	return b.String(), nil
}

// renderWorkComplete summarizes the branch state ahead of a merge.
func renderWorkComplete(ctx *Context, _ string, args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("work-complete requires the worktree path")
	}
	g := git.New(args[0])
	branch, err := g.CurrentBranch()
	if err != nil {
		return "", err
	}
	clean, err := g.IsClean()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Branch: %s\n", branch)
	if clean {
		b.WriteString("Worktree: clean, ready to merge\n")
	} else {
		b.WriteString("Worktree: has uncommitted changes, commit before merging\n")
	}
	return b.String(), nil
}
