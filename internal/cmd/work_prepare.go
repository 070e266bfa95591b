package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cowwoc/cat/internal/issue"
	"github.com/cowwoc/cat/internal/schedule"
	"github.com/cowwoc/cat/internal/worktree"
)

var (
	workPrepareRepo    string
	workPrepareIssue   string
	workPrepareName    string
	workPrepareExclude string
	workPrepareSession string
)

var workPrepareCmd = &cobra.Command{
	Use:   "work-prepare",
	Short: "Select the next issue and provision its worktree",
	Long: `Select the next executable issue, acquire its lock, and provision an
isolated git worktree for it.

With no target flags the scheduler scans all issues in priority order.
--issue selects one qualified issue ("2.1-add-parser"); --name selects
by bare name and fails when ambiguous.

Prints READY with the worktree path, branch, goal, and token estimate;
OVERSIZED when the plan exceeds the token budget; or a diagnostic
status (NO_ISSUES, LOCKED, BLOCKED, ...) explaining why nothing was
selected.`,
	Args: cobra.NoArgs,
	RunE: runWorkPrepare,
}

func init() {
	rootCmd.AddCommand(workPrepareCmd)
	workPrepareCmd.Flags().StringVar(&workPrepareRepo, "repo", "", "Repository root (default: auto-detect)")
	workPrepareCmd.Flags().StringVar(&workPrepareIssue, "issue", "", "Qualified issue id to select")
	workPrepareCmd.Flags().StringVar(&workPrepareName, "name", "", "Bare issue name to select")
	workPrepareCmd.Flags().StringVar(&workPrepareExclude, "exclude", "", "Glob of bare names to skip")
	workPrepareCmd.Flags().StringVar(&workPrepareSession, "session", "", "Session id (default: CLAUDE_SESSION_ID)")
}

func runWorkPrepare(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(workPrepareRepo)
	if err != nil {
		return err
	}
	store, err := issue.Load(issue.DirFor(root))
	if err != nil {
		return failJSON(schedule.Result{Kind: schedule.KindError, Message: err.Error()})
	}
	locks := repoLockStore(root)

	req := schedule.Request{
		Scope:       schedule.ScopeAll,
		SessionID:   sessionID(workPrepareSession),
		ExcludeGlob: workPrepareExclude,
	}
	switch {
	case workPrepareIssue != "":
		req.Scope = schedule.ScopeIssue
		req.Target = workPrepareIssue
	case workPrepareName != "":
		req.Scope = schedule.ScopeBareName
		req.Target = workPrepareName
	}

	scheduler := &schedule.Scheduler{
		Store: store,
		Locks: locks,
		Worktree: func(branch string) (string, error) {
			return worktree.FindWorktree(root, branch)
		},
	}
	found := scheduler.Next(req)
	if found.Kind != schedule.KindFound {
		if found.Kind == schedule.KindError {
			return failJSON(found)
		}
		return emitJSON(found)
	}

	provisioner := &worktree.Provisioner{
		RepoRoot: root,
		Locks:    locks,
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	result := provisioner.Provision(found, req.SessionID, agentID())
	if result.Status == worktree.StatusError {
		return failJSON(result)
	}
	if result.Status == worktree.StatusReady {
		if err := appendEnvFile(map[string]string{
			"CAT_ISSUE_ID": result.IssueID,
			"CAT_WORKTREE": result.WorktreePath,
		}); err != nil {
			slog.Warn("env file not updated", "error", err)
		}
	}
	return emitJSON(result)
}
