package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/cowwoc/cat/internal/config"
	"github.com/cowwoc/cat/internal/lock"
	"github.com/cowwoc/cat/internal/session"
)

var (
	issueLockRepo     string
	issueLockSession  string
	issueLockWorktree string
	issueLockAgent    string
)

var issueLockCmd = &cobra.Command{
	Use:   "issue-lock",
	Short: "Manage issue locks",
	Long: `Manage the per-issue locks that serialize work across sessions.

A lock names the owning session and the worktrees it has provisioned.
Locks older than the staleness threshold whose owner is no longer live
are treated as abandoned and may be taken over.`,
}

var issueLockAcquireCmd = &cobra.Command{
	Use:   "acquire <issue-id>",
	Short: "Acquire the lock for an issue",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueLockAcquire,
}

var issueLockReleaseCmd = &cobra.Command{
	Use:   "release <issue-id>",
	Short: "Release a lock this session owns",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueLockRelease,
}

var issueLockForceReleaseCmd = &cobra.Command{
	Use:   "force-release <issue-id>",
	Short: "Remove a lock regardless of owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueLockForceRelease,
}

var issueLockUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Register a worktree under a held lock",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueLockUpdate,
}

var issueLockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all locks with their staleness",
	Args:  cobra.NoArgs,
	RunE:  runIssueLockList,
}

func init() {
	rootCmd.AddCommand(issueLockCmd)
	issueLockCmd.PersistentFlags().StringVar(&issueLockRepo, "repo", "", "Repository root (default: auto-detect)")
	issueLockCmd.PersistentFlags().StringVar(&issueLockSession, "session", "", "Session id (default: CLAUDE_SESSION_ID)")
	issueLockUpdateCmd.Flags().StringVar(&issueLockWorktree, "worktree", "", "Worktree path to register (required)")
	issueLockUpdateCmd.Flags().StringVar(&issueLockAgent, "agent", "", "Agent id the worktree belongs to (default: CAT_AGENT_ID)")
	issueLockCmd.AddCommand(issueLockAcquireCmd, issueLockReleaseCmd,
		issueLockForceReleaseCmd, issueLockUpdateCmd, issueLockListCmd)
}

// repoLockStore opens the lock store for a repository with the
// configured staleness threshold and the host session registry, so an
// old lock whose owner is still active is never treated as abandoned.
func repoLockStore(root string) *lock.Store {
	threshold := lock.DefaultStaleThreshold
	if cfg, err := config.Load(root); err == nil {
		threshold = cfg.StaleThreshold()
	}
	return lock.NewStore(lock.DirFor(root),
		lock.WithStaleThreshold(threshold),
		lock.WithRegistry(&session.DirRegistry{ConfigRoot: configRoot()}))
}

func issueLockStore() (*lock.Store, error) {
	root, err := projectRoot(issueLockRepo)
	if err != nil {
		return nil, err
	}
	return repoLockStore(root), nil
}

func runIssueLockAcquire(cmd *cobra.Command, args []string) error {
	store, err := issueLockStore()
	if err != nil {
		return err
	}
	res, err := store.Acquire(args[0], sessionID(issueLockSession))
	if err != nil {
		return failJSON(map[string]string{"status": "ERROR", "message": err.Error()})
	}
	if !res.Acquired {
		return emitJSON(map[string]string{
			"status": "HELD",
			"holder": res.HolderSessionID,
		})
	}
	return emitJSON(map[string]string{"status": "ACQUIRED", "issue_id": args[0]})
}

func runIssueLockRelease(cmd *cobra.Command, args []string) error {
	store, err := issueLockStore()
	if err != nil {
		return err
	}
	if err := store.Release(args[0], sessionID(issueLockSession)); err != nil {
		status := "ERROR"
		if errors.Is(err, lock.ErrNotOwner) {
			status = "NOT_OWNER"
		}
		return failJSON(map[string]string{"status": status, "message": err.Error()})
	}
	return emitJSON(map[string]string{"status": "RELEASED", "issue_id": args[0]})
}

func runIssueLockForceRelease(cmd *cobra.Command, args []string) error {
	store, err := issueLockStore()
	if err != nil {
		return err
	}
	if err := store.ForceRelease(args[0]); err != nil {
		return failJSON(map[string]string{"status": "ERROR", "message": err.Error()})
	}
	return emitJSON(map[string]string{"status": "RELEASED", "issue_id": args[0]})
}

func runIssueLockUpdate(cmd *cobra.Command, args []string) error {
	if issueLockWorktree == "" {
		return errors.New("--worktree is required")
	}
	store, err := issueLockStore()
	if err != nil {
		return err
	}
	agent := issueLockAgent
	if agent == "" {
		agent = agentID()
	}
	if err := store.Update(args[0], sessionID(issueLockSession), issueLockWorktree, agent); err != nil {
		status := "ERROR"
		if errors.Is(err, lock.ErrNotOwner) {
			status = "NOT_OWNER"
		}
		return failJSON(map[string]string{"status": status, "message": err.Error()})
	}
	return emitJSON(map[string]string{"status": "UPDATED", "issue_id": args[0]})
}

func runIssueLockList(cmd *cobra.Command, args []string) error {
	store, err := issueLockStore()
	if err != nil {
		return err
	}
	entries, err := store.List()
	if err != nil {
		return failJSON(map[string]string{"status": "ERROR", "message": err.Error()})
	}
	if entries == nil {
		entries = []lock.Entry{}
	}
	return emitJSON(entries)
}
