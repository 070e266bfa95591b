package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cowwoc/cat/internal/git"
	"github.com/cowwoc/cat/internal/gitsafe"
)

var rebaseSafeDir string

var gitRebaseSafeCmd = &cobra.Command{
	Use:   "git-rebase-safe [target]",
	Short: "Rebase with a backup branch and content verification",
	Long: `Rebase the current branch onto a target, guarded against content loss.

A timestamped backup branch is created first. After the rebase the tree
is compared against the backup; any difference aborts with the backup
preserved. Conflicts abort the rebase and report the conflicting files.

The target defaults to the fork-point recorded when the worktree was
provisioned.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGitRebaseSafe,
}

func init() {
	rootCmd.AddCommand(gitRebaseSafeCmd)
	gitRebaseSafeCmd.Flags().StringVar(&rebaseSafeDir, "worktree", "", "Worktree to rebase in (default: current directory)")
}

func runGitRebaseSafe(cmd *cobra.Command, args []string) error {
	dir := rebaseSafeDir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return err
		}
	}
	target := ""
	if len(args) == 1 {
		target = args[0]
	}
	result := gitsafe.RebaseSafe(git.New(dir), target)
	if result.Status == gitsafe.RebaseError {
		return failJSON(result)
	}
	return emitJSON(result)
}
