package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cowwoc/cat/internal/git"
	"github.com/cowwoc/cat/internal/gitsafe"
)

var (
	amendSafeDir     string
	amendSafeMessage string
)

var gitAmendSafeCmd = &cobra.Command{
	Use:   "git-amend-safe",
	Short: "Amend HEAD only if it has not been pushed",
	Long: `Amend the last commit after verifying it is still local.

Refuses with ALREADY_PUSHED when HEAD is on the upstream. After
amending it re-checks the push ref; a push that raced the amend yields
RACE_DETECTED with a recovery hint instead of silently diverging.`,
	Args: cobra.NoArgs,
	RunE: runGitAmendSafe,
}

func init() {
	rootCmd.AddCommand(gitAmendSafeCmd)
	gitAmendSafeCmd.Flags().StringVar(&amendSafeDir, "worktree", "", "Worktree to amend in (default: current directory)")
	gitAmendSafeCmd.Flags().StringVarP(&amendSafeMessage, "message", "m", "", "New commit message (default: keep)")
}

func runGitAmendSafe(cmd *cobra.Command, args []string) error {
	dir := amendSafeDir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return err
		}
	}
	result := gitsafe.AmendSafe(git.New(dir), amendSafeMessage)
	if result.Status == gitsafe.AmendError {
		return failJSON(result)
	}
	return emitJSON(result)
}
