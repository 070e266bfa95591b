package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cowwoc/cat/internal/git"
	"github.com/cowwoc/cat/internal/worktree"
)

var (
	existingWorkDir  string
	existingWorkBase string
)

// existingWorkReport is the JSON document existing-work-checker prints.
type existingWorkReport struct {
	Branch       string   `json:"branch"`
	Base         string   `json:"base"`
	CommitsAhead int      `json:"commits_ahead"`
	ExistingWork []string `json:"existing_work,omitempty"`
}

var existingWorkCheckerCmd = &cobra.Command{
	Use:   "existing-work-checker",
	Short: "Report commits already on the issue branch",
	Long: `Count the commits the current branch carries beyond its base and list
up to five oneline summaries.

The base defaults to the fork-point recorded when the worktree was
provisioned, so the report covers exactly the work done for this issue.`,
	Args: cobra.NoArgs,
	RunE: runExistingWorkChecker,
}

func init() {
	rootCmd.AddCommand(existingWorkCheckerCmd)
	existingWorkCheckerCmd.Flags().StringVar(&existingWorkDir, "worktree", "", "Worktree to inspect (default: current directory)")
	existingWorkCheckerCmd.Flags().StringVar(&existingWorkBase, "base", "", "Base ref (default: recorded fork-point)")
}

func runExistingWorkChecker(cmd *cobra.Command, args []string) error {
	dir := existingWorkDir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return err
		}
	}
	g := git.New(dir)

	branch, err := g.CurrentBranch()
	if err != nil {
		return failJSON(map[string]string{"status": "ERROR", "message": err.Error()})
	}
	base := existingWorkBase
	if base == "" {
		if base, err = worktree.ReadBranchPoint(g); err != nil {
			return failJSON(map[string]string{"status": "ERROR", "message": "no base given and no recorded fork-point: " + err.Error()})
		}
	}

	ahead, err := g.CommitsAhead(base, "HEAD")
	if err != nil {
		return failJSON(map[string]string{"status": "ERROR", "message": err.Error()})
	}
	report := existingWorkReport{Branch: branch, Base: base, CommitsAhead: ahead}
	if ahead > 0 {
		if lines, err := g.LogOneline(base, "HEAD", 5); err == nil {
			report.ExistingWork = lines
		}
	}
	return emitJSON(report)
}
