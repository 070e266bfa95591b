package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cowwoc/cat/internal/skilloutput"
)

var skillOutputRepo string

var skillOutputCmd = &cobra.Command{
	Use:   "skill-output <type> [args...]",
	Short: "Render a dynamic block for a skill",
	Long: `Render the dynamic block a skill preprocessor splices into its
markdown. Types are dotted, e.g. "status", "config.settings",
"issues.blocked", "work-complete".

Output is the rendered block wrapped in <output type="..."> tags, not
JSON. Renderers only read repository state.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSkillOutput,
}

func init() {
	rootCmd.AddCommand(skillOutputCmd)
	skillOutputCmd.Flags().StringVar(&skillOutputRepo, "repo", "", "Repository root (default: auto-detect)")
}

func runSkillOutput(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(skillOutputRepo)
	if err != nil {
		return err
	}
	out, err := skilloutput.Render(&skilloutput.Context{RepoRoot: root}, args[0], args[1:])
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
