package cmd

import (
	"reflect"

	"github.com/spf13/cobra"
)

var (
	statuslineRepo     string
	statuslineSettings string
	statuslineCommand  string
)

var statuslineInstallCmd = &cobra.Command{
	Use:   "statusline-install",
	Short: "Install the cat status line in settings.json",
	Long: `Point the Claude status line at 'cat skill-output status' so the
terminal shows the current branch, issue counts, and active locks.

The edit is idempotent; an existing identical status line leaves the
file untouched.`,
	Args: cobra.NoArgs,
	RunE: runStatuslineInstall,
}

func init() {
	rootCmd.AddCommand(statuslineInstallCmd)
	statuslineInstallCmd.Flags().StringVar(&statuslineRepo, "repo", "", "Repository root (default: auto-detect)")
	statuslineInstallCmd.Flags().StringVar(&statuslineSettings, "settings", "", "Settings file (default: {repo}/.claude/settings.json)")
	statuslineInstallCmd.Flags().StringVar(&statuslineCommand, "command", "", "Status line command (default: this binary)")
}

func runStatuslineInstall(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(statuslineRepo)
	if err != nil {
		return err
	}
	path := settingsPath(root, statuslineSettings)
	settings, err := loadSettings(path)
	if err != nil {
		return failJSON(map[string]string{"status": "ERROR", "message": err.Error()})
	}

	command := statuslineCommand
	if command == "" {
		command = binaryInvocation() + " skill-output status"
	}
	want := map[string]any{"type": "command", "command": command}
	changed := !reflect.DeepEqual(settings["statusLine"], want)
	if changed {
		settings["statusLine"] = want
		if err := saveSettings(path, settings); err != nil {
			return failJSON(map[string]string{"status": "ERROR", "message": err.Error()})
		}
	}
	return emitJSON(map[string]any{
		"status":   "OK",
		"settings": path,
		"changed":  changed,
		"command":  command,
	})
}
