package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	registerHookRepo     string
	registerHookSettings string
	registerHookCommand  string
)

// hookRegistrations lists the lifecycle events the plugin subscribes
// to and the tool matcher for each.
var hookRegistrations = []struct {
	event   string
	matcher string
}{
	{"SessionStart", ""},
	{"SubagentStart", ""},
	{"UserPromptSubmit", ""},
	{"PreToolUse", "*"},
	{"PostToolUse", "*"},
	{"PostToolUseFailure", "*"},
	{"Stop", ""},
}

var registerHookCmd = &cobra.Command{
	Use:   "register-hook",
	Short: "Register the hook dispatcher in settings.json",
	Long: `Add the 'cat hook' dispatcher to the repository's Claude settings for
every lifecycle event the plugin handles.

The edit is idempotent: entries that already invoke the dispatcher are
left alone, and unrelated hooks in the file are preserved.`,
	Args: cobra.NoArgs,
	RunE: runRegisterHook,
}

func init() {
	rootCmd.AddCommand(registerHookCmd)
	registerHookCmd.Flags().StringVar(&registerHookRepo, "repo", "", "Repository root (default: auto-detect)")
	registerHookCmd.Flags().StringVar(&registerHookSettings, "settings", "", "Settings file (default: {repo}/.claude/settings.json)")
	registerHookCmd.Flags().StringVar(&registerHookCommand, "command", "", "Dispatcher command (default: this binary)")
}

// binaryInvocation is how registered commands reach this binary:
// through the plugin root when installed as a plugin, otherwise by the
// executable's own path.
func binaryInvocation() string {
	if root := os.Getenv("CLAUDE_PLUGIN_ROOT"); root != "" {
		return root + "/cat"
	}
	exe, err := os.Executable()
	if err != nil {
		return "cat"
	}
	return exe
}

// hookCommand is the command line registered for every event.
func hookCommand() string {
	if registerHookCommand != "" {
		return registerHookCommand
	}
	return binaryInvocation() + " hook"
}

func runRegisterHook(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(registerHookRepo)
	if err != nil {
		return err
	}
	path := settingsPath(root, registerHookSettings)
	settings, err := loadSettings(path)
	if err != nil {
		return failJSON(map[string]string{"status": "ERROR", "message": err.Error()})
	}

	command := hookCommand()
	added := 0
	for _, reg := range hookRegistrations {
		if registerHookEvent(settings, reg.event, reg.matcher, command) {
			added++
		}
	}
	if added > 0 {
		if err := saveSettings(path, settings); err != nil {
			return failJSON(map[string]string{"status": "ERROR", "message": err.Error()})
		}
	}
	return emitJSON(map[string]any{
		"status":   "OK",
		"settings": path,
		"added":    added,
		"command":  command,
	})
}

// registerHookEvent ensures one event's hook list invokes the
// dispatcher. Returns true when the settings were modified.
func registerHookEvent(settings map[string]any, event, matcher, command string) bool {
	hooksAny, _ := settings["hooks"].(map[string]any)
	if hooksAny == nil {
		hooksAny = map[string]any{}
		settings["hooks"] = hooksAny
	}
	entries, _ := hooksAny[event].([]any)
	for _, entryAny := range entries {
		entry, ok := entryAny.(map[string]any)
		if !ok {
			continue
		}
		inner, _ := entry["hooks"].([]any)
		for _, hookAny := range inner {
			hook, ok := hookAny.(map[string]any)
			if ok && hook["command"] == command {
				return false
			}
		}
	}
	entry := map[string]any{
		"hooks": []any{map[string]any{"type": "command", "command": command}},
	}
	if matcher != "" {
		entry["matcher"] = matcher
	}
	hooksAny[event] = append(entries, entry)
	return true
}
