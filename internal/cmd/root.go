// Package cmd implements the cat CLI.
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cowwoc/cat/internal/paths"
	"github.com/cowwoc/cat/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "cat",
	Short: "Workflow engine for issue-driven development",
	Long: `cat drives issue-by-issue development on a git repository: it
selects the next executable issue, provisions an isolated worktree for
it, guards git operations against history loss, and merges completed
work back.

Commands print a single JSON document to stdout on success and to
stderr on failure. 'cat hook' is the exception: it always exits 0.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// errReported marks failures whose JSON document already went to
// stderr, so Execute does not print a second message.
var errReported = errors.New("reported")

// emitJSON prints one indented JSON document to stdout.
func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// failJSON prints the JSON document to stderr and returns the marker
// error that makes Execute exit 1 without further output.
func failJSON(v any) error {
	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return errReported
}

// sessionID resolves the caller's session id: an explicit --session
// flag wins, then CLAUDE_SESSION_ID, then a generated fallback so lock
// ownership still round-trips within one invocation.
func sessionID(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if raw := os.Getenv("CLAUDE_SESSION_ID"); raw != "" {
		if id, err := session.NormalizeSessionID(raw); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

// agentID reads CAT_AGENT_ID, the identity subagents carry.
func agentID() string {
	return os.Getenv("CAT_AGENT_ID")
}

// projectRoot resolves the repository root: --repo flag, then
// CLAUDE_PROJECT_DIR, then the main worktree enclosing the working
// directory.
func projectRoot(flagValue string) (string, error) {
	if flagValue != "" {
		return filepath.Abs(flagValue)
	}
	if dir := os.Getenv("CLAUDE_PROJECT_DIR"); dir != "" {
		return filepath.Abs(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return paths.FindMainWorktree(cwd)
}

// configRoot is the host config directory holding per-session scratch
// dirs (markers, failure counters).
func configRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".claude")
}

// appendEnvFile appends KEY=VALUE lines to CLAUDE_ENV_FILE so later
// commands in the same session see them. A missing env file is not an
// error; the caller simply has no environment bridge.
func appendEnvFile(vars map[string]string) error {
	path := os.Getenv("CLAUDE_ENV_FILE")
	if path == "" || len(vars) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	for key, value := range vars {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, value); err != nil {
			return err
		}
	}
	return nil
}
