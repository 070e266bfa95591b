package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cowwoc/cat/internal/hooks"
)

var hookCmd = &cobra.Command{
	Use:   "hook [event]",
	Short: "Run the hook dispatcher for one lifecycle event",
	Long: `Read a hook payload from stdin, run the handler chain for its event,
and write the response to stdout.

The event is normally derived from the payload's hook_event_name and
tool_name; an explicit event argument overrides it. The command always
exits 0: a hook process that fails must degrade to a no-op, never break
the session. Handler panics surface as a systemMessage in the response,
warnings go to stderr.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runHook,
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

func runHook(cmd *cobra.Command, args []string) {
	opts := hooks.Options{ConfigRoot: configRoot()}
	dispatch := func(in *hooks.Input) (*hooks.Response, []string) {
		event := hooks.EventFor(in)
		if len(args) == 1 {
			event = hooks.Event(args[0])
		}
		return hooks.NewDispatcher(event, opts).Dispatch(in)
	}
	os.Exit(hooks.RunEnvelope(os.Stdin, os.Stdout, os.Stderr, dispatch))
}
