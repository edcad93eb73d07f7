package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/captaincrouton89/klaude-wrapper/config"
	"github.com/captaincrouton89/klaude-wrapper/hooks"
)

// hookCmd is hidden: it is never typed by a human, only invoked by the TUI
// binary's own hook configuration pointing at this same executable.
var hookCmd = &cobra.Command{
	Use:    "hook",
	Hidden: true,
	Short:  "Out-of-band hook entry points invoked by the TUI binary",
}

var hookSessionStartCmd = &cobra.Command{
	Use:  "session-start",
	Args: cobra.NoArgs,
	// Hook handlers never fail the TUI's own command: they exit 0
	// regardless of what happened internally. Handler failures are logged;
	// a database that cannot be opened makes the hook return without
	// doing anything.
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := openDB(config.Get()); err != nil {
			return nil
		}
		hooks.RunSessionStart(os.Stdin)
		return nil
	},
}

var hookSessionEndCmd = &cobra.Command{
	Use:  "session-end",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := openDB(config.Get()); err != nil {
			return nil
		}
		hooks.RunSessionEnd(os.Stdin)
		return nil
	},
}

func init() {
	hookCmd.AddCommand(hookSessionStartCmd, hookSessionEndCmd)
}
