// Command klaude-wrapper launches a per-project wrapper instance: it owns
// the foreground TUI child, listens on a Unix socket for control requests,
// and supervises headless agent runtimes. It is also the binary the TUI
// itself invokes out-of-band for its session-start/session-end hooks.
package main

import (
	"fmt"
	"os"

	"github.com/captaincrouton89/klaude-wrapper/cmd/klaude-wrapper/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
