// Package commands provides the klaude-wrapper CLI commands.
package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/captaincrouton89/klaude-wrapper/config"
	"github.com/captaincrouton89/klaude-wrapper/log"
	"github.com/captaincrouton89/klaude-wrapper/orchestrator"
)

var workDir string

var rootCmd = &cobra.Command{
	Use:   "klaude-wrapper",
	Short: "Session orchestrator for interactive coding agent CLIs",
	Long: `klaude-wrapper owns a project's foreground TUI, listens on a Unix
socket for control requests (start-agent, checkout, message, interrupt),
and supervises headless agent runtimes spawned on the TUI's behalf.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		log.SetLevel(cfg.LogLevel)

		dir, err := GetWorkDir(workDir)
		if err != nil {
			return err
		}

		if _, err := openDB(cfg); err != nil {
			return err
		}

		o, err := orchestrator.New(dir)
		if err != nil {
			return err
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := o.Start(); err != nil {
				log.Error().Err(err).Msg("orchestrator start failed")
			}
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sig:
			log.Info().Msg("signal received, shutting down")
			o.Shutdown()
		case <-done:
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "d", "", "project directory (default: current directory)")
	rootCmd.AddCommand(hookCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from the --dir flag, or the
// process's current directory if unset.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
