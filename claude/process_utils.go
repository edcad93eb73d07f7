package claude

import (
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/log"
)

// terminateGracefully sends sig then, if the process has not exited after
// grace, SIGKILL. Both the TUI and agent runtimes are stopped with
// SIGTERM first, not SIGINT, even though the TUI's own CLI-mode
// self-management relies on SIGINT (Node.js ignores SIGTERM).
func terminateGracefully(cmd *exec.Cmd, sig syscall.Signal, grace time.Duration) bool {
	if cmd == nil || cmd.Process == nil {
		return true
	}

	if err := cmd.Process.Signal(sig); err != nil {
		cmd.Process.Kill()
		return true
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		log.Warn().Int("pid", cmd.Process.Pid).Msg("process did not exit gracefully, sending SIGKILL")
		cmd.Process.Kill()
		return false
	}
}

// buildTuiArgs constructs argv for the foreground TUI binary: --resume
// when resuming a conversation, else --session-id.
func buildTuiArgs(claudeBinary, sessionID string, resumeClaudeSessionID string, extra []string) []string {
	var args []string
	if resumeClaudeSessionID != "" {
		args = append(args, "--resume", resumeClaudeSessionID)
	} else {
		args = append(args, "--session-id", sessionID)
	}
	args = append(args, extra...)
	return args
}

// SplitCommaList splits a comma-separated env/config value into trimmed,
// non-empty parts, used to turn wrapper.claudeExtraArgs into argv entries.
func SplitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
