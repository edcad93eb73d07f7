// Package claude implements TuiLifecycle, the checkout state machine that
// owns the single foreground TUI process, and RuntimeLifecycle, which
// supervises the four headless agent runtime backends spawned on the
// TUI's behalf.
package claude

import (
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/events"
	"github.com/captaincrouton89/klaude-wrapper/log"
	"github.com/captaincrouton89/klaude-wrapper/wraperr"
)

// Environment variable names exported to the TUI and to agent runtimes.
const (
	EnvProjectHash     = "KLAUDE_PROJECT_HASH"
	EnvInstanceID      = "KLAUDE_INSTANCE_ID"
	EnvSessionID       = "KLAUDE_SESSION_ID"
	EnvSessionIDShort  = "KLAUDE_SESSION_ID_SHORT"
)

const hookWaitTimeout = 10 * time.Second

// RuntimeStopper is implemented by RuntimeLifecycle; TuiLifecycle calls it
// during checkout step 4 to stop any headless runtime attached to the
// switch target before activating it under the TUI.
type RuntimeStopper interface {
	StopSessionRuntime(sessionID string, waitSeconds float64) error
}

// FinalizeFunc is invoked when the TUI exits for good (no pending switch);
// the orchestrator uses it to shut the instance down.
type FinalizeFunc func(exitCode int)

// TuiConfig holds the subset of config.Config the TuiLifecycle needs.
type TuiConfig struct {
	ClaudeBinary string
	GraceSeconds int
	ExtraArgs    []string
}

// TuiLifecycle owns the single foreground TUI child process for an
// instance and the checkout state machine that switches it between
// sessions.
type TuiLifecycle struct {
	mu sync.Mutex

	cfg         TuiConfig
	projectHash string
	instanceID  string
	projectID   int64

	recorder *events.Recorder
	runtimes RuntimeStopper
	finalize FinalizeFunc

	current          *exec.Cmd
	currentSessionID string
	pendingSwitch    *PendingSwitch
}

func NewTuiLifecycle(cfg TuiConfig, projectHash, instanceID string, projectID int64, recorder *events.Recorder, runtimes RuntimeStopper, finalize FinalizeFunc) *TuiLifecycle {
	return &TuiLifecycle{
		cfg:         cfg,
		projectHash: projectHash,
		instanceID:  instanceID,
		projectID:   projectID,
		recorder:    recorder,
		runtimes:    runtimes,
		finalize:    finalize,
	}
}

// LaunchForSession spawns the TUI with stdio inherited from the
// orchestrator process (explicitly not a pty) for sessionID, resuming
// resumeClaudeSessionID if non-empty. On a fresh launch it blocks up to
// 10s for the session-start hook to populate lastClaudeSessionId.
func (t *TuiLifecycle) LaunchForSession(sessionID, resumeClaudeSessionID string) error {
	if t.cfg.ClaudeBinary == "" {
		return wraperr.New(wraperr.ETuiBinaryMissing, "wrapper.claudeBinary is not configured")
	}

	args := buildTuiArgs(t.cfg.ClaudeBinary, sessionID, resumeClaudeSessionID, t.cfg.ExtraArgs)
	cmd := exec.Command(t.cfg.ClaudeBinary, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		EnvProjectHash+"="+t.projectHash,
		EnvInstanceID+"="+t.instanceID,
		EnvSessionID+"="+sessionID,
		EnvSessionIDShort+"="+shortID(sessionID),
	)

	if err := cmd.Start(); err != nil {
		return wraperr.Wrap(wraperr.ETuiLaunchFailed, "failed to start TUI binary", err)
	}

	if err := db.UpdateSessionStatus(sessionID, db.SessionStatusRunning); err != nil {
		log.Warn().Err(err).Msg("failed to mark session running after TUI spawn")
	}
	if _, err := db.CreateRuntimeProcess(sessionID, cmd.Process.Pid, db.RuntimeKindTUI); err != nil {
		log.Warn().Err(err).Msg("failed to record TUI runtime process")
	}
	t.recorder.RecordSessionEvent(&t.projectID, sessionID, events.KindWrapperTuiSpawned, map[string]any{
		"pid":    cmd.Process.Pid,
		"resume": resumeClaudeSessionID,
	})

	t.mu.Lock()
	t.current = cmd
	t.currentSessionID = sessionID
	t.mu.Unlock()

	go t.waitForExit(cmd, sessionID)

	if resumeClaudeSessionID == "" {
		if err := t.waitForClaudeSessionID(sessionID); err != nil {
			return err
		}
	}

	return nil
}

// waitForClaudeSessionID polls session.lastClaudeSessionId every 200ms for
// up to 10s.
func (t *TuiLifecycle) waitForClaudeSessionID(sessionID string) error {
	deadline := time.Now().Add(hookWaitTimeout)
	for time.Now().Before(deadline) {
		s, err := db.GetSession(sessionID)
		if err != nil {
			return err
		}
		if s != nil && s.LastClaudeSessionID != nil && *s.LastClaudeSessionID != "" {
			return nil
		}
		time.Sleep(resumePollInterval)
	}
	return wraperr.New(wraperr.EHookTimeout, "session-start hook did not fire within 10s for session "+sessionID)
}

// waitForExit blocks on cmd.Wait and routes the exit to either the
// checkout-continuation path or final-exit handling.
func (t *TuiLifecycle) waitForExit(cmd *exec.Cmd, sessionID string) {
	err := cmd.Wait()
	status, exitCode := inferExitStatus(cmd, err)

	t.mu.Lock()
	pending := t.pendingSwitch
	if t.currentSessionID == sessionID {
		t.current = nil
	}
	t.mu.Unlock()

	t.recorder.RecordSessionEvent(&t.projectID, sessionID, events.KindWrapperTuiExited, map[string]any{
		"status":   status,
		"exitCode": exitCode,
	})

	if pending != nil {
		if err := db.UpdateSessionStatus(sessionID, db.SessionStatusActive); err != nil {
			log.Warn().Err(err).Msg("failed to mark switch source session active")
		}
		t.activateSwitch(pending)
		return
	}

	if err := db.CascadeMarkSessionEnded(sessionID, status); err != nil {
		log.Warn().Err(err).Msg("failed to cascade-end session on TUI exit")
	}
	if t.finalize != nil {
		t.finalize(exitCode)
	}
}

func inferExitStatus(cmd *exec.Cmd, waitErr error) (status string, exitCode int) {
	if waitErr == nil {
		return db.SessionStatusDone, 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				sig := ws.Signal()
				if sig == syscall.SIGINT || sig == syscall.SIGTERM {
					return db.SessionStatusInterrupted, 1
				}
				return db.SessionStatusFailed, 1
			}
			return exitStatusForCode(ws.ExitStatus())
		}
		return exitStatusForCode(exitErr.ExitCode())
	}
	_ = cmd
	return db.SessionStatusFailed, 1
}

func exitStatusForCode(code int) (string, int) {
	if code == 0 {
		return db.SessionStatusDone, 0
	}
	return db.SessionStatusFailed, code
}

// CurrentSessionID returns the session id the foreground TUI is currently
// attached to, or "" if no TUI is live.
func (t *TuiLifecycle) CurrentSessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ""
	}
	return t.currentSessionID
}

// CurrentPid returns the foreground TUI's process id, or 0 if none is live.
func (t *TuiLifecycle) CurrentPid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || t.current.Process == nil {
		return 0
	}
	return t.current.Process.Pid
}

// IsSwitching reports whether a checkout is currently in flight.
func (t *TuiLifecycle) IsSwitching() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingSwitch != nil
}

func shortID(id string) string {
	const n = 6
	if len(id) <= n {
		return id
	}
	return id[len(id)-n:]
}
