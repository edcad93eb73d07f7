package claude

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os/exec"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/config"
	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/events"
	"github.com/captaincrouton89/klaude-wrapper/log"
	"github.com/captaincrouton89/klaude-wrapper/wraperr"
)

var updateTextPattern = regexp.MustCompile(`^\[UPDATE\]\s*(.+)`)

// RuntimeLifecycle supervises headless agent-runtime children: one
// tracked process per session, parameterized by kind-specific
// parser/argv-builder functions.
type RuntimeLifecycle struct {
	mu       sync.Mutex
	projectID int64
	recorder *events.Recorder
	gptConfig map[string]config.GPTKindConfig

	procs        map[string]*trackedRuntime
	retryCancels map[string]context.CancelFunc
}

type trackedRuntime struct {
	mu               sync.Mutex
	cmd              *exec.Cmd
	kind             string
	stdin            io.WriteCloser
	runtimeProcessID int64
	producedOutput   bool
	parentSessionID  *string
	exited           chan struct{}
}

func NewRuntimeLifecycle(projectID int64, recorder *events.Recorder, gptConfig map[string]config.GPTKindConfig) *RuntimeLifecycle {
	return &RuntimeLifecycle{
		projectID:    projectID,
		recorder:     recorder,
		gptConfig:    gptConfig,
		procs:        map[string]*trackedRuntime{},
		retryCancels: map[string]context.CancelFunc{},
	}
}

// Start validates primaryKind is spawnable, then supervises it (with
// startup retry and an optional one-shot fallback) on a background
// goroutine so the caller — the start-agent socket handler — can reply as
// soon as the first process is launched rather than blocking for the
// whole agent turn: runtimes are headless background children, not
// synchronous calls. A Native runtime that never exits
// (it waits for further stdin messages) would otherwise wedge Start
// forever.
func (r *RuntimeLifecycle) Start(spec SpawnSpec, primaryKind, fallbackKind string, parentSessionID *string) error {
	if _, ok := kindRegistry[primaryKind]; !ok {
		return wraperr.New(wraperr.EAgentRuntimeEntryMissing, "unknown runtime kind: "+primaryKind)
	}
	if r.gptConfig[primaryKind].BinaryPath == "" {
		return wraperr.New(wraperr.EAgentRuntimeEntryMissing, "no binaryPath configured for runtime kind "+primaryKind)
	}

	go func() {
		err := r.startWithRetry(spec, primaryKind, parentSessionID)
		if err == nil || fallbackKind == "" {
			return
		}
		log.Warn().Str("session", spec.SessionID).Str("primary", primaryKind).Str("fallback", fallbackKind).
			Msg("primary runtime exhausted, trying fallback once")
		if err := r.spawnOnce(spec, fallbackKind, parentSessionID, 1, 1); err != nil {
			log.Warn().Err(err).Str("session", spec.SessionID).Msg("fallback runtime also failed")
		}
	}()
	return nil
}

func (r *RuntimeLifecycle) startWithRetry(spec SpawnSpec, kind string, parentSessionID *string) error {
	kc := r.gptConfig[kind]
	maxAttempts := kc.StartupRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.retryCancels[spec.SessionID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.retryCancels, spec.SessionID)
		r.mu.Unlock()
		cancel()
	}()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := r.spawnOnce(spec, kind, parentSessionID, attempt, maxAttempts)
		if err == nil {
			return nil
		}
		if !isStartupFailure(err) || attempt == maxAttempts {
			if attempt == maxAttempts {
				if uerr := db.UpdateSessionStatus(spec.SessionID, db.SessionStatusFailed); uerr != nil {
					log.Warn().Err(uerr).Msg("failed to mark session failed after exhausting startup attempts")
				}
			}
			return err
		}

		delayMs := kc.StartupRetryDelayMs
		if delayMs <= 0 {
			delayMs = 400
		}
		jitterMs := kc.StartupRetryJitterMs
		if jitterMs <= 0 {
			jitterMs = 200
		}
		delay := time.Duration(delayMs*max1(attempt)) * time.Millisecond
		delay += time.Duration(rand.Intn(jitterMs)) * time.Millisecond

		r.recorder.RecordSessionEvent(&r.projectID, spec.SessionID, events.KindAgentRuntimeRetry, map[string]any{
			"attempt":  attempt,
			"nextWait": delay.Milliseconds(),
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return wraperr.New(wraperr.EAgentRuntimeEntryMissing, "runtime kind exhausted all startup attempts")
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

type startupFailureError struct{ cause error }

func (e *startupFailureError) Error() string { return "startup failure: " + e.cause.Error() }
func (e *startupFailureError) Unwrap() error  { return e.cause }

func isStartupFailure(err error) bool {
	_, ok := err.(*startupFailureError)
	return ok
}

// spawnOnce performs a single spawn attempt of kind for spec and, on
// success, launches the stdout reader goroutine. A "startup failure" is a
// spawn whose child exits with zero stdout/stderr bytes produced.
func (r *RuntimeLifecycle) spawnOnce(spec SpawnSpec, kind string, parentSessionID *string, attempt, maxAttempts int) error {
	impl, ok := kindRegistry[kind]
	if !ok {
		return wraperr.New(wraperr.EAgentRuntimeEntryMissing, "unknown runtime kind: "+kind)
	}
	kc := r.gptConfig[kind]
	if kc.BinaryPath == "" {
		return wraperr.New(wraperr.EAgentRuntimeEntryMissing, "no binaryPath configured for runtime kind "+kind)
	}

	binary, args, env := impl.BuildArgv(spec, kc)
	cmd := exec.Command(binary, args...)
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	var stdin io.WriteCloser
	if impl.Bidirectional {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return err
		}
	}

	if err := cmd.Start(); err != nil {
		return &startupFailureError{cause: err}
	}

	runtimeProcessID, err := db.CreateRuntimeProcess(spec.SessionID, cmd.Process.Pid, kind)
	if err != nil {
		log.Warn().Err(err).Msg("failed to record runtime process")
	}
	if err := db.UpdateSessionCurrentProcess(spec.SessionID, &cmd.Process.Pid); err != nil {
		log.Warn().Err(err).Msg("failed to set session current process")
	}
	r.recorder.RecordSessionEvent(&r.projectID, spec.SessionID, events.KindAgentRuntimeSpawned, map[string]any{
		"kind": kind, "pid": cmd.Process.Pid, "attempt": attempt,
	})

	tr := &trackedRuntime{cmd: cmd, kind: kind, stdin: stdin, runtimeProcessID: runtimeProcessID, parentSessionID: parentSessionID, exited: make(chan struct{})}
	r.mu.Lock()
	r.procs[spec.SessionID] = tr
	r.mu.Unlock()

	if impl.Bidirectional {
		if _, err := stdin.Write(nativeInitPayload(spec)); err != nil {
			log.Warn().Err(err).Msg("failed to write native init payload")
		}
	}

	go r.readStream(spec.SessionID, stdout, impl, tr, false)
	go r.readStream(spec.SessionID, stderr, impl, tr, true)

	exitErr := cmd.Wait()
	close(tr.exited)

	tr.mu.Lock()
	producedOutput := tr.producedOutput
	tr.mu.Unlock()

	r.mu.Lock()
	if r.procs[spec.SessionID] == tr {
		delete(r.procs, spec.SessionID)
	}
	r.mu.Unlock()

	exitCode := 0
	if exitErr != nil {
		if ee, ok := exitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			exitCode = -1
		}
	}
	if runtimeProcessID != 0 {
		if err := db.CloseRuntimeProcess(runtimeProcessID, exitCode); err != nil {
			log.Warn().Err(err).Msg("failed to close runtime process row")
		}
	}
	if err := db.UpdateSessionCurrentProcess(spec.SessionID, nil); err != nil {
		log.Warn().Err(err).Msg("failed to clear session current process")
	}
	r.recorder.RecordSessionEvent(&r.projectID, spec.SessionID, events.KindAgentRuntimeProcessExited, map[string]any{
		"exitCode": exitCode, "attempt": attempt,
	})

	if !producedOutput {
		return &startupFailureError{cause: fmt.Errorf("process produced no output, exit code %d", exitCode)}
	}

	if exitCode != 0 && attempt == maxAttempts {
		if err := db.UpdateSessionStatus(spec.SessionID, db.SessionStatusFailed); err != nil {
			log.Warn().Err(err).Msg("failed to mark session failed")
		}
	}
	return nil
}

func (r *RuntimeLifecycle) readStream(sessionID string, rc io.ReadCloser, impl kindImpl, tr *trackedRuntime, isStderr bool) {
	defer rc.Close()
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		tr.mu.Lock()
		tr.producedOutput = true
		tr.mu.Unlock()

		if isStderr {
			r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeStderr, map[string]any{"line": string(line)})
			continue
		}

		ev, err := impl.Parse(line)
		if err != nil {
			r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeUnknown, map[string]any{"raw": string(line)})
			continue
		}
		r.dispatchEvent(sessionID, tr, ev)
	}
}

func (r *RuntimeLifecycle) dispatchEvent(sessionID string, tr *trackedRuntime, ev *RuntimeEvent) {
	switch ev.Type {
	case "status":
		r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeStatus, ev)
		switch ev.Status {
		case "running":
			_ = db.UpdateSessionStatus(sessionID, db.SessionStatusRunning)
		case "completed":
			_ = db.CascadeMarkSessionEnded(sessionID, db.SessionStatusDone)
		}

	case "message":
		r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeMessage, ev)
		if m := updateTextPattern.FindStringSubmatch(ev.Text); m != nil && tr.parentSessionID != nil {
			if err := db.InsertAgentUpdate(sessionID, tr.parentSessionID, m[1]); err != nil {
				log.Warn().Err(err).Msg("failed to insert agent update")
			}
		}

	case "log":
		r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeLog, ev)

	case "result":
		r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeResult, ev)

	case "error":
		r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeError, ev)
		_ = db.CascadeMarkSessionEnded(sessionID, db.SessionStatusFailed)

	case "done":
		status := db.SessionStatusDone
		if ev.Status == "failed" {
			status = db.SessionStatusFailed
		} else if ev.Status != "" {
			status = ev.Status
		}
		r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeDone, ev)
		_ = db.CascadeMarkSessionEnded(sessionID, status)

	case "claude-session":
		var transcript *string
		if ev.TranscriptPath != "" {
			transcript = &ev.TranscriptPath
		}
		if err := db.UpsertClaudeSessionLink(sessionID, ev.SessionID, db.LinkSourceStartup, transcript); err != nil {
			log.Warn().Err(err).Msg("failed to upsert claude session link")
		}
		if err := db.UpdateSessionClaudeLink(sessionID, ev.SessionID, transcript); err != nil {
			log.Warn().Err(err).Msg("failed to update session claude link cache")
		}
		r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeClaudeSession, ev)

	default:
		r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeUnknown, ev)
	}
}

// StopSessionRuntime implements RuntimeStopper: SIGTERM, poll up to
// max(waitSeconds,5)s, SIGKILL, poll up to 1s more, else
// E_AGENT_RUNTIME_TIMEOUT.
func (r *RuntimeLifecycle) StopSessionRuntime(sessionID string, waitSeconds float64) error {
	r.mu.Lock()
	cancel, retrying := r.retryCancels[sessionID]
	tr, ok := r.procs[sessionID]
	r.mu.Unlock()

	if retrying {
		cancel()
		r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentRuntimeRetryCancelled, nil)
	}

	if !ok {
		if retrying {
			if s, err := db.GetSession(sessionID); err == nil && s != nil && !db.TerminalStatuses[s.Status] {
				_ = db.UpdateSessionStatus(sessionID, db.SessionStatusFailed)
			}
			return nil
		}
		return errNoRuntimeTracked
	}

	pollWindow := waitSeconds
	if pollWindow < 5 {
		pollWindow = 5
	}

	if err := tr.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return nil // already dead
	}
	if waitExit(tr.exited, time.Duration(pollWindow*float64(time.Second))) {
		return nil
	}

	_ = tr.cmd.Process.Kill()
	if waitExit(tr.exited, time.Second) {
		return nil
	}

	return wraperr.New(wraperr.EAgentRuntimeTimeout, "runtime did not exit after SIGTERM+SIGKILL for session "+sessionID)
}

// waitExit reports whether exited (closed by the single goroutine that owns
// cmd.Wait() in spawnOnce) fires within timeout. It never calls cmd.Wait()
// itself — doing so a second time on the same process is undefined.
func waitExit(exited chan struct{}, timeout time.Duration) bool {
	select {
	case <-exited:
		return true
	case <-time.After(timeout):
		return false
	}
}

// SendMessage writes a follow-up message to a live native runtime's stdin.
func (r *RuntimeLifecycle) SendMessage(sessionID, prompt string) error {
	r.mu.Lock()
	tr, ok := r.procs[sessionID]
	r.mu.Unlock()
	if !ok || tr.stdin == nil {
		return wraperr.New(wraperr.EAgentStdinUnavailable, "no live native runtime for session "+sessionID)
	}

	if _, err := tr.stdin.Write(nativeMessagePayload(prompt)); err != nil {
		return wraperr.Wrap(wraperr.EMessageSendFailed, "failed to write to runtime stdin", err)
	}
	r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentMessageSent, map[string]any{"prompt": prompt})
	return nil
}

// HasLiveRuntime reports whether a runtime is currently tracked for a
// session, and its kind.
func (r *RuntimeLifecycle) HasLiveRuntime(sessionID string) (kind string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.procs[sessionID]
	if !ok {
		return "", false
	}
	return tr.kind, true
}

// LiveCount returns the number of sessions with a currently tracked
// runtime process.
func (r *RuntimeLifecycle) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// Interrupt signals the tracked runtime process.
func (r *RuntimeLifecycle) Interrupt(sessionID, sig string) error {
	r.mu.Lock()
	tr, ok := r.procs[sessionID]
	r.mu.Unlock()
	if !ok {
		return wraperr.New(wraperr.EAgentNotRunning, "no tracked runtime for session "+sessionID)
	}
	if tr.cmd.Process == nil {
		return wraperr.New(wraperr.EAgentPIDUnavailable, "runtime process pid unavailable")
	}

	s := parseSignal(sig)
	if err := tr.cmd.Process.Signal(s); err != nil {
		return wraperr.Wrap(wraperr.EInterruptFailed, "failed to signal runtime process", err)
	}
	r.recorder.RecordSessionEvent(&r.projectID, sessionID, events.KindAgentInterrupted, map[string]any{"signal": sig})
	return nil
}

func parseSignal(sig string) syscall.Signal {
	switch sig {
	case "SIGTERM":
		return syscall.SIGTERM
	case "SIGKILL":
		return syscall.SIGKILL
	case "SIGINT", "":
		return syscall.SIGINT
	default:
		return syscall.SIGINT
	}
}
