package claude

import (
	"errors"
	"syscall"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/events"
	"github.com/captaincrouton89/klaude-wrapper/log"
	"github.com/captaincrouton89/klaude-wrapper/wraperr"
)

// CheckoutRequest is the decoded form of server.CheckoutPayload.
type CheckoutRequest struct {
	SessionID     string
	FromSessionID string
	WaitSeconds   float64
}

// CheckoutResult is the success reply for a checkout request.
type CheckoutResult struct {
	SessionID       string `json:"sessionId"`
	ClaudeSessionID string `json:"claudeSessionId"`
	AlreadyActive   bool   `json:"alreadyActive,omitempty"`
}

// PendingSwitch is the one-shot completion handle for an in-flight
// checkout: at most one may be outstanding at a time.
type PendingSwitch struct {
	Target          string
	ClaudeSessionID string
	outcome         chan checkoutOutcome
}

type checkoutOutcome struct {
	result CheckoutResult
	err    error
}

// Checkout implements the full checkout state machine.
func (t *TuiLifecycle) Checkout(req CheckoutRequest) (*CheckoutResult, error) {
	t.mu.Lock()
	if t.pendingSwitch != nil {
		t.mu.Unlock()
		return nil, wraperr.New(wraperr.ECheckoutInProgress, "a checkout is already in progress")
	}
	source := req.FromSessionID
	if source == "" {
		source = t.currentSessionID
	}
	currentSessionID := t.currentSessionID
	tuiLive := t.current != nil
	t.mu.Unlock()

	target := req.SessionID
	if target == "" {
		if source == "" {
			return nil, wraperr.New(wraperr.ESwitchTargetMissing, "no session to check out from")
		}
		src, err := db.GetSession(source)
		if err != nil {
			return nil, err
		}
		if src == nil {
			return nil, wraperr.New(wraperr.ESessionNotFound, "session not found: "+source)
		}
		if src.ParentID == nil {
			return nil, wraperr.New(wraperr.ESwitchTargetMissing, "session "+source+" has no parent to check out to")
		}
		target = *src.ParentID
	}

	targetSession, err := db.GetSession(target)
	if err != nil {
		return nil, err
	}
	if targetSession == nil {
		return nil, wraperr.New(wraperr.ESessionNotFound, "session not found: "+target)
	}
	if source != "" {
		srcSession, err := db.GetSession(source)
		if err == nil && srcSession != nil && srcSession.ProjectID != targetSession.ProjectID {
			return nil, wraperr.New(wraperr.ESessionProjectMismatch, "checkout target is in a different project")
		}
	}

	t.recorder.RecordSessionEvent(&targetSession.ProjectID, source, events.KindWrapperCheckoutRequested, map[string]any{
		"target": target,
	})

	if target == currentSessionID && tuiLive {
		t.recorder.RecordSessionEvent(&targetSession.ProjectID, target, events.KindWrapperCheckoutAlreadyOn, nil)
		return &CheckoutResult{SessionID: target, AlreadyActive: true}, nil
	}

	resolution, err := resolveResumeID(target, req.WaitSeconds)
	if err != nil {
		return nil, err
	}
	t.recorder.RecordSessionEvent(&targetSession.ProjectID, target, events.KindWrapperResumeSelected, map[string]any{
		"reason":          resolution.Reason,
		"claudeSessionId": resolution.ClaudeSessionID,
	})

	if currentSessionID != "" && target != currentSessionID && t.runtimes != nil {
		stopWait := req.WaitSeconds
		if stopWait < 5 {
			stopWait = 5
		}
		if err := t.runtimes.StopSessionRuntime(target, stopWait); err != nil {
			if !errors.Is(err, errNoRuntimeTracked) {
				return nil, err
			}
		} else {
			t.recorder.RecordSessionEvent(&targetSession.ProjectID, target, events.KindWrapperRuntimeStopped, nil)
		}
	}

	// tuiLive was snapshotted before resolveResumeID/StopSessionRuntime ran,
	// which can take seconds; re-check t.current fresh under lock rather
	// than trust that snapshot for the live-vs-cold-launch decision below.
	t.mu.Lock()
	if t.pendingSwitch != nil {
		t.mu.Unlock()
		return nil, wraperr.New(wraperr.ECheckoutInProgress, "a checkout is already in progress")
	}
	cmd := t.current
	if cmd == nil {
		t.mu.Unlock()
		if err := t.LaunchForSession(target, resolution.ClaudeSessionID); err != nil {
			return nil, err
		}
		return &CheckoutResult{SessionID: target, ClaudeSessionID: resolution.ClaudeSessionID}, nil
	}

	pending := &PendingSwitch{Target: target, ClaudeSessionID: resolution.ClaudeSessionID, outcome: make(chan checkoutOutcome, 1)}
	t.pendingSwitch = pending
	t.mu.Unlock()

	grace := time.Duration(t.cfg.GraceSeconds) * time.Second
	if grace <= 0 {
		grace = time.Second
	}
	go terminateGracefully(cmd, syscall.SIGTERM, grace)

	out := <-pending.outcome
	if out.err != nil {
		return nil, out.err
	}
	return &out.result, nil
}

// activateSwitch is called from TuiLifecycle.waitForExit once the old TUI
// has exited and a switch is pending.
func (t *TuiLifecycle) activateSwitch(pending *PendingSwitch) {
	t.mu.Lock()
	t.pendingSwitch = nil
	t.mu.Unlock()

	err := t.LaunchForSession(pending.Target, pending.ClaudeSessionID)
	if err != nil {
		if finalizeErr := db.UpdateSessionStatus(pending.Target, db.SessionStatusFailed); finalizeErr != nil {
			log.Warn().Err(finalizeErr).Msg("failed to mark switch target failed")
		}
		pending.outcome <- checkoutOutcome{err: err}
		return
	}

	projectID, _ := sessionProjectID(pending.Target)
	t.recorder.RecordSessionEvent(projectID, pending.Target, events.KindWrapperCheckoutActivated, map[string]any{
		"claudeSessionId": pending.ClaudeSessionID,
	})

	pending.outcome <- checkoutOutcome{result: CheckoutResult{SessionID: pending.Target, ClaudeSessionID: pending.ClaudeSessionID}}
}

func sessionProjectID(sessionID string) (*int64, error) {
	s, err := db.GetSession(sessionID)
	if err != nil || s == nil {
		return nil, err
	}
	return &s.ProjectID, nil
}

// errNoRuntimeTracked signals "nothing to stop" from RuntimeStopper
// implementations; Checkout treats it as a no-op rather than a failure.
var errNoRuntimeTracked = errors.New("no runtime tracked for session")
