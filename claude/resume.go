package claude

import (
	"time"

	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/wraperr"
)

// ResumeResolution is the outcome of resolving which underlying TUI
// conversation id to resume, carrying the reason recorded in
// wrapper.checkout.resume_selected.
type ResumeResolution struct {
	ClaudeSessionID string
	Reason          string
}

const resumePollInterval = 200 * time.Millisecond

// resolveResumeID implements the precedence shared by checkout,
// start-agent's share option, and message's re-spawn path: active link >
// most recent link > cached lastClaudeSessionId, with bounded polling if
// none is yet known.
func resolveResumeID(sessionID string, waitSeconds float64) (*ResumeResolution, error) {
	if r, err := immediateResolve(sessionID); err != nil {
		return nil, err
	} else if r != nil {
		return r, nil
	}

	if waitSeconds <= 0 {
		return nil, wraperr.New(wraperr.ESwitchTargetMissing, "no known resume id for session "+sessionID)
	}

	deadline := time.Now().Add(time.Duration(waitSeconds * float64(time.Second)))
	for time.Now().Before(deadline) {
		time.Sleep(resumePollInterval)

		link, err := db.GetActiveLink(sessionID)
		if err != nil {
			return nil, err
		}
		if link != nil {
			return &ResumeResolution{ClaudeSessionID: link.ClaudeSessionID, Reason: "waited_active_link"}, nil
		}

		s, err := db.GetSession(sessionID)
		if err != nil {
			return nil, err
		}
		if s != nil && s.LastClaudeSessionID != nil && *s.LastClaudeSessionID != "" {
			return &ResumeResolution{ClaudeSessionID: *s.LastClaudeSessionID, Reason: "waited_cached"}, nil
		}
	}

	return nil, wraperr.New(wraperr.ESwitchTargetMissing, "timed out waiting for a resume id for session "+sessionID)
}

// ResolveResumeID exports the precedence resolution above for callers
// outside this package: start-agent's share option and message's
// re-spawn path.
func ResolveResumeID(sessionID string, waitSeconds float64) (*ResumeResolution, error) {
	return resolveResumeID(sessionID, waitSeconds)
}

func immediateResolve(sessionID string) (*ResumeResolution, error) {
	link, err := db.GetActiveLink(sessionID)
	if err != nil {
		return nil, err
	}
	if link != nil {
		return &ResumeResolution{ClaudeSessionID: link.ClaudeSessionID, Reason: "active_link"}, nil
	}

	latest, err := db.GetMostRecentLink(sessionID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		return &ResumeResolution{ClaudeSessionID: latest.ClaudeSessionID, Reason: "latest_link"}, nil
	}

	s, err := db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if s != nil && s.LastClaudeSessionID != nil && *s.LastClaudeSessionID != "" {
		return &ResumeResolution{ClaudeSessionID: *s.LastClaudeSessionID, Reason: "cached"}, nil
	}

	return nil, nil
}
