// Package hooks implements the out-of-band hook handlers invoked by the
// TUI binary itself, not by the orchestrator process: `session-start` and
// `session-end` run as short-lived separate processes, coordinating with
// the long-lived orchestrator purely through the shared database and the
// KLAUDE_* environment variables exported at TUI spawn (see
// claude/tui.go's LaunchForSession).
package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/log"
)

// Payload is the JSON body the TUI writes to the hook's stdin.
type Payload struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	Subtype        string `json:"subtype,omitempty"`
}

// Env is the set of KLAUDE_* variables the wrapper exports to the TUI;
// hooks read them from the process environment rather than from argv.
type Env struct {
	ProjectHash string
	InstanceID  string
	SessionID   string
}

func envFromProcess() Env {
	return Env{
		ProjectHash: os.Getenv("KLAUDE_PROJECT_HASH"),
		InstanceID:  os.Getenv("KLAUDE_INSTANCE_ID"),
		SessionID:   os.Getenv("KLAUDE_SESSION_ID"),
	}
}

// RunSessionStart handles the session-start hook: upsert a
// ClaudeSessionLink for (klaudeSessionId, payload.session_id) with source
// derived from the hook subtype, and cache the session's
// lastClaudeSessionId/lastTranscriptPath. It never returns a non-nil error
// to the caller's exit code — hook failures are logged and swallowed so a
// misbehaving hook never blocks the TUI the user is staring at.
func RunSessionStart(stdin io.Reader) {
	run("session-start", stdin, func(env Env, p Payload) error {
		if env.SessionID == "" || p.SessionID == "" {
			return fmt.Errorf("missing klaude session id or payload session_id")
		}
		source := db.LinkSourceStartup
		if p.Subtype == "resume" {
			source = db.LinkSourceResume
		}
		var transcript *string
		if p.TranscriptPath != "" {
			transcript = &p.TranscriptPath
		}
		if err := db.UpsertClaudeSessionLink(env.SessionID, p.SessionID, source, transcript); err != nil {
			return err
		}
		return db.UpdateSessionClaudeLink(env.SessionID, p.SessionID, transcript)
	})
}

// RunSessionEnd handles the session-end hook: mark the matching link
// ended (coalescing endedAt).
func RunSessionEnd(stdin io.Reader) {
	run("session-end", stdin, func(_ Env, p Payload) error {
		if p.SessionID == "" {
			return fmt.Errorf("missing payload session_id")
		}
		return db.EndClaudeSessionLink(p.SessionID)
	})
}

func run(name string, stdin io.Reader, fn func(Env, Payload) error) {
	env := envFromProcess()

	raw, err := io.ReadAll(stdin)
	if err != nil {
		log.Warn().Err(err).Str("hook", name).Msg("failed to read hook payload from stdin")
		return
	}

	var p Payload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Str("hook", name).Msg("failed to decode hook payload")
			return
		}
	}

	if err := fn(env, p); err != nil {
		log.Warn().Err(err).Str("hook", name).Str("klaudeSessionId", env.SessionID).Msg("hook handler failed")
	}
}
