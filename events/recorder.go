// Package events implements the event recorder: every mutation to
// session state funnels through RecordSessionEvent, which writes a typed
// event to the store and appends the same payload as a JSON line to the
// session's on-disk log file.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/config"
	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/log"
)

// Well-known event kinds.
const (
	KindWrapperStart               = "wrapper.start"
	KindWrapperTuiSpawned          = "wrapper.tui.spawned"
	KindWrapperTuiExited           = "wrapper.tui.exited"
	KindWrapperCheckoutRequested   = "wrapper.checkout.requested"
	KindWrapperResumeSelected      = "wrapper.checkout.resume_selected"
	KindWrapperCheckoutActivated   = "wrapper.checkout.activated"
	KindWrapperCheckoutAlreadyOn   = "wrapper.checkout.already_active"
	KindWrapperRuntimeStopped      = "wrapper.checkout.runtime_stopped"
	KindWrapperFinalized           = "wrapper.finalized"
	KindAgentSessionCreated        = "agent.session.created"
	KindAgentRuntimeSpawned        = "agent.runtime.spawned"
	KindAgentRuntimeStatus         = "agent.runtime.status"
	KindAgentRuntimeMessage        = "agent.runtime.message"
	KindAgentRuntimeLog            = "agent.runtime.log"
	KindAgentRuntimeResult         = "agent.runtime.result"
	KindAgentRuntimeError          = "agent.runtime.error"
	KindAgentRuntimeDone           = "agent.runtime.done"
	KindAgentRuntimeClaudeSession  = "agent.runtime.claude-session"
	KindAgentRuntimeStderr         = "agent.runtime.stderr"
	KindAgentRuntimeProcessExited  = "agent.runtime.process.exited"
	KindAgentRuntimeProcessError   = "agent.runtime.process.error"
	KindAgentRuntimeRetry          = "agent.runtime.retry"
	KindAgentRuntimeRetryCancelled = "agent.runtime.retry.cancelled"
	KindAgentRuntimeUnknown        = "agent.runtime.event.unknown"
	KindAgentMessageSent           = "agent.message.sent"
	KindAgentMessageRuntimeStarted = "agent.message.runtime_started"
	KindAgentInterrupted           = "agent.interrupted"
	KindAgentUpdateDelivered       = "agent.update.delivered"
)

// Recorder serializes event recording per session: one goroutine per
// session processes events in the order its owning Lifecycle produced
// them, so two concurrent writers for the same session never interleave
// on disk.
type Recorder struct {
	mu     sync.Mutex
	queues map[string]chan queuedEvent
	wg     sync.WaitGroup
	logDir string
	closed bool
}

type queuedEvent struct {
	projectID *int64
	sessionID *string
	kind      string
	payload   any
}

// New returns a Recorder whose session logs are written directly under
// config.Get().ProjectsDir as <sessionId>.jsonl; the path has no
// per-project or sessions/ subdirectory.
func New() *Recorder {
	return &Recorder{
		queues: map[string]chan queuedEvent{},
		logDir: config.Get().ProjectsDir,
	}
}

// send enqueues ev for sessionID, creating the session's queue/drain
// goroutine on first use. The whole operation — including the channel
// write — runs under r.mu so it can never race with Close: either send
// completes before Close swaps out the queue map and closes channels, or
// it sees r.closed and is dropped, never sending on a channel Close is
// about to close.
func (r *Recorder) send(sessionID string, ev queuedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	ch, ok := r.queues[sessionID]
	if !ok {
		ch = make(chan queuedEvent, 256)
		r.queues[sessionID] = ch
		r.wg.Add(1)
		go r.drain(sessionID, ch)
	}
	ch <- ev
}

func (r *Recorder) drain(sessionID string, ch chan queuedEvent) {
	defer r.wg.Done()
	for ev := range ch {
		r.write(ev)
	}
}

const legacyTuiPrefix = "wrapper.tui."
const legacyClaudePrefix = "wrapper.claude."

// RecordSessionEvent inserts a typed event keyed to a session and mirrors
// it to <sessionId>.jsonl in the recorder's log directory
// (config.Get().ProjectsDir). A log-append failure is
// logged but never undoes the store insert. When config.Get().LegacyEventAliases
// is set, a wrapper.tui.* event is additionally recorded a second time
// under the wrapper.claude.* prefix with the same payload, for readers
// that still expect the older kind.
func (r *Recorder) RecordSessionEvent(projectID *int64, sessionID, kind string, payload any) {
	sid := sessionID
	r.send(sid, queuedEvent{projectID: projectID, sessionID: &sid, kind: kind, payload: payload})

	if alias, ok := legacyAliasKind(kind); ok {
		r.send(sid, queuedEvent{projectID: projectID, sessionID: &sid, kind: alias, payload: payload})
	}
}

func legacyAliasKind(kind string) (string, bool) {
	if !config.Get().LegacyEventAliases {
		return "", false
	}
	if !strings.HasPrefix(kind, legacyTuiPrefix) {
		return "", false
	}
	return legacyClaudePrefix + strings.TrimPrefix(kind, legacyTuiPrefix), true
}

// RecordProjectEvent records an event with no session association (e.g.
// wrapper.start before the root session exists). Project-scoped events are
// not ordered against any session queue.
func (r *Recorder) RecordProjectEvent(projectID int64, kind string, payload any) {
	r.write(queuedEvent{projectID: &projectID, kind: kind, payload: payload})
}

func (r *Recorder) write(ev queuedEvent) {
	payloadJSON, err := json.Marshal(ev.payload)
	if err != nil {
		log.Error().Err(err).Str("kind", ev.kind).Msg("failed to marshal event payload")
		return
	}
	pj := string(payloadJSON)

	id, err := db.InsertEvent(ev.projectID, ev.sessionID, ev.kind, &pj)
	if err != nil {
		// write() runs on a background goroutine; there is no caller to
		// propagate to, so this is the terminal handling.
		log.Error().Err(err).Str("kind", ev.kind).Msg("failed to insert event")
		return
	}

	if ev.sessionID != nil {
		if err := r.appendJSONL(*ev.sessionID, ev.kind, payloadJSON); err != nil {
			log.Warn().Err(err).Str("kind", ev.kind).Int64("eventId", id).Msg("failed to append event log line")
		}
	}
}

func (r *Recorder) appendJSONL(sessionID, kind string, payloadJSON []byte) error {
	path := filepath.Join(r.logDir, sessionID+".jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir session log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	line := struct {
		Timestamp string          `json:"timestamp"`
		Kind      string          `json:"kind"`
		Payload   json.RawMessage `json:"payload"`
	}{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Kind:      kind,
		Payload:   payloadJSON,
	}
	enc, err := json.Marshal(line)
	if err != nil {
		return err
	}
	_, err = f.Write(append(enc, '\n'))
	return err
}

// Close stops accepting new session events and waits for queues to drain.
// Any RecordSessionEvent call that arrives after Close has taken the lock
// is silently dropped rather than sent on a closed channel.
// RecordProjectEvent writes synchronously without a queue and is not
// affected by Close.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	queues := r.queues
	r.queues = map[string]chan queuedEvent{}
	r.mu.Unlock()

	for _, ch := range queues {
		close(ch)
	}
	r.wg.Wait()
}
