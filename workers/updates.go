// Package workers holds background supervisors that run for the lifetime
// of an orchestrator instance.
package workers

import (
	"sync"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/events"
	"github.com/captaincrouton89/klaude-wrapper/log"
)

// MessageSender delivers forwarded update text into a parent session's
// live runtime. It is satisfied by *claude.RuntimeLifecycle.
type MessageSender interface {
	SendMessage(sessionID, prompt string) error
}

// UpdateWatcher is the optional AgentUpdateWatcher: it polls
// agent_updates for sessions known to have children, forwards unacknowledged
// "[UPDATE] ..." text to the parent's live native runtime when one exists,
// and always records delivery as an event before acknowledging the row.
type UpdateWatcher struct {
	projectID int64
	recorder  *events.Recorder
	runtimes  MessageSender
	interval  time.Duration

	mu      sync.Mutex
	tracked map[string]bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewUpdateWatcher constructs a watcher polling every interval (defaulting
// to 2s, matching the checkout/resume poll cadence elsewhere in this
// package's sibling, resume.go's resumePollInterval, scaled up since
// updates are lower-urgency than a resume id).
func NewUpdateWatcher(projectID int64, recorder *events.Recorder, runtimes MessageSender, interval time.Duration) *UpdateWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &UpdateWatcher{
		projectID: projectID,
		recorder:  recorder,
		runtimes:  runtimes,
		interval:  interval,
		tracked:   map[string]bool{},
		stopChan:  make(chan struct{}),
	}
}

// Track registers parentSessionID as a session whose children's updates
// should be polled. Called by start-agent whenever a new child session is
// created (the parent may not have had any children before this).
func (w *UpdateWatcher) Track(parentSessionID string) {
	if parentSessionID == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked[parentSessionID] = true
}

// Start begins the polling loop.
func (w *UpdateWatcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop halts the polling loop and waits for it to exit.
func (w *UpdateWatcher) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

func (w *UpdateWatcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.pollOnce()
		case <-w.stopChan:
			return
		}
	}
}

func (w *UpdateWatcher) pollOnce() {
	w.mu.Lock()
	parents := make([]string, 0, len(w.tracked))
	for p := range w.tracked {
		parents = append(parents, p)
	}
	w.mu.Unlock()

	for _, parentID := range parents {
		updates, err := db.ListUnacknowledgedUpdates(parentID)
		if err != nil {
			log.Warn().Err(err).Str("parent", parentID).Msg("failed to list unacknowledged agent updates")
			continue
		}
		for _, u := range updates {
			w.deliver(parentID, u)
		}
	}
}

func (w *UpdateWatcher) deliver(parentID string, u db.AgentUpdate) {
	if w.runtimes != nil {
		if err := w.runtimes.SendMessage(parentID, "[update from "+u.SessionID+"] "+u.UpdateText); err != nil {
			log.Debug().Err(err).Str("parent", parentID).Msg("parent has no live native runtime, recording update without delivery")
		}
	}

	w.recorder.RecordSessionEvent(&w.projectID, parentID, events.KindAgentUpdateDelivered, map[string]any{
		"fromSessionId": u.SessionID,
		"updateId":      u.ID,
		"text":          u.UpdateText,
	})

	if err := db.AcknowledgeAgentUpdate(u.ID); err != nil {
		log.Warn().Err(err).Int64("updateId", u.ID).Msg("failed to acknowledge agent update")
	}
}
