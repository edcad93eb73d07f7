package workers

import (
	"errors"
	"testing"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/events"
)

func openTestDB(t *testing.T) {
	t.Helper()
	d, err := db.Open(db.Config{
		Path:         t.TempDir() + "/test.sqlite",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
}

func seedParentChild(t *testing.T) (projectID int64, parentID, childID string) {
	t.Helper()
	p, err := db.GetOrCreateProject(t.TempDir(), "hash-"+t.Name())
	if err != nil {
		t.Fatalf("GetOrCreateProject: %v", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	parentID = "parent-" + t.Name()
	childID = "child-" + t.Name()
	if err := db.CreateSession(db.Session{ID: parentID, ProjectID: p.ID, AgentType: "tui", Status: db.SessionStatusActive, CreatedAt: now}); err != nil {
		t.Fatalf("CreateSession parent: %v", err)
	}
	if err := db.CreateSession(db.Session{ID: childID, ProjectID: p.ID, ParentID: &parentID, AgentType: "general-purpose", Status: db.SessionStatusActive, CreatedAt: now}); err != nil {
		t.Fatalf("CreateSession child: %v", err)
	}
	return p.ID, parentID, childID
}

type fakeSender struct {
	calls []struct{ sessionID, prompt string }
	err   error
}

func (f *fakeSender) SendMessage(sessionID, prompt string) error {
	f.calls = append(f.calls, struct{ sessionID, prompt string }{sessionID, prompt})
	return f.err
}

func TestUpdateWatcher_PollOnceDeliversAndAcknowledges(t *testing.T) {
	openTestDB(t)
	projectID, parentID, childID := seedParentChild(t)

	if err := db.InsertAgentUpdate(childID, &parentID, "halfway done"); err != nil {
		t.Fatalf("InsertAgentUpdate: %v", err)
	}

	sender := &fakeSender{}
	w := NewUpdateWatcher(projectID, events.New(), sender, time.Hour)
	w.Track(parentID)

	w.pollOnce()

	if len(sender.calls) != 1 {
		t.Fatalf("expected 1 SendMessage call, got %d", len(sender.calls))
	}
	if sender.calls[0].sessionID != parentID {
		t.Errorf("expected delivery to parent %s, got %s", parentID, sender.calls[0].sessionID)
	}

	updates, err := db.ListUnacknowledgedUpdates(parentID)
	if err != nil {
		t.Fatalf("ListUnacknowledgedUpdates: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("expected update to be acknowledged, %d still pending", len(updates))
	}
}

func TestUpdateWatcher_PollOnceStillAcknowledgesWithNoLiveRuntime(t *testing.T) {
	openTestDB(t)
	projectID, parentID, childID := seedParentChild(t)

	if err := db.InsertAgentUpdate(childID, &parentID, "no parent runtime"); err != nil {
		t.Fatalf("InsertAgentUpdate: %v", err)
	}

	sender := &fakeSender{err: errors.New("no live runtime")}
	w := NewUpdateWatcher(projectID, events.New(), sender, time.Hour)
	w.Track(parentID)

	w.pollOnce()

	updates, err := db.ListUnacknowledgedUpdates(parentID)
	if err != nil {
		t.Fatalf("ListUnacknowledgedUpdates: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("expected update to be acknowledged even when delivery failed, %d still pending", len(updates))
	}
}

func TestUpdateWatcher_TrackIgnoresEmptySessionID(t *testing.T) {
	w := NewUpdateWatcher(1, events.New(), &fakeSender{}, time.Hour)
	w.Track("")
	if len(w.tracked) != 0 {
		t.Errorf("expected empty session id to be ignored, tracked=%v", w.tracked)
	}
}

func TestUpdateWatcher_StartStop(t *testing.T) {
	openTestDB(t)
	projectID, parentID, _ := seedParentChild(t)

	w := NewUpdateWatcher(projectID, events.New(), &fakeSender{}, 10*time.Millisecond)
	w.Track(parentID)
	w.Start()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for watcher to stop")
	}
}
