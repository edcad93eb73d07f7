package events

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/config"
	"github.com/captaincrouton89/klaude-wrapper/db"
)

// TestMain sets the config fields directly: the config singleton is
// already loaded by the db and log package init functions before TestMain
// runs, so environment variables set here would never be read.
func TestMain(m *testing.M) {
	cfg := config.Get()
	cfg.LegacyEventAliases = true
	cfg.ProjectsDir = filepath.Join(os.TempDir(), "klaude-events-test", "projects")
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) (projectID int64, sessionID string) {
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

	p, err := db.GetOrCreateProject(t.TempDir(), "hash-"+t.Name())
	if err != nil {
		t.Fatalf("GetOrCreateProject: %v", err)
	}
	sessionID = "session-" + t.Name()
	now := time.Now().UTC().Format(time.RFC3339)
	if err := db.CreateSession(db.Session{ID: sessionID, ProjectID: p.ID, AgentType: "tui", Status: db.SessionStatusActive, CreatedAt: now}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return p.ID, sessionID
}

func countEventsByKind(t *testing.T, projectID int64, sessionID, kind string) int {
	t.Helper()
	rows, err := db.GetDB().Query("SELECT COUNT(*) FROM events WHERE klaude_session_id = ? AND kind = ?", sessionID, kind)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var n int
	for rows.Next() {
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
	}
	return n
}

func TestRecordSessionEvent_EmitsLegacyClaudeAlias(t *testing.T) {
	projectID, sessionID := openTestDB(t)

	r := New()
	r.RecordSessionEvent(&projectID, sessionID, KindWrapperTuiSpawned, map[string]any{"pid": 123})
	r.Close()

	if n := countEventsByKind(t, projectID, sessionID, KindWrapperTuiSpawned); n != 1 {
		t.Errorf("expected 1 canonical wrapper.tui.spawned event, got %d", n)
	}
	if n := countEventsByKind(t, projectID, sessionID, "wrapper.claude.spawned"); n != 1 {
		t.Errorf("expected 1 wrapper.claude.spawned alias event, got %d", n)
	}
}

func TestRecordSessionEvent_NonTuiKindHasNoAlias(t *testing.T) {
	projectID, sessionID := openTestDB(t)

	r := New()
	r.RecordSessionEvent(&projectID, sessionID, KindAgentSessionCreated, map[string]any{"agentType": "reviewer"})
	r.Close()

	if n := countEventsByKind(t, projectID, sessionID, KindAgentSessionCreated); n != 1 {
		t.Errorf("expected 1 agent.session.created event, got %d", n)
	}
	if n := countEventsByKind(t, projectID, sessionID, "wrapper.claude.session.created"); n != 0 {
		t.Errorf("expected no alias for a non-tui kind, got %d", n)
	}
}

func TestLegacyAliasKind(t *testing.T) {
	alias, ok := legacyAliasKind(KindWrapperCheckoutActivated)
	if !ok {
		t.Fatal("expected alias to be produced when LegacyEventAliases is set")
	}
	if alias != "wrapper.claude.checkout.activated" {
		t.Errorf("unexpected alias kind: %s", alias)
	}

	if _, ok := legacyAliasKind(KindAgentRuntimeDone); ok {
		t.Error("expected no alias for a non wrapper.tui.* kind")
	}
}
