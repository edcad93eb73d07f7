package hooks

import (
	"bytes"
	"testing"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/db"
)

func openTestDB(t *testing.T) string {
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
	sessionID := "session-" + t.Name()
	now := time.Now().UTC().Format(time.RFC3339)
	if err := db.CreateSession(db.Session{ID: sessionID, ProjectID: p.ID, AgentType: "tui", Status: db.SessionStatusActive, CreatedAt: now}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sessionID
}

func withHookEnv(t *testing.T, sessionID string) {
	t.Helper()
	t.Setenv("KLAUDE_PROJECT_HASH", "hash-"+t.Name())
	t.Setenv("KLAUDE_INSTANCE_ID", "inst-"+t.Name())
	t.Setenv("KLAUDE_SESSION_ID", sessionID)
}

func TestRunSessionStart_CreatesLinkAndCachesOnSession(t *testing.T) {
	sessionID := openTestDB(t)
	withHookEnv(t, sessionID)

	stdin := bytes.NewBufferString(`{"session_id":"claude-abc","transcript_path":"/tmp/t.jsonl"}`)
	RunSessionStart(stdin)

	link, err := db.GetActiveLink(sessionID)
	if err != nil {
		t.Fatalf("GetActiveLink: %v", err)
	}
	if link == nil {
		t.Fatal("expected an active link to be created")
	}
	if link.ClaudeSessionID != "claude-abc" {
		t.Errorf("expected claudeSessionId claude-abc, got %s", link.ClaudeSessionID)
	}
	if link.Source != db.LinkSourceStartup {
		t.Errorf("expected source %s, got %s", db.LinkSourceStartup, link.Source)
	}

	s, err := db.GetSession(sessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if s.LastClaudeSessionID == nil || *s.LastClaudeSessionID != "claude-abc" {
		t.Error("expected session's lastClaudeSessionId to be cached")
	}
}

func TestRunSessionStart_ResumeSubtypeUsesResumeSource(t *testing.T) {
	sessionID := openTestDB(t)
	withHookEnv(t, sessionID)

	stdin := bytes.NewBufferString(`{"session_id":"claude-resumed","subtype":"resume"}`)
	RunSessionStart(stdin)

	link, err := db.GetActiveLink(sessionID)
	if err != nil {
		t.Fatalf("GetActiveLink: %v", err)
	}
	if link == nil || link.Source != db.LinkSourceResume {
		t.Fatalf("expected a resume-sourced link, got %v", link)
	}
}

func TestRunSessionStart_MissingPayloadSessionIDIsSwallowed(t *testing.T) {
	sessionID := openTestDB(t)
	withHookEnv(t, sessionID)

	stdin := bytes.NewBufferString(`{}`)
	RunSessionStart(stdin)

	link, err := db.GetActiveLink(sessionID)
	if err != nil {
		t.Fatalf("GetActiveLink: %v", err)
	}
	if link != nil {
		t.Errorf("expected no link created for a payload missing session_id, got %v", link)
	}
}

func TestRunSessionEnd_EndsActiveLink(t *testing.T) {
	sessionID := openTestDB(t)
	withHookEnv(t, sessionID)

	RunSessionStart(bytes.NewBufferString(`{"session_id":"claude-end-me"}`))
	RunSessionEnd(bytes.NewBufferString(`{"session_id":"claude-end-me"}`))

	link, err := db.GetActiveLink(sessionID)
	if err != nil {
		t.Fatalf("GetActiveLink: %v", err)
	}
	if link != nil {
		t.Errorf("expected link to be ended (no longer active), got %v", link)
	}
}

func TestRunSessionEnd_BlankPayloadIsSwallowed(t *testing.T) {
	openTestDB(t)
	RunSessionEnd(bytes.NewBuffer(nil))
}
