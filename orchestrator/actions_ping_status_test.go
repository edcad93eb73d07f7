package orchestrator

import (
	"testing"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/claude"
	"github.com/captaincrouton89/klaude-wrapper/config"
	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/events"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
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

	project, err := db.GetOrCreateProject(t.TempDir(), "hash-"+t.Name())
	if err != nil {
		t.Fatalf("GetOrCreateProject: %v", err)
	}

	recorder := events.New()
	runtimes := claude.NewRuntimeLifecycle(project.ID, recorder, nil)
	tui := claude.NewTuiLifecycle(claude.TuiConfig{}, "hash-"+t.Name(), "inst-"+t.Name(), project.ID, recorder, runtimes, func(int) {})

	return &Orchestrator{
		cfg:         &config.Config{},
		projectRoot: t.TempDir(),
		projectHash: "hash-" + t.Name(),
		project:     project,
		instance:    &db.Instance{InstanceID: "inst-" + t.Name(), ProjectID: project.ID},
		recorder:    recorder,
		tui:         tui,
		runtimes:    runtimes,
	}
}

func TestOrchestrator_Ping(t *testing.T) {
	o := newTestOrchestrator(t)

	result, err := o.Ping()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("expected a map result, got %T", result)
	}
	if pong, _ := m["pong"].(bool); !pong {
		t.Error("expected pong=true")
	}
	if _, err := time.Parse(time.RFC3339, m["timestamp"].(string)); err != nil {
		t.Errorf("expected an RFC3339 timestamp, got %v: %v", m["timestamp"], err)
	}
}

func TestOrchestrator_Status_NoCurrentSession(t *testing.T) {
	o := newTestOrchestrator(t)

	result, err := o.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	m := result.(map[string]any)

	if m["sessionId"] != "" {
		t.Errorf("expected empty sessionId with no TUI launched, got %v", m["sessionId"])
	}
	if m["switching"] != false {
		t.Errorf("expected switching=false, got %v", m["switching"])
	}
	if m["pendingSwitch"] != false {
		t.Errorf("expected pendingSwitch=false, got %v", m["pendingSwitch"])
	}
	if m["liveAgentRuntimeCount"] != 0 {
		t.Errorf("expected liveAgentRuntimeCount=0, got %v", m["liveAgentRuntimeCount"])
	}
	if m["projectHash"] != o.projectHash {
		t.Errorf("expected projectHash %s, got %v", o.projectHash, m["projectHash"])
	}
}
