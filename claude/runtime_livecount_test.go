package claude

import "testing"

func TestRuntimeLifecycle_LiveCount(t *testing.T) {
	r := NewRuntimeLifecycle(1, nil, nil)

	if got := r.LiveCount(); got != 0 {
		t.Fatalf("expected 0 live runtimes on a fresh lifecycle, got %d", got)
	}

	r.mu.Lock()
	r.procs["session-a"] = &trackedRuntime{kind: "native"}
	r.procs["session-b"] = &trackedRuntime{kind: "backend-a"}
	r.mu.Unlock()

	if got := r.LiveCount(); got != 2 {
		t.Fatalf("expected 2 live runtimes, got %d", got)
	}

	if kind, ok := r.HasLiveRuntime("session-a"); !ok || kind != "native" {
		t.Errorf("expected session-a to be tracked as native, got kind=%s ok=%v", kind, ok)
	}

	r.mu.Lock()
	delete(r.procs, "session-a")
	r.mu.Unlock()

	if got := r.LiveCount(); got != 1 {
		t.Fatalf("expected 1 live runtime after removal, got %d", got)
	}
}
