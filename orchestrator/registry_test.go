package orchestrator

import (
	"os"
	"testing"
)

func TestProjectHash_StableAndLength(t *testing.T) {
	h1 := ProjectHash("/home/user/project")
	h2 := ProjectHash("/home/user/project")
	if h1 != h2 {
		t.Errorf("expected ProjectHash to be deterministic, got %s vs %s", h1, h2)
	}
	if len(h1) != 24 {
		t.Errorf("expected a 24-char hash, got %d chars: %s", len(h1), h1)
	}
	if ProjectHash("/home/user/other") == h1 {
		t.Error("expected different roots to hash differently")
	}
}

func TestRegisterUnregisterInstance(t *testing.T) {
	home := t.TempDir()
	hash := "projhash"

	if err := RegisterInstance(home, hash, registryEntry{InstanceID: "a", Pid: os.Getpid(), SocketPath: "/tmp/a.sock", StartedAt: "now"}); err != nil {
		t.Fatalf("RegisterInstance a: %v", err)
	}
	if err := RegisterInstance(home, hash, registryEntry{InstanceID: "b", Pid: 999999, SocketPath: "/tmp/b.sock", StartedAt: "now"}); err != nil {
		t.Fatalf("RegisterInstance b: %v", err)
	}

	entries, err := readRegistry(registryPath(home, hash))
	if err != nil {
		t.Fatalf("readRegistry: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if err := UnregisterInstance(home, hash, "a"); err != nil {
		t.Fatalf("UnregisterInstance: %v", err)
	}
	entries, err = readRegistry(registryPath(home, hash))
	if err != nil {
		t.Fatalf("readRegistry: %v", err)
	}
	if len(entries) != 1 || entries[0].InstanceID != "b" {
		t.Fatalf("expected only entry b to remain, got %v", entries)
	}
}

func TestUnregisterInstance_MissingFileIsNoop(t *testing.T) {
	home := t.TempDir()
	if err := UnregisterInstance(home, "nonexistent", "whatever"); err != nil {
		t.Errorf("expected no error for a missing registry file, got %v", err)
	}
}

func TestPruneRegistry_DropsDeadPids(t *testing.T) {
	home := t.TempDir()
	hash := "projhash"

	livePid := os.Getpid()
	deadPid := 999999

	if err := RegisterInstance(home, hash, registryEntry{InstanceID: "live", Pid: livePid, SocketPath: "/tmp/live.sock", StartedAt: "now"}); err != nil {
		t.Fatalf("RegisterInstance live: %v", err)
	}
	if err := RegisterInstance(home, hash, registryEntry{InstanceID: "dead", Pid: deadPid, SocketPath: "/tmp/dead.sock", StartedAt: "now"}); err != nil {
		t.Fatalf("RegisterInstance dead: %v", err)
	}

	if err := PruneRegistry(home, hash); err != nil {
		t.Fatalf("PruneRegistry: %v", err)
	}

	entries, err := readRegistry(registryPath(home, hash))
	if err != nil {
		t.Fatalf("readRegistry: %v", err)
	}
	if len(entries) != 1 || entries[0].InstanceID != "live" {
		t.Fatalf("expected only the live instance to survive pruning, got %v", entries)
	}
}

func TestPruneRegistry_MissingFileIsNoop(t *testing.T) {
	home := t.TempDir()
	if err := PruneRegistry(home, "nonexistent"); err != nil {
		t.Errorf("expected no error pruning a registry that was never written, got %v", err)
	}
}
