package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSnapshot_Empty(t *testing.T) {
	registry := NewRegistry(0)

	if _, ok := registry.Snapshot("canvas-1"); ok {
		t.Error("Snapshot() returned ok for an unknown canvas")
	}
}

func TestSetSnapshot_Overwrites(t *testing.T) {
	registry := NewRegistry(0)

	first := json.RawMessage(`[{"type":"line"}]`)
	second := json.RawMessage(`[{"type":"line"},{"type":"rect"}]`)

	registry.SetSnapshot("canvas-1", first)
	registry.SetSnapshot("canvas-1", second)

	got, ok := registry.Snapshot("canvas-1")
	if !ok {
		t.Fatal("Snapshot() not found after SetSnapshot()")
	}
	if !bytes.Equal(got, second) {
		t.Errorf("Snapshot mismatch: got %s, want %s", got, second)
	}
}

func TestSetSnapshot_Idempotent(t *testing.T) {
	registry := NewRegistry(0)

	payload := json.RawMessage(`[{"type":"line"}]`)
	registry.SetSnapshot("canvas-1", payload)
	registry.SetSnapshot("canvas-1", payload)

	got, ok := registry.Snapshot("canvas-1")
	if !ok {
		t.Fatal("Snapshot() not found after duplicate SetSnapshot()")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Snapshot mismatch after duplicate set: got %s, want %s", got, payload)
	}
}

func TestSnapshots_IndependentPerCanvas(t *testing.T) {
	registry := NewRegistry(0)

	registry.SetSnapshot("canvas-1", json.RawMessage(`["a"]`))
	registry.SetSnapshot("canvas-2", json.RawMessage(`["b"]`))

	got1, _ := registry.Snapshot("canvas-1")
	got2, _ := registry.Snapshot("canvas-2")

	if string(got1) != `["a"]` {
		t.Errorf("canvas-1 snapshot mismatch: got %s", got1)
	}
	if string(got2) != `["b"]` {
		t.Errorf("canvas-2 snapshot mismatch: got %s", got2)
	}
}

func TestMembers_AddRemove(t *testing.T) {
	registry := NewRegistry(0)

	registry.AddMember("canvas-1")
	registry.AddMember("canvas-1")
	if got := registry.Members("canvas-1"); got != 2 {
		t.Errorf("Members() = %d, want 2", got)
	}

	registry.RemoveMember("canvas-1")
	if got := registry.Members("canvas-1"); got != 1 {
		t.Errorf("Members() = %d, want 1", got)
	}

	// Removing below zero must not underflow.
	registry.RemoveMember("canvas-1")
	registry.RemoveMember("canvas-1")
	if got := registry.Members("canvas-1"); got != 0 {
		t.Errorf("Members() = %d, want 0", got)
	}
}

func TestRemoveMember_UnknownCanvas(t *testing.T) {
	registry := NewRegistry(0)
	registry.RemoveMember("nonexistent")

	if got := registry.Members("nonexistent"); got != 0 {
		t.Errorf("Members() = %d, want 0", got)
	}
}

func TestEvictIdle(t *testing.T) {
	registry := NewRegistry(time.Minute)

	registry.SetSnapshot("idle-empty", json.RawMessage(`[]`))
	registry.SetSnapshot("idle-occupied", json.RawMessage(`[]`))
	registry.AddMember("idle-occupied")

	// Nothing is old enough yet.
	if n := registry.EvictIdle(time.Now()); n != 0 {
		t.Errorf("EvictIdle() evicted %d entries too early", n)
	}

	future := time.Now().Add(2 * time.Minute)
	if n := registry.EvictIdle(future); n != 1 {
		t.Errorf("EvictIdle() = %d, want 1", n)
	}

	if _, ok := registry.Snapshot("idle-empty"); ok {
		t.Error("idle empty-room snapshot survived eviction")
	}
	if _, ok := registry.Snapshot("idle-occupied"); !ok {
		t.Error("occupied room snapshot was evicted")
	}
}

func TestSetSnapshot_RefreshesIdleClock(t *testing.T) {
	registry := NewRegistry(time.Minute)

	registry.SetSnapshot("canvas-1", json.RawMessage(`[]`))
	// A recent write keeps the entry alive even with no members.
	if n := registry.EvictIdle(time.Now().Add(30 * time.Second)); n != 0 {
		t.Errorf("EvictIdle() evicted %d recently active entries", n)
	}
}

func TestRegistry_Concurrency(t *testing.T) {
	registry := NewRegistry(0)
	numWriters := 50

	var wg sync.WaitGroup
	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			canvasID := fmt.Sprintf("canvas-%d", index%5)
			registry.AddMember(canvasID)
			registry.SetSnapshot(canvasID, json.RawMessage(`[{"type":"line"}]`))
			registry.Snapshot(canvasID)
			registry.RemoveMember(canvasID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		canvasID := fmt.Sprintf("canvas-%d", i)
		if got := registry.Members(canvasID); got != 0 {
			t.Errorf("Members(%s) = %d after balanced add/remove, want 0", canvasID, got)
		}
		if _, ok := registry.Snapshot(canvasID); !ok {
			t.Errorf("Snapshot(%s) missing after concurrent writes", canvasID)
		}
	}
}

func TestStartSweeper_Stops(t *testing.T) {
	registry := NewRegistry(time.Millisecond)
	stop := registry.StartSweeper(5 * time.Millisecond)

	registry.SetSnapshot("canvas-1", json.RawMessage(`[]`))
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := registry.Snapshot("canvas-1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not evict idle entry in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Stopping twice must be safe.
	stop()
	stop()
}
