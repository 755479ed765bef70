package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"whiteboard-server/core"
)

func TestNewStore(t *testing.T) {
	if NewStore() == nil {
		t.Fatal("NewStore() returned nil")
	}
}

func TestCreate_AssignsULID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Canvas{Owner: "user-a", Elements: json.RawMessage(`[]`)})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if len(id) != 26 {
		t.Errorf("Create() returned invalid ID length: got %d, want 26", len(id))
	}
}

func TestCreate_RequiresOwner(t *testing.T) {
	store := NewStore()

	if _, err := store.Create(context.Background(), &core.Canvas{}); err == nil {
		t.Error("Create() accepted a canvas without an owner")
	}
}

func TestFindID_NotFound(t *testing.T) {
	store := NewStore()

	_, err := store.FindID(context.Background(), "nonexistent")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FindID() error = %v, want ErrNotFound", err)
	}
}

func TestFindID_ReturnsCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Canvas{Owner: "user-a", Shared: []string{"user-b"}})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	canvas, err := store.FindID(ctx, id)
	if err != nil {
		t.Fatalf("FindID() failed: %v", err)
	}
	canvas.Shared[0] = "mutated"

	again, err := store.FindID(ctx, id)
	if err != nil {
		t.Fatalf("FindID() failed: %v", err)
	}
	if again.Shared[0] != "user-b" {
		t.Error("mutating a returned canvas leaked into the store")
	}
}

func TestUpdateElements(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Canvas{Owner: "user-a", Elements: json.RawMessage(`[]`)})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	payload := json.RawMessage(`[{"type":"rect"}]`)
	if err := store.UpdateElements(ctx, id, payload); err != nil {
		t.Fatalf("UpdateElements() failed: %v", err)
	}

	canvas, err := store.FindID(ctx, id)
	if err != nil {
		t.Fatalf("FindID() failed: %v", err)
	}
	if string(canvas.Elements) != string(payload) {
		t.Errorf("elements = %s, want %s", canvas.Elements, payload)
	}
	if !canvas.UpdatedAt.After(canvas.CreatedAt) && !canvas.UpdatedAt.Equal(canvas.CreatedAt) {
		t.Error("UpdatedAt was not refreshed")
	}
}

func TestUpdateElements_NotFound(t *testing.T) {
	store := NewStore()

	err := store.UpdateElements(context.Background(), "nonexistent", json.RawMessage(`[]`))
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateElements() error = %v, want ErrNotFound", err)
	}
}

func TestSave_PreservesCreatedAt(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Canvas{Owner: "user-a"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	original, err := store.FindID(ctx, id)
	if err != nil {
		t.Fatalf("FindID() failed: %v", err)
	}

	original.Shared = []string{"user-b"}
	if err := store.Save(ctx, original); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	saved, err := store.FindID(ctx, id)
	if err != nil {
		t.Fatalf("FindID() failed: %v", err)
	}
	if !saved.CreatedAt.Equal(original.CreatedAt) {
		t.Error("Save() changed CreatedAt")
	}
	if len(saved.Shared) != 1 || saved.Shared[0] != "user-b" {
		t.Errorf("shared set = %v, want [user-b]", saved.Shared)
	}
}

func TestList_OwnerAndShared(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, &core.Canvas{Owner: "user-a", Elements: json.RawMessage(`[1]`)}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := store.Create(ctx, &core.Canvas{Owner: "user-b", Shared: []string{"user-a"}}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := store.Create(ctx, &core.Canvas{Owner: "user-c"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	canvases, err := store.List(ctx, "user-a")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(canvases) != 2 {
		t.Errorf("List() returned %d canvases, want 2", len(canvases))
	}
	for _, canvas := range canvases {
		if canvas.Elements != nil {
			t.Errorf("List() leaked elements for canvas %s", canvas.ID)
		}
	}
}

func TestDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Canvas{Owner: "user-a"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// A non-owner delete is reported as not found.
	if err := store.Delete(ctx, "user-b", id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Delete() by non-owner error = %v, want ErrNotFound", err)
	}

	if err := store.Delete(ctx, "user-a", id); err != nil {
		t.Fatalf("Delete() by owner failed: %v", err)
	}
	if _, err := store.FindID(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Error("canvas still present after delete")
	}
}

func TestStore_Concurrency(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Canvas{Owner: "user-a", Elements: json.RawMessage(`[]`)})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			payload := json.RawMessage(fmt.Sprintf(`[%d]`, index))
			if err := store.UpdateElements(ctx, id, payload); err != nil {
				t.Errorf("UpdateElements() failed: %v", err)
			}
			if _, err := store.FindID(ctx, id); err != nil {
				t.Errorf("FindID() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
}
