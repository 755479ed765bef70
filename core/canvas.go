package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when no canvas exists for the given id.
// Callers distinguish a missing record from a transient store failure with
// errors.Is.
var ErrNotFound = errors.New("canvas not found")

type (
	// Canvas is a whiteboard document: who owns it, who it is shared with,
	// and the current drawn elements. The elements payload is opaque to the
	// server and stored as raw JSON.
	Canvas struct {
		ID        string          `json:"id"`
		Owner     string          `json:"owner"`
		Shared    []string        `json:"shared"`
		Elements  json.RawMessage `json:"elements,omitempty"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	// CanvasStore defines the persistence layer for canvases.
	CanvasStore interface {
		// FindID returns the canvas with the given id, or a wrapped
		// ErrNotFound if it does not exist.
		FindID(ctx context.Context, id string) (*Canvas, error)

		// Create stores a new canvas and returns its generated id.
		Create(ctx context.Context, canvas *Canvas) (string, error)

		// Save overwrites an existing canvas, preserving CreatedAt.
		Save(ctx context.Context, canvas *Canvas) error

		// UpdateElements rewrites only the elements payload of a canvas.
		// Returns a wrapped ErrNotFound if the record has vanished.
		UpdateElements(ctx context.Context, id string, elements json.RawMessage) error

		// List returns metadata for all canvases the user owns or is
		// shared on. The returned Canvas objects do not contain the
		// Elements field to keep the response light.
		List(ctx context.Context, userID string) ([]*Canvas, error)

		// Delete removes a canvas, ensuring it belongs to the owner.
		Delete(ctx context.Context, ownerID, id string) error
	}
)

// CanAccess reports whether the user is the owner or in the shared set.
func (c *Canvas) CanAccess(userID string) bool {
	if c.Owner == userID {
		return true
	}
	for _, shared := range c.Shared {
		if shared == userID {
			return true
		}
	}
	return false
}
