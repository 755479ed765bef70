package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"whiteboard-server/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// memStore implements CanvasStore with a process-local map. The default
// backend; contents are lost on restart.
type memStore struct {
	mu       sync.RWMutex
	canvases map[string]*core.Canvas
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{canvases: make(map[string]*core.Canvas)}
}

func (s *memStore) FindID(ctx context.Context, id string) (*core.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithField("canvas_id", id)
	canvas, ok := s.canvases[id]
	if !ok {
		log.Warn("Canvas with specified ID not found")
		return nil, fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
	}

	copied := *canvas
	copied.Shared = append([]string(nil), canvas.Shared...)
	log.Debug("Canvas retrieved successfully")
	return &copied, nil
}

func (s *memStore) Create(ctx context.Context, canvas *core.Canvas) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if canvas.Owner == "" {
		return "", fmt.Errorf("canvas owner cannot be empty")
	}

	id := ulid.Make().String()
	now := time.Now()
	stored := *canvas
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.canvases[id] = &stored

	logrus.WithFields(logrus.Fields{
		"canvas_id": id,
		"owner":     canvas.Owner,
	}).Info("Canvas created successfully")
	return id, nil
}

func (s *memStore) Save(ctx context.Context, canvas *core.Canvas) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if canvas.ID == "" {
		return fmt.Errorf("canvas ID cannot be empty for save operation")
	}

	now := time.Now()
	stored := *canvas
	if existing, ok := s.canvases[canvas.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.canvases[canvas.ID] = &stored

	logrus.WithField("canvas_id", canvas.ID).Info("Canvas saved successfully")
	return nil
}

func (s *memStore) UpdateElements(ctx context.Context, id string, elements json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	canvas, ok := s.canvases[id]
	if !ok {
		return fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
	}

	canvas.Elements = elements
	canvas.UpdatedAt = time.Now()
	logrus.WithFields(logrus.Fields{
		"canvas_id":   id,
		"data_length": len(elements),
	}).Debug("Canvas elements updated")
	return nil
}

func (s *memStore) List(ctx context.Context, userID string) ([]*core.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canvases := make([]*core.Canvas, 0)
	for _, canvas := range s.canvases {
		if !canvas.CanAccess(userID) {
			continue
		}
		// Copy without the elements payload for the list view.
		canvases = append(canvases, &core.Canvas{
			ID:        canvas.ID,
			Owner:     canvas.Owner,
			Shared:    append([]string(nil), canvas.Shared...),
			CreatedAt: canvas.CreatedAt,
			UpdatedAt: canvas.UpdatedAt,
		})
	}

	logrus.WithField("user_id", userID).Infof("Listed %d canvases", len(canvases))
	return canvases, nil
}

func (s *memStore) Delete(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"owner": ownerID, "canvas_id": id})
	canvas, ok := s.canvases[id]
	if !ok {
		log.Warn("Canvas not found for deletion")
		return fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
	}
	if canvas.Owner != ownerID {
		// Not leaking existence to non-owners.
		return fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
	}

	delete(s.canvases, id)
	log.Info("Canvas deleted successfully")
	return nil
}
