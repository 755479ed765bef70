package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
	"whiteboard-server/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based store. Each canvas is a JSON file
// named by its id under basePath.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

// canvasPath sanitizes the id to prevent path traversal; ids are simple
// names, never paths.
func (s *fsStore) canvasPath(id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return "", fmt.Errorf("invalid canvas id: must be a simple name")
	}
	return filepath.Join(s.basePath, id+".json"), nil
}

func (s *fsStore) FindID(ctx context.Context, id string) (*core.Canvas, error) {
	path, err := s.canvasPath(id)
	if err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{"canvas_id": id, "file_path": path})
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Canvas with specified ID not found")
			return nil, fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read canvas file")
		return nil, err
	}

	var canvas core.Canvas
	if err := json.Unmarshal(data, &canvas); err != nil {
		return nil, fmt.Errorf("failed to unmarshal canvas %s: %v", id, err)
	}

	log.Debug("Canvas retrieved successfully")
	return &canvas, nil
}

func (s *fsStore) Create(ctx context.Context, canvas *core.Canvas) (string, error) {
	if canvas.Owner == "" {
		return "", fmt.Errorf("canvas owner cannot be empty")
	}

	stored := *canvas
	stored.ID = ulid.Make().String()
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := s.write(&stored); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"canvas_id": stored.ID,
		"owner":     stored.Owner,
	}).Info("Canvas created successfully")
	return stored.ID, nil
}

func (s *fsStore) Save(ctx context.Context, canvas *core.Canvas) error {
	if canvas.ID == "" {
		return fmt.Errorf("canvas ID cannot be empty for save operation")
	}

	stored := *canvas
	if existing, err := s.FindID(ctx, canvas.ID); err == nil {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.UpdatedAt = time.Now()

	if err := s.write(&stored); err != nil {
		return err
	}
	logrus.WithField("canvas_id", canvas.ID).Info("Canvas saved successfully")
	return nil
}

func (s *fsStore) UpdateElements(ctx context.Context, id string, elements json.RawMessage) error {
	canvas, err := s.FindID(ctx, id)
	if err != nil {
		return err
	}

	canvas.Elements = elements
	canvas.UpdatedAt = time.Now()
	if err := s.write(canvas); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"canvas_id":   id,
		"data_length": len(elements),
	}).Debug("Canvas elements updated")
	return nil
}

func (s *fsStore) List(ctx context.Context, userID string) ([]*core.Canvas, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list canvases: %v", err)
	}

	canvases := make([]*core.Canvas, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.basePath, entry.Name()))
		if err != nil {
			logrus.WithError(err).Warnf("Failed to read canvas file %s", entry.Name())
			continue
		}
		var canvas core.Canvas
		if err := json.Unmarshal(data, &canvas); err != nil {
			logrus.WithError(err).Warnf("Failed to unmarshal canvas file %s", entry.Name())
			continue
		}
		if !canvas.CanAccess(userID) {
			continue
		}
		canvas.Elements = nil
		canvases = append(canvases, &canvas)
	}

	logrus.WithField("user_id", userID).Infof("Listed %d canvases", len(canvases))
	return canvases, nil
}

func (s *fsStore) Delete(ctx context.Context, ownerID, id string) error {
	canvas, err := s.FindID(ctx, id)
	if err != nil {
		return err
	}
	if canvas.Owner != ownerID {
		// Not leaking existence to non-owners.
		return fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
	}

	path, err := s.canvasPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete canvas %s: %v", id, err)
	}

	logrus.WithFields(logrus.Fields{"owner": ownerID, "canvas_id": id}).Info("Canvas deleted successfully")
	return nil
}

func (s *fsStore) write(canvas *core.Canvas) error {
	path, err := s.canvasPath(canvas.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(canvas)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas %s: %v", canvas.ID, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write canvas %s: %v", canvas.ID, err)
	}
	return nil
}
