package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
	"whiteboard-server/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	canvasTableStmt := `
	CREATE TABLE IF NOT EXISTS canvases (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		shared TEXT NOT NULL DEFAULT '[]',
		elements BLOB,
		created_at DATETIME,
		updated_at DATETIME
	);`
	if _, err = db.Exec(canvasTableStmt); err != nil {
		log.Fatalf("failed to create canvases table: %v", err)
	}

	return &sqliteStore{db}
}

func (s *sqliteStore) FindID(ctx context.Context, id string) (*core.Canvas, error) {
	log := logrus.WithField("canvas_id", id)
	log.Debug("Retrieving canvas by ID")

	canvas := core.Canvas{ID: id}
	var shared string
	err := s.db.QueryRowContext(ctx,
		"SELECT owner, shared, elements, created_at, updated_at FROM canvases WHERE id = ?", id).
		Scan(&canvas.Owner, &shared, &canvas.Elements, &canvas.CreatedAt, &canvas.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn("Canvas with specified ID not found")
			return nil, fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to retrieve canvas")
		return nil, err
	}

	if err := json.Unmarshal([]byte(shared), &canvas.Shared); err != nil {
		return nil, fmt.Errorf("failed to decode shared users for canvas %s: %v", id, err)
	}

	log.Debug("Canvas retrieved successfully")
	return &canvas, nil
}

func (s *sqliteStore) Create(ctx context.Context, canvas *core.Canvas) (string, error) {
	if canvas.Owner == "" {
		return "", fmt.Errorf("canvas owner cannot be empty")
	}

	id := ulid.Make().String()
	now := time.Now()
	shared, err := json.Marshal(sharedOrEmpty(canvas.Shared))
	if err != nil {
		return "", fmt.Errorf("failed to encode shared users: %v", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO canvases (id, owner, shared, elements, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, canvas.Owner, string(shared), []byte(canvas.Elements), now, now)
	if err != nil {
		logrus.WithError(err).Error("Failed to create canvas")
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"canvas_id": id,
		"owner":     canvas.Owner,
	}).Info("Canvas created successfully")
	return id, nil
}

func (s *sqliteStore) Save(ctx context.Context, canvas *core.Canvas) error {
	if canvas.ID == "" {
		return fmt.Errorf("canvas ID cannot be empty for save operation")
	}

	shared, err := json.Marshal(sharedOrEmpty(canvas.Shared))
	if err != nil {
		return fmt.Errorf("failed to encode shared users: %v", err)
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		"UPDATE canvases SET owner = ?, shared = ?, elements = ?, updated_at = ? WHERE id = ?",
		canvas.Owner, string(shared), []byte(canvas.Elements), now, canvas.ID)
	if err != nil {
		logrus.WithError(err).Error("Failed to save canvas")
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO canvases (id, owner, shared, elements, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			canvas.ID, canvas.Owner, string(shared), []byte(canvas.Elements), now, now)
		if err != nil {
			logrus.WithError(err).Error("Failed to insert canvas on save")
			return err
		}
	}

	logrus.WithField("canvas_id", canvas.ID).Info("Canvas saved successfully")
	return nil
}

func (s *sqliteStore) UpdateElements(ctx context.Context, id string, elements json.RawMessage) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE canvases SET elements = ?, updated_at = ? WHERE id = ?",
		[]byte(elements), time.Now(), id)
	if err != nil {
		logrus.WithError(err).Error("Failed to update canvas elements")
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
	}

	logrus.WithFields(logrus.Fields{
		"canvas_id":   id,
		"data_length": len(elements),
	}).Debug("Canvas elements updated")
	return nil
}

func (s *sqliteStore) List(ctx context.Context, userID string) ([]*core.Canvas, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner, shared, created_at, updated_at FROM canvases ORDER BY updated_at DESC")
	if err != nil {
		logrus.WithError(err).Error("Failed to list canvases")
		return nil, err
	}
	defer rows.Close()

	canvases := make([]*core.Canvas, 0)
	for rows.Next() {
		canvas := core.Canvas{}
		var shared string
		if err := rows.Scan(&canvas.ID, &canvas.Owner, &shared, &canvas.CreatedAt, &canvas.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(shared), &canvas.Shared); err != nil {
			return nil, fmt.Errorf("failed to decode shared users for canvas %s: %v", canvas.ID, err)
		}
		if canvas.CanAccess(userID) {
			canvases = append(canvases, &canvas)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logrus.WithField("user_id", userID).Infof("Listed %d canvases", len(canvases))
	return canvases, nil
}

func (s *sqliteStore) Delete(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM canvases WHERE id = ? AND owner = ?", id, ownerID)
	if err != nil {
		logrus.WithError(err).Error("Failed to delete canvas")
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
	}

	logrus.WithFields(logrus.Fields{"owner": ownerID, "canvas_id": id}).Info("Canvas deleted successfully")
	return nil
}

func sharedOrEmpty(shared []string) []string {
	if shared == nil {
		return []string{}
	}
	return shared
}
