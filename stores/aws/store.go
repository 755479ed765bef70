package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"
	"whiteboard-server/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
)

type s3Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a new S3-based store. Each canvas is a JSON object keyed
// by its id under the canvases/ prefix.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

func (s *s3Store) canvasKey(id string) (string, error) {
	// Sanitize the id to prevent path traversal; it must be a simple name.
	if id == "" || id == "." || id == ".." || path.Base(id) != id {
		return "", fmt.Errorf("invalid canvas id: must be a simple name")
	}
	return path.Join("canvases", id), nil
}

func (s *s3Store) FindID(ctx context.Context, id string) (*core.Canvas, error) {
	key, err := s.canvasKey(id)
	if err != nil {
		return nil, err
	}

	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get canvas %s: %v", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read canvas data: %v", err)
	}

	var canvas core.Canvas
	if err := json.Unmarshal(data, &canvas); err != nil {
		return nil, fmt.Errorf("failed to unmarshal canvas data: %v", err)
	}
	return &canvas, nil
}

func (s *s3Store) Create(ctx context.Context, canvas *core.Canvas) (string, error) {
	if canvas.Owner == "" {
		return "", fmt.Errorf("canvas owner cannot be empty")
	}

	stored := *canvas
	stored.ID = ulid.Make().String()
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if err := s.put(ctx, &stored); err != nil {
		return "", err
	}
	return stored.ID, nil
}

func (s *s3Store) Save(ctx context.Context, canvas *core.Canvas) error {
	if canvas.ID == "" {
		return fmt.Errorf("canvas ID cannot be empty for save operation")
	}

	stored := *canvas
	// Preserve CreatedAt on update.
	if stored.CreatedAt.IsZero() {
		if existing, err := s.FindID(ctx, canvas.ID); err == nil {
			stored.CreatedAt = existing.CreatedAt
		} else {
			stored.CreatedAt = time.Now()
		}
	}
	stored.UpdatedAt = time.Now()

	return s.put(ctx, &stored)
}

func (s *s3Store) UpdateElements(ctx context.Context, id string, elements json.RawMessage) error {
	canvas, err := s.FindID(ctx, id)
	if err != nil {
		return err
	}

	canvas.Elements = elements
	canvas.UpdatedAt = time.Now()
	return s.put(ctx, canvas)
}

func (s *s3Store) List(ctx context.Context, userID string) ([]*core.Canvas, error) {
	output, err := s.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("canvases/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list canvases: %v", err)
	}

	canvases := make([]*core.Canvas, 0, len(output.Contents))
	for _, object := range output.Contents {
		resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    object.Key,
		})
		if err != nil {
			log.Printf("warn: failed to get object %s: %v", *object.Key, err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.Printf("warn: failed to read object body %s: %v", *object.Key, err)
			continue
		}

		var canvas core.Canvas
		if err := json.Unmarshal(data, &canvas); err != nil {
			log.Printf("warn: failed to unmarshal canvas %s: %v", *object.Key, err)
			continue
		}
		if !canvas.CanAccess(userID) {
			continue
		}

		// For list view, the elements blob is omitted.
		canvas.Elements = nil
		canvases = append(canvases, &canvas)
	}

	return canvases, nil
}

func (s *s3Store) Delete(ctx context.Context, ownerID, id string) error {
	canvas, err := s.FindID(ctx, id)
	if err != nil {
		return err
	}
	if canvas.Owner != ownerID {
		// Not leaking existence to non-owners.
		return fmt.Errorf("canvas with id %s: %w", id, core.ErrNotFound)
	}

	key, err := s.canvasKey(id)
	if err != nil {
		return err
	}
	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete canvas %s: %v", id, err)
	}
	return nil
}

func (s *s3Store) put(ctx context.Context, canvas *core.Canvas) error {
	key, err := s.canvasKey(canvas.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(canvas)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas: %v", err)
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to save canvas %s: %v", canvas.ID, err)
	}
	return nil
}
