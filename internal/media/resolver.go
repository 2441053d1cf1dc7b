package media

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pders01/fwrdpost/internal/model"
)

// Uploader pushes media bytes to the social network.
type Uploader interface {
	Upload(ctx context.Context, tok model.Token, owner, filename, contentType string, data []byte) (string, error)
}

// Resolver turns a stored media id into an uploaded media handle.
type Resolver struct {
	objects  ObjectStore
	detector *TypeDetector
	uploader Uploader
}

func NewResolver(objects ObjectStore, detector *TypeDetector, uploader Uploader) *Resolver {
	return &Resolver{objects: objects, detector: detector, uploader: uploader}
}

func (r *Resolver) Resolve(ctx context.Context, tok model.Token, userID string, mediaID uuid.UUID) (string, error) {
	key := mediaID.String()

	data, err := r.objects.Get(ctx, userID, key)
	if err != nil {
		return "", err
	}

	det, err := r.detector.Check(key, data)
	if err != nil {
		return "", err
	}

	handle, err := r.uploader.Upload(ctx, tok, userID, key, det.ContentType, data)
	if err != nil {
		return "", fmt.Errorf("uploading media %s: %w", key, err)
	}
	return handle, nil
}
