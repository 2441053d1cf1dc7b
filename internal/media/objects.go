package media

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pders01/fwrdpost/internal/config"
	"github.com/pders01/fwrdpost/internal/debuglog"
	"github.com/pders01/fwrdpost/internal/model"
)

// maxObjectSize caps how much of an object is read into memory.
const maxObjectSize = 512 << 20

// ObjectStore reads stored media. Each user's media lives in a bucket named
// after the user id, keyed by media id.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

type minioStore struct {
	client *minio.Client
}

type disabledStore struct{}

// NewObjectStore connects to the configured S3-compatible endpoint. With no
// endpoint configured every Get fails with model.ErrMediaUnavailable.
func NewObjectStore(cfg config.MediaConfig) (ObjectStore, error) {
	if cfg.Endpoint == "" {
		debuglog.Infof("media object store disabled (no endpoint configured)")
		return disabledStore{}, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}

	debuglog.WithFields(map[string]interface{}{"endpoint": cfg.Endpoint}).Infof("media object store initialized")
	return &minioStore{client: client}, nil
}

func (s *minioStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxObjectSize+1))
	if err != nil {
		return nil, classify(bucket, key, err)
	}
	if len(data) > maxObjectSize {
		return nil, fmt.Errorf("%w: %s/%s is larger than %d bytes", model.ErrMediaUnavailable, bucket, key, maxObjectSize)
	}
	return data, nil
}

func classify(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "AccessDenied":
		return fmt.Errorf("%w: %s/%s: %v", model.ErrMediaUnavailable, bucket, key, err)
	}
	return fmt.Errorf("%w: reading %s/%s: %w", model.ErrNetwork, bucket, key, err)
}

func (disabledStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	return nil, fmt.Errorf("%w: object store not configured (wanted %s/%s)", model.ErrMediaUnavailable, bucket, key)
}
