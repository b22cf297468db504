package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/i474232898/forecast-panels/internal/weather"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MirrorConfig points at an S3-compatible bucket that mirrors the latest artifact.
type MirrorConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
	// Key is the object name of the PNG; the metadata goes next to it as .json.
	Key string
}

// MinioSink uploads the PNG and its metadata, overwriting the previous objects.
type MinioSink struct {
	client *minio.Client
	bucket string
	key    string
}

func NewMinioSink(cfg MirrorConfig) (*MinioSink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, ErrMirrorConfig
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	key := cfg.Key
	if key == "" {
		key = "plot.png"
	}
	return &MinioSink{client: client, bucket: cfg.Bucket, key: key}, nil
}

func (s *MinioSink) Name() string { return "minio" }

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinioSink) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioSink) Publish(ctx context.Context, a *weather.Artifact) error {
	if a == nil || len(a.Image) == 0 {
		return ErrNoImage
	}

	_, err := s.client.PutObject(ctx, s.bucket, s.key, bytes.NewReader(a.Image), int64(len(a.Image)),
		minio.PutObjectOptions{
			ContentType:  "image/png",
			UserMetadata: map[string]string{"artifact-id": a.ID},
		})
	if err != nil {
		return fmt.Errorf("upload %s: %w", s.key, err)
	}

	meta, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	metaKey := strings.TrimSuffix(s.key, path.Ext(s.key)) + ".json"
	_, err = s.client.PutObject(ctx, s.bucket, metaKey, bytes.NewReader(meta), int64(len(meta)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload %s: %w", metaKey, err)
	}
	return nil
}
