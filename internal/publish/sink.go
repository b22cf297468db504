// Package publish delivers rendered artifacts outside the process: to a fixed
// file path on disk and, optionally, to an S3-compatible bucket.
package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/forecast-panels/internal/weather"
)

var (
	ErrNoImage       = errors.New("artifact has no image bytes")
	ErrMissingPath   = errors.New("output path not configured")
	ErrMirrorConfig  = errors.New("mirror endpoint and bucket are required")
	// ErrStaleMetadata means the PNG on disk is not the one the sidecar describes.
	ErrStaleMetadata = errors.New("image does not match its metadata")
)

// Sink receives each successfully rendered artifact.
type Sink interface {
	Name() string
	Publish(ctx context.Context, a *weather.Artifact) error
}

// Multi publishes to every sink in order. A failing sink does not stop the
// others; their errors are joined.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Publish(ctx context.Context, a *weather.Artifact) error {
	if a == nil || len(a.Image) == 0 {
		return ErrNoImage
	}
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
