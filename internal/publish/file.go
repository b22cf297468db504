package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/i474232898/forecast-panels/internal/weather"
)

// FileSink keeps the latest PNG at a fixed path with its metadata in a JSON
// file next to it. Both are replaced by rename so readers never see a partial file.
// The sidecar carries the PNG's checksum, so a pair left mismatched by a crash
// between the two renames is detected on Restore.
type FileSink struct {
	path string
}

type sidecar struct {
	*weather.Artifact
	ImageSHA256 string `json:"imageSha256"`
}

func checksum(img []byte) string {
	sum := sha256.Sum256(img)
	return hex.EncodeToString(sum[:])
}

func NewFileSink(path string) (*FileSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrMissingPath
	}
	return &FileSink{path: path}, nil
}

func (s *FileSink) Name() string { return "file" }

// Path is where the PNG is written.
func (s *FileSink) Path() string { return s.path }

// MetadataPath is the JSON sidecar, e.g. static/plot.json for static/plot.png.
func (s *FileSink) MetadataPath() string {
	return strings.TrimSuffix(s.path, filepath.Ext(s.path)) + ".json"
}

func (s *FileSink) Publish(ctx context.Context, a *weather.Artifact) error {
	if a == nil || len(a.Image) == 0 {
		return ErrNoImage
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	meta, err := json.MarshalIndent(sidecar{Artifact: a, ImageSHA256: checksum(a.Image)}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := writeAtomic(s.path, a.Image); err != nil {
		return err
	}
	return writeAtomic(s.MetadataPath(), meta)
}

// ReadMetadata loads the sidecar written by the last Publish.
func (s *FileSink) ReadMetadata() (*weather.Artifact, error) {
	meta, err := s.readSidecar()
	if err != nil {
		return nil, err
	}
	return meta.Artifact, nil
}

func (s *FileSink) readSidecar() (*sidecar, error) {
	data, err := os.ReadFile(s.MetadataPath())
	if err != nil {
		return nil, err
	}
	meta := sidecar{Artifact: &weather.Artifact{}}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

// Restore loads the last published artifact, image included, so a restarted
// process can serve it before its first refresh completes. A PNG that does not
// match the sidecar's checksum is rejected with ErrStaleMetadata.
func (s *FileSink) Restore() (*weather.Artifact, error) {
	meta, err := s.readSidecar()
	if err != nil {
		return nil, err
	}
	img, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	if meta.ImageSHA256 != checksum(img) {
		return nil, fmt.Errorf("%w: %s", ErrStaleMetadata, s.MetadataPath())
	}
	a := meta.Artifact
	a.Image = img
	return a, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
