package store

import (
	"errors"
	"sync"

	"github.com/i474232898/forecast-panels/internal/weather"
)

var (
	// ErrNotReady is returned before the first artifact has been rendered.
	ErrNotReady = errors.New("no artifact rendered yet")
)

// MemoryStore holds the single current artifact. Saving replaces the previous
// one; nothing older is retained.
type MemoryStore struct {
	mu      sync.RWMutex
	current *weather.Artifact
	swaps   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveArtifact atomically replaces the current artifact. Nil is ignored so a
// failed run can never clear what readers see.
func (s *MemoryStore) SaveArtifact(a *weather.Artifact) {
	if a == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = a
	s.swaps++
}

// Latest returns the current artifact, or ErrNotReady.
func (s *MemoryStore) Latest() (*weather.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotReady
	}
	return s.current, nil
}

// Swaps counts how many artifacts have been stored since start.
func (s *MemoryStore) Swaps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.swaps
}
