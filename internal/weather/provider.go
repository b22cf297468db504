package weather

import (
	"context"
)

// Provider abstracts the forecast source (Open-Meteo forecast or ensemble API).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, cfg PipelineConfig) (*RawResponse, error)
}

// Store is the contract for holding the single current artifact.
type Store interface {
	SaveArtifact(a *Artifact)
	Latest() (*Artifact, error)
}
