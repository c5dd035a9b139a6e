// Package vecindex wraps the semantic similarity index that backs duplicate
// detection and related-article lookup. Vector dimensionality is fixed per
// deployment by the embedding model in use.
package vecindex

import (
	"context"
	"errors"
)

// ErrQuotaExceeded reports that the index provider refused the call because
// usage limits are exhausted. Callers degrade fail-open and raise a one-time
// operator alert.
var ErrQuotaExceeded = errors.New("similarity index quota exhausted")

// Match is one nearest neighbour from a similarity query. Score is cosine
// similarity in [0,1], higher is closer.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]interface{}
}

// Index is the minimal similarity-index surface the pipeline needs.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]interface{}) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}
