package llm

import (
	"context"
	"errors"
)

// ErrQuotaExceeded reports that the generation provider refused the call
// because usage credits are exhausted. Callers treat it as a skip for the
// current item and raise a one-time operator alert, never a crash.
var ErrQuotaExceeded = errors.New("generation provider quota exhausted")

// Generator produces free-form text from a prompt. The output is expected
// to contain a JSON payload for most pipeline stages, but no validity is
// guaranteed; callers recover with DecodeObject / DecodeArray.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Embedder turns texts into embedding vectors, one per input.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}
