// Package embeddings provides the embedding provider pipeline: bounded
// concurrency, adaptive batching, per-call retries, circuit breaking, rate
// limiting and cache-first lookups in front of a remote embedding service.
package embeddings

import (
	"context"
)

// DefaultDimensions is the vector width of the default code embedding model.
const DefaultDimensions = 1024

// Client generates embeddings for one batch of texts. One call is one
// provider request; retry policy, breaker and rate limiting live in the
// Service wrapping the client.
//
// Implementations classify failures with pkg/apperror codes: throttled
// (retryable, breaker-neutral), transport (retryable, breaker counts) and
// authorization_denied (permanent).
type Client interface {
	// Embed returns one vector per input text, same length and order.
	Embed(ctx context.Context, texts []string, modelID string, dimensions int) ([][]float32, error)
}

// NoopClient is used when no provider is configured. It returns a nil vector
// per input, so the pipeline proceeds and documents index without embeddings
// (search degrades to lexical-only).
type NoopClient struct{}

// NewNoopClient creates a new NoopClient.
func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

// Embed returns a nil vector for every input.
func (c *NoopClient) Embed(ctx context.Context, texts []string, modelID string, dimensions int) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}
