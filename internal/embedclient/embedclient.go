// Package embedclient wraps an embedding provider with retry-with-backoff
// and exposes the single entry point the Source Indexer (C4) and Recall
// Engine (C5) call to turn text into vectors.
package embedclient

import (
	"context"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/internal/backoff"
)

// Provider is the raw, retry-less embedding backend. It mirrors the
// teacher's embeddings.Provider interface.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
	MaxBatchSize() int
}

// Client retries provider failures with exponential backoff before
// giving up, per spec §4.5's requirement that embedding calls
// participate in the same retry/backoff discipline as LLM calls. Every
// error from the Provider is retried: errors are not classified as
// transient or permanent first.
type Client struct {
	provider    Provider
	policy      backoff.BackoffPolicy
	maxAttempts int
}

// Config configures the retry envelope around a Provider.
type Config struct {
	MaxAttempts int // default 3
}

// New wraps a Provider with the default retry policy.
func New(provider Provider, cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Client{
		provider:    provider,
		policy:      backoff.DefaultPolicy(),
		maxAttempts: cfg.MaxAttempts,
	}
}

// Name returns the underlying provider's name.
func (c *Client) Name() string { return c.provider.Name() }

// Dimension returns the underlying provider's embedding dimension.
func (c *Client) Dimension() int { return c.provider.Dimension() }

// Embed embeds one piece of text, retrying on transient failure.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := backoff.RetryWithBackoff(ctx, c.policy, c.maxAttempts, func(int) ([]float32, error) {
		return c.provider.Embed(ctx, text)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "embed text", err)
	}
	return result.Value, nil
}

// EmbedBatch embeds a slice of texts, splitting into the provider's
// MaxBatchSize chunks and retrying each chunk independently.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	batchSize := c.provider.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		result, err := backoff.RetryWithBackoff(ctx, c.policy, c.maxAttempts, func(int) ([][]float32, error) {
			return c.provider.EmbedBatch(ctx, chunk)
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, "embed batch", err)
		}
		out = append(out, result.Value...)
	}
	return out, nil
}
