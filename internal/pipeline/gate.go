// Package pipeline fans the per-employee report jobs out over a fixed
// worker pool while capping in-flight external API calls separately, so
// CPU-bound rendering is never starved by provider backpressure.
package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/beaverzip/appraise/internal/retry"
	"github.com/beaverzip/appraise/internal/solar"
)

// DefaultAPIConcurrency caps simultaneous in-flight provider calls.
// This is the provider's concurrency ceiling, not the worker count.
const DefaultAPIConcurrency = 4

// GatedClient wraps a solar.Client so that every attempt holds one
// API-concurrency token for its duration and is retried per policy when
// the provider throttles or the network hiccups. Tokens are held only
// around a single attempt, never across backoff waits or a whole job.
type GatedClient struct {
	inner  solar.Client
	sem    *semaphore.Weighted
	policy retry.Policy
}

// NewGatedClient builds a gate allowing limit concurrent calls.
func NewGatedClient(inner solar.Client, limit int64, policy retry.Policy) *GatedClient {
	if limit < 1 {
		limit = DefaultAPIConcurrency
	}
	return &GatedClient{
		inner:  inner,
		sem:    semaphore.NewWeighted(limit),
		policy: policy,
	}
}

// call acquires a token per attempt, inside the retry loop, so a caller
// sleeping through backoff never blocks other callers' API calls.
func (g *GatedClient) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.policy.Do(ctx, func(ctx context.Context) error {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer g.sem.Release(1)

		return fn(ctx)
	}, solar.Retryable)
}

// Complete implements solar.Client.
func (g *GatedClient) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.Complete(ctx, prompt)
		return err
	})
	return out, err
}

// EmbedQuery implements solar.Client.
func (g *GatedClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.EmbedQuery(ctx, text)
		return err
	})
	return out, err
}

// EmbedPassage implements solar.Client.
func (g *GatedClient) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.inner.EmbedPassage(ctx, text)
		return err
	})
	return out, err
}
