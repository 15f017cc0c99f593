package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/beaverzip/appraise/internal/retry"
)

type countingClient struct {
	delay    time.Duration
	failures int // rate-limited responses before succeeding

	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (c *countingClient) track() func() {
	cur := c.inFlight.Add(1)
	for {
		peak := c.peak.Load()
		if cur <= peak || c.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	return func() { c.inFlight.Add(-1) }
}

func (c *countingClient) Complete(ctx context.Context, prompt string) (string, error) {
	defer c.track()()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if n := c.calls.Add(1); int(n) <= c.failures {
		return "", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}
	}
	return "ok", nil
}

func (c *countingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	defer c.track()()
	c.calls.Add(1)
	return []float32{1}, nil
}

func (c *countingClient) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	defer c.track()()
	c.calls.Add(1)
	return []float32{1}, nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 5, InitialWait: time.Millisecond, Multiplier: 2}
}

func TestGatedClientCapsConcurrency(t *testing.T) {
	inner := &countingClient{delay: 5 * time.Millisecond}
	gated := NewGatedClient(inner, 2, fastPolicy())

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gated.Complete(context.Background(), "p"); err != nil {
				t.Errorf("Complete: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := inner.peak.Load(); peak > 2 {
		t.Errorf("observed %d concurrent API calls, limit is 2", peak)
	}
	if calls := inner.calls.Load(); calls != 12 {
		t.Errorf("inner client saw %d calls, want 12", calls)
	}
}

func TestGatedClientRetriesRateLimits(t *testing.T) {
	inner := &countingClient{failures: 2}
	gated := NewGatedClient(inner, 1, fastPolicy())

	out, err := gated.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete after throttling: %v", err)
	}
	if out != "ok" {
		t.Errorf("Complete = %q, want ok", out)
	}
	if calls := inner.calls.Load(); calls != 3 {
		t.Errorf("inner client saw %d calls, want 3", calls)
	}
}

func TestGatedClientGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &countingClient{failures: 100}
	gated := NewGatedClient(inner, 1, fastPolicy())

	_, err := gated.Complete(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error once attempts are exhausted")
	}
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("want the provider error surfaced, got %v", err)
	}
	if calls := inner.calls.Load(); calls != 5 {
		t.Errorf("inner client saw %d calls, want 5", calls)
	}
}

func TestGatedClientReleasesTokenDuringBackoff(t *testing.T) {
	// The first caller gets throttled and sleeps well into its backoff;
	// with a single token, a second caller must still get through while
	// the first one waits.
	inner := &countingClient{failures: 1}
	gated := NewGatedClient(inner, 1, retry.Policy{
		MaxAttempts: 2,
		InitialWait: 300 * time.Millisecond,
		Multiplier:  2,
	})

	throttled := make(chan error, 1)
	go func() {
		_, err := gated.Complete(context.Background(), "p")
		throttled <- err
	}()

	time.Sleep(50 * time.Millisecond) // let the first caller hit the 429 and start waiting

	start := time.Now()
	if _, err := gated.Complete(context.Background(), "p"); err != nil {
		t.Fatalf("Complete while another caller backs off: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("call blocked %v behind a sleeping caller's token", elapsed)
	}

	if err := <-throttled; err != nil {
		t.Errorf("throttled caller did not recover: %v", err)
	}
}

func TestGatedClientCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gated := NewGatedClient(&countingClient{}, 1, fastPolicy())
	if _, err := gated.EmbedQuery(ctx, "q"); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func TestGatedClientDefaultLimit(t *testing.T) {
	gated := NewGatedClient(&countingClient{}, 0, fastPolicy())
	if _, err := gated.EmbedPassage(context.Background(), "text"); err != nil {
		t.Fatalf("EmbedPassage: %v", err)
	}
}
