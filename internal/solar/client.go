// Package solar wraps the Upstage Solar OpenAI-compatible API for text
// completion and embeddings. All calls are paced by a client-side rate
// limiter to stay under the provider's request ceiling.
package solar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Upstage Solar API endpoint.
	DefaultBaseURL = "https://api.upstage.ai/v1/solar"

	// DefaultChatModel is the completion model.
	DefaultChatModel = "solar-pro"

	// DefaultQueryModel embeds search queries.
	DefaultQueryModel = "embedding-query"

	// DefaultPassageModel embeds corpus passages.
	DefaultPassageModel = "embedding-passage"

	// DefaultRateLimit is requests per second across all goroutines.
	DefaultRateLimit = 10.0

	// DefaultTimeout bounds a single API request.
	DefaultTimeout = 60 * time.Second
)

// Client is the completion/embedding surface consumed by the
// recommendation engine. Satisfied by *SolarClient and by test fakes.
type Client interface {
	// Complete sends a single-prompt chat completion and returns the text.
	Complete(ctx context.Context, prompt string) (string, error)

	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedPassage embeds a corpus passage.
	EmbedPassage(ctx context.Context, text string) ([]float32, error)
}

// SolarClient is a rate-limited Solar API client.
type SolarClient struct {
	api          *openai.Client
	limiter      *rate.Limiter
	chatModel    string
	queryModel   string
	passageModel string
}

// Option configures a SolarClient.
type Option func(*settings)

type settings struct {
	baseURL      string
	httpClient   *http.Client
	rateLimit    float64
	chatModel    string
	queryModel   string
	passageModel string
}

// WithBaseURL overrides the API endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) { s.httpClient = hc }
}

// WithRateLimit sets the client-side requests-per-second cap.
func WithRateLimit(rps float64) Option {
	return func(s *settings) { s.rateLimit = rps }
}

// WithChatModel overrides the completion model.
func WithChatModel(model string) Option {
	return func(s *settings) { s.chatModel = model }
}

// WithEmbeddingModels overrides the query and passage embedding models.
func WithEmbeddingModels(query, passage string) Option {
	return func(s *settings) {
		s.queryModel = query
		s.passageModel = passage
	}
}

// NewClient creates a Solar API client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *SolarClient {
	s := settings{
		baseURL:      DefaultBaseURL,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		rateLimit:    DefaultRateLimit,
		chatModel:    DefaultChatModel,
		queryModel:   DefaultQueryModel,
		passageModel: DefaultPassageModel,
	}
	for _, opt := range opts {
		opt(&s)
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = s.baseURL
	cfg.HTTPClient = s.httpClient

	return &SolarClient{
		api:          openai.NewClientWithConfig(cfg),
		limiter:      rate.NewLimiter(rate.Limit(s.rateLimit), 1),
		chatModel:    s.chatModel,
		queryModel:   s.queryModel,
		passageModel: s.passageModel,
	}
}

// Complete sends prompt as a single user message and returns the reply text.
func (c *SolarClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}

	return resp.Choices[0].Message.Content, nil
}

// EmbedQuery embeds a search query with the query embedding model.
func (c *SolarClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, c.queryModel)
}

// EmbedPassage embeds a corpus passage with the passage embedding model.
func (c *SolarClient) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, c.passageModel)
}

func (c *SolarClient) embed(ctx context.Context, text, model string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: empty response")
	}

	return resp.Data[0].Embedding, nil
}

// IsRateLimited reports whether err is the provider's throttling signal.
// Rate-limited calls are retried with backoff; other API failures are not.
func IsRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		if code, ok := apiErr.Code.(string); ok && code == "too_many_requests" {
			return true
		}
	}
	return false
}

// IsTransient reports whether err looks like a transient network or
// timeout failure that deserves the same retry treatment as throttling.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	// Request never reached the API (connection refused, reset, DNS).
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Retryable combines the two retryable error classes.
func Retryable(err error) bool {
	return IsRateLimited(err) || IsTransient(err)
}
