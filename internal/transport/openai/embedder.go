// Package openai implements the embedding provider client over the
// OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/stashkit/retrieval/internal/domain"
	"github.com/stashkit/retrieval/internal/metrics"
)

// Config holds the embedding provider settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Dimensions     int
	MaxInputChars  int
	MaxRetries     int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Embedder is an embedding provider client with truncation and
// retry-with-backoff built in.
type Embedder struct {
	client         *openai.Client
	model          openai.EmbeddingModel
	dimensions     int
	maxInputChars  int
	maxRetries     int
	retryBaseDelay time.Duration
	requestTimeout time.Duration
	configured     bool
	logger         *zap.Logger
}

var _ domain.Embedder = (*Embedder)(nil)

// NewEmbedder creates an OpenAI-compatible embedding provider client.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxChars := cfg.MaxInputChars
	if maxChars <= 0 {
		maxChars = 8000
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          openai.EmbeddingModel(cfg.Model),
		dimensions:     cfg.Dimensions,
		maxInputChars:  maxChars,
		maxRetries:     maxRetries,
		retryBaseDelay: baseDelay,
		requestTimeout: cfg.RequestTimeout,
		configured:     strings.TrimSpace(cfg.APIKey) != "",
		logger:         logger,
	}
}

// Available reports whether a provider API key is configured. Call sites use
// this as a pre-check; absence is not an error.
func (e *Embedder) Available() bool {
	return e.configured
}

// ModelName identifies the configured embedding model.
func (e *Embedder) ModelName() string {
	return string(e.model)
}

// Embed turns text into a vector. Input is trimmed, truncated to the
// configured character limit, and submitted with up to maxRetries attempts.
// Only transient failures (network errors, timeouts, 429, 5xx) are retried;
// backoff starts at retryBaseDelay and doubles per attempt.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if !e.configured {
		return domain.EmbeddingResult{}, domain.ErrProviderUnavailable
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.EmbeddingResult{}, domain.ErrEmptyInput
	}

	originalLen := len(trimmed)
	processed := trimmed
	truncated := false
	if originalLen > e.maxInputChars {
		processed = truncateOnRuneBoundary(trimmed, e.maxInputChars)
		truncated = true
		metrics.EmbeddingTruncationsTotal.Inc()
		e.logger.Debug("embedding input truncated",
			zap.Int("original_len", originalLen),
			zap.Int("processed_len", len(processed)),
		)
	}

	vec, err := e.embedWithRetry(ctx, processed)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	return domain.EmbeddingResult{
		Vector:       vec,
		Truncated:    truncated,
		OriginalLen:  originalLen,
		ProcessedLen: len(processed),
	}, nil
}

// EmbedBatch embeds texts strictly sequentially to respect shared provider
// rate limits. The first failure aborts the batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingResult, error) {
	results := make([]domain.EmbeddingResult, 0, len(texts))
	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// truncateOnRuneBoundary cuts s to at most max bytes without splitting a
// multi-byte rune.
func truncateOnRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (e *Embedder) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.retryBaseDelay << (attempt - 1)
			e.logger.Debug("retrying embedding request",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		vec, err := e.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, domain.NewExhausted(e.maxRetries, lastErr)
}

func (e *Embedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	if e.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.requestTimeout)
		defer cancel()
	}

	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
		return nil, errMalformedResponse
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(string(e.model)).Observe(duration.Seconds())

	return resp.Data[0].Embedding, nil
}

// errMalformedResponse marks a structurally invalid provider reply; never retried.
var errMalformedResponse = errors.New("embedding response has no data")

// isTransient classifies an embedding call failure. Rate limits, server-side
// errors, and transport failures are retryable; auth errors, other 4xx, and
// malformed responses are not.
func isTransient(err error) bool {
	if errors.Is(err, errMalformedResponse) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true // request timeout, the next attempt may succeed
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		// HTTPStatusCode 0 means the request never got a response.
		return reqErr.HTTPStatusCode == 0 || retryableStatus(reqErr.HTTPStatusCode)
	}

	// Anything else is a transport-level failure.
	return true
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
