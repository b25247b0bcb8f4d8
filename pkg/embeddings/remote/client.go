// Package remote implements the embeddings.Client interface over a generic
// HTTP embedding service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/repolens/repolens/pkg/apperror"
)

const (
	// DefaultTimeout is the default HTTP timeout. The Service layers its own
	// per-batch deadline on top via context.
	DefaultTimeout = 60 * time.Second
)

// Config holds the configuration for the remote embeddings client.
type Config struct {
	// Endpoint is the full URL of the embedding service (POST).
	Endpoint string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration
}

// Client talks to an HTTP embedding service. A single Embed call is a single
// request; it performs no retries of its own.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithHTTPClient replaces the underlying HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new remote embeddings client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// embedRequest is the request body for the embedding service.
type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
	Normalize  bool     `json:"normalize"`
}

// embedResponse is the response from the embedding service.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
	Usage      *usage      `json:"usage,omitempty"`
}

type usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Embed sends one batch to the provider. Failures come back as apperror
// values: 429 → throttled, 401/403 → authorization_denied, 5xx and network
// or timeout errors → transport.
func (c *Client) Embed(ctx context.Context, texts []string, modelID string, dimensions int) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	reqBody, err := json.Marshal(embedRequest{
		Model:      modelID,
		Input:      texts,
		Dimensions: dimensions,
		Normalize:  true,
	})
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("marshal embed request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("build embed request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Context cancellation is the caller's decision, not a provider
		// fault; everything else on the wire is a transport failure.
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperror.ErrTransport.WithInternal(fmt.Errorf("embed request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.ErrTransport.WithInternal(fmt.Errorf("read embed response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("embedding provider returned error status",
			slog.Int("status", resp.StatusCode),
			slog.Int("batch_size", len(texts)))
		return nil, c.classifyStatus(resp.StatusCode, respBody)
	}

	var result embedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, apperror.ErrTransport.WithInternal(fmt.Errorf("unmarshal embed response: %w", err))
	}
	if len(result.Embeddings) != len(texts) {
		return nil, apperror.ErrTransport.WithInternal(
			fmt.Errorf("provider returned %d vectors for %d inputs", len(result.Embeddings), len(texts)))
	}

	return result.Embeddings, nil
}

func (c *Client) classifyStatus(status int, body []byte) error {
	detail := fmt.Errorf("provider status %d: %s", status, truncateBody(body))
	switch {
	case status == http.StatusTooManyRequests:
		return apperror.ErrThrottled.WithInternal(detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperror.ErrAuthorization.WithInternal(detail)
	case status == http.StatusRequestTimeout || status >= 500:
		return apperror.ErrTransport.WithInternal(detail)
	default:
		return apperror.ErrInternal.WithInternal(detail)
	}
}

func truncateBody(body []byte) string {
	const max = 300
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
