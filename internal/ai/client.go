// Package ai is the AI transform gateway: it sends summarize and enhance
// requests to an OpenAI-compatible chat completions API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/prompts"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"
	DefaultTimeout = 60 * time.Second
)

// Config holds configuration for the chat completions client.
type Config struct {
	// APIKey is sent as a Bearer token when non-empty.
	APIKey string

	// BaseURL is the API base URL (default: Groq's OpenAI-compatible endpoint).
	BaseURL string

	// Model is used when a prompt template does not name one.
	Model string

	// Timeout bounds a summarize request. Streaming requests are bounded only
	// by their context.
	Timeout time.Duration

	// RequestsPerMinute limits outgoing requests; zero means unlimited.
	RequestsPerMinute int
}

// PromptSource supplies the template for each transform kind.
type PromptSource interface {
	Get(kind prompts.Kind) prompts.Template
}

// Client implements summarize and enhance against the provider.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	prompts PromptSource
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_completion_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New creates a client. A nil src uses the built-in templates.
func New(cfg Config, src PromptSource, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if src == nil {
		src = defaultPrompts{}
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}
	c := &Client{
		http:    &http.Client{},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(limit, 1),
		prompts: src,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Summarize returns a summary of text in one response.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	t := c.prompts.Get(prompts.Summarize)
	resp, err := c.post(ctx, "summarize", c.request(t, prompts.SummarizeMessage(text), false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.transportError(ctx, "summarize", err)
	}
	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("ai: summarize: decode response: %w: %w", apperr.ErrUnavailable, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("ai: summarize: provider error: %s: %w", out.Error.Message, apperr.ErrUnavailable)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("ai: summarize: no choices returned: %w", apperr.ErrUnavailable)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Enhance starts a streamed rewrite of text. Cancelling ctx aborts the
// stream; the caller must Close it.
func (c *Client) Enhance(ctx context.Context, text, instructions string) (Stream, error) {
	t := c.prompts.Get(prompts.Enhance)
	resp, err := c.post(ctx, "enhance", c.request(t, prompts.EnhanceMessage(text, instructions), true))
	if err != nil {
		return nil, err
	}
	return newSSEStream(ctx, resp.Body), nil
}

func (c *Client) request(t prompts.Template, user string, stream bool) chatRequest {
	model := t.Model
	if model == "" {
		model = c.model
	}
	return chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: t.System},
			{Role: "user", Content: user},
		},
		Temperature: t.Temperature,
		TopP:        t.TopP,
		MaxTokens:   t.MaxTokens,
		Stream:      stream,
	}
}

// post sends req and returns a 200 response. Any other outcome is an error
// and the body is already closed.
func (c *Client) post(ctx context.Context, op string, req chatRequest) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.transportError(ctx, op, err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ai: %s: marshal request: %w", op, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ai: %s: create request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("ai: request", slog.String("op", op), slog.String("model", req.Model))
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))
		var out chatResponse
		if json.Unmarshal(body, &out) == nil && out.Error != nil {
			msg = out.Error.Message
		}
		return nil, fmt.Errorf("ai: %s: provider status %d: %s: %w", op, resp.StatusCode, msg, apperr.ErrUnavailable)
	}
	return resp, nil
}

// transportError keeps cancellation distinguishable from provider failure.
func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("ai: %s: timed out: %w: %w", op, apperr.ErrUnavailable, ctxErr)
		}
		return fmt.Errorf("ai: %s: %w", op, ctxErr)
	}
	return fmt.Errorf("ai: %s: %w: %w", op, apperr.ErrUnavailable, err)
}

type defaultPrompts struct{}

func (defaultPrompts) Get(kind prompts.Kind) prompts.Template { return prompts.Default(kind) }
