// Package llm wraps a text-generation backend behind a prompt-in, text-out
// contract. The backend is any OpenAI-compatible chat endpoint; by default a
// local Ollama.
package llm

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultBaseURL = "http://localhost:11434/v1/"
	DefaultModel   = "phi3"
)

// Options tune a single generation.
type Options struct {
	MaxContextTokens int
	Threads          int
}

// Generator produces a complete response for a prompt. Implementations may
// stream internally; callers only ever see the finished string.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// GenerationError reports that the backend could not produce a response.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate with %s: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

var ErrEmptyResponse = errors.New("empty response")

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Retries    int
	HTTPClient *http.Client
}

// Client streams chat completions and concatenates the deltas.
type Client struct {
	api   openai.Client
	model string
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKey == "" {
		// Ollama ignores the key but the SDK wants one.
		cfg.APIKey = "ollama"
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.Retries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		api:   openai.NewClient(opts...),
		model: cfg.Model,
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}

	var reqOpts []option.RequestOption
	if backend := backendOptions(opts); len(backend) > 0 {
		reqOpts = append(reqOpts, option.WithJSONSet("options", backend))
	}

	started := time.Now()
	stream := c.api.Chat.Completions.NewStreaming(ctx, params, reqOpts...)
	defer stream.Close()

	var b strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			b.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return "", &GenerationError{Model: c.model, Err: err}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", &GenerationError{Model: c.model, Err: ErrEmptyResponse}
	}

	log.Debug("Generated", "model", c.model, "chars", len(out), "took", time.Since(started))
	return out, nil
}

func backendOptions(opts Options) map[string]any {
	m := map[string]any{}
	if opts.MaxContextTokens > 0 {
		m["num_ctx"] = opts.MaxContextTokens
	}
	if opts.Threads > 0 {
		m["num_thread"] = opts.Threads
	}
	return m
}

// Availability is checked once at startup instead of per request.
type Availability struct {
	Ready bool
	Err   error
}

// Ping asks the backend for its model list.
func (c *Client) Ping(ctx context.Context) Availability {
	if _, err := c.api.Models.List(ctx); err != nil {
		return Availability{Err: fmt.Errorf("list models: %w", err)}
	}
	return Availability{Ready: true}
}
