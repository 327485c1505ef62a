// Package llm talks to the text generation backend. A Client walks an
// ordered list of models, retrying transient failures on each before moving
// to the next.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/banshee-data/plantconnect/internal/retry"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one conversation turn.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Request is everything a backend needs for one reply.
type Request struct {
	System      string
	History     []Message
	Prompt      string
	Temperature float32
	MaxTokens   int32
}

// Backend performs a single call against one model.
type Backend interface {
	Generate(ctx context.Context, model string, req Request) (string, error)
}

// DefaultModels is the fallback order when none are configured.
var DefaultModels = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"}

// Client is safe for concurrent use.
type Client struct {
	backend Backend
	models  []string
	backoff retry.ExponentialBackoff
	log     *slog.Logger
}

type Option func(*Client)

func WithBackoff(b retry.ExponentialBackoff) Option {
	return func(c *Client) { c.backoff = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient returns a client over backend. A nil backend yields a client
// whose every call fails with ErrNotConfigured.
func NewClient(backend Backend, models []string, opts ...Option) *Client {
	var ms []string
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" {
			ms = append(ms, m)
		}
	}
	if len(ms) == 0 {
		ms = DefaultModels
	}
	c := &Client{
		backend: backend,
		models:  ms,
		backoff: retry.ExponentialBackoff{
			MaxAttempts: 3,
			MinInterval: 500 * time.Millisecond,
			MaxInterval: 4 * time.Second,
			Timeout:     45 * time.Second,
		},
		log: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	c.backoff.Logger = c.log
	return c
}

func (c *Client) Configured() bool { return c.backend != nil }

func (c *Client) Models() []string { return append([]string(nil), c.models...) }

// Generate tries each model in order. Authentication failures abort the
// walk since every model shares the key; anything else moves on to the
// next model. The last error is returned if all fail.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if c.backend == nil {
		return "", ErrNotConfigured
	}
	var last error
	for _, model := range c.models {
		var text string
		err := c.backoff.Start(ctx, model, func(ctx context.Context) (bool, error) {
			t, err := c.backend.Generate(ctx, model, req)
			if err != nil {
				var le *Error
				if errors.As(err, &le) {
					return le.Retryable(), err
				}
				return KindOf(err) == KindNetwork, err
			}
			if strings.TrimSpace(t) == "" {
				return false, &Error{Kind: KindEmpty, Message: "backend returned no text", Model: model}
			}
			text = t
			return false, nil
		})
		if err == nil {
			return text, nil
		}
		last = err
		c.log.WarnContext(ctx, "generation failed", "model", model, "kind", KindOf(err), "error", err)
		if KindOf(err) == KindAuth || ctx.Err() != nil {
			break
		}
	}
	return "", last
}
