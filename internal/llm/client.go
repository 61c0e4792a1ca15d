package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lowy-zhangtian/-audit-tool/internal/cache"
	"github.com/Lowy-zhangtian/-audit-tool/internal/worker"
)

// ClientOptions configures a Client. Zero values disable the matching feature.
type ClientOptions struct {
	Model         string // Part of the cache key; the provider's own default applies when empty
	Cache         cache.Cache
	CacheTTL      time.Duration
	Limiter       *worker.Limiter
	RetryAttempts int
	Logger        *slog.Logger
}

// Client adapts a Provider to a single prompt-in, text-out call with
// response caching, per-provider rate limiting and retry of transient failures
type Client struct {
	provider Provider
	opts     ClientOptions
	logger   *slog.Logger
}

// NewClient wraps a provider
func NewClient(p Provider, opts ClientOptions) *Client {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		provider: p,
		opts:     opts,
		logger:   logger.With("provider", p.Name()),
	}
}

// Provider returns the wrapped provider
func (c *Client) Provider() Provider {
	return c.provider
}

// Complete returns the model's answer to prompt
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	key := cache.Key(c.provider.Name(), c.opts.Model, prompt)
	if c.opts.Cache != nil {
		if val, ok := c.opts.Cache.Get(key); ok {
			c.logger.Debug("cache hit", "key", key)
			return string(val), nil
		}
	}

	resp, err := retry(ctx, c.opts.RetryAttempts, func() (*CompletionResponse, error) {
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx, c.provider.Name()); err != nil {
				return nil, fmt.Errorf("%w: rate limiter: %w", ErrModelUnavailable, err)
			}
		}

		resp, err := c.provider.Complete(ctx, CompletionRequest{Prompt: prompt, Model: c.opts.Model})
		if err != nil && IsTransient(err) {
			c.logger.Warn("transient model failure", "error", err)
		}
		return resp, err
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("model answered", "model", resp.Model, "tokens", resp.TokensUsed)

	if c.opts.Cache != nil && resp.Text != "" {
		if err := c.opts.Cache.Set(key, []byte(resp.Text), c.opts.CacheTTL); err != nil {
			c.logger.Warn("cache write failed", "error", err)
		}
	}

	return resp.Text, nil
}
