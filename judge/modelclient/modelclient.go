/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package modelclient wraps the OpenAI chat completions API behind
// per-model pacing, throttle retries, and token metrics. Panel and
// verifier calls all go through one Client so pacing is shared.
package modelclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"chainguard.dev/verdictaf/judge/ratelimit"
	"chainguard.dev/verdictaf/metrics"
	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Request is one judging model call.
type Request struct {
	// Model is the provider model identifier.
	Model string
	// Role names the pipeline role making the call, e.g. a panel
	// identity or "verifier". Used as a metrics dimension.
	Role string
	// System is the system prompt.
	System string
	// Prompt is the user prompt.
	Prompt string
	// Temperature defaults to 0 for reproducible scoring.
	Temperature float64
}

// Client calls chat completion models in JSON mode.
type Client struct {
	api     openai.Client
	apiOpts []option.RequestOption
	limiter *ratelimit.Limiter
	retry   ratelimit.RetryConfig
	genai   *metrics.GenAI
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiOpts = append(c.apiOpts, option.WithAPIKey(key)) }
}

// WithBaseURL points the client at a different endpoint, e.g. a proxy
// or a test server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.apiOpts = append(c.apiOpts, option.WithBaseURL(url)) }
}

// WithLimiter shares a pacing limiter across clients.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetryConfig overrides the throttle retry policy.
func WithRetryConfig(cfg ratelimit.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithMetrics overrides the metric set.
func WithMetrics(g *metrics.GenAI) Option {
	return func(c *Client) { c.genai = g }
}

// New returns a Client with default pacing, retries, and metrics.
func New(opts ...Option) *Client {
	c := &Client{
		limiter: ratelimit.NewLimiter(),
		retry:   ratelimit.DefaultRetryConfig(),
		genai:   metrics.NewGenAI(metrics.MeterName),
	}
	for _, opt := range opts {
		opt(c)
	}
	// The SDK's built-in retry would fight our backoff policy.
	c.api = openai.NewClient(append([]option.RequestOption{option.WithMaxRetries(0)}, c.apiOpts...)...)
	return c
}

// Limiter exposes the pacing limiter so callers can register model
// quotas.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// Complete makes one JSON-mode chat completion call, pacing first and
// retrying provider throttles with backoff. The returned string is the
// raw response content; callers extract structure with the result
// package.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		return "", errors.New("model is required")
	}
	log := clog.FromContext(ctx).With("model", req.Model).With("role", req.Role)

	return ratelimit.RetryWithBackoff(ctx, c.retry, "model call", isRetryable, func() (string, error) {
		if err := c.limiter.Wait(ctx, req.Model); err != nil {
			return "", fmt.Errorf("waiting for request slot: %w", err)
		}

		start := time.Now()
		resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: shared.ChatModel(req.Model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(req.System),
				openai.UserMessage(req.Prompt),
			},
			Temperature: openai.Float(req.Temperature),
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		})
		if err != nil {
			if rle := asRateLimit(req.Model, err); rle != nil {
				c.genai.RecordRateLimitRetry(ctx, req.Model)
				return "", rle
			}
			return "", classify(req.Model, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("model %s returned no choices", req.Model)
		}

		c.genai.RecordModelCall(ctx, req.Model, req.Role, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		log.With("duration", time.Since(start)).
			With("prompt_tokens", resp.Usage.PromptTokens).
			With("completion_tokens", resp.Usage.CompletionTokens).
			Debug("Model call complete")
		return resp.Choices[0].Message.Content, nil
	})
}

// transientError marks failures worth retrying on the same backoff
// schedule as throttles: network errors and provider 5xxs.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// isRetryable accepts rate-limit and transient errors. Client-side
// 4xxs are terminal.
func isRetryable(err error) bool {
	if ratelimit.IsRateLimit(err) {
		return true
	}
	var te *transientError
	return errors.As(err, &te)
}

// classify wraps a non-429 call failure: 5xxs and transport errors are
// transient, other API errors terminal.
func classify(model string, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) && apierr.StatusCode < 500 {
		return fmt.Errorf("calling model %s: %w", model, err)
	}
	return &transientError{err: fmt.Errorf("calling model %s: %w", model, err)}
}

// asRateLimit converts a provider 429 into a ratelimit.Error carrying
// the Retry-After hint when the provider sent one.
func asRateLimit(model string, err error) *ratelimit.Error {
	var apierr *openai.Error
	if !errors.As(err, &apierr) || apierr.StatusCode != 429 {
		return nil
	}
	rle := &ratelimit.Error{Model: model}
	if apierr.Response != nil {
		if secs, convErr := strconv.Atoi(apierr.Response.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			rle.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return rle
}
