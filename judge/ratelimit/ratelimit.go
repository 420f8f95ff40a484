/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package ratelimit paces model calls under provider quotas and
// retries the calls the provider throttles anyway.
package ratelimit

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
)

// Error is a rate-limit rejection from a model provider. RetryAfter is
// zero when the provider gave no hint.
type Error struct {
	Model      string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("model %s rate limited, retry after %s", e.Model, e.RetryAfter)
	}
	return fmt.Sprintf("model %s rate limited", e.Model)
}

// IsRateLimit reports whether err is (or wraps) a rate-limit Error.
func IsRateLimit(err error) bool {
	var rle *Error
	return errors.As(err, &rle)
}

// Limiter spaces requests per model so steady-state traffic stays
// under the model's requests-per-minute quota. It is proactive pacing
// only; providers can still throttle, which the retry layer handles.
type Limiter struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval map[string]time.Duration

	// now is stubbed in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter returns a Limiter with no models registered. Unregistered
// models pass through unpaced.
func NewLimiter() *Limiter {
	return &Limiter{
		last:     map[string]time.Time{},
		interval: map[string]time.Duration{},
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// SetRPM registers a model's requests-per-minute quota. An rpm of zero
// or less removes pacing for the model.
func (l *Limiter) SetRPM(model string, rpm int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rpm <= 0 {
		delete(l.interval, model)
		return
	}
	l.interval[model] = time.Minute / time.Duration(rpm)
}

// Wait blocks until the model's next request slot, or until the
// context is done. The slot is claimed before sleeping so concurrent
// callers queue rather than stampede.
func (l *Limiter) Wait(ctx context.Context, model string) error {
	l.mu.Lock()
	interval, ok := l.interval[model]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	now := l.now()
	next := l.last[model].Add(interval)
	if next.Before(now) {
		next = now
	}
	l.last[model] = next
	l.mu.Unlock()

	if wait := next.Sub(now); wait > 0 {
		clog.FromContext(ctx).With("model", model).With("wait", wait).Debug("Pacing model request")
		return l.sleep(ctx, wait)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// RetryConfig configures backoff for throttled model calls.
type RetryConfig struct {
	// MaxRetries is the number of retry attempts after the first call.
	MaxRetries int
	// BaseBackoff is the first retry's backoff.
	BaseBackoff time.Duration
	// MaxBackoff caps both computed backoff and provider retry-after
	// hints.
	MaxBackoff time.Duration
	// JitterFraction spreads each backoff by up to this fraction in
	// either direction.
	JitterFraction float64
}

// DefaultRetryConfig returns the backoff used for provider throttling.
// Backoffs start high because quota windows take time to drain.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		BaseBackoff:    2 * time.Second,
		MaxBackoff:     60 * time.Second,
		JitterFraction: 0.2,
	}
}

// RetryWithBackoff runs fn with exponential backoff on errors the
// isRetryable predicate accepts. A rate-limit Error carrying a
// provider retry-after hint overrides the computed backoff, capped at
// MaxBackoff.
func RetryWithBackoff[T any](ctx context.Context, cfg RetryConfig, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if !isRetryable(lastErr) {
			return result, lastErr
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		backoff := min(cfg.BaseBackoff<<attempt, cfg.MaxBackoff)
		var rle *Error
		if errors.As(lastErr, &rle) && rle.RetryAfter > 0 {
			backoff = min(rle.RetryAfter, cfg.MaxBackoff)
		}
		backoff = jitter(backoff, cfg.JitterFraction)

		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", backoff).
			With("error", lastErr.Error()).
			Warn("Model call throttled, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, lastErr)
}

// jitter spreads d by up to ±fraction to avoid synchronized retries.
func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	span := int64(float64(d) * fraction * 2)
	if span <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return d
	}
	return d - time.Duration(int64(float64(d)*fraction)) + time.Duration(n.Int64())
}
