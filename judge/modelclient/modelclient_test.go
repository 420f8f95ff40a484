/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package modelclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/verdictaf/judge/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
		}},
		"usage": map[string]any{
			"prompt_tokens":     120,
			"completion_tokens": 30,
			"total_tokens":      150,
		},
	}
}

func testRetryConfig() ratelimit.RetryConfig {
	return ratelimit.RetryConfig{
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestCompleteReturnsContent(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(completionResponse(`{"overall": 80}`)))
	}))
	defer server.Close()

	c := New(WithAPIKey("test-key"), WithBaseURL(server.URL), WithRetryConfig(testRetryConfig()))

	out, err := c.Complete(context.Background(), Request{
		Model:  "gpt-4o",
		Role:   "panel-strict",
		System: "You are a strict evaluator.",
		Prompt: "Score this run.",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"overall": 80}`, out)

	assert.Equal(t, "gpt-4o", gotBody["model"])
	rf, ok := gotBody["response_format"].(map[string]any)
	require.True(t, ok, "request should ask for JSON mode")
	assert.Equal(t, "json_object", rf["type"])
}

func TestCompleteRetriesThrottle(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, `{"error": {"message": "rate limited", "type": "rate_limit_error"}}`, http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(completionResponse("recovered")))
	}))
	defer server.Close()

	c := New(WithAPIKey("test-key"), WithBaseURL(server.URL), WithRetryConfig(testRetryConfig()))

	out, err := c.Complete(context.Background(), Request{Model: "gpt-4o", Role: "verifier", Prompt: "check"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteThrottleExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(WithAPIKey("test-key"), WithBaseURL(server.URL), WithRetryConfig(testRetryConfig()))

	_, err := c.Complete(context.Background(), Request{Model: "gpt-4o", Prompt: "check"})
	require.Error(t, err)
	assert.True(t, ratelimit.IsRateLimit(err))
}

func TestCompleteNonRetryableError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error": {"message": "bad request"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	c := New(WithAPIKey("test-key"), WithBaseURL(server.URL), WithRetryConfig(testRetryConfig()))

	_, err := c.Complete(context.Background(), Request{Model: "gpt-4o", Prompt: "check"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "400s are terminal, not retried")
}

func TestCompleteRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error": {"message": "upstream hiccup"}}`, http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(completionResponse("recovered")))
	}))
	defer server.Close()

	c := New(WithAPIKey("test-key"), WithBaseURL(server.URL), WithRetryConfig(testRetryConfig()))

	out, err := c.Complete(context.Background(), Request{Model: "gpt-4o", Prompt: "check"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteRequiresModel(t *testing.T) {
	c := New(WithAPIKey("test-key"))
	_, err := c.Complete(context.Background(), Request{Prompt: "check"})
	require.Error(t, err)
}
