/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics provides OpenTelemetry instrumentation for the
// evaluation service. All counters degrade to no-ops if creation
// fails, so instrumentation never takes down an evaluation.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the unified meter for the service; the model and role
// are dimensions on the recorded metrics.
const MeterName = "chainguard.ai.verdictaf"

// GenAI records model-call metrics for the judging pipeline.
type GenAI struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	modelCalls       metric.Int64Counter
	rateLimitRetries metric.Int64Counter
	verifierTimeouts metric.Int64Counter
}

// NewGenAI creates the judging metric set on the given meter name.
func NewGenAI(meterName string) *GenAI {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	return &GenAI{
		promptTokens: counter(meter, meterName, "genai.token.prompt",
			"The number of prompt tokens used", "{tokens}"),
		completionTokens: counter(meter, meterName, "genai.token.completion",
			"The number of completion tokens used", "{tokens}"),
		modelCalls: counter(meter, meterName, "genai.model.calls",
			"The number of model calls made", "{calls}"),
		rateLimitRetries: counter(meter, meterName, "genai.ratelimit.retries",
			"The number of model calls retried after rate limiting", "{retries}"),
		verifierTimeouts: counter(meter, meterName, "judge.verifier.timeouts",
			"The number of verifier passes abandoned at the deadline", "{timeouts}"),
	}
}

func counter(meter metric.Meter, meterName, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit))
	if err != nil {
		slog.Warn("Failed to create counter, metric will be disabled", "metric", name, "error", err, "meter", meterName)
		return noop.Int64Counter{}
	}
	return c
}

// RecordModelCall records one model call with its token usage. role is
// the pipeline role making the call (a panel identity or "verifier").
func (m *GenAI) RecordModelCall(ctx context.Context, model, role string, promptTokens, completionTokens int64) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("role", role),
	)
	m.modelCalls.Add(ctx, 1, attrs)
	m.promptTokens.Add(ctx, promptTokens, attrs)
	m.completionTokens.Add(ctx, completionTokens, attrs)
}

// RecordRateLimitRetry records a retry after a rate-limit response.
func (m *GenAI) RecordRateLimitRetry(ctx context.Context, model string) {
	m.rateLimitRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

// RecordVerifierTimeout records a verifier pass discarded at the
// deadline.
func (m *GenAI) RecordVerifierTimeout(ctx context.Context, model string) {
	m.verifierTimeouts.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}
