/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/judge/modelclient"
	"chainguard.dev/verdictaf/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// fakeCompleter returns canned responses (or errors) per model id. An
// abandoned verifier goroutine can still be calling it when the test
// asserts, hence the lock.
type fakeCompleter struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	delay     map[string]time.Duration
	calls     []modelclient.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req modelclient.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if d, ok := f.delay[req.Model]; ok {
		time.Sleep(d)
	}
	if err, ok := f.errs[req.Model]; ok {
		return "", err
	}
	resp, ok := f.responses[req.Model]
	if !ok {
		return "", fmt.Errorf("no canned response for %s", req.Model)
	}
	return resp, nil
}

func testPacket() *evidence.Packet {
	return &evidence.Packet{
		Metadata: evidence.PacketMetadata{RunID: "run-1", EventCount: 3},
		Task:     evidence.Task{Text: "list the pods", Confidence: 0.8},
		Events: []evidence.PacketEvent{
			{ID: "evt-0", Type: "user_message"},
			{ID: "evt-1", Type: "tool_call"},
			{ID: "evt-2", Type: "assistant"},
		},
	}
}

func card(overall float64, confidence float64, evidenceIDs ...string) string {
	ids := "[]"
	if len(evidenceIDs) > 0 {
		ids = `["` + evidenceIDs[0] + `"]`
	}
	return fmt.Sprintf(`{"overall": %v, "confidence": %v, "reasoning": "canned", "evidence_ids": %s}`, overall, confidence, ids)
}

func testPanel() []ModelSpec {
	return []ModelSpec{
		{ID: "model-a", Role: "thorough"},
		{ID: "model-b", Role: "strict"},
	}
}

func TestEvaluateFullPanel(t *testing.T) {
	f := &fakeCompleter{responses: map[string]string{
		"model-a":  card(70, 0.8, "evt-0"),
		"model-b":  card(80, 0.8, "evt-1"),
		"verifier": card(76, 0.7, "evt-2"),
	}}
	j := New(f,
		WithPanel(testPanel()),
		WithVerifier(ModelSpec{ID: "verifier", Role: "verifier"}),
		WithVerifierTimeout(time.Second))

	final, err := j.Evaluate(context.Background(), testPacket(), nil)
	require.NoError(t, err)

	assert.InDelta(t, 76.0, final.Overall, 0.001, "median of 70, 80, 76")
	assert.Equal(t, 2, final.PanelSize)
	assert.True(t, final.VerifierUsed)
	assert.ElementsMatch(t, []string{"evt-0", "evt-1", "evt-2"}, final.EvidenceIDs)
	assert.Len(t, f.calls, 3)
}

func TestEvaluatePartialPanelFailure(t *testing.T) {
	f := &fakeCompleter{
		responses: map[string]string{
			"model-b":  card(80, 0.8),
			"verifier": card(78, 0.7),
		},
		errs: map[string]error{"model-a": errors.New("quota exhausted")},
	}
	j := New(f,
		WithPanel(testPanel()),
		WithVerifier(ModelSpec{ID: "verifier", Role: "verifier"}),
		WithVerifierTimeout(time.Second))

	final, err := j.Evaluate(context.Background(), testPacket(), nil)
	require.NoError(t, err, "one surviving panel model is enough")
	assert.InDelta(t, 79.0, final.Overall, 0.001)
	assert.True(t, final.VerifierUsed)
}

func TestEvaluateAllPanelFailure(t *testing.T) {
	f := &fakeCompleter{errs: map[string]error{
		"model-a": errors.New("quota exhausted"),
		"model-b": errors.New("quota exhausted"),
	}}
	j := New(f, WithPanel(testPanel()))

	_, err := j.Evaluate(context.Background(), testPacket(), nil)
	require.Error(t, err)
	assert.True(t, IsAllPanelFailure(err))
	assert.Contains(t, err.Error(), "model-a")
	assert.Contains(t, err.Error(), "model-b")
}

func TestEvaluateVerifierTimeoutDiscarded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	f := &fakeCompleter{
		responses: map[string]string{
			"model-a":  card(70, 0.8),
			"model-b":  card(80, 0.8),
			"verifier": card(10, 0.9),
		},
		delay: map[string]time.Duration{"verifier": 200 * time.Millisecond},
	}
	j := New(f,
		WithPanel(testPanel()),
		WithVerifier(ModelSpec{ID: "verifier", Role: "verifier"}),
		WithVerifierTimeout(10*time.Millisecond),
		WithMetrics(metrics.NewGenAI(metrics.MeterName)))

	final, err := j.Evaluate(context.Background(), testPacket(), nil)
	require.NoError(t, err)

	assert.False(t, final.VerifierUsed, "slow verifier is discarded")
	assert.InDelta(t, 75.0, final.Overall, 0.001, "median of the panel only")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), counterTotal(t, rm, "judge.verifier.timeouts"))
}

// counterTotal sums a named int64 counter across all its data points.
func counterTotal(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return 0
}

func TestEvaluateVerifierFailureDegrades(t *testing.T) {
	f := &fakeCompleter{
		responses: map[string]string{
			"model-a": card(70, 0.8),
			"model-b": card(80, 0.8),
		},
		errs: map[string]error{"verifier": errors.New("boom")},
	}
	j := New(f,
		WithPanel(testPanel()),
		WithVerifier(ModelSpec{ID: "verifier", Role: "verifier"}),
		WithVerifierTimeout(time.Second))

	final, err := j.Evaluate(context.Background(), testPacket(), nil)
	require.NoError(t, err)
	assert.False(t, final.VerifierUsed)
}

func TestEvaluateSinglePanelUsesPairAdjudication(t *testing.T) {
	f := &fakeCompleter{responses: map[string]string{
		"model-a":  card(70, 0.8),
		"verifier": card(80, 0.6),
	}}
	j := New(f,
		WithPanel([]ModelSpec{{ID: "model-a", Role: "thorough"}}),
		WithVerifier(ModelSpec{ID: "verifier", Role: "verifier"}),
		WithVerifierTimeout(time.Second))

	final, err := j.Evaluate(context.Background(), testPacket(), nil)
	require.NoError(t, err)

	assert.InDelta(t, 75.0, final.Overall, 0.001)
	assert.InDelta(t, 0.7, final.Confidence, 0.001)
}

func TestEvaluateCustomRubricInPrompt(t *testing.T) {
	f := &fakeCompleter{responses: map[string]string{
		"model-a":  card(70, 0.8),
		"verifier": card(71, 0.8),
	}}
	j := New(f,
		WithPanel([]ModelSpec{{ID: "model-a", Role: "thorough"}}),
		WithVerifier(ModelSpec{ID: "verifier", Role: "verifier"}),
		WithVerifierTimeout(time.Second))

	rubric := &Rubric{
		Name: "custom",
		Dimensions: []RubricDimension{
			{Name: "latency_awareness", Weight: 1, Criteria: "Did the agent avoid needless waiting?"},
		},
	}
	final, err := j.Evaluate(context.Background(), testPacket(), rubric)
	require.NoError(t, err)

	require.NotEmpty(t, f.calls)
	assert.Contains(t, f.calls[0].Prompt, "latency_awareness")
	require.Len(t, final.Dimensions, 1)
	assert.Equal(t, "latency_awareness", final.Dimensions[0].Name)
}

func TestParseScorecardClamps(t *testing.T) {
	resp := "```json\n" + `{
  "overall": 250,
  "confidence": 7,
  "dimensions": [
    {"name": "accuracy", "score": -20, "evidence_ids": ["evt-1", 42, null]},
    {"name": "", "score": 50}
  ],
  "strengths": ["solid", 3, {"k": "v"}],
  "evidence_ids": ["evt-1", false]
}` + "\n```"

	sc, err := parseScorecard("model-x", resp)
	require.NoError(t, err)

	assert.InDelta(t, 100.0, sc.Overall, 0.001)
	assert.InDelta(t, 1.0, sc.Confidence, 0.001)
	require.Len(t, sc.Dimensions, 1, "unnamed dimensions are dropped")
	assert.InDelta(t, 0.0, sc.Dimensions[0].Score, 0.001)
	assert.Equal(t, []string{"evt-1"}, sc.Dimensions[0].EvidenceIDs)
	assert.Equal(t, []string{"solid"}, sc.Strengths)
	assert.Equal(t, []string{"evt-1"}, sc.EvidenceIDs)
}

func TestParseScorecardUnparseable(t *testing.T) {
	_, err := parseScorecard("model-x", "I refuse to answer in JSON.")
	require.Error(t, err)
}
