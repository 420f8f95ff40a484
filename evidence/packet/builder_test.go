/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package packet

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"chainguard.dev/verdictaf/evidence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvents(n int) []evidence.ParsedEvent {
	events := make([]evidence.ParsedEvent, 0, n)
	for i := range n {
		events = append(events, evidence.ParsedEvent{
			ID:       fmt.Sprintf("evt-%d", i),
			Type:     "trace",
			Data:     map[string]any{"detail": strings.Repeat("x", 200)},
			Sequence: i,
		})
	}
	return events
}

func TestBuildSmallRun(t *testing.T) {
	in := Input{
		RunID:   "run-1",
		Format:  "line-delimited",
		Adapter: "generic",
		Events: []evidence.ParsedEvent{
			{ID: "evt-0", Type: "user_message", Data: map[string]any{"text": "fix the bug"}, Sequence: 0},
			{ID: "evt-1", Type: "tool_call", Data: map[string]any{"tool_name": "grep"}, Sequence: 1},
			{ID: "evt-2", Type: "assistant", Data: map[string]any{"text": "done, the bug is fixed"}, Sequence: 2},
		},
		Steps: []evidence.Step{{StepNumber: 1, Description: "user request", KeyEventIDs: []string{"evt-0"}}},
		Task:  evidence.Task{Text: "fix the bug", Confidence: 0.8, SourceEventIDs: []string{"evt-0"}},
	}

	p, err := NewBuilder().Build(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "run-1", p.Metadata.RunID)
	assert.Equal(t, Version, p.Metadata.PipelineVersion)
	assert.Equal(t, 3, p.Metadata.EventCount)
	assert.Len(t, p.Events, 3)
	assert.Empty(t, p.Metadata.Truncations)
	assert.Equal(t, "done, the bug is fixed", p.FinalOutput)
}

func TestBuildCapsAndSampling(t *testing.T) {
	events := makeEvents(500)
	steps := make([]evidence.Step, 0, 150)
	for i := range 150 {
		steps = append(steps, evidence.Step{StepNumber: i + 1, Description: "step"})
	}
	interactions := make([]evidence.ToolInteraction, 0, 80)
	for i := range 80 {
		status := evidence.StatusSuccess
		if i%10 == 0 {
			status = evidence.StatusError
		}
		interactions = append(interactions, evidence.ToolInteraction{
			ToolCallID: fmt.Sprintf("call-%d", i),
			ToolName:   "search",
			Status:     status,
		})
	}

	p, err := NewBuilder().Build(context.Background(), Input{
		RunID:        "run-2",
		Events:       events,
		Steps:        steps,
		Interactions: interactions,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(p.Steps), 100)
	assert.LessOrEqual(t, len(p.Events), 200)
	assert.LessOrEqual(t, len(p.Interactions), 50)
	assert.Equal(t, 500, p.Metadata.EventCount)

	// Error interactions sort ahead of successes.
	assert.Equal(t, evidence.StatusError, p.Interactions[0].Status)

	assert.NotEmpty(t, p.Metadata.Truncations)
}

func TestBuildPayloadTruncation(t *testing.T) {
	p, err := NewBuilder().Build(context.Background(), Input{
		RunID: "run-3",
		Events: []evidence.ParsedEvent{
			{ID: "evt-0", Type: "trace", Data: map[string]any{"blob": strings.Repeat("y", 5000)}, Sequence: 0},
		},
	})
	require.NoError(t, err)

	require.Len(t, p.Events, 1)
	assert.LessOrEqual(t, len(p.Events[0].Payload), eventPayloadLimit+len("...[truncated]"))
	assert.True(t, strings.HasSuffix(p.Events[0].Payload, "...[truncated]"))
}

func TestBuildShrinksUnderCeiling(t *testing.T) {
	// A ceiling small enough to force the truncation loop but large
	// enough that dropping events can satisfy it.
	b := NewBuilder(WithMaxBytes(20_000))

	p, err := b.Build(context.Background(), Input{
		RunID:  "run-4",
		Events: makeEvents(300),
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, Size(p), 20_000)
	assert.NotEmpty(t, p.Metadata.Truncations)
}

func TestBuildRecentErrorsAndRetries(t *testing.T) {
	events := makeEvents(5)
	for i := range 30 {
		events = append(events, evidence.ParsedEvent{
			ID:       fmt.Sprintf("err-%d", i),
			Type:     "error",
			Data:     map[string]any{"message": "boom"},
			Sequence: 5 + i,
		})
	}
	retries := make([]evidence.RetryRecord, 0, 15)
	for i := range 15 {
		retries = append(retries, evidence.RetryRecord{ToolName: "fetch", EventIDs: []string{fmt.Sprintf("evt-%d", i)}})
	}

	p, err := NewBuilder().Build(context.Background(), Input{
		RunID:   "run-5",
		Events:  events,
		Retries: retries,
	})
	require.NoError(t, err)

	require.Len(t, p.RecentErrors, 20)
	// Newest errors are kept.
	assert.Equal(t, "err-29", p.RecentErrors[len(p.RecentErrors)-1].ID)
	assert.Len(t, p.RecentRetries, 10)
}

func TestDropLowestPriorityKeepsErrors(t *testing.T) {
	events := []evidence.PacketEvent{
		{ID: "a", Type: "trace", Sequence: 0},
		{ID: "b", Type: "error", Sequence: 1},
		{ID: "c", Type: "trace", Sequence: 2},
		{ID: "d", Type: "user_message", Sequence: 3},
	}

	out := dropLowestPriority(events, 2)

	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "d", out[1].ID)
}
