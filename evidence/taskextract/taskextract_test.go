/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package taskextract

import (
	"fmt"
	"strings"
	"testing"

	"chainguard.dev/verdictaf/evidence"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name           string
		events         []evidence.ParsedEvent
		wantText       string
		wantConfidence float64
	}{{
		name: "user_event_with_task_field",
		events: []evidence.ParsedEvent{
			{ID: "e0", Type: "user", Data: map[string]any{"task": "fix the flaky test"}},
		},
		wantText:       "fix the flaky test",
		wantConfidence: 0.8,
	}, {
		name: "priority_order_task_beats_content",
		events: []evidence.ParsedEvent{
			{ID: "e0", Type: "user", Data: map[string]any{"content": "lower priority", "task": "higher priority"}},
		},
		wantText:       "higher priority",
		wantConfidence: 0.8,
	}, {
		name: "nested_message_content",
		events: []evidence.ParsedEvent{
			{ID: "e0", Type: "user", Data: map[string]any{
				"message": map[string]any{"content": "dig the text out"},
			}},
		},
		wantText:       "dig the text out",
		wantConfidence: 0.8,
	}, {
		name: "content_block_list",
		events: []evidence.ParsedEvent{
			{ID: "e0", Type: "user", Data: map[string]any{
				"content": []any{map[string]any{"type": "text", "text": "from a block"}},
			}},
		},
		wantText:       "from a block",
		wantConfidence: 0.8,
	}, {
		name: "no_user_event_serialization_fallback",
		events: []evidence.ParsedEvent{
			{ID: "e0", Type: "trace", Data: map[string]any{"whatever": "value"}},
		},
		wantText:       `{"whatever":"value"}`,
		wantConfidence: 0.3,
	}, {
		name:           "no_events",
		events:         nil,
		wantText:       "(no task found)",
		wantConfidence: 0,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.events)
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestExtractScanWindow(t *testing.T) {
	// A user event past the scan window is never reached.
	var events []evidence.ParsedEvent
	for i := range 25 {
		events = append(events, evidence.ParsedEvent{
			ID: fmt.Sprintf("e%d", i), Type: "trace", Data: map[string]any{"n": float64(i)},
		})
	}
	events = append(events, evidence.ParsedEvent{
		ID: "late", Type: "user", Data: map[string]any{"task": "too late"},
	})

	got := Extract(events)
	if got.Confidence != 0.3 {
		t.Errorf("Confidence = %v, want fallback 0.3", got.Confidence)
	}
	if got.Text == "too late" {
		t.Error("task found past the scan window")
	}
}

func TestExtractFallbackTruncation(t *testing.T) {
	events := []evidence.ParsedEvent{{
		ID: "e0", Type: "trace",
		Data: map[string]any{"blob": strings.Repeat("x", 1000)},
	}}
	got := Extract(events)
	if len(got.Text) > fallbackLimit+3 {
		t.Errorf("fallback text %d chars, want <= %d", len(got.Text), fallbackLimit+3)
	}
	if !strings.HasSuffix(got.Text, "...") {
		t.Error("truncated fallback should end with ellipsis")
	}
}
