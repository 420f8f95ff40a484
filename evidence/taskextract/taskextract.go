/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package taskextract heuristically recovers the goal the agent was
// given. Extraction is best effort; the confidence on the returned
// Task says how much to trust it.
package taskextract

import (
	"encoding/json"

	"chainguard.dev/verdictaf/evidence"
)

const (
	// scanLimit is how many leading events are scanned for a task.
	scanLimit = 20
	// fallbackLimit truncates the first-event serialization fallback.
	fallbackLimit = 300

	confidenceFound    = 0.8
	confidenceFallback = 0.3
)

// textFields are checked in priority order on candidate events.
var textFields = []string{"task", "task_text", "text", "content", "message"}

// Extract returns the best-effort task for the run. The first
// user/message/task-typed event among the leading scanLimit events with
// an extractable text field wins at confidence 0.8; otherwise a
// truncated serialization of the first event at 0.3; with no events at
// all, an explicit not-found task at 0.
func Extract(events []evidence.ParsedEvent) evidence.Task {
	if len(events) == 0 {
		return evidence.Task{Text: "(no task found)", Confidence: 0}
	}

	limit := min(len(events), scanLimit)
	for _, ev := range events[:limit] {
		if !evidence.IsUserMessage(ev.Type) && ev.Type != "task" {
			continue
		}
		if text, ok := extractText(ev.Data); ok {
			return evidence.Task{
				Text:           text,
				Confidence:     confidenceFound,
				SourceEventIDs: []string{ev.ID},
			}
		}
	}

	// Fallback: serialize the first event and hope the goal is in it.
	text := serialize(events[0].Data)
	if len(text) > fallbackLimit {
		text = text[:fallbackLimit] + "..."
	}
	return evidence.Task{
		Text:           text,
		Confidence:     confidenceFallback,
		SourceEventIDs: []string{events[0].ID},
	}
}

// extractText tries the priority-ordered text fields, descending one
// level into nested objects (Claude-style message.content).
func extractText(data map[string]any) (string, bool) {
	for _, field := range textFields {
		v, ok := data[field]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t, true
			}
		case map[string]any:
			if s, ok := extractText(t); ok {
				return s, true
			}
		case []any:
			// Content block lists: first text block wins.
			for _, item := range t {
				if block, ok := item.(map[string]any); ok {
					if s, ok := block["text"].(string); ok && s != "" {
						return s, true
					}
				}
			}
		}
	}
	return "", false
}

func serialize(data map[string]any) string {
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(b)
}
