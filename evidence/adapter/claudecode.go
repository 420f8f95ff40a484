/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package adapter

import (
	"context"
	"strings"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/evidence/format"
	"chainguard.dev/verdictaf/evidence/normalize"
)

// claudeCode normalizes Claude Code session transcripts: JSONL records
// keyed by uuid/type/timestamp whose message.content carries tool_use
// and tool_result blocks.
type claudeCode struct{}

func (c *claudeCode) Name() string { return "claude-code" }

func (c *claudeCode) CanHandle(sample string) bool {
	if !strings.Contains(sample, `"uuid"`) {
		return false
	}
	return strings.Contains(sample, `"parentUuid"`) ||
		strings.Contains(sample, `"tool_use"`) ||
		strings.Contains(sample, `"sessionId"`)
}

func (c *claudeCode) Parse(_ context.Context, raw string, f format.Format) ([]evidence.ParsedEvent, evidence.ParseReport) {
	records, warnings := normalize.Records(raw, f)
	events := normalize.Events(records, normalize.Mapping{
		IDFields:        []string{"uuid", "id"},
		TypeFields:      []string{"type"},
		TimestampFields: []string{"timestamp"},
	})

	// Reshape tool blocks buried in message.content into the canonical
	// keys the linker reads.
	for i := range events {
		reshapeClaudeEvent(&events[i])
	}

	return events, normalize.Report(c.Name(), len(records)+len(warnings), events, warnings)
}

// reshapeClaudeEvent lifts the first tool_use or tool_result content
// block up to top-level canonical fields and retypes the event.
func reshapeClaudeEvent(ev *evidence.ParsedEvent) {
	msg, ok := ev.Data["message"].(map[string]any)
	if !ok {
		return
	}
	blocks, ok := msg["content"].([]any)
	if !ok {
		return
	}
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case "tool_use":
			ev.Type = "tool_call"
			if id, ok := block["id"].(string); ok {
				ev.Data["tool_call_id"] = id
			}
			if name, ok := block["name"].(string); ok {
				ev.Data["tool_name"] = name
			}
			if input, ok := block["input"]; ok {
				ev.Data["args"] = input
			}
			return
		case "tool_result":
			ev.Type = "tool_result"
			if id, ok := block["tool_use_id"].(string); ok {
				ev.Data["tool_call_id"] = id
			}
			if content, ok := block["content"]; ok {
				ev.Data["result"] = content
			}
			if isErr, ok := block["is_error"].(bool); ok && isErr {
				ev.Type = "tool_result_error"
			}
			return
		}
	}
}
