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

// openaiAgents normalizes OpenAI agent trace exports: flat records with
// an event discriminator, call_id-tagged function calls carrying raw
// argument strings, and matching output records.
type openaiAgents struct{}

func (o *openaiAgents) Name() string { return "openai-agents" }

func (o *openaiAgents) CanHandle(sample string) bool {
	if !strings.Contains(sample, `"call_id"`) {
		return false
	}
	return strings.Contains(sample, `"arguments"`) || strings.Contains(sample, `"output"`)
}

func (o *openaiAgents) Parse(_ context.Context, raw string, f format.Format) ([]evidence.ParsedEvent, evidence.ParseReport) {
	records, warnings := normalize.Records(raw, f)
	events := normalize.Events(records, normalize.Mapping{
		IDFields:        []string{"id"},
		TypeFields:      []string{"event", "type"},
		TimestampFields: []string{"timestamp", "created_at"},
	})

	for i := range events {
		reshapeOpenAIEvent(&events[i])
	}

	return events, normalize.Report(o.Name(), len(records)+len(warnings), events, warnings)
}

// reshapeOpenAIEvent maps call_id/arguments/output records onto the
// canonical tool fields. Arguments arrive as a raw JSON string; it is
// kept verbatim so the invalid-args rule can try to re-parse it.
func reshapeOpenAIEvent(ev *evidence.ParsedEvent) {
	callID, ok := ev.Data["call_id"].(string)
	if !ok || callID == "" {
		return
	}
	ev.Data["tool_call_id"] = callID

	if args, ok := ev.Data["arguments"].(string); ok {
		ev.Type = "tool_call"
		ev.Data["args_raw"] = args
		if name, ok := ev.Data["name"].(string); ok {
			ev.Data["tool_name"] = name
		}
		return
	}
	if out, ok := ev.Data["output"]; ok {
		ev.Type = "tool_result"
		ev.Data["result"] = out
	}
}
