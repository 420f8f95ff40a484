/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package linker pairs tool-call events with tool-result events into
// interactions.
//
// Two conventions are supported: explicitly tagged pairs sharing a call
// identifier, and ordinal pairing of untagged starts to untagged ends
// in occurrence order. Ordinal pairing assumes starts and ends do not
// interleave across concurrently running calls; when they do, pairing
// can silently mismatch. Adapters that know real identifiers should
// surface them.
package linker

import (
	"encoding/json"
	"fmt"

	"chainguard.dev/verdictaf/evidence"
	"github.com/google/uuid"
)

// resultSummaryLimit bounds the serialized result carried on an
// interaction.
const resultSummaryLimit = 500

var (
	callIDKeys = []string{"tool_call_id", "call_id", "tool_use_id"}
	nameKeys   = []string{"tool_name", "name", "tool"}
	argsKeys   = []string{"args", "input", "arguments", "parameters"}
	resultKeys = []string{"result", "output", "content", "response"}
)

// Link builds exactly one interaction per distinct call identity.
// Linking is pairwise-local: reordering events of unrelated identifiers
// never changes an interaction's content.
func Link(events []evidence.ParsedEvent) []evidence.ToolInteraction {
	var interactions []evidence.ToolInteraction
	byID := map[string]int{} // call id -> index into interactions

	// Tagged results seen before their call, reclaimable by id.
	type pending struct {
		idx int
		ev  evidence.ParsedEvent
	}
	pendingResults := map[string]pending{}

	// Untagged halves, in occurrence order, for ordinal pairing.
	var untaggedCalls []int // indexes into interactions
	var untaggedResults []evidence.ParsedEvent

	for _, ev := range events {
		switch {
		case evidence.IsToolCall(ev.Type):
			in := newInteraction(ev)
			if in.ToolCallID != "" {
				if p, ok := pendingResults[in.ToolCallID]; ok {
					// The result arrived first; this call claims
					// the placeholder so the identity stays one
					// interaction.
					interactions[p.idx] = in
					attachResult(&interactions[p.idx], p.ev)
					byID[in.ToolCallID] = p.idx
					delete(pendingResults, in.ToolCallID)
					continue
				}
			}
			interactions = append(interactions, in)
			if in.ToolCallID != "" {
				byID[in.ToolCallID] = len(interactions) - 1
			} else {
				untaggedCalls = append(untaggedCalls, len(interactions)-1)
			}

		case evidence.IsToolResult(ev.Type):
			if id, ok := firstString(ev.Data, callIDKeys); ok {
				if idx, found := byID[id]; found {
					attachResult(&interactions[idx], ev)
					continue
				}
				// Tagged result with no call seen yet: hold an
				// orphan placeholder a later call can claim.
				interactions = append(interactions, orphanResult(ev, id))
				pendingResults[id] = pending{idx: len(interactions) - 1, ev: ev}
				continue
			}
			untaggedResults = append(untaggedResults, ev)
		}
	}

	// Ordinal pairing: the i-th untagged start pairs with the i-th
	// untagged end.
	for i, ev := range untaggedResults {
		if i < len(untaggedCalls) {
			attachResult(&interactions[untaggedCalls[i]], ev)
			continue
		}
		interactions = append(interactions, orphanResult(ev, ""))
	}

	return interactions
}

// newInteraction seeds an interaction from a call event. Status starts
// missing and flips when a result attaches.
func newInteraction(ev evidence.ParsedEvent) evidence.ToolInteraction {
	in := evidence.ToolInteraction{
		ToolName:  "unknown",
		Status:    evidence.StatusMissing,
		EventIDs:  []string{ev.ID},
		Timestamp: ev.Timestamp,
	}
	if id, ok := firstString(ev.Data, callIDKeys); ok {
		in.ToolCallID = id
	}
	if name, ok := firstString(ev.Data, nameKeys); ok {
		in.ToolName = name
	}
	if raw, ok := ev.Data["args_raw"].(string); ok {
		in.ArgsRaw = raw
		var parsed map[string]any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			in.Args = parsed
		}
	} else if args, ok := firstValue(ev.Data, argsKeys); ok {
		if obj, ok := args.(map[string]any); ok {
			in.Args = obj
		} else {
			in.ArgsRaw = fmt.Sprintf("%v", args)
		}
	}
	return in
}

// attachResult completes an interaction with its result event.
func attachResult(in *evidence.ToolInteraction, ev evidence.ParsedEvent) {
	in.EventIDs = append(in.EventIDs, ev.ID)
	if res, ok := firstValue(ev.Data, resultKeys); ok {
		in.Result = res
		in.ResultSummary = summarize(res)
	}
	if evidence.IsErrorType(ev.Type) {
		in.Status = evidence.StatusError
	} else {
		in.Status = evidence.StatusSuccess
	}
}

// orphanResult wraps a result that matched no call. Tool name stays
// unknown; the synthetic call id keeps the one-per-identity invariant.
func orphanResult(ev evidence.ParsedEvent, id string) evidence.ToolInteraction {
	if id == "" {
		id = "orphan-" + uuid.NewString()
	}
	in := evidence.ToolInteraction{
		ToolCallID: id,
		ToolName:   "unknown",
		Status:     evidence.StatusMissing,
		EventIDs:   []string{ev.ID},
		Timestamp:  ev.Timestamp,
	}
	if res, ok := firstValue(ev.Data, resultKeys); ok {
		in.Result = res
		in.ResultSummary = summarize(res)
	}
	return in
}

func summarize(res any) string {
	s, ok := res.(string)
	if !ok {
		b, err := json.Marshal(res)
		if err != nil {
			return ""
		}
		s = string(b)
	}
	if len(s) > resultSummaryLimit {
		s = s[:resultSummaryLimit] + "...[truncated]"
	}
	return s
}

func firstValue(data map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(data map[string]any, keys []string) (string, bool) {
	v, ok := firstValue(data, keys)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
