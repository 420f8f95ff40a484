/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package rules computes deterministic run metrics and anomaly flags
// over normalized events and linked interactions. Each rule evaluates
// independently; none consults a model.
package rules

import (
	"encoding/json"
	"fmt"

	"chainguard.dev/verdictaf/evidence"
)

// loopThreshold is the per-tool call count above which a loop flag is
// raised.
const loopThreshold = 10

// Rule flag types.
const (
	FlagMissingToolResult = "missing_tool_result"
	FlagInvalidToolArgs   = "invalid_tool_args"
	FlagToolLoop          = "tool_loop"
	FlagOrphanToolResult  = "orphan_tool_result"
)

// Metrics computes the run counters. Duration needs at least two
// parseable timestamps; otherwise it stays zero.
func Metrics(events []evidence.ParsedEvent, interactions []evidence.ToolInteraction) evidence.Metrics {
	m := evidence.Metrics{}

	callsByName := map[string]int{}
	for _, in := range interactions {
		if isOrphan(in) {
			continue
		}
		m.ToolCallCount++
		callsByName[in.ToolName]++
	}
	for _, in := range interactions {
		if in.Status == evidence.StatusError {
			m.ErrorCount++
		}
	}
	// Retry heuristic: each call of a name beyond its first is a retry.
	for _, n := range callsByName {
		if n > 1 {
			m.RetryCount += n - 1
		}
	}

	var minTS, maxTS int64
	stamped := 0
	for _, ev := range events {
		if ev.Timestamp == nil {
			continue
		}
		ms := ev.Timestamp.UnixMilli()
		if stamped == 0 || ms < minTS {
			minTS = ms
		}
		if stamped == 0 || ms > maxTS {
			maxTS = ms
		}
		stamped++
	}
	if stamped >= 2 {
		m.DurationMS = maxTS - minTS
	}

	return m
}

// Flags evaluates every rule over the interactions. Rules are
// independent: one firing never suppresses another.
func Flags(interactions []evidence.ToolInteraction) []evidence.RuleFlag {
	var flags []evidence.RuleFlag

	if f, ok := missingResults(interactions); ok {
		flags = append(flags, f)
	}
	flags = append(flags, invalidArgs(interactions)...)
	flags = append(flags, toolLoops(interactions)...)
	if f, ok := orphanResults(interactions); ok {
		flags = append(flags, f)
	}

	return flags
}

// RetryRecords returns one record per repeated invocation of a tool
// name, in discovery order.
func RetryRecords(interactions []evidence.ToolInteraction) []evidence.RetryRecord {
	var records []evidence.RetryRecord
	seen := map[string]bool{}
	for _, in := range interactions {
		if isOrphan(in) || in.ToolName == "unknown" {
			continue
		}
		if seen[in.ToolName] {
			records = append(records, evidence.RetryRecord{
				ToolName:  in.ToolName,
				EventIDs:  in.EventIDs,
				Timestamp: in.Timestamp,
			})
		}
		seen[in.ToolName] = true
	}
	return records
}

// isOrphan distinguishes an unmatched result from an unanswered call:
// both carry status missing, but only the orphan has a result payload.
func isOrphan(in evidence.ToolInteraction) bool {
	return in.Status == evidence.StatusMissing && in.Result != nil
}

func missingResults(interactions []evidence.ToolInteraction) (evidence.RuleFlag, bool) {
	var eventIDs []string
	n := 0
	for _, in := range interactions {
		if in.Status == evidence.StatusMissing && !isOrphan(in) {
			eventIDs = append(eventIDs, in.EventIDs...)
			n++
		}
	}
	if n == 0 {
		return evidence.RuleFlag{}, false
	}
	return evidence.RuleFlag{
		FlagType:         FlagMissingToolResult,
		Severity:         evidence.SeverityHigh,
		Message:          fmt.Sprintf("%d tool call(s) have no matching result", n),
		EvidenceEventIDs: eventIDs,
	}, true
}

func invalidArgs(interactions []evidence.ToolInteraction) []evidence.RuleFlag {
	var flags []evidence.RuleFlag
	for _, in := range interactions {
		if in.ArgsRaw == "" || in.Args != nil {
			continue
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(in.ArgsRaw), &parsed); err != nil {
			flags = append(flags, evidence.RuleFlag{
				FlagType:         FlagInvalidToolArgs,
				Severity:         evidence.SeverityMedium,
				Message:          fmt.Sprintf("tool %q arguments do not re-parse as structured data", in.ToolName),
				EvidenceEventIDs: in.EventIDs,
			})
		}
	}
	return flags
}

func toolLoops(interactions []evidence.ToolInteraction) []evidence.RuleFlag {
	byName := map[string][]string{} // tool name -> evidence event ids
	counts := map[string]int{}
	var order []string
	for _, in := range interactions {
		if isOrphan(in) || in.ToolName == "unknown" {
			continue
		}
		if counts[in.ToolName] == 0 {
			order = append(order, in.ToolName)
		}
		counts[in.ToolName]++
		byName[in.ToolName] = append(byName[in.ToolName], in.EventIDs...)
	}

	var flags []evidence.RuleFlag
	for _, name := range order {
		if counts[name] <= loopThreshold {
			continue
		}
		flags = append(flags, evidence.RuleFlag{
			FlagType:         FlagToolLoop,
			Severity:         evidence.SeverityHigh,
			Message:          fmt.Sprintf("tool %q called %d times", name, counts[name]),
			EvidenceEventIDs: byName[name],
		})
	}
	return flags
}

func orphanResults(interactions []evidence.ToolInteraction) (evidence.RuleFlag, bool) {
	var eventIDs []string
	n := 0
	for _, in := range interactions {
		if isOrphan(in) && in.ToolName == "unknown" {
			eventIDs = append(eventIDs, in.EventIDs...)
			n++
		}
	}
	if n == 0 {
		return evidence.RuleFlag{}, false
	}
	return evidence.RuleFlag{
		FlagType:         FlagOrphanToolResult,
		Severity:         evidence.SeverityLow,
		Message:          fmt.Sprintf("%d tool result(s) matched no call", n),
		EvidenceEventIDs: eventIDs,
	}, true
}
