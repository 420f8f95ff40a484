/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package segment groups an event sequence into coarse steps.
package segment

import (
	"fmt"

	"chainguard.dev/verdictaf/evidence"
)

// maxKeyEvents bounds the event ids carried per step.
const maxKeyEvents = 20

// Steps partitions events into steps. A new step opens at every user or
// message event and at every tool-call start; all events since the
// previous boundary (inclusive) form one step. With no boundaries the
// whole sequence is a single step. Every event lands in exactly one
// step, in order, with no gaps or overlaps.
func Steps(events []evidence.ParsedEvent) []evidence.Step {
	if len(events) == 0 {
		return nil
	}

	var steps []evidence.Step
	start := 0
	for i, ev := range events {
		if i == 0 || !isBoundary(ev) {
			continue
		}
		steps = append(steps, makeStep(len(steps)+1, events[start:i]))
		start = i
	}
	steps = append(steps, makeStep(len(steps)+1, events[start:]))
	return steps
}

func isBoundary(ev evidence.ParsedEvent) bool {
	return evidence.IsUserMessage(ev.Type) || evidence.IsToolCall(ev.Type)
}

func makeStep(number int, events []evidence.ParsedEvent) evidence.Step {
	st := evidence.Step{
		StepNumber:  number,
		Description: describe(events),
		Timestamp:   events[0].Timestamp,
	}
	for _, ev := range events {
		if len(st.KeyEventIDs) == maxKeyEvents {
			break
		}
		st.KeyEventIDs = append(st.KeyEventIDs, ev.ID)
	}
	return st
}

// describe names a step by its opening event, with the tool name when
// one is present.
func describe(events []evidence.ParsedEvent) string {
	head := events[0]
	if evidence.IsToolCall(head.Type) {
		if name, ok := head.Data["tool_name"].(string); ok && name != "" {
			return fmt.Sprintf("tool call: %s (%d events)", name, len(events))
		}
		return fmt.Sprintf("tool call (%d events)", len(events))
	}
	if evidence.IsUserMessage(head.Type) {
		return fmt.Sprintf("user input (%d events)", len(events))
	}
	return fmt.Sprintf("%s (%d events)", head.Type, len(events))
}
