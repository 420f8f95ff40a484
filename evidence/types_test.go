/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence

import "testing"

// Every id a model could legitimately cite must be in the index, even
// when event sampling dropped the underlying event.
func TestEventIndexCoversAllCitableIDs(t *testing.T) {
	p := &Packet{
		Task: Task{Text: "do the thing", SourceEventIDs: []string{"task-src"}},
		Events: []PacketEvent{
			{ID: "e1", Type: "user"},
		},
		Interactions: []ToolInteraction{
			{ToolCallID: "c1", EventIDs: []string{"call-ev", "result-ev"}},
		},
		Steps: []Step{
			{StepNumber: 1, KeyEventIDs: []string{"step-key"}},
		},
		RecentErrors: []PacketEvent{
			{ID: "err-ev", Type: "error"},
		},
	}

	idx := p.EventIndex()
	for _, id := range []string{"e1", "call-ev", "result-ev", "step-key", "err-ev", "task-src"} {
		if _, ok := idx[id]; !ok {
			t.Errorf("EventIndex() missing %q", id)
		}
	}
	if _, ok := idx["phantom"]; ok {
		t.Error("EventIndex() contains an id the packet never carried")
	}
}
