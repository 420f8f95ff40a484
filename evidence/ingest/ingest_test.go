/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ingest

import (
	"context"
	"strings"
	"testing"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/evidence/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A small but complete run: user task, tool call, matching result with
// a secret, final answer.
const sampleLog = `{"id": "e1", "type": "user_message", "timestamp": "2026-03-01T10:00:00Z", "text": "list the pods in the default namespace"}
{"id": "e2", "type": "tool_call", "timestamp": "2026-03-01T10:00:01Z", "tool_call_id": "c1", "tool_name": "kubectl", "args": {"cmd": "get pods"}}
{"id": "e3", "type": "tool_result", "timestamp": "2026-03-01T10:00:02Z", "tool_call_id": "c1", "result": "3 pods running, token=sk-proj4abcdefghijklmnopqrstuvwx"}
{"id": "e4", "type": "assistant", "timestamp": "2026-03-01T10:00:03Z", "text": "There are 3 pods running in default."}`

func TestRunEndToEnd(t *testing.T) {
	pkt, err := New().Run(context.Background(), "run-1", sampleLog, Options{})
	require.NoError(t, err)

	assert.Equal(t, "run-1", pkt.Metadata.RunID)
	assert.Equal(t, "generic", pkt.Metadata.Adapter)
	assert.Equal(t, "line-delimited", pkt.Metadata.DetectedFormat)
	assert.Equal(t, 4, pkt.Metadata.EventCount)

	assert.Equal(t, "list the pods in the default namespace", pkt.Task.Text)
	assert.InDelta(t, 0.8, pkt.Task.Confidence, 0.001)

	require.Len(t, pkt.Interactions, 1)
	assert.Equal(t, "kubectl", pkt.Interactions[0].ToolName)
	assert.Equal(t, evidence.StatusSuccess, pkt.Interactions[0].Status)

	assert.Equal(t, "There are 3 pods running in default.", pkt.FinalOutput)
	assert.Equal(t, 1, pkt.Metrics.ToolCallCount)

	// The secret in the tool result was redacted before packing.
	assert.Positive(t, pkt.Redaction.RedactedCount)
	for _, ev := range pkt.Events {
		assert.NotContains(t, ev.Payload, "sk-proj4")
	}
}

func TestRunSourceTypeHint(t *testing.T) {
	raw := `{"uuid": "u1", "type": "user", "sessionId": "s1", "message": {"role": "user", "content": "summarize the readme"}}
{"uuid": "u2", "type": "assistant", "sessionId": "s1", "message": {"role": "assistant", "content": [{"type": "text", "text": "The readme describes a CLI."}]}}`

	pkt, err := New().Run(context.Background(), "run-2", raw, Options{SourceType: "claude-code"})
	require.NoError(t, err)

	assert.Equal(t, "claude-code", pkt.Metadata.Adapter)
	assert.Equal(t, 2, pkt.Metadata.EventCount)
}

// Exporters often emit the whole run as one compact JSON array on a
// single line. That must parse as a document, not a one-line stream.
func TestRunCompactArrayExport(t *testing.T) {
	raw := `[{"id":"e1","type":"user_message","timestamp":"2026-03-01T10:00:00Z","text":"fetch the release notes"},{"id":"e2","type":"assistant","timestamp":"2026-03-01T10:00:02Z","text":"Done, notes attached."}]`

	pkt, err := New().Run(context.Background(), "run-6", raw, Options{})
	require.NoError(t, err)

	assert.Equal(t, "single-document", pkt.Metadata.DetectedFormat)
	assert.Equal(t, 2, pkt.Metadata.EventCount)
	assert.Equal(t, "fetch the release notes", pkt.Task.Text)
}

func TestRunEmptyInput(t *testing.T) {
	_, err := New().Run(context.Background(), "run-3", "   \n  ", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestRunCustomMapping(t *testing.T) {
	raw := `{"evt_id": "x1", "kind": "user_message", "at": "2026-03-01T10:00:00Z", "text": "do the thing"}
{"evt_id": "x2", "kind": "done", "at": "2026-03-01T10:00:05Z", "text": "finished"}`

	m := normalize.DefaultMapping()
	m.IDFields = []string{"evt_id"}
	m.TypeFields = []string{"kind"}
	m.TimestampFields = []string{"at"}

	pkt, err := New().Run(context.Background(), "run-5", raw, Options{Mapping: &m})
	require.NoError(t, err)

	require.Len(t, pkt.Events, 2)
	assert.Equal(t, "x1", pkt.Events[0].ID)
	assert.Equal(t, "user_message", pkt.Events[0].Type)
	assert.Equal(t, "do the thing", pkt.Task.Text)
}

func TestRunOpaqueInput(t *testing.T) {
	raw := strings.Join([]string{
		"10:00:00 starting agent",
		"10:00:01 calling search tool",
		"10:00:02 done",
	}, "\n")

	pkt, err := New().Run(context.Background(), "run-4", raw, Options{})
	require.NoError(t, err)

	assert.Equal(t, "opaque", pkt.Metadata.DetectedFormat)
	assert.Equal(t, 3, pkt.Metadata.EventCount)
	// Opaque lines carry no typed structure, so confidence is low.
	assert.Less(t, pkt.Metadata.ParseReport.Confidence, 0.8)
}
