/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence

import (
	"time"
)

// ParsedEvent is one normalized record from an agent execution log.
// Sequence is assigned densely from 0 in original order; within a single
// parse pass it is unique and strictly increasing.
type ParsedEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Data      map[string]any `json:"data"`
	Sequence  int            `json:"sequence"`
}

// InteractionStatus describes the outcome of a tool interaction.
type InteractionStatus string

const (
	StatusSuccess InteractionStatus = "success"
	StatusError   InteractionStatus = "error"
	StatusTimeout InteractionStatus = "timeout"
	// StatusMissing means a call or result could not be paired.
	StatusMissing InteractionStatus = "missing"
)

// ToolInteraction is a linked call/result pair (or an unpaired half)
// representing one invocation of an external tool by the agent.
// Exactly one interaction exists per distinct call identity.
type ToolInteraction struct {
	ToolCallID    string            `json:"tool_call_id"`
	ToolName      string            `json:"tool_name"`
	Args          map[string]any    `json:"args,omitempty"`
	ArgsRaw       string            `json:"args_raw,omitempty"`
	Result        any               `json:"result,omitempty"`
	ResultSummary string            `json:"result_summary,omitempty"`
	Status        InteractionStatus `json:"status"`
	EventIDs      []string          `json:"event_ids"`
	Timestamp     *time.Time        `json:"timestamp,omitempty"`
}

// Step is one coarse unit of agent activity. Steps partition the event
// sequence: every event belongs to exactly one step, in order.
type Step struct {
	StepNumber  int        `json:"step_number"`
	Description string     `json:"description"`
	KeyEventIDs []string   `json:"key_event_ids"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

// Task is the best-effort goal statement extracted for the run.
type Task struct {
	Text           string   `json:"text"`
	Confidence     float64  `json:"confidence"`
	SourceEventIDs []string `json:"source_event_ids,omitempty"`
}

// FlagSeverity grades a rule flag.
type FlagSeverity string

const (
	SeverityLow    FlagSeverity = "low"
	SeverityMedium FlagSeverity = "medium"
	SeverityHigh   FlagSeverity = "high"
)

// RuleFlag is a deterministic, non-LLM anomaly detection over the run.
type RuleFlag struct {
	FlagType         string       `json:"flag_type"`
	Severity         FlagSeverity `json:"severity"`
	Message          string       `json:"message"`
	EvidenceEventIDs []string     `json:"evidence_event_ids"`
}

// Metrics are the deterministic counts computed over a run.
type Metrics struct {
	ToolCallCount int `json:"tool_call_count"`
	ErrorCount    int `json:"error_count"`
	RetryCount    int `json:"retry_count"`
	// DurationMS is max minus min parseable event timestamp, when at
	// least two exist; zero otherwise.
	DurationMS int64 `json:"duration_ms"`
}

// RedactionReport records what the secret redactor did.
type RedactionReport struct {
	PatternsMatched []string `json:"patterns_matched"`
	RedactedCount   int      `json:"redacted_count"`
}

// ParseReport captures per-adapter normalization quality. The derived
// confidence is surfaced to operators; it never blocks ingestion.
type ParseReport struct {
	Adapter           string   `json:"adapter"`
	TotalRecords      int      `json:"total_records"`
	EventsProduced    int      `json:"events_produced"`
	TimestampCoverage float64  `json:"timestamp_coverage"`
	TypedCoverage     float64  `json:"typed_coverage"`
	ParseErrors       int      `json:"parse_errors"`
	Confidence        float64  `json:"confidence"`
	Warnings          []string `json:"warnings,omitempty"`
}

// RetryRecord marks a repeated invocation of a tool already called in
// this run (heuristic retry).
type RetryRecord struct {
	ToolName  string     `json:"tool_name"`
	EventIDs  []string   `json:"event_ids"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// PacketEvent is a sampled event carried in the packet, with its payload
// serialized and possibly truncated for model context.
type PacketEvent struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Payload   string     `json:"payload"`
	Sequence  int        `json:"sequence"`
}

// PacketMetadata describes the packet itself.
type PacketMetadata struct {
	RunID           string `json:"run_id"`
	PipelineVersion string `json:"pipeline_version"`
	DetectedFormat  string `json:"detected_format"`
	Adapter         string `json:"adapter"`
	Encoding        string `json:"encoding"`
	EventCount      int    `json:"event_count"`
	StepCount       int    `json:"step_count"`
	// Truncations records every reduction applied to fit the size
	// bound. Content is never dropped without an entry here.
	Truncations []string    `json:"truncations,omitempty"`
	ParseReport ParseReport `json:"parse_report"`
}

// Packet is the bounded, evidence-linked summary of one agent run
// handed to the judging pipeline. Its serialized size never exceeds the
// configured maximum.
type Packet struct {
	Metadata      PacketMetadata    `json:"metadata"`
	Task          Task              `json:"task"`
	Steps         []Step            `json:"steps"`
	Events        []PacketEvent     `json:"events"`
	Interactions  []ToolInteraction `json:"interactions"`
	RecentErrors  []PacketEvent     `json:"recent_errors,omitempty"`
	RecentRetries []RetryRecord     `json:"recent_retries,omitempty"`
	FinalOutput   string            `json:"final_output,omitempty"`
	Metrics       Metrics           `json:"metrics"`
	Flags         []RuleFlag        `json:"flags,omitempty"`
	Redaction     RedactionReport   `json:"redaction"`
}

// EventIndex returns a set of every event id visible in the packet,
// used by the verifier to check that cited evidence exists. It covers
// sampled events, interaction event ids, step key events, recent
// errors, and the task's source events, since a model can cite any of
// them.
func (p *Packet) EventIndex() map[string]struct{} {
	idx := make(map[string]struct{}, len(p.Events))
	for _, ev := range p.Events {
		idx[ev.ID] = struct{}{}
	}
	for _, id := range p.Task.SourceEventIDs {
		idx[id] = struct{}{}
	}
	for _, in := range p.Interactions {
		for _, id := range in.EventIDs {
			idx[id] = struct{}{}
		}
	}
	for _, s := range p.Steps {
		for _, id := range s.KeyEventIDs {
			idx[id] = struct{}{}
		}
	}
	for _, ev := range p.RecentErrors {
		idx[ev.ID] = struct{}{}
	}
	return idx
}
