/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package packet assembles the bounded evidence packet handed to the
// judging pipeline, enforcing the byte ceiling by iterative truncation.
package packet

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"chainguard.dev/verdictaf/evidence"
	"github.com/chainguard-dev/clog"
)

// Version identifies the ingestion pipeline revision carried in packet
// metadata.
const Version = "1.0.0"

const (
	defaultMaxBytes   = 300_000
	truncationTarget  = 0.9
	maxSteps          = 100
	maxSampledEvents  = 200
	eventPayloadLimit = 2000
	maxInteractions   = 50
	maxRecentErrors   = 20
	maxRecentRetries  = 10
	shortSummaryLimit = 100

	// Batch sizes for the truncation loop.
	eventDropBatch       = 25
	interactionDropBatch = 5
)

// Input carries everything upstream stages produced for one run.
type Input struct {
	RunID        string
	Format       string
	Adapter      string
	Events       []evidence.ParsedEvent
	Interactions []evidence.ToolInteraction
	Steps        []evidence.Step
	Task         evidence.Task
	Metrics      evidence.Metrics
	Flags        []evidence.RuleFlag
	Redaction    evidence.RedactionReport
	Report       evidence.ParseReport
	Retries      []evidence.RetryRecord
}

// Builder assembles packets under a byte ceiling.
type Builder struct {
	maxBytes int
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxBytes overrides the packet size ceiling.
func WithMaxBytes(n int) Option {
	return func(b *Builder) { b.maxBytes = n }
}

// NewBuilder returns a Builder with the default ceiling.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{maxBytes: defaultMaxBytes}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the packet and shrinks it until its serialized size
// fits. Every reduction is recorded in metadata; the loop terminates
// because each pass strictly removes content and stops when nothing
// reducible remains.
func (b *Builder) Build(ctx context.Context, in Input) (*evidence.Packet, error) {
	log := clog.FromContext(ctx)

	p := &evidence.Packet{
		Metadata: evidence.PacketMetadata{
			RunID:           in.RunID,
			PipelineVersion: Version,
			DetectedFormat:  in.Format,
			Adapter:         in.Adapter,
			Encoding:        "utf-8",
			EventCount:      len(in.Events),
			StepCount:       len(in.Steps),
			ParseReport:     in.Report,
		},
		Task:          in.Task,
		Steps:         in.Steps,
		Events:        sampleEvents(in.Events),
		Interactions:  prioritizeInteractions(in.Interactions),
		RecentErrors:  recentErrors(in.Events),
		RecentRetries: capRetries(in.Retries),
		FinalOutput:   finalOutput(in.Events),
		Metrics:       in.Metrics,
		Flags:         in.Flags,
		Redaction:     in.Redaction,
	}

	if len(in.Steps) > maxSteps {
		p.Steps = p.Steps[:maxSteps]
		p.Metadata.Truncations = append(p.Metadata.Truncations,
			fmt.Sprintf("steps capped from %d to %d", len(in.Steps), maxSteps))
	}
	if len(in.Events) > maxSampledEvents {
		p.Metadata.Truncations = append(p.Metadata.Truncations,
			fmt.Sprintf("events sampled from %d to %d", len(in.Events), maxSampledEvents))
	}
	if len(in.Interactions) > maxInteractions {
		p.Metadata.Truncations = append(p.Metadata.Truncations,
			fmt.Sprintf("interactions capped from %d to %d", len(in.Interactions), maxInteractions))
	}

	target := int(float64(b.maxBytes) * truncationTarget)
	size := serializedSize(p)
	for size > target {
		if !b.shrink(p) {
			break
		}
		size = serializedSize(p)
	}
	if size > b.maxBytes {
		return nil, fmt.Errorf("packet for run %s is %d bytes after exhaustive truncation (max %d)", in.RunID, size, b.maxBytes)
	}

	log.With("run_id", in.RunID).
		With("size_bytes", size).
		With("truncations", len(p.Metadata.Truncations)).
		Info("Evidence packet assembled")
	return p, nil
}

// Size returns the serialized byte size of a packet.
func Size(p *evidence.Packet) int {
	return serializedSize(p)
}

// shrink applies the next truncation in priority order: trace events,
// then non-error interactions, then result summaries. Returns false
// when nothing reducible remains.
func (b *Builder) shrink(p *evidence.Packet) bool {
	if len(p.Events) > 0 {
		drop := min(eventDropBatch, len(p.Events))
		p.Events = dropLowestPriority(p.Events, drop)
		p.Metadata.Truncations = append(p.Metadata.Truncations,
			fmt.Sprintf("dropped %d sampled events to fit size bound", drop))
		return true
	}

	if n := countNonError(p.Interactions); n > 0 {
		drop := min(interactionDropBatch, n)
		p.Interactions = dropNonError(p.Interactions, drop)
		p.Metadata.Truncations = append(p.Metadata.Truncations,
			fmt.Sprintf("dropped %d non-error interactions to fit size bound", drop))
		return true
	}

	shortened := 0
	for i := range p.Interactions {
		if len(p.Interactions[i].ResultSummary) > shortSummaryLimit {
			p.Interactions[i].ResultSummary = p.Interactions[i].ResultSummary[:shortSummaryLimit] + "...[truncated]"
			p.Interactions[i].Result = nil
			shortened++
		}
	}
	if shortened > 0 {
		p.Metadata.Truncations = append(p.Metadata.Truncations,
			fmt.Sprintf("shortened %d result summaries to fit size bound", shortened))
		return true
	}

	return false
}

func serializedSize(p *evidence.Packet) int {
	b, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return len(b)
}

// sampleEvents keeps at most maxSampledEvents, favoring the tail of the
// run (where outcomes live) while preserving the opening context.
func sampleEvents(events []evidence.ParsedEvent) []evidence.PacketEvent {
	selected := events
	if len(events) > maxSampledEvents {
		head := maxSampledEvents / 4
		tail := maxSampledEvents - head
		selected = append(append([]evidence.ParsedEvent{}, events[:head]...), events[len(events)-tail:]...)
	}

	out := make([]evidence.PacketEvent, 0, len(selected))
	for _, ev := range selected {
		out = append(out, toPacketEvent(ev))
	}
	return out
}

func toPacketEvent(ev evidence.ParsedEvent) evidence.PacketEvent {
	payload := ""
	if b, err := json.Marshal(ev.Data); err == nil {
		payload = string(b)
	}
	if len(payload) > eventPayloadLimit {
		payload = payload[:eventPayloadLimit] + "...[truncated]"
	}
	return evidence.PacketEvent{
		ID:        ev.ID,
		Type:      ev.Type,
		Timestamp: ev.Timestamp,
		Payload:   payload,
		Sequence:  ev.Sequence,
	}
}

// eventPriority orders sampled events for truncation. Higher survives
// longer.
func eventPriority(ev evidence.PacketEvent) int {
	switch {
	case evidence.IsErrorType(ev.Type):
		return 3
	case evidence.IsUserMessage(ev.Type), evidence.IsFinalOutput(ev.Type):
		return 2
	case evidence.IsToolCall(ev.Type), evidence.IsToolResult(ev.Type):
		return 1
	default:
		return 0
	}
}

// dropLowestPriority removes n events, lowest priority first, earliest
// first within a priority, keeping the survivors in sequence order.
func dropLowestPriority(events []evidence.PacketEvent, n int) []evidence.PacketEvent {
	idx := make([]int, len(events))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		pa, pb := eventPriority(events[idx[a]]), eventPriority(events[idx[b]])
		if pa != pb {
			return pa < pb
		}
		return events[idx[a]].Sequence < events[idx[b]].Sequence
	})

	dropped := map[int]bool{}
	for _, i := range idx[:min(n, len(idx))] {
		dropped[i] = true
	}
	out := events[:0]
	for i, ev := range events {
		if !dropped[i] {
			out = append(out, ev)
		}
	}
	return out
}

// prioritizeInteractions orders error-first then by discovery order and
// applies the cap.
func prioritizeInteractions(interactions []evidence.ToolInteraction) []evidence.ToolInteraction {
	out := make([]evidence.ToolInteraction, 0, len(interactions))
	for _, in := range interactions {
		if in.Status == evidence.StatusError {
			out = append(out, in)
		}
	}
	for _, in := range interactions {
		if in.Status != evidence.StatusError {
			out = append(out, in)
		}
	}
	if len(out) > maxInteractions {
		out = out[:maxInteractions]
	}
	return out
}

func countNonError(interactions []evidence.ToolInteraction) int {
	n := 0
	for _, in := range interactions {
		if in.Status != evidence.StatusError {
			n++
		}
	}
	return n
}

// dropNonError removes up to n non-error interactions from the back,
// where the lowest-priority entries sit after prioritizeInteractions.
func dropNonError(interactions []evidence.ToolInteraction, n int) []evidence.ToolInteraction {
	out := append([]evidence.ToolInteraction{}, interactions...)
	for i := len(out) - 1; i >= 0 && n > 0; i-- {
		if out[i].Status != evidence.StatusError {
			out = append(out[:i], out[i+1:]...)
			n--
		}
	}
	return out
}

// recentErrors returns the most recent error-typed events, newest last.
func recentErrors(events []evidence.ParsedEvent) []evidence.PacketEvent {
	var errs []evidence.PacketEvent
	for _, ev := range events {
		if evidence.IsErrorType(ev.Type) {
			errs = append(errs, toPacketEvent(ev))
		}
	}
	if len(errs) > maxRecentErrors {
		errs = errs[len(errs)-maxRecentErrors:]
	}
	return errs
}

func capRetries(retries []evidence.RetryRecord) []evidence.RetryRecord {
	if len(retries) > maxRecentRetries {
		return retries[len(retries)-maxRecentRetries:]
	}
	return retries
}

// finalOutput guesses the agent's final answer: the last event whose
// type looks like output and whose payload has extractable text.
func finalOutput(events []evidence.ParsedEvent) string {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if !evidence.IsFinalOutput(ev.Type) {
			continue
		}
		if text, ok := outputText(ev.Data); ok {
			return text
		}
	}
	return ""
}

var outputFields = []string{"text", "content", "output", "result", "message"}

func outputText(data map[string]any) (string, bool) {
	for _, field := range outputFields {
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
			if s, ok := outputText(t); ok {
				return s, true
			}
		case []any:
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
