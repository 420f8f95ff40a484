/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package ingest runs the full log ingestion pipeline: format
// detection, adapter selection, normalization, redaction, tool-call
// linking, step segmentation, task extraction, deterministic metrics
// and rule flags, and evidence packet assembly.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/evidence/adapter"
	"chainguard.dev/verdictaf/evidence/format"
	"chainguard.dev/verdictaf/evidence/linker"
	"chainguard.dev/verdictaf/evidence/normalize"
	"chainguard.dev/verdictaf/evidence/packet"
	"chainguard.dev/verdictaf/evidence/redact"
	"chainguard.dev/verdictaf/evidence/rules"
	"chainguard.dev/verdictaf/evidence/segment"
	"chainguard.dev/verdictaf/evidence/taskextract"
	"github.com/chainguard-dev/clog"
)

// Pipeline turns raw agent logs into evidence packets. The zero value
// is not usable; construct with New.
type Pipeline struct {
	registry  *adapter.Registry
	builder   *packet.Builder
	redaction []redact.Rule
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRegistry replaces the adapter registry, e.g. to add a
// custom-mapped generic adapter at the front.
func WithRegistry(r *adapter.Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// WithBuilder replaces the packet builder.
func WithBuilder(b *packet.Builder) Option {
	return func(p *Pipeline) { p.builder = b }
}

// WithRedactionRules replaces the redaction rule set.
func WithRedactionRules(rs []redact.Rule) Option {
	return func(p *Pipeline) { p.redaction = rs }
}

// New returns a Pipeline with the built-in adapters, default redaction
// rules, and default packet bounds.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:  adapter.DefaultRegistry(),
		builder:   packet.NewBuilder(),
		redaction: redact.DefaultRules(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Options are per-run hints for one ingestion.
type Options struct {
	// SourceType names a registered adapter; empty means sniff.
	SourceType string
	// FormatHint short-circuits format detection when it names a
	// known format.
	FormatHint string
	// Mapping overrides the generic adapter's field mapping for this
	// run only.
	Mapping *normalize.Mapping
}

// Run executes every pipeline stage against one raw log. Stage
// failures inside parsing are warnings in the parse report, not
// errors; only unusable input fails the run.
func (p *Pipeline) Run(ctx context.Context, runID, raw string, opts Options) (*evidence.Packet, error) {
	log := clog.FromContext(ctx).With("run_id", runID)
	start := time.Now()

	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("log input for run %s is empty", runID)
	}

	registry := p.registry
	if opts.Mapping != nil {
		// A per-run mapping replaces the generic fallback without
		// touching the shared registry.
		registry = adapter.NewRegistry(adapter.NewGeneric(*opts.Mapping))
	}

	f := format.Detect(raw, opts.FormatHint)
	a := registry.Select(ctx, opts.SourceType, raw)
	events, report := a.Parse(ctx, raw, f)
	if len(events) == 0 {
		return nil, fmt.Errorf("adapter %s produced no events for run %s", a.Name(), runID)
	}
	log.With("adapter", a.Name()).
		With("format", string(f)).
		With("events", len(events)).
		Info("Log normalized")

	// Redaction runs before any stage that could copy payloads into
	// the packet.
	redaction := redact.Events(events, p.redaction)

	interactions := linker.Link(events)
	steps := segment.Steps(events)
	task := taskextract.Extract(events)
	metrics := rules.Metrics(events, interactions)
	flags := rules.Flags(interactions)
	retries := rules.RetryRecords(interactions)

	pkt, err := p.builder.Build(ctx, packet.Input{
		RunID:        runID,
		Format:       string(f),
		Adapter:      a.Name(),
		Events:       events,
		Interactions: interactions,
		Steps:        steps,
		Task:         task,
		Metrics:      metrics,
		Flags:        flags,
		Redaction:    redaction,
		Report:       report,
		Retries:      retries,
	})
	if err != nil {
		return nil, fmt.Errorf("building evidence packet: %w", err)
	}

	log.With("duration", time.Since(start)).
		With("flags", len(flags)).
		With("redacted", redaction.RedactedCount).
		Info("Ingestion complete")
	return pkt, nil
}
