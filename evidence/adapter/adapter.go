/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package adapter selects and runs source-specific log normalization.
//
// Adapters are named strategies registered in an explicit priority
// list. Selection tries a caller-supplied source-type hint first, then
// each adapter's content sniff in registration order, then the generic
// fallback. Exactly one adapter runs per parse.
package adapter

import (
	"context"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/evidence/format"
	"github.com/chainguard-dev/clog"
)

// Interface is one normalization strategy for a known log source.
type Interface interface {
	// Name is the source-type identifier callers may hint with.
	Name() string

	// CanHandle sniffs a sample of the raw text for characteristic
	// field names. It must be cheap and side-effect free.
	CanHandle(sample string) bool

	// Parse normalizes the full raw text into events plus a report.
	// Parse is best effort: malformed records become report warnings,
	// never a failed run.
	Parse(ctx context.Context, raw string, f format.Format) ([]evidence.ParsedEvent, evidence.ParseReport)
}

// Registry is an ordered list of adapters. Order is priority: the
// first CanHandle match wins. The last entry should accept anything.
type Registry struct {
	adapters []Interface
}

// NewRegistry returns a registry with the given adapters in priority
// order.
func NewRegistry(adapters ...Interface) *Registry {
	return &Registry{adapters: adapters}
}

// DefaultRegistry returns the built-in adapters: Claude Code
// transcripts, OpenAI agent traces, then the generic fallback.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&claudeCode{},
		&openaiAgents{},
		&generic{},
	)
}

// sniffLimit bounds how much raw text is offered to CanHandle.
const sniffLimit = 8192

// Select picks the adapter for a parse. A source-type hint matching a
// registered name short-circuits sniffing.
func (r *Registry) Select(ctx context.Context, sourceType, raw string) Interface {
	log := clog.FromContext(ctx)

	if sourceType != "" {
		for _, a := range r.adapters {
			if a.Name() == sourceType {
				log.With("adapter", a.Name()).Debug("Adapter selected by source-type hint")
				return a
			}
		}
		log.With("source_type", sourceType).Warn("No adapter registered for source-type hint, sniffing content")
	}

	sample := raw
	if len(sample) > sniffLimit {
		sample = sample[:sniffLimit]
	}
	for _, a := range r.adapters {
		if a.CanHandle(sample) {
			log.With("adapter", a.Name()).Debug("Adapter selected by content sniff")
			return a
		}
	}

	// Unreachable with the default registry: generic accepts anything.
	return &generic{}
}
