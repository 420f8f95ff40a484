/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package adapter

import (
	"context"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/evidence/format"
	"chainguard.dev/verdictaf/evidence/normalize"
)

// generic is the fallback adapter. It accepts anything and applies the
// field mapping directly, with no source-specific reshaping.
type generic struct {
	mapping *normalize.Mapping
}

// NewGeneric returns the fallback adapter with a caller-supplied field
// mapping. ingest wires this when the request carries a mapping config.
func NewGeneric(m normalize.Mapping) Interface {
	return &generic{mapping: &m}
}

func (g *generic) Name() string { return "generic" }

// CanHandle always succeeds; generic must be last in the registry.
func (g *generic) CanHandle(string) bool { return true }

func (g *generic) Parse(_ context.Context, raw string, f format.Format) ([]evidence.ParsedEvent, evidence.ParseReport) {
	m := normalize.DefaultMapping()
	if g.mapping != nil {
		m = *g.mapping
	}
	records, warnings := normalize.Records(raw, f)
	events := normalize.Events(records, m)
	return events, normalize.Report(g.Name(), len(records)+len(warnings), events, warnings)
}
