/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package judge scores evidence packets with a sequential panel of
// models, cross-checks the result with a verifier under a deadline,
// and adjudicates the scorecards statistically into one final result.
package judge

import (
	"context"
	"errors"
	"time"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/metrics"
	"github.com/chainguard-dev/clog"
)

// Judge runs the full judging pipeline for one evidence packet.
type Judge struct {
	client          Completer
	panel           []ModelSpec
	verifier        ModelSpec
	verifierTimeout time.Duration
	genai           *metrics.GenAI
}

// Option configures a Judge.
type Option func(*Judge)

// WithPanel replaces the panel model list.
func WithPanel(models []ModelSpec) Option {
	return func(j *Judge) { j.panel = models }
}

// WithVerifier replaces the verifier model.
func WithVerifier(m ModelSpec) Option {
	return func(j *Judge) { j.verifier = m }
}

// WithVerifierTimeout overrides the verifier deadline.
func WithVerifierTimeout(d time.Duration) Option {
	return func(j *Judge) { j.verifierTimeout = d }
}

// WithMetrics replaces the metric set, usually to share one with the
// model client.
func WithMetrics(g *metrics.GenAI) Option {
	return func(j *Judge) { j.genai = g }
}

// New returns a Judge using the default panel and verifier.
func New(client Completer, opts ...Option) *Judge {
	j := &Judge{
		client:          client,
		panel:           DefaultPanel(),
		verifier:        DefaultVerifier(),
		verifierTimeout: defaultVerifierTimeout,
		genai:           metrics.NewGenAI(metrics.MeterName),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Evaluate scores one packet. A nil rubric means the default rubric.
// Panel models run sequentially; partial panel failure degrades, full
// panel failure returns an AllPanelError. The verifier races its
// deadline and is discarded on loss.
func (j *Judge) Evaluate(ctx context.Context, pkt *evidence.Packet, rubric *Rubric) (*FinalScorecard, error) {
	log := clog.FromContext(ctx).With("run_id", pkt.Metadata.RunID)
	start := time.Now()

	r := DefaultRubric()
	if rubric != nil && len(rubric.Dimensions) > 0 {
		r = *rubric
	}
	r = r.Normalized()

	cards, err := runPanel(ctx, j.client, j.panel, r, pkt)
	if err != nil {
		return nil, err
	}

	// The first (highest-priority) successful scorecard anchors the
	// cross-check.
	verifierCard := runVerifier(ctx, j.client, j.verifier, r, pkt, cards[0], j.verifierTimeout, j.genai)

	var final *FinalScorecard
	if len(cards) == 1 && verifierCard != nil {
		final = AdjudicatePair(cards[0], verifierCard, r)
	} else {
		final = Adjudicate(cards, verifierCard, r)
	}

	log.With("overall", final.Overall).
		With("confidence", final.Confidence).
		With("panel_scorecards", len(cards)).
		With("verifier_used", final.VerifierUsed).
		With("duration", time.Since(start)).
		Info("Judging complete")
	return final, nil
}

// IsAllPanelFailure reports whether err is a full panel failure.
func IsAllPanelFailure(err error) bool {
	var ape *AllPanelError
	return errors.As(err, &ape)
}
