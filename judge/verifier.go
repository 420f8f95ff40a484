/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"time"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/judge/modelclient"
	"chainguard.dev/verdictaf/metrics"
	"github.com/chainguard-dev/clog"
)

// defaultVerifierTimeout bounds the verifier pass. The pipeline never
// waits longer than this for the cross-check.
const defaultVerifierTimeout = 25 * time.Second

type verifierOutcome struct {
	card *Scorecard
	err  error
}

// runVerifier races one cross-check call against the timeout. Losing
// the race or failing discards the verifier; judging proceeds on panel
// results alone. The in-flight call is not cancelled, only abandoned,
// so the goroutine writes to a buffered channel and exits either way.
func runVerifier(ctx context.Context, client Completer, m ModelSpec, rubric Rubric, pkt *evidence.Packet, primary *Scorecard, timeout time.Duration, genai *metrics.GenAI) *Scorecard {
	log := clog.FromContext(ctx).With("run_id", pkt.Metadata.RunID).With("model", m.ID)

	outcome := make(chan verifierOutcome, 1)
	go func() {
		card, err := verifyOne(ctx, client, m, rubric, pkt, primary)
		outcome <- verifierOutcome{card: card, err: err}
	}()

	select {
	case o := <-outcome:
		if o.err != nil {
			log.With("error", o.err.Error()).Warn("Verifier failed, proceeding with panel results only")
			return nil
		}
		return o.card
	case <-time.After(timeout):
		genai.RecordVerifierTimeout(ctx, m.ID)
		log.With("timeout", timeout).Warn("Verifier timed out, proceeding with panel results only")
		return nil
	case <-ctx.Done():
		log.With("error", ctx.Err().Error()).Warn("Context done before verifier finished")
		return nil
	}
}

func verifyOne(ctx context.Context, client Completer, m ModelSpec, rubric Rubric, pkt *evidence.Packet, primary *Scorecard) (*Scorecard, error) {
	prompt, err := buildVerifierPrompt(rubric, pkt, primary)
	if err != nil {
		return nil, err
	}
	resp, err := client.Complete(ctx, modelclient.Request{
		Model:  m.ID,
		Role:   m.Role,
		System: verifierSystem,
		Prompt: prompt,
	})
	if err != nil {
		return nil, err
	}
	card, err := parseScorecard(m.ID, resp)
	if err != nil {
		return nil, err
	}
	pruneUnknownEvidence(ctx, card, pkt)
	return card, nil
}

// pruneUnknownEvidence drops cited evidence ids that do not exist in
// the packet. A verifier citing phantom events should not win evidence
// comparisons in adjudication.
func pruneUnknownEvidence(ctx context.Context, card *Scorecard, pkt *evidence.Packet) {
	index := pkt.EventIndex()
	dropped := 0

	keep := func(ids []string) []string {
		var out []string
		for _, id := range ids {
			if _, ok := index[id]; ok {
				out = append(out, id)
			} else {
				dropped++
			}
		}
		return out
	}

	card.EvidenceIDs = keep(card.EvidenceIDs)
	for i := range card.Dimensions {
		card.Dimensions[i].EvidenceIDs = keep(card.Dimensions[i].EvidenceIDs)
	}
	if dropped > 0 {
		clog.FromContext(ctx).With("model", card.Model).With("dropped", dropped).Warn("Verifier cited evidence ids not present in packet")
	}
}
