/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/judge/modelclient"
	"github.com/chainguard-dev/clog"
)

// Completer makes one model call. *modelclient.Client satisfies it;
// tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req modelclient.Request) (string, error)
}

// AllPanelError reports that every model on the panel failed. It is
// fatal for the judging invocation.
type AllPanelError struct {
	Failures []string
}

func (e *AllPanelError) Error() string {
	return fmt.Sprintf("all %d panel models failed: %s", len(e.Failures), strings.Join(e.Failures, "; "))
}

// runPanel consults each panel model in order, sequentially. Spacing
// under each model's quota is the client's job. A model that fails all
// its retries is skipped; only a fully failed panel is an error.
func runPanel(ctx context.Context, client Completer, panel []ModelSpec, rubric Rubric, pkt *evidence.Packet) ([]*Scorecard, error) {
	log := clog.FromContext(ctx).With("run_id", pkt.Metadata.RunID)

	var cards []*Scorecard
	var failures []string
	for _, m := range panel {
		card, err := scoreOne(ctx, client, m, rubric, pkt)
		if err != nil {
			log.With("model", m.ID).With("error", err.Error()).Warn("Panel model failed, skipping")
			failures = append(failures, fmt.Sprintf("%s: %v", m.ID, err))
			continue
		}
		cards = append(cards, card)
	}
	if len(cards) == 0 {
		return nil, &AllPanelError{Failures: failures}
	}

	log.With("panel_size", len(panel)).With("scorecards", len(cards)).Info("Panel complete")
	return cards, nil
}

func scoreOne(ctx context.Context, client Completer, m ModelSpec, rubric Rubric, pkt *evidence.Packet) (*Scorecard, error) {
	prompt, err := buildPanelPrompt(m.Role, rubric, pkt)
	if err != nil {
		return nil, err
	}
	resp, err := client.Complete(ctx, modelclient.Request{
		Model:  m.ID,
		Role:   m.Role,
		System: panelSystem,
		Prompt: prompt,
	})
	if err != nil {
		return nil, err
	}
	return parseScorecard(m.ID, resp)
}
