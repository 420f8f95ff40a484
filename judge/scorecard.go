/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"fmt"

	"chainguard.dev/verdictaf/result"
)

// Dimension is one scored rubric dimension on a scorecard.
type Dimension struct {
	Name        string   `json:"name"`
	Score       float64  `json:"score"`
	Reasoning   string   `json:"reasoning,omitempty"`
	EvidenceIDs []string `json:"evidence_ids,omitempty"`
}

// Scorecard is one model's evaluation of a run. Scores are 0-100,
// confidence 0-1.
type Scorecard struct {
	Model       string      `json:"model,omitempty"`
	Overall     float64     `json:"overall"`
	Confidence  float64     `json:"confidence"`
	Dimensions  []Dimension `json:"dimensions,omitempty"`
	Strengths   []string    `json:"strengths,omitempty"`
	Weaknesses  []string    `json:"weaknesses,omitempty"`
	Reasoning   string      `json:"reasoning,omitempty"`
	EvidenceIDs []string    `json:"evidence_ids,omitempty"`
	MissingData []string    `json:"missing_data,omitempty"`
}

// TotalEvidence counts every evidence identifier the scorecard cites,
// including per-dimension citations.
func (s *Scorecard) TotalEvidence() int {
	n := len(s.EvidenceIDs)
	for _, d := range s.Dimensions {
		n += len(d.EvidenceIDs)
	}
	return n
}

// FinalScorecard is the adjudicated result persisted for a run.
type FinalScorecard struct {
	Scorecard
	PanelSize    int     `json:"panel_size"`
	VerifierUsed bool    `json:"verifier_used"`
	Disagreement float64 `json:"disagreement,omitempty"`
}

// rawScorecard matches model output loosely. Array fields unmarshal as
// []any so non-string entries can be filtered instead of failing the
// whole response.
type rawScorecard struct {
	Overall    float64 `json:"overall"`
	Confidence float64 `json:"confidence"`
	Dimensions []struct {
		Name        string  `json:"name"`
		Score       float64 `json:"score"`
		Reasoning   string  `json:"reasoning"`
		EvidenceIDs []any   `json:"evidence_ids"`
	} `json:"dimensions"`
	Strengths   []any  `json:"strengths"`
	Weaknesses  []any  `json:"weaknesses"`
	Reasoning   string `json:"reasoning"`
	EvidenceIDs []any  `json:"evidence_ids"`
	MissingData []any  `json:"missing_data"`
}

// parseScorecard extracts a model response into a clamped Scorecard.
// Model output is never trusted verbatim: scores clamp to [0,100],
// confidence to [0,1], and arrays keep only string entries.
func parseScorecard(model, responseText string) (*Scorecard, error) {
	raw, err := result.Extract[rawScorecard](responseText)
	if err != nil {
		return nil, fmt.Errorf("parsing scorecard from %s: %w", model, err)
	}

	sc := &Scorecard{
		Model:       model,
		Overall:     clamp(raw.Overall, 0, 100),
		Confidence:  clamp(raw.Confidence, 0, 1),
		Strengths:   onlyStrings(raw.Strengths),
		Weaknesses:  onlyStrings(raw.Weaknesses),
		Reasoning:   raw.Reasoning,
		EvidenceIDs: onlyStrings(raw.EvidenceIDs),
		MissingData: onlyStrings(raw.MissingData),
	}
	for _, d := range raw.Dimensions {
		if d.Name == "" {
			continue
		}
		sc.Dimensions = append(sc.Dimensions, Dimension{
			Name:        d.Name,
			Score:       clamp(d.Score, 0, 100),
			Reasoning:   d.Reasoning,
			EvidenceIDs: onlyStrings(d.EvidenceIDs),
		})
	}
	return sc, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func onlyStrings(vals []any) []string {
	var out []string
	for _, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
