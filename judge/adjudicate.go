/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	// disagreementThreshold is the overall-score difference above
	// which two scorecards are treated as sharply disagreeing.
	disagreementThreshold = 15.0

	// confidenceFloor is the minimum adjudicated confidence.
	confidenceFloor = 0.3

	// disagreementCap caps confidence when two-card adjudication had
	// to pick a side.
	disagreementCap = 0.6

	// verifierDiscount scales confidence down when the verifier
	// sharply disagrees with the panel.
	verifierDiscount = 0.7

	// defaultDimensionScore stands in for a dimension no scorecard
	// reported.
	defaultDimensionScore = 50.0

	maxReasoningExcerpts = 2
	maxListEntries       = 10
	dedupKeyLength       = 120
)

// Adjudicate combines the panel's scorecards and, when present, the
// verifier's into one final scorecard. The median overall score is
// robust to a single outlier model; confidence comes from how tightly
// the scorecards agree.
func Adjudicate(panel []*Scorecard, verifier *Scorecard, rubric Rubric) *FinalScorecard {
	cards := make([]*Scorecard, 0, len(panel)+1)
	cards = append(cards, panel...)
	if verifier != nil {
		cards = append(cards, verifier)
	}

	overalls := make([]float64, 0, len(cards))
	for _, c := range cards {
		overalls = append(overalls, c.Overall)
	}

	final := &FinalScorecard{
		Scorecard: Scorecard{
			Overall:     median(overalls),
			Confidence:  agreementConfidence(cards),
			Dimensions:  adjudicateDimensions(cards, rubric),
			Strengths:   mergeLists(cards, func(c *Scorecard) []string { return c.Strengths }),
			Weaknesses:  mergeLists(cards, func(c *Scorecard) []string { return c.Weaknesses }),
			Reasoning:   mergeReasoning(cards),
			EvidenceIDs: unionEvidence(cards),
			MissingData: mergeLists(cards, func(c *Scorecard) []string { return c.MissingData }),
		},
		PanelSize:    len(panel),
		VerifierUsed: verifier != nil,
	}

	if verifier != nil && len(panel) > 0 {
		panelAvg := 0.0
		for _, c := range panel {
			panelAvg += c.Overall
		}
		panelAvg /= float64(len(panel))
		final.Disagreement = math.Abs(verifier.Overall - panelAvg)
		if final.Disagreement > disagreementThreshold {
			final.Confidence = max(final.Confidence*verifierDiscount, confidenceFloor)
			final.MissingData = appendBounded(final.MissingData,
				fmt.Sprintf("verifier disagreed with panel average by %.0f points", final.Disagreement))
		}
	}

	return final
}

// AdjudicatePair combines exactly a primary and a verifier scorecard.
// Within the disagreement threshold the two are averaged; above it the
// card citing more evidence wins, with confidence capped and the
// disagreement recorded.
func AdjudicatePair(primary, verifier *Scorecard, rubric Rubric) *FinalScorecard {
	cards := []*Scorecard{primary, verifier}
	diff := math.Abs(primary.Overall - verifier.Overall)

	if diff <= disagreementThreshold {
		return &FinalScorecard{
			Scorecard: Scorecard{
				Overall:     (primary.Overall + verifier.Overall) / 2,
				Confidence:  (primary.Confidence + verifier.Confidence) / 2,
				Dimensions:  adjudicateDimensions(cards, rubric),
				Strengths:   mergeLists(cards, func(c *Scorecard) []string { return c.Strengths }),
				Weaknesses:  mergeLists(cards, func(c *Scorecard) []string { return c.Weaknesses }),
				Reasoning:   mergeReasoning(cards),
				EvidenceIDs: unionEvidence(cards),
				MissingData: mergeLists(cards, func(c *Scorecard) []string { return c.MissingData }),
			},
			PanelSize:    1,
			VerifierUsed: true,
			Disagreement: diff,
		}
	}

	winner := primary
	if verifier.TotalEvidence() > primary.TotalEvidence() {
		winner = verifier
	}
	final := &FinalScorecard{
		Scorecard:    *winner,
		PanelSize:    1,
		VerifierUsed: true,
		Disagreement: diff,
	}
	final.Confidence = min(winner.Confidence, disagreementCap)
	final.MissingData = appendBounded(final.MissingData,
		fmt.Sprintf("scorecards disagreed by %.0f points; kept the better-evidenced card from %s", diff, winner.Model))
	return final
}

// agreementConfidence derives confidence from the spread of overall
// scores. One card keeps its own confidence; more cards map standard
// deviation onto [floor, 1], tighter agreement scoring higher.
func agreementConfidence(cards []*Scorecard) float64 {
	if len(cards) == 1 {
		return max(cards[0].Confidence, confidenceFloor)
	}

	overalls := make([]float64, 0, len(cards))
	for _, c := range cards {
		overalls = append(overalls, c.Overall)
	}
	mean := 0.0
	for _, v := range overalls {
		mean += v
	}
	mean /= float64(len(overalls))
	variance := 0.0
	for _, v := range overalls {
		variance += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(variance / float64(len(overalls)))

	// A 25-point standard deviation or worse bottoms out at the floor.
	conf := 1.0 - sd/25.0
	return clamp(conf, confidenceFloor, 1.0)
}

// adjudicateDimensions takes the median per rubric dimension across
// the scorecards that reported it, defaulting when none did, and keeps
// up to two reasoning excerpts per dimension.
func adjudicateDimensions(cards []*Scorecard, rubric Rubric) []Dimension {
	out := make([]Dimension, 0, len(rubric.Dimensions))
	for _, rd := range rubric.Dimensions {
		var scores []float64
		var reasons []string
		var evidence []string
		for _, c := range cards {
			for _, d := range c.Dimensions {
				if !strings.EqualFold(d.Name, rd.Name) {
					continue
				}
				scores = append(scores, d.Score)
				if d.Reasoning != "" && len(reasons) < maxReasoningExcerpts {
					reasons = append(reasons, d.Reasoning)
				}
				evidence = append(evidence, d.EvidenceIDs...)
			}
		}

		dim := Dimension{
			Name:        rd.Name,
			Score:       defaultDimensionScore,
			Reasoning:   strings.Join(reasons, " | "),
			EvidenceIDs: dedupStrings(evidence),
		}
		if len(scores) > 0 {
			dim.Score = median(scores)
		}
		out = append(out, dim)
	}
	return out
}

// mergeReasoning concatenates up to two non-empty overall reasonings.
func mergeReasoning(cards []*Scorecard) string {
	var excerpts []string
	for _, c := range cards {
		if c.Reasoning == "" {
			continue
		}
		excerpts = append(excerpts, fmt.Sprintf("[%s] %s", c.Model, c.Reasoning))
		if len(excerpts) == maxReasoningExcerpts {
			break
		}
	}
	return strings.Join(excerpts, "\n")
}

// mergeLists deduplicates entries across cards case-insensitively on a
// truncated key and caps the result.
func mergeLists(cards []*Scorecard, get func(*Scorecard) []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range cards {
		for _, entry := range get(c) {
			key := dedupKey(entry)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, entry)
			if len(out) == maxListEntries {
				return out
			}
		}
	}
	return out
}

func appendBounded(list []string, entry string) []string {
	if len(list) >= maxListEntries {
		return list
	}
	return append(list, entry)
}

func dedupKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > dedupKeyLength {
		s = s[:dedupKeyLength]
	}
	return s
}

func unionEvidence(cards []*Scorecard) []string {
	var all []string
	for _, c := range cards {
		all = append(all, c.EvidenceIDs...)
	}
	return dedupStrings(all)
}

func dedupStrings(vals []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64{}, vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
