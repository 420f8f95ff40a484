/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"fmt"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/promptbuilder"
)

// panelSystem is the system prompt for panel evaluators. The role
// instructions vary per panel seat.
const panelSystem = "You are an expert evaluator of AI agent runs. You score runs against a rubric using only the evidence provided. You respond with a single JSON object and no additional text."

// panelPrompt scores one evidence packet against the rubric.
var panelPrompt = promptbuilder.MustNewPrompt(`<task>
Evaluate the AI agent run described by the evidence packet below.
Score it against each rubric dimension, then give an overall score.
</task>

{{role}}

<rubric>
{{rubric}}
</rubric>

<evidence_packet>
{{packet}}
</evidence_packet>

<instructions>
1. Read the task the agent was given, the steps it took, its tool interactions, errors, rule flags, and final output.
2. Score each rubric dimension from 0 (complete failure) to 100 (flawless), judging ONLY against that dimension's criteria.
3. Cite evidence: every dimension score must reference the event ids from the packet that support it.
4. The overall score is your weighted judgment across dimensions, 0 to 100.
5. State your confidence from 0.0 to 1.0. Lower it when the evidence packet is truncated, the parse confidence is low, or the packet lacks the information a dimension needs.
6. List concrete strengths and weaknesses, each grounded in specific evidence.
7. If information you needed was missing from the packet, name it in missing_data instead of guessing.
</instructions>

<output_format>
Return a JSON object with this structure:
{
  "overall": 0-100,
  "confidence": 0.0-1.0,
  "dimensions": [
    {"name": "dimension_name", "score": 0-100, "reasoning": "why", "evidence_ids": ["evt-1"]}
  ],
  "strengths": ["specific strength"],
  "weaknesses": ["specific weakness"],
  "reasoning": "overall assessment",
  "evidence_ids": ["evt-1", "evt-2"],
  "missing_data": ["what was missing, if anything"]
}
</output_format>

Respond with only the JSON object, no additional text.`)

// verifierSystem frames the cross-check pass.
const verifierSystem = "You are a verification model cross-checking another evaluator's scorecard against the underlying evidence. You respond with a single JSON object and no additional text."

// verifierPrompt re-scores the run and checks the primary scorecard's
// citations.
var verifierPrompt = promptbuilder.MustNewPrompt(`<task>
Independently re-score the AI agent run below, then check the primary scorecard against the evidence.
</task>

<rubric>
{{rubric}}
</rubric>

<evidence_packet>
{{packet}}
</evidence_packet>

<primary_scorecard>
{{scorecard}}
</primary_scorecard>

<instructions>
1. Re-score each rubric dimension from the evidence alone, before looking at the primary scorecard's numbers.
2. Verify the primary scorecard's cited evidence ids exist in the packet and actually support its claims; list any that do not in missing_data.
3. If your overall score disagrees sharply with the primary scorecard, say why in your reasoning.
4. Use the same JSON structure as a normal scorecard.
</instructions>

<output_format>
Return a JSON object with this structure:
{
  "overall": 0-100,
  "confidence": 0.0-1.0,
  "dimensions": [
    {"name": "dimension_name", "score": 0-100, "reasoning": "why", "evidence_ids": ["evt-1"]}
  ],
  "reasoning": "agreement or disagreement with the primary scorecard and why",
  "evidence_ids": ["evt-1"],
  "missing_data": ["primary citations that do not exist or do not support the claim"]
}
</output_format>

Respond with only the JSON object, no additional text.`)

func buildPanelPrompt(role string, rubric Rubric, pkt *evidence.Packet) (string, error) {
	p, err := panelPrompt.BindXML("role", struct {
		XMLName struct{} `xml:"evaluator_persona"`
		Content string   `xml:",chardata"`
	}{
		Content: role,
	})
	if err != nil {
		return "", err
	}
	if p, err = p.BindJSON("rubric", rubric); err != nil {
		return "", err
	}
	if p, err = p.BindJSON("packet", pkt); err != nil {
		return "", err
	}
	out, err := p.Build()
	if err != nil {
		return "", fmt.Errorf("building panel prompt: %w", err)
	}
	return out, nil
}

func buildVerifierPrompt(rubric Rubric, pkt *evidence.Packet, primary *Scorecard) (string, error) {
	p, err := verifierPrompt.BindJSON("rubric", rubric)
	if err != nil {
		return "", err
	}
	if p, err = p.BindJSON("packet", pkt); err != nil {
		return "", err
	}
	if p, err = p.BindJSON("scorecard", primary); err != nil {
		return "", err
	}
	out, err := p.Build()
	if err != nil {
		return "", fmt.Errorf("building verifier prompt: %w", err)
	}
	return out, nil
}
