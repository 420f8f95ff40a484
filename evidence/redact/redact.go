/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package redact scrubs credential-shaped substrings from event
// payloads before anything leaves the ingestion pipeline.
//
// Rules are an ordered, pluggable list of pattern/marker pairs so new
// credential shapes can be added without touching control flow.
package redact

import (
	"encoding/json"
	"regexp"

	"chainguard.dev/verdictaf/evidence"
)

// Marker replaces every matched credential substring.
const Marker = "[REDACTED]"

// Rule is one named credential shape.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultRules covers the common credential shapes seen in agent logs:
// vendor API key prefixes, bearer tokens, and key=value style secret
// assignments.
func DefaultRules() []Rule {
	return []Rule{
		// More specific prefixes first: sk-ant- would otherwise be
		// claimed by the generic sk- rule.
		{Name: "anthropic_api_key", Pattern: regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
		{Name: "openai_api_key", Pattern: regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`)},
		{Name: "github_token", Pattern: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{20,}`)},
		{Name: "aws_access_key", Pattern: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{Name: "bearer_token", Pattern: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_.~+/=-]{16,}`)},
		{Name: "secret_assignment", Pattern: regexp.MustCompile(`(?i)(password|passwd|secret|api_key|apikey|token|credential)["']?\s*[:=]\s*["']?[^\s"',}]{6,}`)},
	}
}

// Events applies the rules to every event's serialized payload. An
// event's payload is replaced only when at least one substitution
// occurred there. The report records which distinct rules fired and the
// total substitution count.
func Events(events []evidence.ParsedEvent, rules []Rule) evidence.RedactionReport {
	report := evidence.RedactionReport{}
	fired := map[string]bool{}

	for i := range events {
		raw, err := json.Marshal(events[i].Data)
		if err != nil {
			continue
		}

		scrubbed := raw
		before := report.RedactedCount
		for _, rule := range rules {
			scrubbed = rule.Pattern.ReplaceAllFunc(scrubbed, func([]byte) []byte {
				report.RedactedCount++
				fired[rule.Name] = true
				return []byte(Marker)
			})
		}
		if report.RedactedCount == before {
			continue
		}

		var clean map[string]any
		if err := json.Unmarshal(scrubbed, &clean); err != nil {
			// Substitution broke the JSON shape (quote inside a match).
			// Fall back to carrying the scrubbed text opaquely rather
			// than keeping the secret.
			clean = map[string]any{"redacted_payload": string(scrubbed)}
		}
		events[i].Data = clean
	}

	for _, rule := range rules {
		if fired[rule.Name] {
			report.PatternsMatched = append(report.PatternsMatched, rule.Name)
		}
	}

	return report
}
