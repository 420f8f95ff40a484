/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import "chainguard.dev/verdictaf/judge/ratelimit"

// ModelSpec describes one candidate model and its free-tier quotas.
type ModelSpec struct {
	// ID is the provider model identifier.
	ID string
	// Role names the evaluator persona the model plays on the panel.
	Role string
	// RPM, RPD, and TPM are the provider's stated requests-per-minute,
	// requests-per-day, and tokens-per-minute allowances.
	RPM int
	RPD int
	TPM int
}

// DefaultPanel is the ordered panel consulted as primary evaluators.
// Order matters: earlier models anchor the adjudication when later
// ones fail.
func DefaultPanel() []ModelSpec {
	return []ModelSpec{{
		ID:   "llama-3.3-70b-versatile",
		Role: "thorough",
		RPM:  30,
		RPD:  1_000,
		TPM:  12_000,
	}, {
		ID:   "llama-3.1-8b-instant",
		Role: "strict",
		RPM:  30,
		RPD:  14_400,
		TPM:  6_000,
	}, {
		ID:   "gemma2-9b-it",
		Role: "skeptical",
		RPM:  30,
		RPD:  14_400,
		TPM:  15_000,
	}}
}

// DefaultVerifier is the cheaper model used for the cross-check pass.
func DefaultVerifier() ModelSpec {
	return ModelSpec{
		ID:   "llama-3.1-8b-instant",
		Role: "verifier",
		RPM:  30,
		RPD:  14_400,
		TPM:  6_000,
	}
}

// RegisterQuotas registers each model's RPM allowance on the limiter.
func RegisterQuotas(l *ratelimit.Limiter, models ...ModelSpec) {
	for _, m := range models {
		l.SetRPM(m.ID, m.RPM)
	}
}
