/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package format classifies raw log text into one of three shapes so
// that adapters know how to walk it.
package format

import (
	"encoding/json"
	"strings"
)

// Format is the detected shape of a raw log.
type Format string

const (
	// Lines is line-delimited JSON: one structured record per line.
	Lines Format = "line-delimited"
	// Document is a single JSON document (array or object).
	Document Format = "single-document"
	// Opaque is free text with no recoverable structure.
	Opaque Format = "opaque"
)

const (
	// sampleLines is how many leading non-blank lines are probed.
	sampleLines = 20
	// lineThreshold is the fraction of sampled lines that must parse
	// individually for the Lines classification.
	lineThreshold = 0.8
)

// Known reports whether hint names a format this package understands.
func Known(hint string) bool {
	switch Format(hint) {
	case Lines, Document, Opaque:
		return true
	}
	return false
}

// Detect classifies raw text. If hint names a known format it is
// trusted verbatim; otherwise the first sampleLines non-blank lines are
// probed, then a whole-text parse is attempted, then Opaque.
func Detect(raw, hint string) Format {
	if Known(hint) {
		return Format(hint)
	}

	sampled, parsed := 0, 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sampled++
		if json.Valid([]byte(line)) && isStructured(line) {
			parsed++
		}
		if sampled == sampleLines {
			break
		}
	}
	// A single structured line is a whole document, not a one-record
	// stream. The line classification needs at least two records.
	if sampled > 1 && float64(parsed)/float64(sampled) >= lineThreshold {
		return Lines
	}

	trimmed := strings.TrimSpace(raw)
	if isStructured(trimmed) && json.Valid([]byte(trimmed)) {
		return Document
	}

	return Opaque
}

// isStructured filters out bare JSON scalars: a record must be an
// object or array to count as structured.
func isStructured(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
