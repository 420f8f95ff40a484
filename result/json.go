/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package result extracts structured data from model responses.
// Models asked for JSON still wrap it in markdown fences or prose
// often enough that callers should never unmarshal raw response text.
package result

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ExtractJSON returns the JSON content of a model response, stripping
// a ```json fenced block when present, otherwise trimming whitespace
// and any bare fences around the whole response.
func ExtractJSON(responseText string) string {
	var buf bytes.Buffer
	inBlock := false
	found := false
	for _, line := range strings.Split(responseText, "\n") {
		if !inBlock && line == "```json" {
			inBlock = true
			found = true
			continue
		}
		if inBlock && line == "```" {
			break
		}
		if inBlock {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(line)
		}
	}
	if found {
		// An empty fenced block yields "", which fails unmarshal at
		// the caller.
		return strings.TrimSpace(buf.String())
	}

	responseText = strings.TrimSpace(responseText)
	if strings.HasPrefix(responseText, "```json") && strings.HasSuffix(responseText, "```") {
		responseText = strings.TrimPrefix(responseText, "```json")
	} else {
		responseText = strings.TrimPrefix(responseText, "```")
	}
	responseText = strings.TrimSuffix(responseText, "```")
	return strings.TrimSpace(responseText)
}

// Extract unmarshals the JSON content of a model response into T.
func Extract[T any](responseText string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(ExtractJSON(responseText)), &out); err != nil {
		return out, err
	}
	return out, nil
}
