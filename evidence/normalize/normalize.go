/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package normalize turns raw log records into uniform ParsedEvents
// under a caller-suppliable field mapping. Adapters layer source
// knowledge on top; this package owns record walking, field lookup,
// timestamp canonicalization, and the parse report.
package normalize

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/evidence/format"
	"gopkg.in/yaml.v3"
)

// Mapping tells the normalizer where to read event fields. Each entry
// is a list of dot-separated paths tried in order.
type Mapping struct {
	IDFields        []string `yaml:"id_fields" json:"id_fields"`
	TypeFields      []string `yaml:"type_fields" json:"type_fields"`
	TimestampFields []string `yaml:"timestamp_fields" json:"timestamp_fields"`
	// DataField optionally narrows the event payload to a nested
	// object; empty means the whole record.
	DataField string `yaml:"data_field" json:"data_field"`
}

// DefaultMapping returns the mapping used when the caller supplies none.
func DefaultMapping() Mapping {
	return Mapping{
		IDFields:        []string{"id"},
		TypeFields:      []string{"type", "event", "event_type"},
		TimestampFields: []string{"timestamp", "time"},
	}
}

// ParseMapping reads a Mapping from YAML. Unset lists fall back to the
// defaults so a partial config only overrides what it names.
func ParseMapping(data []byte) (Mapping, error) {
	m := DefaultMapping()
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Mapping{}, fmt.Errorf("parsing mapping config: %w", err)
	}
	d := DefaultMapping()
	if len(m.IDFields) == 0 {
		m.IDFields = d.IDFields
	}
	if len(m.TypeFields) == 0 {
		m.TypeFields = d.TypeFields
	}
	if len(m.TimestampFields) == 0 {
		m.TimestampFields = d.TimestampFields
	}
	return m, nil
}

// Records extracts raw records from text of the given format.
//
// Line-delimited input parses each line independently; failures become
// warnings and the line is dropped. A single document uses the first
// array found anywhere in the top-level object (or the document itself
// when it is an array); with no array the whole document is one record.
// Opaque text yields one record per non-blank line.
func Records(raw string, f format.Format) ([]map[string]any, []string) {
	var warnings []string

	switch f {
	case format.Lines:
		var records []map[string]any
		for i, line := range strings.Split(raw, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var rec map[string]any
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				warnings = append(warnings, fmt.Sprintf("line %d: %v", i+1, err))
				continue
			}
			records = append(records, rec)
		}
		return records, warnings

	case format.Document:
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "[") {
			var arr []map[string]any
			if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
				warnings = append(warnings, fmt.Sprintf("document array: %v", err))
				return nil, warnings
			}
			return arr, warnings
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			warnings = append(warnings, fmt.Sprintf("document: %v", err))
			return nil, warnings
		}
		if arr, ok := firstArray(doc); ok {
			return arr, warnings
		}
		// No embedded array; the document itself is the one record.
		return []map[string]any{doc}, warnings

	default:
		var records []map[string]any
		for _, line := range strings.Split(raw, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			records = append(records, map[string]any{"text": line})
		}
		return records, warnings
	}
}

// firstArray returns the first array of objects found among the
// top-level fields, in key order for determinism.
func firstArray(doc map[string]any) ([]map[string]any, bool) {
	var keys []string
	for k := range doc {
		keys = append(keys, k)
	}
	// Sort for stable selection across parses.
	slices.Sort(keys)
	for _, k := range keys {
		arr, ok := doc[k].([]any)
		if !ok {
			continue
		}
		records := make([]map[string]any, 0, len(arr))
		for _, item := range arr {
			if rec, ok := item.(map[string]any); ok {
				records = append(records, rec)
			}
		}
		if len(records) > 0 {
			return records, true
		}
	}
	return nil, false
}

// Events maps records into ParsedEvents. Sequence numbers are dense
// from 0 in input order. Records are never dropped here: a record with
// no recognizable fields still becomes an event of type "unknown".
func Events(records []map[string]any, m Mapping) []evidence.ParsedEvent {
	events := make([]evidence.ParsedEvent, 0, len(records))
	for i, rec := range records {
		ev := evidence.ParsedEvent{
			Sequence: i,
			Type:     "unknown",
			Data:     rec,
		}

		if id, ok := lookupString(rec, m.IDFields); ok {
			ev.ID = id
		} else {
			ev.ID = fmt.Sprintf("evt-%d", i)
		}
		if typ, ok := lookupString(rec, m.TypeFields); ok {
			ev.Type = typ
		}
		if raw, ok := lookupAny(rec, m.TimestampFields); ok {
			if ts, ok := ParseTimestamp(raw); ok {
				ev.Timestamp = &ts
			}
		}
		if m.DataField != "" {
			if nested, ok := lookupPath(rec, m.DataField); ok {
				if obj, ok := nested.(map[string]any); ok {
					ev.Data = obj
				}
			}
		}

		events = append(events, ev)
	}
	return events
}

// Report derives the per-adapter parse quality report. The confidence
// blends event yield with timestamp and type coverage, penalized by
// parse errors; it is informational only.
func Report(adapter string, totalRecords int, events []evidence.ParsedEvent, warnings []string) evidence.ParseReport {
	r := evidence.ParseReport{
		Adapter:        adapter,
		TotalRecords:   totalRecords,
		EventsProduced: len(events),
		ParseErrors:    len(warnings),
		Warnings:       warnings,
	}
	if len(events) > 0 {
		withTS, typed := 0, 0
		for _, ev := range events {
			if ev.Timestamp != nil {
				withTS++
			}
			if ev.Type != "unknown" {
				typed++
			}
		}
		r.TimestampCoverage = float64(withTS) / float64(len(events))
		r.TypedCoverage = float64(typed) / float64(len(events))
	}

	yield := 0.0
	if totalRecords > 0 {
		yield = float64(len(events)) / float64(totalRecords)
	}
	conf := 0.5*yield + 0.25*r.TimestampCoverage + 0.25*r.TypedCoverage
	if totalRecords > 0 {
		conf -= 0.5 * float64(r.ParseErrors) / float64(totalRecords)
	}
	r.Confidence = min(max(conf, 0), 1)
	return r
}

// timestampLayouts are tried in order after RFC3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseTimestamp canonicalizes a raw timestamp value to UTC. Strings
// try the known layouts; numbers are unix seconds or milliseconds.
// Unparsable values report false rather than erroring.
func ParseTimestamp(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts.UTC(), true
			}
		}
	case float64:
		if v <= 0 {
			return time.Time{}, false
		}
		// Heuristic: values past the year 2286 in seconds are millis.
		if v > 1e12 {
			return time.UnixMilli(int64(v)).UTC(), true
		}
		return time.Unix(int64(v), 0).UTC(), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return ParseTimestamp(f)
		}
	}
	return time.Time{}, false
}

// lookupPath resolves a dot-separated path in a record.
func lookupPath(rec map[string]any, path string) (any, bool) {
	cur := any(rec)
	for part := range strings.SplitSeq(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func lookupAny(rec map[string]any, paths []string) (any, bool) {
	for _, p := range paths {
		if v, ok := lookupPath(rec, p); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupString(rec map[string]any, paths []string) (string, bool) {
	v, ok := lookupAny(rec, paths)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
