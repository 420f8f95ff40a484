/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package evidence defines the shared data model for ingested agent
// execution logs: normalized events, linked tool interactions, steps,
// the extracted task, rule flags, and the bounded evidence packet that
// the judging pipeline consumes.
//
// Everything here is recreated fresh on every ingestion pass for a run
// and fully replaces prior state. Scorecards reference event ids from
// these types as weak pointers; they never own events.
package evidence
