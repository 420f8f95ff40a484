/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"chainguard.dev/verdictaf/judge"
	"chainguard.dev/verdictaf/judge/ratelimit"
)

// InputError is a missing or malformed request.
type InputError struct{ Msg string }

func (e *InputError) Error() string { return e.Msg }

// NotFoundError is a run, log file, or packet that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// StateError is a run that is not in the status an operation requires.
type StateError struct {
	RunID string
	Have  RunStatus
	Want  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("run %s is %s, want %s", e.RunID, e.Have, e.Want)
}

// PersistenceError is a datastore write failure.
type PersistenceError struct{ Err error }

func (e *PersistenceError) Error() string { return fmt.Sprintf("persisting run state: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// HTTPStatus maps a pipeline error onto the status code the API layer
// surfaces. Unknown errors are 500s.
func HTTPStatus(err error) int {
	var (
		input     *InputError
		notFound  *NotFoundError
		state     *StateError
		persisted *PersistenceError
	)
	switch {
	case errors.As(err, &input), errors.As(err, &state):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case ratelimit.IsRateLimit(err):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case judge.IsAllPanelFailure(err), errors.As(err, &persisted):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RetryAfter extracts the provider's retry-after hint in seconds from
// a rate-limit failure, zero when absent.
func RetryAfter(err error) int {
	var rle *ratelimit.Error
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return int(rle.RetryAfter.Seconds())
	}
	return 0
}
