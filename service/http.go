/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/chainguard-dev/clog"
)

// errorResponse is the JSON body for failed invocations.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	// RetryAfter is advisory, in seconds, on 429 and 504 responses.
	RetryAfter int `json:"retryAfter,omitempty"`
}

// Handler returns the HTTP API for the two pipeline invocations.
func Handler(s *Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs/{runID}/ingest", s.handleIngest)
	mux.HandleFunc("POST /v1/runs/{runID}/judge", s.handleJudge)
	return mux
}

func (s *Service) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r, w, &InputError{Msg: "malformed request body"})
		return
	}
	req.RunID = r.PathValue("runID")

	resp, err := s.Ingest(r.Context(), req)
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(r, w, http.StatusOK, resp)
}

func (s *Service) handleJudge(w http.ResponseWriter, r *http.Request) {
	resp, err := s.Judge(r.Context(), JudgeRequest{RunID: r.PathValue("runID")})
	if err != nil {
		writeError(r, w, err)
		return
	}
	writeJSON(r, w, http.StatusOK, resp)
}

// decodeBody parses an optional JSON body. An empty body is valid; the
// run id comes from the path.
func decodeBody(r *http.Request, out any) error {
	err := json.NewDecoder(r.Body).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(r *http.Request, w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	body := errorResponse{Error: err.Error()}

	switch status {
	case http.StatusTooManyRequests:
		if after := RetryAfter(err); after > 0 {
			body.RetryAfter = after
			w.Header().Set("Retry-After", strconv.Itoa(after))
		}
	case http.StatusGatewayTimeout:
		body.Error = "pipeline exceeded its execution time budget, retry the invocation"
	}

	clog.FromContext(r.Context()).With("path", r.URL.Path).
		With("status", status).
		With("error", err.Error()).
		Warn("Invocation failed")
	writeJSON(r, w, status, body)
}

func writeJSON(r *http.Request, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		clog.FromContext(r.Context()).With("error", err.Error()).Error("Failed to encode response")
	}
}
