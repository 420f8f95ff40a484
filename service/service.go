/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package service exposes the two pipeline invocations, ingestion and
// judging, over the run state machine: uploaded -> parsing -> ready ->
// judging -> completed | completed_low_confidence | failed.
package service

import (
	"context"
	"fmt"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/evidence/ingest"
	"chainguard.dev/verdictaf/evidence/normalize"
	"chainguard.dev/verdictaf/evidence/packet"
	"chainguard.dev/verdictaf/judge"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunStatus is a run's position in the evaluation lifecycle.
type RunStatus string

const (
	StatusUploaded               RunStatus = "uploaded"
	StatusParsing                RunStatus = "parsing"
	StatusReady                  RunStatus = "ready"
	StatusJudging                RunStatus = "judging"
	StatusCompleted              RunStatus = "completed"
	StatusCompletedLowConfidence RunStatus = "completed_low_confidence"
	StatusFailed                 RunStatus = "failed"
)

// lowConfidenceThreshold splits the two completed variants.
const lowConfidenceThreshold = 0.5

// Run is the datastore's view of one agent run.
type Run struct {
	ID           string
	ProjectID    string
	Status       RunStatus
	SourceType   string
	LogObjectKey string
}

// RunStore is the relational datastore behind the pipelines.
type RunStore interface {
	GetRun(ctx context.Context, runID string) (*Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error
	// GetRubric returns the project's rubric, or nil when none is
	// configured.
	GetRubric(ctx context.Context, projectID string) (*judge.Rubric, error)
	SavePacket(ctx context.Context, runID string, pkt *evidence.Packet) error
	GetPacket(ctx context.Context, runID string) (*evidence.Packet, error)
	SaveScorecard(ctx context.Context, runID string, final *judge.FinalScorecard) error
}

// LogStore downloads raw log bytes from object storage.
type LogStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Ingestor runs the ingestion pipeline. *ingest.Pipeline satisfies it.
type Ingestor interface {
	Run(ctx context.Context, runID, raw string, opts ingest.Options) (*evidence.Packet, error)
}

// Evaluator runs the judging pipeline. *judge.Judge satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, pkt *evidence.Packet, rubric *judge.Rubric) (*judge.FinalScorecard, error)
}

// Service wires the pipelines to their collaborators.
type Service struct {
	runs   RunStore
	logs   LogStore
	ingest Ingestor
	judge  Evaluator
	tracer trace.Tracer
}

// New returns a Service over the given collaborators.
func New(runs RunStore, logs LogStore, ingestor Ingestor, evaluator Evaluator) *Service {
	return &Service{
		runs:   runs,
		logs:   logs,
		ingest: ingestor,
		judge:  evaluator,
		tracer: otel.Tracer("chainguard.dev/verdictaf/service"),
	}
}

// IngestRequest invokes ingestion for one uploaded run.
type IngestRequest struct {
	RunID       string `json:"runId"`
	IngestionID string `json:"ingestionId,omitempty"`
	SourceType  string `json:"sourceType,omitempty"`
	FormatHint  string `json:"formatHint,omitempty"`
	// MappingConfig is an optional YAML field mapping for the generic
	// adapter.
	MappingConfig string `json:"mappingConfig,omitempty"`
}

// IngestResponse reports a successful ingestion.
type IngestResponse struct {
	Success          bool    `json:"success"`
	RunID            string  `json:"runId"`
	Status           string  `json:"status"`
	PacketSizeBytes  int     `json:"packetSizeBytes"`
	ParserConfidence float64 `json:"parserConfidence"`
}

// JudgeRequest invokes judging for one ready run.
type JudgeRequest struct {
	RunID string `json:"runId"`
}

// JudgeResponse reports a successful judging.
type JudgeResponse struct {
	Success    bool    `json:"success"`
	RunID      string  `json:"runId"`
	Status     string  `json:"status"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// Ingest parses one run's raw log into an evidence packet. The run
// must be uploaded and not yet parsed, with its log resolvable in
// object storage. Fatal paths mark the run failed best-effort.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error) {
	if req.RunID == "" {
		return nil, &InputError{Msg: "runId is required"}
	}
	ctx, span := s.tracer.Start(ctx, "Ingest", trace.WithAttributes(attribute.String("run_id", req.RunID)))
	defer span.End()

	run, err := s.runs.GetRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusUploaded {
		return nil, &StateError{RunID: run.ID, Have: run.Status, Want: string(StatusUploaded)}
	}
	if run.LogObjectKey == "" {
		return nil, &NotFoundError{Kind: "log file for run", ID: run.ID}
	}

	opts := ingest.Options{
		SourceType: firstNonEmpty(req.SourceType, run.SourceType),
		FormatHint: req.FormatHint,
	}
	if req.MappingConfig != "" {
		m, err := normalize.ParseMapping([]byte(req.MappingConfig))
		if err != nil {
			return nil, &InputError{Msg: fmt.Sprintf("invalid mapping config: %v", err)}
		}
		opts.Mapping = &m
	}

	if err := s.runs.UpdateRunStatus(ctx, run.ID, StatusParsing); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	raw, err := s.logs.Download(ctx, run.LogObjectKey)
	if err != nil {
		s.markFailed(ctx, run.ID)
		return nil, err
	}

	pkt, err := s.ingest.Run(ctx, run.ID, string(raw), opts)
	if err != nil {
		s.markFailed(ctx, run.ID)
		return nil, &InputError{Msg: fmt.Sprintf("ingesting log: %v", err)}
	}

	if err := s.runs.SavePacket(ctx, run.ID, pkt); err != nil {
		s.markFailed(ctx, run.ID)
		return nil, &PersistenceError{Err: err}
	}
	if err := s.runs.UpdateRunStatus(ctx, run.ID, StatusReady); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	return &IngestResponse{
		Success:          true,
		RunID:            run.ID,
		Status:           string(StatusReady),
		PacketSizeBytes:  packet.Size(pkt),
		ParserConfidence: pkt.Metadata.ParseReport.Confidence,
	}, nil
}

// Judge scores one run's evidence packet. The run must be ready (or
// already judging, tolerating a retried invocation).
func (s *Service) Judge(ctx context.Context, req JudgeRequest) (*JudgeResponse, error) {
	if req.RunID == "" {
		return nil, &InputError{Msg: "runId is required"}
	}
	ctx, span := s.tracer.Start(ctx, "Judge", trace.WithAttributes(attribute.String("run_id", req.RunID)))
	defer span.End()

	run, err := s.runs.GetRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusReady && run.Status != StatusJudging {
		return nil, &StateError{RunID: run.ID, Have: run.Status, Want: string(StatusReady)}
	}

	pkt, err := s.runs.GetPacket(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	rubric, err := s.runs.GetRubric(ctx, run.ProjectID)
	if err != nil {
		return nil, err
	}

	if err := s.runs.UpdateRunStatus(ctx, run.ID, StatusJudging); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	final, err := s.judge.Evaluate(ctx, pkt, rubric)
	if err != nil {
		s.markFailed(ctx, run.ID)
		return nil, err
	}

	if err := s.runs.SaveScorecard(ctx, run.ID, final); err != nil {
		s.markFailed(ctx, run.ID)
		return nil, &PersistenceError{Err: err}
	}

	status := StatusCompleted
	if final.Confidence < lowConfidenceThreshold {
		status = StatusCompletedLowConfidence
	}
	if err := s.runs.UpdateRunStatus(ctx, run.ID, status); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	return &JudgeResponse{
		Success:    true,
		RunID:      run.ID,
		Status:     string(status),
		Score:      final.Overall,
		Confidence: final.Confidence,
	}, nil
}

// markFailed records a fatal outcome best-effort: a failure to mark is
// logged, never re-raised over the original error.
func (s *Service) markFailed(ctx context.Context, runID string) {
	if err := s.runs.UpdateRunStatus(ctx, runID, StatusFailed); err != nil {
		clog.FromContext(ctx).With("run_id", runID).With("error", err.Error()).Error("Failed to mark run as failed")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
