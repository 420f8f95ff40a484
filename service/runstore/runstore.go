/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package runstore is the Postgres implementation of the service's
// RunStore. Packet and scorecard rows are idempotent overwrites keyed
// by run id: concurrent writers are last-write-wins.
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/verdictaf/evidence"
	"chainguard.dev/verdictaf/judge"
	"chainguard.dev/verdictaf/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryTimeout = 5 * time.Second

// Store is a RunStore backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// GetRun reads one run row.
func (s *Store) GetRun(ctx context.Context, runID string) (*service.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, project_id, status, COALESCE(source_type, ''), COALESCE(log_object_key, '')
		FROM runs
		WHERE id = $1
	`
	run := &service.Run{}
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.ProjectID,
		&run.Status,
		&run.SourceType,
		&run.LogObjectKey,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &service.NotFoundError{Kind: "run", ID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return run, nil
}

// UpdateRunStatus overwrites one run's status.
func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status service.RunStatus) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $2, updated_at = NOW() WHERE id = $1`,
		runID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update status for run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return &service.NotFoundError{Kind: "run", ID: runID}
	}
	return nil
}

// GetRubric reads the project's rubric, nil when none is configured.
func (s *Store) GetRubric(ctx context.Context, projectID string) (*judge.Rubric, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rubricJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT rubric FROM rubrics WHERE project_id = $1`,
		projectID).Scan(&rubricJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rubric for project %s: %w", projectID, err)
	}

	rubric := &judge.Rubric{}
	if err := json.Unmarshal(rubricJSON, rubric); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rubric for project %s: %w", projectID, err)
	}
	return rubric, nil
}

// SavePacket upserts the run's evidence packet as JSONB.
func (s *Store) SavePacket(ctx context.Context, runID string, pkt *evidence.Packet) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	packetJSON, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("failed to marshal packet: %w", err)
	}

	query := `
		INSERT INTO evidence_packets (run_id, packet, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (run_id) DO UPDATE SET packet = EXCLUDED.packet, created_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, runID, packetJSON); err != nil {
		return fmt.Errorf("failed to save packet for run %s: %w", runID, err)
	}
	return nil
}

// GetPacket reads the run's evidence packet.
func (s *Store) GetPacket(ctx context.Context, runID string) (*evidence.Packet, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var packetJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT packet FROM evidence_packets WHERE run_id = $1`,
		runID).Scan(&packetJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &service.NotFoundError{Kind: "packet for run", ID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get packet for run %s: %w", runID, err)
	}

	pkt := &evidence.Packet{}
	if err := json.Unmarshal(packetJSON, pkt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal packet for run %s: %w", runID, err)
	}
	return pkt, nil
}

// SaveScorecard upserts the run's final scorecard as JSONB.
func (s *Store) SaveScorecard(ctx context.Context, runID string, final *judge.FinalScorecard) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	scorecardJSON, err := json.Marshal(final)
	if err != nil {
		return fmt.Errorf("failed to marshal scorecard: %w", err)
	}

	query := `
		INSERT INTO scorecards (run_id, scorecard, score, confidence, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (run_id) DO UPDATE SET
			scorecard = EXCLUDED.scorecard,
			score = EXCLUDED.score,
			confidence = EXCLUDED.confidence,
			created_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, runID, scorecardJSON, final.Overall, final.Confidence); err != nil {
		return fmt.Errorf("failed to save scorecard for run %s: %w", runID, err)
	}
	return nil
}
