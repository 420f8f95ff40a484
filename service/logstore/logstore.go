/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package logstore downloads raw agent logs from object storage.
package logstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"chainguard.dev/verdictaf/service"
	"cloud.google.com/go/storage"
	"github.com/chainguard-dev/clog"
)

// Store reads log objects from one GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
}

// New returns a Store over the named bucket using ambient credentials.
func New(ctx context.Context, bucket string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Download reads the full object at key.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, &service.NotFoundError{Kind: "log object", ID: key}
	}
	if err != nil {
		return nil, fmt.Errorf("opening log object %s: %w", key, err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading log object %s: %w", key, err)
	}
	clog.FromContext(ctx).With("key", key).With("bytes", len(b)).Debug("Downloaded log object")
	return b, nil
}
