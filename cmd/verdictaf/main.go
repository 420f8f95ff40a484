/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main serves the evaluation service: log ingestion and
// model-panel judging for uploaded agent runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainguard.dev/verdictaf/evidence/ingest"
	"chainguard.dev/verdictaf/judge"
	"chainguard.dev/verdictaf/judge/modelclient"
	"chainguard.dev/verdictaf/metrics"
	"chainguard.dev/verdictaf/service"
	"chainguard.dev/verdictaf/service/logstore"
	"chainguard.dev/verdictaf/service/runstore"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/sethvargo/go-envconfig"
)

type config struct {
	Port int `env:"PORT,default=8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	LogBucket   string `env:"LOG_BUCKET,required"`

	ModelAPIKey  string `env:"MODEL_API_KEY,required"`
	ModelBaseURL string `env:"MODEL_BASE_URL"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	runs, err := runstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		clog.FatalContextf(ctx, "connecting to database: %v", err)
	}
	defer runs.Close()

	logs, err := logstore.New(ctx, cfg.LogBucket)
	if err != nil {
		clog.FatalContextf(ctx, "creating log store: %v", err)
	}
	defer logs.Close()

	genai := metrics.NewGenAI(metrics.MeterName)
	clientOpts := []modelclient.Option{
		modelclient.WithAPIKey(cfg.ModelAPIKey),
		modelclient.WithMetrics(genai),
	}
	if cfg.ModelBaseURL != "" {
		clientOpts = append(clientOpts, modelclient.WithBaseURL(cfg.ModelBaseURL))
	}
	client := modelclient.New(clientOpts...)

	panel := judge.DefaultPanel()
	verifier := judge.DefaultVerifier()
	judge.RegisterQuotas(client.Limiter(), append(panel, verifier)...)

	svc := service.New(runs, logs, ingest.New(), judge.New(client,
		judge.WithPanel(panel),
		judge.WithVerifier(verifier),
		judge.WithMetrics(genai)))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           service.Handler(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			clog.ErrorContextf(ctx, "shutting down server: %v", err)
		}
	}()

	clog.InfoContextf(ctx, "Listening on :%d", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.FatalContextf(ctx, "serving: %v", err)
	}
}
