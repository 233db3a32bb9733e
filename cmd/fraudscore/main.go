// Fraudscore - Anomaly-based transaction scoring over HTTP.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/fraudscore/internal/api"
	"github.com/opensource-finance/fraudscore/internal/artifact"
	"github.com/opensource-finance/fraudscore/internal/cache"
	"github.com/opensource-finance/fraudscore/internal/config"
	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/engine"
	"github.com/opensource-finance/fraudscore/internal/features"
	"github.com/opensource-finance/fraudscore/internal/predlog"
	"github.com/opensource-finance/fraudscore/internal/recorder"
	"github.com/opensource-finance/fraudscore/internal/repository"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	slog.Info("starting fraudscore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"model", cfg.Artifacts.ModelPath,
		"scaler", cfg.Artifacts.ScalerPath,
		"feature_scheme", cfg.Artifacts.FeatureScheme,
		"threshold", cfg.Engine.Threshold,
		"audit", cfg.Audit.Driver,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	scheme, err := features.Lookup(cfg.Artifacts.FeatureScheme)
	if err != nil {
		slog.Error("invalid feature scheme", "error", err)
		os.Exit(1)
	}

	// Load artifacts before accepting any traffic
	store, err := artifact.Load(cfg.Artifacts.ModelPath, cfg.Artifacts.ScalerPath, scheme)
	if err != nil {
		var loadErr *domain.ArtifactLoadError
		if errors.As(err, &loadErr) {
			slog.Error("failed to load artifact", "path", loadErr.Path, "error", loadErr.Err)
		} else {
			slog.Error("failed to load artifacts", "error", err)
		}
		os.Exit(1)
	}
	info := store.Info()
	slog.Info("artifacts loaded",
		"model_kind", info.ModelKind,
		"scaler_kind", info.ScalerKind,
		"features", info.Features,
	)

	// Prediction log
	plog, err := predlog.Open(cfg.PredictionLog)
	if err != nil {
		slog.Error("failed to open prediction log", "error", err)
		os.Exit(1)
	}
	defer plog.Close()

	var scorer engine.Scorer = store
	if cfg.Engine.ScoreCacheSize > 0 {
		scorer = cache.NewScoreCache(store, cfg.Engine.ScoreCacheSize)
		slog.Info("score cache enabled", "size", cfg.Engine.ScoreCacheSize)
	}

	eng, err := engine.New(scorer, scheme, cfg.Engine, plog)
	if err != nil {
		slog.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}

	// Optional decision audit. Interfaces stay nil when disabled.
	var (
		rec    *recorder.Recorder
		sink   domain.DecisionSink
		recIf  api.DecisionRecorder
		pinger api.Pinger
	)
	if cfg.Audit.Driver != domain.AuditNone {
		sink, err = repository.New(cfg.Audit)
		if err != nil {
			slog.Error("failed to initialize audit sink", "error", err)
			os.Exit(1)
		}
		defer sink.Close()

		rec = recorder.New(sink, cfg.Audit.Buffer)
		rec.Start()
		recIf, pinger = rec, sink
		slog.Info("audit sink initialized", "driver", cfg.Audit.Driver, "buffer", cfg.Audit.Buffer)
	}

	model := api.ModelInfo{
		ArtifactInfo:  info,
		FeatureScheme: scheme.Name,
		Threshold:     eng.Threshold(),
	}
	handler := api.NewHandler(eng, recIf, pinger, model, Version)
	srv := api.NewServer(cfg.Server, handler)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudscore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Flush pending audit records after the last request has finished
	if rec != nil {
		if err := rec.Stop(shutdownCtx); err != nil {
			slog.Error("audit recorder did not drain", "error", err)
		}
		appended, failed, dropped := rec.Stats()
		slog.Info("audit recorder stopped", "appended", appended, "failed", failed, "dropped", dropped)
	}

	slog.Info("fraudscore shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |               FRAUDSCORE                  |")
	fmt.Println("  |     Anomaly-based transaction scoring     |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:    %s\n", version)
	fmt.Printf("  Server:     http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Features:   %s\n", cfg.Artifacts.FeatureScheme)
	fmt.Printf("  Threshold:  %g\n", cfg.Engine.Threshold)
	fmt.Printf("  Audit:      %s\n", cfg.Audit.Driver)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict  - Score a transaction")
	fmt.Println("    GET  /model    - Loaded artifacts and threshold")
	fmt.Println("    GET  /health   - Health check")
	fmt.Println("    GET  /ready    - Readiness check")
	fmt.Println("    GET  /metrics  - Prometheus metrics")
	fmt.Println()
}
