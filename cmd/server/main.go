package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/contentcrm/api"
	"github.com/garnizeh/contentcrm/internal/config"
	"github.com/garnizeh/contentcrm/internal/dashboard"
	"github.com/garnizeh/contentcrm/internal/jobs"
	"github.com/garnizeh/contentcrm/internal/schema"
	"github.com/garnizeh/contentcrm/internal/store"
	"github.com/garnizeh/contentcrm/internal/summary"
	"github.com/garnizeh/contentcrm/internal/users"
	"github.com/garnizeh/contentcrm/internal/workflow"
	"github.com/garnizeh/contentcrm/pkg/ollama"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(*configPath, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	api.SetLogger(logger)
	ollama.SetLogger(logger)
	logger.Info("starting contentcrm server", "version", version, "build_time", buildTime, "driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("close store", "err", err)
		}
	}()

	schemas, err := schema.New()
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	engine := workflow.New(st, st, st,
		workflow.WithLogger(logger),
		workflow.WithMaxRetries(cfg.Workflow.MaxRetries),
	)
	svc := api.Services{
		Engine:    engine,
		Jobs:      st,
		Users:     users.NewService(st),
		Dashboard: dashboard.New(st.Backend, st, dashboard.WithDueSoonWindow(cfg.Workflow.DueSoonWindow)),
		Schemas:   schemas,
		DB:        st,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Summary.Enabled {
		pool, closeClient, err := startSummaryWorkers(gctx, cfg, st, engine, schemas, logger)
		if err != nil {
			return err
		}
		defer closeClient()
		svc.Summary = summary.NewQueue(jobs.NewRepository(st.SQLite), cfg.Summary.MaxAttempts)
		g.Go(func() error {
			<-gctx.Done()
			pool.Stop()
			return nil
		})
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.SetupRoutes(cfg, version, buildTime, svc),
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func startSummaryWorkers(ctx context.Context, cfg *config.Config, st *store.Store, engine *workflow.Engine,
	schemas *schema.Registry, logger *slog.Logger) (*jobs.WorkerPool, func(), error) {
	client, err := ollama.NewDefaultClient(cfg.Ollama)
	if err != nil {
		return nil, nil, fmt.Errorf("ollama client: %w", err)
	}
	closeClient := func() { _ = client.Close() }

	// startup continues without a reachable model server
	switch ok, err := client.HasModel(ctx, cfg.Summary.Model); {
	case err != nil:
		logger.Warn("ollama not ready", "base_url", cfg.Ollama.BaseURL, "err", err)
	case !ok:
		logger.Warn("summary model not pulled", "base_url", cfg.Ollama.BaseURL, "model", cfg.Summary.Model)
	}

	summarizer, err := summary.New(client, schemas, cfg.Summary, logger)
	if err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("summarizer: %w", err)
	}
	processor := summary.NewProcessor(summarizer, st, engine, logger)

	pool := jobs.NewWorkerPool(jobs.NewRepository(st.SQLite), map[string]jobs.Handler{
		summary.TaskType: processor.Handle,
	}, logger, cfg.Workers)
	pool.Start(ctx)
	logger.Info("summary workers started", "workers", cfg.Workers, "model", cfg.Summary.Model)
	return pool, closeClient, nil
}
