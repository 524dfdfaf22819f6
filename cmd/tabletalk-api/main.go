package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tabletalk/tabletalk/internal/api"
	"github.com/tabletalk/tabletalk/internal/catalog"
	catalogmemory "github.com/tabletalk/tabletalk/internal/catalog/memory"
	catalogpostgres "github.com/tabletalk/tabletalk/internal/catalog/postgres"
	"github.com/tabletalk/tabletalk/internal/codegen"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/pipeline"
	duckdbengine "github.com/tabletalk/tabletalk/internal/query/duckdb"
	"github.com/tabletalk/tabletalk/internal/report"
	"github.com/tabletalk/tabletalk/internal/storage"
	storagememory "github.com/tabletalk/tabletalk/internal/storage/memory"
	s3store "github.com/tabletalk/tabletalk/internal/storage/s3"
	"github.com/tabletalk/tabletalk/internal/tablestore"
)

func main() {
	cfg, err := config.LoadFromEnv("tabletalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	shutdownTracing, err := observability.InitTracing(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	backend, err := openBackend(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open table store backend", slog.String("backend", string(cfg.Store.Backend)), slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.close()

	store := tablestore.New(backend.repo, backend.objects, tablestore.Options{
		MaxFiles: cfg.Upload.MaxFilesPerSession,
		MaxBytes: cfg.Upload.MaxBytes,
	}, logger)

	client, err := llm.NewClient(context.Background(), cfg.AI)
	switch {
	case errors.Is(err, llm.ErrNoCredential):
		logger.Warn("no language model credential configured; questions will be rejected and reports use the fallback")
	case err != nil:
		logger.Error("failed to initialize language model client", slog.Any("error", err))
		os.Exit(1)
	}

	generator := codegen.NewGenerator(client, codegen.Options{
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})
	reporter := report.NewGenerator(client, report.Options{
		Model:       cfg.AI.ReportModel,
		Temperature: cfg.AI.ReportTemperature,
		MaxTokens:   cfg.AI.ReportMaxTokens,
	}, logger)
	engine := duckdbengine.NewEngine(duckdbengine.Options{
		Timeout:     cfg.Execution.Timeout,
		MemoryLimit: cfg.Execution.MemoryLimit,
		Threads:     cfg.Execution.Threads,
	})
	analyst := pipeline.NewService(store, generator, engine, reporter, pipeline.Options{RowCap: cfg.Execution.RowCap}, logger)

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Files:             store,
		Dashboard:         store,
		Analyst:           analyst,
		Readiness:         api.CombineReadinessChecks(backend.checks...),
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.String("backend", string(cfg.Store.Backend)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

type backend struct {
	repo    catalog.Repository
	objects storage.FileStore
	checks  []api.ReadinessCheck
	db      *sql.DB
}

func (b backend) close() {
	if b.db != nil {
		_ = b.db.Close()
	}
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	if cfg.Store.Backend == config.StoreBackendMemory {
		repo := catalogmemory.NewRepository()
		return backend{
			repo:    repo,
			objects: storagememory.NewStore(),
			checks:  []api.ReadinessCheck{api.NamedCheck("catalog", repo.HealthCheck)},
		}, nil
	}

	db, err := catalogpostgres.Open(ctx, cfg.Catalog, cfg.Service.Name)
	if err != nil {
		return backend{}, err
	}
	objects, err := s3store.Open(ctx, cfg.ObjectStore)
	if err != nil {
		_ = db.Close()
		return backend{}, err
	}
	repo := catalogpostgres.NewRepository(db)
	return backend{
		repo:    repo,
		objects: objects,
		db:      db,
		checks: []api.ReadinessCheck{
			api.NamedCheck("catalog", repo.HealthCheck),
			api.NamedCheck("object store", objects.HealthCheck),
		},
	}, nil
}
