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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"resolution-dashboard/config"
	"resolution-dashboard/database"
	"resolution-dashboard/dataset"
	"resolution-dashboard/handlers"
	"resolution-dashboard/logger"
	"resolution-dashboard/runner"
	"resolution-dashboard/sources"
	"resolution-dashboard/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.InitDB(cfg.DBPath); err != nil {
		return err
	}
	db := database.GetDB()

	primary, fallback, cleanup, err := buildSources(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	catalog := sources.NewCatalog(primary, fallback, sources.CatalogOptions{
		MongoOnly:        cfg.Features.MongoOnlyResults,
		SingleExperiment: cfg.Features.SingleExperiment,
	}, log)

	history := database.NewHistoryStore(db)
	deps := handlers.Deps{
		Config:   cfg,
		Catalog:  catalog,
		Datasets: dataset.NewStore(catalog, log),
		Prefs:    database.NewPreferenceStore(db),
		History:  history,
		Log:      log,
	}
	if !cfg.Features.DisableExperimentRunner {
		client := runner.NewClient(cfg.Runner.APIURL, log)
		monitor := runner.NewMonitor(client, history, cfg.Runner.PollInterval, log)
		defer monitor.Close()
		deps.Runner = runner.NewService(client, monitor, history, log)
	}

	tmpl, err := web.Templates()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.New(deps), tmpl)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Port).
			Str("source", cfg.Results.Source).
			Bool("runner", deps.Runner != nil).
			Msgf("dashboard: http://localhost:%d/dashboard", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildSources picks the primary results source. Remote sources fall back
// to the local results directories unless MongoDB-only mode is set.
func buildSources(ctx context.Context, cfg *config.Config, log zerolog.Logger) (sources.Source, sources.Source, func(), error) {
	files := sources.NewFileSource(cfg.Results.Dirs, cfg.Results.BatchSize, log)
	noop := func() {}

	switch cfg.Results.Source {
	case config.SourceAPI:
		api := sources.NewAPISource(cfg.Results.APIURL, cfg.Results.BatchSize, cfg.Results.BatchRate, log)
		return api, files, noop, nil
	case config.SourceMongo:
		mongo, err := sources.NewMongoSource(ctx, cfg.Mongo, log)
		if err != nil {
			if cfg.Features.MongoOnlyResults {
				return nil, nil, nil, err
			}
			log.Warn().Err(err).Msg("mongodb unavailable, using results directories")
			return files, nil, noop, nil
		}
		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongo.Close(closeCtx); err != nil {
				log.Warn().Err(err).Msg("failed to disconnect from mongodb")
			}
		}
		return mongo, files, cleanup, nil
	case config.SourceIndex:
		index := sources.NewIndexSource(cfg.Results.IndexURL, cfg.Results.Dirs, cfg.Results.BatchSize, log)
		return index, files, noop, nil
	default:
		return files, nil, noop, nil
	}
}
