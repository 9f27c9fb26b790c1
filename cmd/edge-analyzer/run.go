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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"edge-analyzer/internal/auth"
	"edge-analyzer/internal/capture"
	"edge-analyzer/internal/config"
	"edge-analyzer/internal/db"
	httphandler "edge-analyzer/internal/http"
	"edge-analyzer/internal/http/middleware"
	"edge-analyzer/internal/logger"
	"edge-analyzer/internal/metrics"
	"edge-analyzer/internal/repository"
	"edge-analyzer/internal/scheduler"
	"edge-analyzer/internal/scoring"
	"edge-analyzer/internal/service"
	"edge-analyzer/internal/sink"
	"edge-analyzer/internal/staging"
	"edge-analyzer/internal/storage"
)

func loadFleet(ctx context.Context, cfg *config.Config) (*config.Fleet, error) {
	client := &http.Client{Timeout: cfg.HTTPClientTimeout}
	return config.LoadFleet(ctx, cfg.Fleet, client)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fleet, err := loadFleet(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load fleet: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics, err := metrics.New(registry)
	if err != nil {
		return err
	}

	// The detection store is optional: without DB_DSN the API only serves status.
	database, err := db.New(cfg, appLogger)
	if err != nil && !errors.Is(err, db.ErrNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}
	if err != nil {
		appLogger.Warn().Msg("DB_DSN not set, detections will not be stored")
	}
	var repo *repository.AnalysisRepository
	if database != nil {
		repo = repository.NewAnalysisRepository(database)
	}

	var uploader storage.Uploader
	archive, err := storage.NewArchiveFromEnv()
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to initialize archive client")
	}
	if err != nil {
		appLogger.Warn().Msg("archive storage not configured, output files stay local")
	} else {
		uploader = archive
	}

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	queue := staging.NewFSQueue()
	output := storage.NewOutputWriter(storage.NewNamer(cfg.Storage), uploader, appLogger)
	stage := capture.NewStage(capture.NewHTTPSource(httpClient), queue, appMetrics, appLogger)
	scorer := scoring.Limit(scoring.NewHTTPScorer(httpClient), cfg.Scheduler.MaxConcurrentScoring)
	analyzer := service.NewAnalyzer(queue, scorer, output, appMetrics, cfg.Scheduler.MaxConcurrentImages, appLogger)

	broadcaster := sink.NewBroadcaster(appLogger)
	sinks := []sink.Sink{broadcaster}
	if cfg.MQTT.Broker != "" {
		mqttSink, err := sink.DialMQTT(ctx, cfg.MQTT, appLogger)
		if err != nil {
			return err
		}
		defer mqttSink.Close()
		sinks = append(sinks, mqttSink)
	} else {
		appLogger.Warn().Msg("MQTT_BROKER not set, messages are not forwarded upstream")
	}
	if repo != nil {
		sinks = append(sinks, sink.NewRepositorySink(repo))
	}

	router := service.NewRouter(sink.Multi(sinks...), appMetrics, appLogger)
	pipeline := service.NewPipeline(fleet, stage, analyzer, router, cfg.Scheduler, appMetrics, appLogger)

	driver, err := scheduler.NewDriver(cfg.Scheduler.TimerInterval, scheduler.NewCounter(0), pipeline, appLogger)
	if err != nil {
		return err
	}

	var store httphandler.DetectionStore
	if repo != nil {
		store = repo
	}
	var authMiddleware gin.HandlerFunc
	if cfg.Auth.AccessSecret != "" {
		authMiddleware = middleware.Auth(auth.NewParser(cfg.Auth.AccessSecret))
	}
	handler := httphandler.NewHandler(pipeline, fleet, store, broadcaster, appLogger)
	engine := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, database, registry, appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info().Str("addr", addr).Msg("starting HTTP API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		appLogger.Info().
			Int("cameras", len(fleet.Cameras)).
			Int("triples", fleet.Triples()).
			Dur("timer_interval", cfg.Scheduler.TimerInterval).
			Msg("starting scheduler")
		if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down")
	cancel()
	<-driverDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	broadcaster.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("server exited")
	return nil
}
