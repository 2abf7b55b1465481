package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	httpadapter "github.com/seawhisper/alert-monitor/internal/adapter/http"
	kafkaadapter "github.com/seawhisper/alert-monitor/internal/adapter/kafka"
	"github.com/seawhisper/alert-monitor/internal/adapter/mapbox"
	"github.com/seawhisper/alert-monitor/internal/adapter/memory"
	mqttadapter "github.com/seawhisper/alert-monitor/internal/adapter/mqtt"
	"github.com/seawhisper/alert-monitor/internal/adapter/postgres"
	redisadapter "github.com/seawhisper/alert-monitor/internal/adapter/redis"
	"github.com/seawhisper/alert-monitor/internal/config"
	"github.com/seawhisper/alert-monitor/internal/detector"
	"github.com/seawhisper/alert-monitor/internal/domain"
	"github.com/seawhisper/alert-monitor/internal/observability"
	"github.com/seawhisper/alert-monitor/internal/pipeline"
	"github.com/seawhisper/alert-monitor/internal/scheduler"
)

// store is what every backing store provides to the detector and the API.
type store interface {
	detector.ReadingSource
	detector.AlertStore
	pipeline.ReadingSink
	Resolve(ctx context.Context, id string) (domain.Alert, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	readiness := observability.ReadinessGroup{}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}
	if rc, ok := st.(sharedobs.ReadinessChecker); ok {
		readiness = append(readiness, rc)
	}

	if cfg.SeedDemoAlert {
		seedDemoAlert(ctx, st, logger)
	}

	detectorOpts := []detector.Option{
		detector.WithLookback(cfg.LookbackWindow),
		detector.WithBatchSize(cfg.AlertBatchSize),
		detector.WithParameters(cfg.MonitoredParameters...),
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		detectorOpts = append(detectorOpts, detector.WithGeocoder(mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)))
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var ingest *pipeline.Pipeline
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaAlertsTopic, logger)
		reader := kafkaadapter.NewReader(cfg, logger)
		closers = append(closers, reader.Close, writer.Close)

		detectorOpts = append(detectorOpts, detector.WithPublisher(writer))
		ingest = pipeline.New(reader, pipeline.NewDecoder(), st, logger, metrics, cfg.IngestBatchSize)
		readiness = append(readiness, reader, ingest)
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers,
			"readings_topic", cfg.KafkaReadingsTopic, "alerts_topic", cfg.KafkaAlertsTopic)
	}

	schedulerOpts := []scheduler.Option{scheduler.WithRunOnStart(cfg.RunOnStart)}
	if cfg.RedisAddr != "" {
		client := redisadapter.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		lock := redisadapter.NewPassLock(client, redisadapter.DefaultLockKey, cfg.PassLockTTL)
		closers = append(closers, client.Close)
		readiness = append(readiness, lock)
		schedulerOpts = append(schedulerOpts, scheduler.WithLock(lock))
		logger.Info("redis pass lock enabled", "addr", cfg.RedisAddr, "ttl", cfg.PassLockTTL)
	}

	det := detector.New(st, st, logger, metrics, detectorOpts...)
	sched := scheduler.New(det, cfg.CheckInterval, logger, metrics, schedulerOpts...)
	readiness = append(readiness, sched)

	var subscriber *mqttadapter.Subscriber
	if cfg.MQTTBroker != "" {
		subscriber = mqttadapter.NewSubscriber(cfg, st, logger, metrics)
		if err := subscriber.Start(ctx); err != nil {
			logger.Error("failed to start mqtt subscriber", "broker", cfg.MQTTBroker, "error", err)
			os.Exit(1)
		}
		readiness = append(readiness, subscriber)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness, st, st, cfg.AlertListLimit, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	if ingest != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ingest.Run(ctx); err != nil {
				logger.Error("ingestion pipeline error", "error", err)
			}
		}()
	}

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if subscriber != nil {
		subscriber.Close()
	}
	waitOrTimeout(shutdownCtx, logger, "scheduler", sched.Stop)
	waitOrTimeout(shutdownCtx, logger, "ingestion pipeline", wg.Wait)

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, func() error, error) {
	if cfg.StoreDriver != config.StorePostgres {
		logger.Info("using in-memory store")
		return memory.NewStore(memory.WithRetention(cfg.LookbackWindow)), nil, nil
	}

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := postgres.Open(openCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(openCtx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("using postgres store")
	return postgres.NewStore(db), db.Close, nil
}

func seedDemoAlert(ctx context.Context, st store, logger *slog.Logger) {
	active, err := st.ListActive(ctx, 1)
	if err != nil {
		logger.Warn("demo seed skipped, cannot list active alerts", "error", err)
		return
	}
	if len(active) > 0 {
		return
	}
	alert, err := st.Create(ctx, domain.DemoAlertDraft())
	if err != nil {
		if !errors.Is(err, domain.ErrDuplicateActive) {
			logger.Warn("demo seed failed", "error", err)
		}
		return
	}
	logger.Info("seeded demo alert", "alert_id", alert.ID, "location", alert.Location.Name)
}

// waitOrTimeout runs fn and gives up waiting when ctx expires.
func waitOrTimeout(ctx context.Context, logger *slog.Logger, name string, fn func()) {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("shutdown timed out waiting", "component", name)
	}
}
