package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"delat/internal/amqp"
	"delat/internal/cli"
	"delat/internal/log"
	"delat/internal/metrics"
	"delat/internal/services"
	"delat/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting delat-worker",
		"recurring_interval", cfg.RecurringInterval,
		"events", cfg.EventsEnabled())

	store := cli.InitBackend(logger, cfg)
	defer store.Close()

	m := metrics.New()

	var client *amqp.Client
	if cfg.EventsEnabled() {
		var err error
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, running recurring processor only", log.FieldError, err)
			client = nil
		} else {
			defer client.Close()
		}
	}

	var events services.EventPublisher
	if client != nil {
		events = client
	}
	// Members are added through the API process, so the worker reads them fresh.
	household := services.NewHouseholdService(store, events, services.Options{
		DedupLookbackDays:  cfg.DedupLookbackDays,
		Metrics:            m,
		Logger:             logger,
		DisableMemberCache: true,
	})

	processor := services.NewRecurringProcessor(store, household, services.RecurringProcessorConfig{
		Interval: cfg.RecurringInterval,
		Metrics:  m,
		Logger:   logger,
	})

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMux(m, store.Ping),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", log.FieldError, err, "port", cfg.WorkerMetricsPort)
		}
	}()

	runCtx, stopRun := context.WithCancel(context.Background())
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		stopRun()
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Recurring processor stop", log.FieldError, err)
		}
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.Warn("Metrics server shutdown", log.FieldError, err)
		}
	})

	if err := processor.Start(runCtx); err != nil {
		logger.Error("Failed to start recurring processor", log.FieldError, err)
	}

	if client != nil {
		snapshots := worker.NewSnapshotWorker(household, m, logger)
		go func() {
			if err := client.Consume(runCtx, snapshots.HandleRecordChanged); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("Skipping record-changed consumption, AMQP disabled")
	}

	cli.WaitForShutdown(ctx, done)
}

// workerMux serves the worker's metrics and probes.
func workerMux(m *metrics.Metrics, ping func(context.Context) error) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}
