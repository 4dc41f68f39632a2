package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"delat/internal/amqp"
	"delat/internal/cache"
	"delat/internal/cli"
	apphttp "delat/internal/http"
	"delat/internal/log"
	"delat/internal/metrics"
	"delat/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)
	logger.Info("Starting delat server", "port", cfg.Port, "events", cfg.EventsEnabled())

	store := cli.InitBackend(logger, cfg)
	defer store.Close()

	m := metrics.New()

	// A nil *amqp.Client must not reach the service as a non-nil interface.
	var events services.EventPublisher
	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, record-changed events disabled", log.FieldError, err)
		} else {
			defer client.Close()
			events = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	household := services.NewHouseholdService(store, events, services.Options{
		DedupLookbackDays: cfg.DedupLookbackDays,
		MemberCacheTTL:    cfg.MemberCacheTTL,
		MemberCacheSize:   cfg.MemberCacheSize,
		Metrics:           m,
		Logger:            logger,
	})

	caches := cache.NewManager()
	caches.Register("members", household.MemberCache())
	caches.StartCleanup(cfg.MemberCacheTTL)

	srv := apphttp.NewServer(":"+cfg.Port, household, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Metrics:            m,
		Logger:             logger,
		Ready:              store.Ping,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
