package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"shiftwork/shift-service/internal/config"
	"shiftwork/shift-service/internal/events"
	"shiftwork/shift-service/internal/httpapi"
	"shiftwork/shift-service/internal/store/postgres"
	"shiftwork/shift-service/internal/telemetry"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("db ping: %v", err)
	}

	shutdownTelemetry := telemetry.Setup("shift-service")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown error: %v", err)
		}
	}()

	store := postgres.NewStore(pool, postgres.Options{
		CheckInEarly:    cfg.CheckInEarly,
		CheckInLate:     cfg.CheckInLate,
		MaxShiftMinutes: cfg.MaxShiftMinutes,
		MinConfidence:   cfg.MinConfidence,
	})
	handler := httpapi.NewHandler(store, httpapi.HandlerOptions{
		DefaultPlatformFeeRate:  cfg.DefaultPlatformFeeRate,
		DefaultTaxRate:          cfg.DefaultTaxRate,
		DefaultAgencyCommission: cfg.DefaultAgencyCommission,
	})
	limiter := httpapi.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	chain := httpapi.LoggingMiddleware(
		httpapi.AuthMiddleware(store, limiter.Middleware(handler.Routes())),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(chain, "shift-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("shift-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go runNoShowSweep(ctx, store, cfg)
	go runLimiterSweep(ctx, limiter)
	if cfg.NATSURL != "" {
		go runRelay(ctx, store, cfg)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func runNoShowSweep(ctx context.Context, store *postgres.Store, cfg config.Config) {
	if cfg.NoShowGrace <= 0 || cfg.NoShowScanInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.NoShowScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			count, err := store.AutoNoShow(tickCtx, cfg.NoShowGrace, cfg.NoShowBatchSize)
			cancel()
			if err != nil {
				log.Printf("auto no-show error: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("auto no-show processed %d assignments", count)
			}
		}
	}
}

func runLimiterSweep(ctx context.Context, limiter *httpapi.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(10 * time.Minute)
		}
	}
}

func runRelay(ctx context.Context, store *postgres.Store, cfg config.Config) {
	conn, err := nats.Connect(cfg.NATSURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		log.Printf("nats connect error: %v", err)
		return
	}
	defer conn.Drain()

	js, err := conn.JetStream()
	if err != nil {
		log.Printf("jetstream init error: %v", err)
		return
	}

	relay := events.NewRelay(store, js, events.RelayOptions{
		Stream:    cfg.NATSStream,
		BatchSize: cfg.RelayBatch,
		Interval:  cfg.RelayInterval,
	})
	if err := relay.EnsureStream(); err != nil {
		log.Printf("jetstream stream error: %v", err)
		return
	}
	relay.Run(ctx)
}
