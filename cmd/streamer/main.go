package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"polycopy/internal/breaker"
	"polycopy/internal/config"
	"polycopy/internal/control"
	"polycopy/internal/observability"
	"polycopy/internal/storage/migrations"
	pgstore "polycopy/internal/storage/postgres"
	"polycopy/internal/stream"
	"polycopy/internal/upstream"
)

func main() {
	logger := log.New(os.Stdout, "[streamer] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if err := cfg.RequireControlPlane(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgres(ctx, pool); err != nil {
		logger.Fatalf("migrations: %v", err)
	}

	metrics := observability.NewMetrics("polycopy")
	startHTTP(cfg.HTTPAddr, metrics, logger)

	ws := upstream.NewWSClient(cfg.WSURL,
		[]string{upstream.EventTypeTrades, upstream.EventTypeOrdersMatched}, logger)

	ingester := stream.NewIngester(stream.IngesterOptions{
		Events:        ws.Events(),
		Control:       control.NewClient(cfg.ControlBaseURL, cfg.ControlSecret),
		Trades:        pgstore.NewTradeStore(pool),
		Breaker:       breaker.New(0, 0),
		Metrics:       metrics,
		Logger:        logger,
		BufferMax:     cfg.BufferMax,
		FlushInterval: cfg.FlushInterval,
		InFlightCap:   cfg.InFlightCap,
	})
	ws.OnReconnect = ingester.OnReconnect(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ws.Run(gctx) })
	g.Go(func() error { return ingester.Run(gctx) })
	g.Go(func() error { return observability.NewWatchdog(metrics, logger).Run(gctx) })

	done := make(chan error, 1)
	go handleSignals(logger, cancel, done)

	err = g.Wait()
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("streamer: %v", err)
	}
	logger.Println("shutdown complete")
}

func startHTTP(addr string, metrics *observability.Metrics, logger *log.Logger) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", observability.HealthHandler())
		logger.Printf("metrics server on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server: %v", err)
		}
	}()
}

func handleSignals(logger *log.Logger, cancel context.CancelFunc, done <-chan error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Printf("received %v, shutting down...", sig)
	cancel()

	select {
	case sig := <-sigCh:
		logger.Printf("received second %v, forcing exit", sig)
		os.Exit(1)
	case <-time.After(30 * time.Second):
		logger.Println("graceful shutdown timed out, forcing exit")
		os.Exit(1)
	case <-done:
	}
}
