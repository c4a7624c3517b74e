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

	"polycopy/internal/config"
	"polycopy/internal/observability"
	"polycopy/internal/poller"
	"polycopy/internal/ratelimit"
	"polycopy/internal/reconcile"
	"polycopy/internal/storage/migrations"
	pgstore "polycopy/internal/storage/postgres"
	"polycopy/internal/upstream"
)

func main() {
	logger := log.New(os.Stdout, "[hotpoller] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
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

	limiter := ratelimit.NewHot()
	venue := upstream.NewClient(limiter,
		upstream.WithDataBase(cfg.DataAPIURL),
		upstream.WithGammaBase(cfg.GammaAPIURL),
	)

	cycle := poller.NewCycle(poller.CycleOptions{
		Venue:      venue,
		Reconciler: reconcile.New(venue, 0),
		Limiter:    limiter,
		Cooldown:   ratelimit.NewCooldown(ratelimit.HotCooldown),
		Stores: poller.Stores{
			Trades:    pgstore.NewTradeStore(pool),
			Positions: pgstore.NewPositionStore(pool),
			Closes:    pgstore.NewCloseEventStore(pool),
			PollState: pgstore.NewPollStateStore(pool),
			Follows:   pgstore.NewFollowStore(pool),
			Locks:     pgstore.NewLockStore(pool),
		},
		Metrics: metrics,
		Logger:  logger,
	})

	hot := poller.NewHot(poller.HotOptions{
		Cycle:    cycle,
		Interval: cfg.HotInterval,
		Logger:   logger,
	})

	done := make(chan error, 1)
	go handleSignals(logger, cancel, done)

	err = hot.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("hot poller: %v", err)
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
