package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beeftrace/internal/aggregate"
	"beeftrace/internal/cache"
	"beeftrace/internal/ledger"
	"beeftrace/internal/lifecycle"
	"beeftrace/internal/mirror"
	"beeftrace/internal/payment"
	"beeftrace/internal/platform/config"
	"beeftrace/internal/platform/httpserver"
	"beeftrace/internal/platform/logger"
	"beeftrace/internal/platform/metrics"
	platformredis "beeftrace/internal/platform/redis"
	"beeftrace/internal/provenance"
	"beeftrace/internal/roles"
	"beeftrace/internal/syncer"
	transporthttp "beeftrace/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	// The mirror persists to Redis when configured, otherwise to a local
	// file. Both survive restarts.
	var store mirror.Store
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		store = mirror.NewRedisStore(redisClient.Client)
		log.Info("mirror backend", "kind", "redis")
	} else {
		fileStore, err := mirror.NewFileStore(cfg.MirrorPath)
		if err != nil {
			log.Error("mirror file store failed", "path", cfg.MirrorPath, "error", err)
			os.Exit(1)
		}
		store = fileStore
		log.Info("mirror backend", "kind", "file", "path", cfg.MirrorPath)
	}
	defer store.Close()

	// Built-in development ledger. The retry wrapper gives reads the same
	// timeout and backoff policy a remote ledger gateway would need.
	led := ledger.NewRetrying(ledger.NewMemory(cfg.AdminAddr), cfg.Ledger.ReadTimeout, cfg.Ledger.MaxRetries, cfg.Ledger.Backoff)

	remote := cache.NewHTTPRemote(cfg.Cache.RemoteURL, nil)
	cacheStore := cache.NewStore(remote, cfg.Cache.LocalTTL, cfg.Cache.Cooldown, log, cache.WithStoreMetrics(m))

	// The store is the sink so synced pages also clear the in-process TTL
	// layer; writing through the raw remote would leave stale local entries
	// serving for up to the TTL after a sync.
	engine := syncer.New(led, cacheStore, cfg.Sync.ChunkSize, cfg.Sync.ChunkPause, log, syncer.WithMetrics(m))

	paymentStore, err := buildPaymentStore(cfg, log)
	if err != nil {
		log.Error("payment store failed", "error", err)
		os.Exit(1)
	}
	defer paymentStore.Close()
	gateway := payment.NewSimulatedGateway(cfg.Payment.GatewayLatency)

	lc := lifecycle.New(led, cacheStore, engine, log, m)
	pay := payment.NewCoordinator(led, cacheStore, gateway, paymentStore, engine, cfg.Payment.AnimalBasePriceCents, log, payment.WithMetrics(m))
	prov := provenance.New(led, cacheStore, log)
	agg := aggregate.New(cacheStore, led, log)
	rl := roles.New(led, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	mirror.NewHandler(store, log).Register(r)
	transporthttp.NewHandler(lc, pay, prov, agg, rl, engine, log).Register(r)

	srv := httpserver.New(cfg.Addr, r)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

func buildPaymentStore(cfg config.Config, log *slog.Logger) (payment.Store, error) {
	if cfg.Postgres.URL == "" {
		log.Info("payment store", "kind", "memory")
		return payment.NewMemoryStore(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := payment.NewPostgresStore(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, err
	}
	log.Info("payment store", "kind", "postgres")
	return store, nil
}
