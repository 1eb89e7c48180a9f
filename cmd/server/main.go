package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	cardhandler "cardledger/internal/card/handler"
	cardservice "cardledger/internal/card/service"
	cardstore "cardledger/internal/card/store"
	"cardledger/internal/ledgerfeed"
	"cardledger/internal/platform/config"
	"cardledger/internal/platform/httpserver"
	"cardledger/internal/platform/logger"
	"cardledger/internal/platform/metrics"
	"cardledger/internal/platform/middleware"
	platformredis "cardledger/internal/platform/redis"
	"cardledger/internal/recommend"
	recommendhandler "cardledger/internal/recommend/handler"
	recommendservice "cardledger/internal/recommend/service"
	recommendstore "cardledger/internal/recommend/store"
	"cardledger/internal/token"
	"cardledger/pkg/requestcontext"
)

// main wires stores, services, and handlers, then runs the HTTP server with
// graceful shutdown. Custody logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx := context.Background()

	var registryStore cardservice.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		pg := cardstore.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("postgres schema setup failed", "error", err)
			os.Exit(1)
		}
		registryStore = pg
		log.Info("card store: postgres")
	} else {
		registryStore = cardstore.NewInMemoryStore()
		log.Info("card store: in-memory")
	}

	var feedStore ledgerfeed.Store = ledgerfeed.NewInMemoryStore()
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		feedStore = ledgerfeed.NewRedisStore(redisClient.Client)
		log.Info("event feed: redis")
	}
	feed := ledgerfeed.NewPublisher(feedStore)

	tokenService := token.NewService(cfg.JWTSigningKey, "cardledger", cfg.SessionTTL)
	validator := token.NewMiddlewareAdapter(tokenService)

	registry := cardservice.New(registryStore, feed, m, log, cfg.AdminAddress)
	protocol := recommendservice.New(
		recommendstore.NewInMemoryStore(),
		registry,
		feed,
		m,
		log,
		cfg.ProtocolAddress,
		recommend.RewardAmount(cfg.RewardREC),
	)

	// Allowlist the recommendation protocol as a card mover, the way the
	// registry administrator would after deploying it.
	adminCtx := requestcontext.WithCaller(ctx, cfg.AdminAddress)
	if err := registry.SetCardSender(adminCtx, cfg.ProtocolAddress, true); err != nil {
		log.Error("protocol allowlist setup failed", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Latency(m))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
	}))
	router.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))

	token.NewHandler(tokenService).Register(router)
	cardhandler.New(registry, validator, log).Register(router)
	recommendhandler.New(protocol, validator, log).Register(router)
	ledgerfeed.NewHandler(feed).Register(router)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting cardledger", "addr", cfg.Addr, "admin", cfg.AdminAddress)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
