package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/appovenbackend/ticketing/internal/api"
	"github.com/appovenbackend/ticketing/internal/cache"
	"github.com/appovenbackend/ticketing/internal/circuitbreaker"
	"github.com/appovenbackend/ticketing/internal/config"
	"github.com/appovenbackend/ticketing/internal/connections"
	"github.com/appovenbackend/ticketing/internal/events"
	"github.com/appovenbackend/ticketing/internal/identity"
	"github.com/appovenbackend/ticketing/internal/joinrequests"
	"github.com/appovenbackend/ticketing/internal/metrics"
	"github.com/appovenbackend/ticketing/internal/middleware"
	"github.com/appovenbackend/ticketing/internal/payments"
	"github.com/appovenbackend/ticketing/internal/points"
	"github.com/appovenbackend/ticketing/internal/qrtoken"
	"github.com/appovenbackend/ticketing/internal/registration"
	"github.com/appovenbackend/ticketing/internal/store"
	"github.com/appovenbackend/ticketing/internal/store/memstore"
	"github.com/appovenbackend/ticketing/internal/sweeper"
	"github.com/appovenbackend/ticketing/internal/users"
	"github.com/appovenbackend/ticketing/internal/validation"
)

// dataStore is the union of every service's persistence needs; both
// *store.Postgres and *memstore.Store satisfy it.
type dataStore interface {
	users.Store
	events.Store
	registration.Store
	validation.Store
	payments.Store
	points.Store
	connections.Store
	joinrequests.Store
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	if cfg.Server.Env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))

	// Postgres, with an in-memory fallback for local development.
	var st dataStore
	if cfg.Database.URL != "" {
		pg, err := store.OpenPostgres(cfg.Database.URL)
		if err != nil {
			slog.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store; data will not survive restart")
		st = memstore.New()
	}

	// Redis, with the same in-memory fallback.
	var c cache.Cache
	if rc, err := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		slog.Warn("redis unavailable, using in-memory cache", "error", err)
		c = cache.NewMemory()
	} else {
		defer rc.Close()
		c = rc
	}

	tokens := identity.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.AccessTTL(), c)
	codec := qrtoken.NewCodec(cfg.Auth.QRSecret)

	registry := events.NewRegistry(st, c)
	engine := registration.NewEngine(st, codec)
	validator := validation.NewEngine(st, codec)
	ledger := points.NewLedger(st)
	graph := connections.NewGraph(st)
	requests := joinrequests.NewService(st, engine)
	accounts := users.NewService(st, tokens)

	gateway := payments.NewBreakerGateway(
		payments.NewHTTPGateway(
			cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret, cfg.Gateway.Timeout()),
		circuitbreaker.New("payment-gateway", 5, 30*time.Second))
	orchestrator := payments.NewOrchestrator(
		st, gateway, engine, cfg.Gateway.KeySecret, cfg.Gateway.WebhookSecret)

	sw := sweeper.New(registry, orchestrator, cfg.Sweeper.Interval())
	sw.Start()
	defer sw.Stop()

	srv := api.NewServer(api.Deps{
		Users:        accounts,
		Events:       registry,
		Registration: engine,
		Validation:   validator,
		Payments:     orchestrator,
		Points:       ledger,
		Connections:  graph,
		JoinRequests: requests,
		Tokens:       tokens,
		Limiter:      middleware.NewRateLimiter(c, cfg.Limits.MaxCallsPerMinute),
		Metrics:      metrics.New(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx, cfg.Server.Port); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
