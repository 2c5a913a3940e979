package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"productbundle/internal/bundle"
	"productbundle/internal/config"
	"productbundle/internal/eventstore"
	"productbundle/internal/memstore"
	"productbundle/internal/postgres"
	"productbundle/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.Production(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "bundle", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	deps, db, err := buildDependencies(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to set up storage", zap.String("storage", cfg.Storage), zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}
	deps.Logger = logger

	router := newRouter(cfg, deps, db, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting bundle service",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.Storage),
		zap.String("db_driver", cfg.DBDriver),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// newRouter mounts the bundle routes behind the shared middleware. db may be
// nil, in which case /healthz always reports healthy.
func newRouter(cfg config.Config, deps bundle.Dependencies, db *sql.DB, logger *zap.Logger) http.Handler {
	svc := bundle.NewService(deps)
	handler := bundle.NewHandler(svc, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Group(func(r chi.Router) {
		r.Use(bundle.RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateBurst)))
		handler.Register(r)
	})
	return router
}

// buildDependencies wires the collaborators for the configured storage. The
// returned database is nil in memory mode.
func buildDependencies(ctx context.Context, cfg config.Config) (bundle.Dependencies, *sql.DB, error) {
	if cfg.Storage == config.StorageMemory {
		store := memstore.New()
		return bundle.Dependencies{
			Catalog:      store,
			Bundles:      store,
			Availability: store,
			Invalidator:  store,
			Orders:       store,
		}, nil, nil
	}

	db, err := postgres.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return bundle.Dependencies{}, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return bundle.Dependencies{}, nil, err
	}

	es := eventstore.NewEventStore(db)
	catalog := postgres.NewCatalog(db)
	return bundle.Dependencies{
		Catalog:      catalog,
		Bundles:      catalog,
		Availability: eventstore.NewAvailabilityLog(postgres.NewAvailability(db), es),
		Invalidator:  eventstore.NewInvalidator(es),
		Orders:       postgres.NewOrders(db),
	}, db, nil
}
