package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sessiongate/internal/config"
	"sessiongate/internal/gate"
	transporthttp "sessiongate/internal/http"
	"sessiongate/internal/identity"
	"sessiongate/internal/idp"
	"sessiongate/internal/metrics"
	"sessiongate/internal/platform/cache"
	"sessiongate/internal/platform/database"
	"sessiongate/internal/platform/logging"
	"sessiongate/internal/platform/migrate"
)

const (
	clientSweepInterval    = time.Minute
	sessionCleanupInterval = 15 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	repos, cleanup, err := buildRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize repositories", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	provider := idp.NewProvider(repos.accounts, repos.sessions, cfg.SessionTTL,
		idp.WithRecoveryNotifier(idp.NewLogNotifier(logger, cfg.FrontendURL)),
		idp.WithProviderLogger(logger),
	)
	identitySvc := identity.NewService(provider, repos.profiles,
		identity.WithLogger(logger),
		identity.WithProfilePolicy(identity.ProfilePolicy(cfg.ProfilePolicy)),
		identity.WithDefaultPreferences(identity.Preferences{Locale: cfg.DefaultLocale}),
	)

	if cfg.UseInMemoryStore() {
		seedDemoAccounts(ctx, identitySvc, logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	clients := transporthttp.NewClientRegistry(identitySvc, cfg.ClientIdleTTL, logger,
		gate.WithLogger(logger),
		gate.WithRecorder(collector),
	).WithGauge(collector)
	go clients.Run(ctx, clientSweepInterval)
	go cleanupSessions(ctx, provider, logger)

	deps := transporthttp.Dependencies{
		Identity: identitySvc,
		Clients:  clients,
		Metrics:  collector,
		Gatherer: registry,
	}
	if cfg.GoogleEnabled() {
		google, err := idp.NewGoogleFederation(ctx, idp.GoogleConfig{
			ClientID:       cfg.GoogleClientID,
			ClientSecret:   cfg.GoogleClientSecret,
			RedirectURL:    cfg.GoogleRedirectURL,
			AllowedDomains: cfg.GoogleAllowedDomains,
			AllowedEmails:  cfg.GoogleAllowedEmails,
		})
		if err != nil {
			logger.Error("failed to initialize google sign-in", "error", err)
			os.Exit(1)
		}
		deps.Google = google
	}

	router := transporthttp.NewRouter(cfg, deps, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	go func() {
		logger.Info("session gate listening",
			"addr", srv.Addr,
			"store", cfg.DataStore,
			"sessions", cfg.SessionStore,
			"profile_policy", identitySvc.Policy(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

type repositories struct {
	accounts idp.AccountRepository
	sessions idp.SessionRepository
	profiles identity.ProfileStore
}

func buildRepositories(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories, func(), error) {
	var repos repositories
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.UseInMemoryStore() {
		logger.Info("using in-memory identity store")
		mem := idp.NewInMemoryRepository()
		repos.accounts = mem
		repos.sessions = mem
		repos.profiles = idp.NewInMemoryProfileStore()
	} else {
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return repositories{}, nil, err
		}
		closers = append(closers, func() { _ = db.Close() })

		if err := migrate.Apply(ctx, db, logger); err != nil {
			cleanup()
			return repositories{}, nil, err
		}

		logger.Info("connected to postgres")
		pg := idp.NewPostgresRepository(db)
		repos.accounts = pg
		repos.sessions = pg
		repos.profiles = idp.NewPostgresProfileStore(db)
	}

	if cfg.SessionStore == "redis" {
		client, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return repositories{}, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })

		logger.Info("connected to redis")
		repos.sessions = idp.NewRedisSessionRepository(client)
	}

	return repos, cleanup, nil
}

// cleanupSessions purges expired provider sessions until ctx is cancelled.
func cleanupSessions(ctx context.Context, provider *idp.Provider, logger *slog.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := provider.CleanupExpiredSessions(ctx)
			if err != nil {
				logger.Warn("session cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("removed expired sessions", "count", removed)
			}
		}
	}
}
