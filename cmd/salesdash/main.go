package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/copiloto/salesdash/pkg/blob"
	"github.com/copiloto/salesdash/pkg/config"
	"github.com/copiloto/salesdash/pkg/enrichment"
	"github.com/copiloto/salesdash/pkg/guard"
	"github.com/copiloto/salesdash/pkg/idpconfig"
	"github.com/copiloto/salesdash/pkg/localcache"
	"github.com/copiloto/salesdash/pkg/notify"
	"github.com/copiloto/salesdash/pkg/observability"
	"github.com/copiloto/salesdash/pkg/session"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.PostgresURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	// A dead database is not fatal: config resolution and sessions degrade
	// to the local cache.
	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Warn("database unreachable at startup, continuing on local cache")
	}

	cache, err := newCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize local cache: %w", err)
	}
	defer cache.Close()
	logger.WithField("type", cfg.Cache.Type).Info("local cache initialized")

	notifications := notify.NewRing(64)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	configStore := idpconfig.NewStore(db, cache, logger, notifications, cfg.Auth.ConfigLoadTimeout,
		idpconfig.WithMetrics(metrics))

	sessions := session.NewManager(cfg.Auth.Origin, cache, logger, notifications,
		session.WithMetrics(metrics))

	// Initial resolution: bounded, cache-backed, never fatal. Missing
	// configuration settles the session into its quiescent signed-out state.
	idpCfg, source, err := configStore.Resolve(ctx)
	if err != nil {
		logger.Info("no identity-provider configuration yet, waiting for setup")
	} else {
		logger.WithField("source", source).Info("identity-provider configuration resolved")
	}
	// Bounded so a hung discovery endpoint cannot pin the guard on its
	// loading placeholder forever
	confCtx, confCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := sessions.Configure(confCtx, idpCfg); err != nil {
		logger.WithError(err).Error("session construction failed, login disabled until reconfigured")
	}
	confCancel()

	avatars, err := newAvatarStore(ctx, cfg.Enrichment)
	if err != nil {
		return fmt.Errorf("failed to initialize avatar store: %w", err)
	}

	queue := enrichment.NewTaskQueue(64, logger)
	queue.Start(ctx)
	defer queue.Stop()

	pipeline, err := enrichment.NewPipeline(
		enrichment.NewDirectoryClient(cfg.Enrichment.GraphBaseURL, avatars, logger, nil),
		enrichment.NewProfileStore(db, logger),
		enrichment.NewInternalProfileStore(db, logger),
		newTransports(cfg),
		queue,
		cfg.Enrichment.DeferDelay,
		logger,
		metrics,
	)
	if err != nil {
		return fmt.Errorf("failed to build enrichment pipeline: %w", err)
	}

	sub := sessions.Subscribe()
	defer sub.Close()
	go pipeline.Watch(ctx, sub, func(u *session.User) enrichment.RequestMeta {
		userAgent, remoteAddr := sessions.LastRequestMeta()
		return enrichment.RequestMeta{
			UserAgent: userAgent,
			IPAddress: remoteAddr,
			Trigger:   "session",
		}
	})

	router := buildRouter(cfg, logger, sessions, configStore, notifications)

	healthChecker := observability.NewHealthChecker(db, cache)
	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/healthz", healthChecker.Liveness).Methods("GET")
	healthRouter.HandleFunc("/readyz", healthChecker.Readiness).Methods("GET")
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", observability.Handler(registry)).Methods("GET")
	}

	// Hourly sweep of expired persisted sessions
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sessions.PurgeExpired(sweepCtx)
	}); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	appServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRouter,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", appServer.Addr).Info("application server listening")
		if err := appServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("application server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		appServer.Shutdown(shutdownCtx)
		healthServer.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// buildRouter assembles the application routes behind the guard. Auth and
// config endpoints stay outside it so the redirects they serve never loop.
func buildRouter(
	cfg *config.Config,
	logger *observability.Logger,
	sessions *session.Manager,
	configStore *idpconfig.Store,
	notifications *notify.Ring,
) *mux.Router {
	router := mux.NewRouter()

	sessions.RegisterRoutes(router)

	configHandlers := idpconfig.NewHandlers(configStore, logger, func(saved idpconfig.Config) {
		// A saved configuration reconstructs the session client immediately
		reconfCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sessions.Configure(reconfCtx, saved); err != nil {
			logger.WithError(err).Error("reconfiguration after save failed")
		}
	})
	configHandlers.RegisterRoutes(router)

	router.HandleFunc("/api/notifications", notifications.Handler).Methods("GET")
	router.HandleFunc("/login", loginPage).Methods("GET")
	router.HandleFunc("/auth-config", setupPage).Methods("GET")

	if cfg.Enrichment.InternalAPIBase != "" {
		funcHandler := enrichment.NewFuncHandler(cfg.Enrichment.InternalAPIBase, cfg.Enrichment.InternalAPIKey, logger, nil)
		funcHandler.RegisterRoutes(router)
	}

	adminGate := guard.NewAdminGate(cfg.Auth.AdminPassword, logger)
	adminGate.RegisterRoutes(router)

	publicPaths := []string{
		"/auth/", "/auth-callback", "/api/auth/", "/api/admin/login",
		"/api/notifications", "/functions/", "/login", "/auth-config",
	}
	routeGuard := guard.New(sessions, configStore, cfg.Auth.AdminPrefix, publicPaths, logger)

	protected := router.PathPrefix("/").Subrouter()
	protected.Use(routeGuard.Middleware)
	protected.PathPrefix(cfg.Auth.AdminPrefix).Handler(adminGate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"admin":true}`))
	})))
	protected.PathPrefix("/").HandlerFunc(appShell)

	return router
}

// appShell serves the dashboard shell to authenticated requests. The guard
// has already settled loading, config and authentication by the time this
// runs.
func appShell(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<html><body><h1>Copiloto de Vendas</h1><p>Sessão ativa.</p></body></html>`))
}

func loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<html><body><h1>Entrar</h1><a href="/auth/login">Entrar com Azure AD</a></body></html>`))
}

func setupPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<html><body><h1>Configuração</h1><p>Configure o provedor de identidade em POST /api/auth/config.</p></body></html>`))
}

// newCache selects the local-cache backend
func newCache(cfg config.CacheConfig) (localcache.Cache, error) {
	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		return localcache.NewSQLiteCache(cfg.SQLitePath)
	case "redis":
		return localcache.NewRedisCache(localcache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case "memory":
		return localcache.NewMemoryCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}

// newAvatarStore selects the avatar blob backend
func newAvatarStore(ctx context.Context, cfg config.EnrichmentConfig) (blob.Store, error) {
	switch strings.ToLower(cfg.AvatarStore) {
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	case "filesystem":
		return blob.NewFilesystemStore(cfg.AvatarRoot)
	default:
		return nil, fmt.Errorf("unknown avatar store %q", cfg.AvatarStore)
	}
}

// newTransports builds the internal-enrichment transport chain in tier
// order: the same-origin proxy path first, the server-side function second
func newTransports(cfg *config.Config) []enrichment.Transport {
	var transports []enrichment.Transport

	proxyBase := cfg.Enrichment.InternalProxyBase
	if proxyBase != "" {
		if strings.HasPrefix(proxyBase, "/") {
			proxyBase = strings.TrimSuffix(cfg.Auth.Origin, "/") + proxyBase
		}
		transports = append(transports, enrichment.NewProxyTransport(proxyBase, nil))
	}

	functionURL := cfg.Enrichment.FunctionURL
	if functionURL == "" && cfg.Enrichment.InternalAPIBase != "" {
		// Fall back to the in-process function endpoint
		functionURL = strings.TrimSuffix(cfg.Auth.Origin, "/") + "/functions/fetch-internal-user"
	}
	if functionURL != "" {
		transports = append(transports, enrichment.NewFunctionTransport(functionURL, nil))
	}

	return transports
}
