package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ontoserve/warden/pkg/assignment"
	"github.com/ontoserve/warden/pkg/audit"
	"github.com/ontoserve/warden/pkg/authz"
	"github.com/ontoserve/warden/pkg/catalog"
	"github.com/ontoserve/warden/pkg/config"
	"github.com/ontoserve/warden/pkg/hierarchy"
	"github.com/ontoserve/warden/pkg/httputil"
	"github.com/ontoserve/warden/pkg/observability"
	"github.com/ontoserve/warden/pkg/storage"
)

func main() {
	// Startup logging is plain text; once the structured logger is up
	// it takes over.
	startup := logrus.New()
	startup.SetOutput(os.Stderr)

	cfg, err := config.LoadConfig()
	if err != nil {
		startup.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, nil)
	ctx := context.Background()

	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		startup.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	for _, component := range []struct {
		name       string
		migrations []storage.Migration
	}{
		{catalog.Component, catalog.Migrations},
		{hierarchy.Component, hierarchy.Migrations},
		{assignment.Component, assignment.Migrations},
		{audit.Component, audit.Migrations},
	} {
		if err := storage.Migrate(ctx, db, component.name, component.migrations); err != nil {
			startup.Fatalf("Failed to migrate %s schema: %v", component.name, err)
		}
	}
	logger.Info("database schema up to date")

	// Audit sinks: database (searchable), file (shippable), or both.
	var auditSinks []audit.Logger
	var auditStore *audit.DBLogger
	if cfg.Audit.DatabaseEnabled {
		auditStore, err = audit.NewDBLogger(db)
		if err != nil {
			startup.Fatalf("Failed to initialize audit store: %v", err)
		}
		auditSinks = append(auditSinks, auditStore)
	}
	if cfg.Audit.FilePath != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: cfg.Audit.FilePath})
		if err != nil {
			startup.Fatalf("Failed to open audit log file: %v", err)
		}
		auditSinks = append(auditSinks, fileLogger)
	}
	auditLog := audit.NewMultiLogger(auditSinks...)
	defer auditLog.Close()

	catalogStore := catalog.NewStore(db)
	assignmentStore := assignment.NewStore(db)
	hierarchyStore := hierarchy.NewStore(db)

	cache, redisClient, err := buildCache(cfg.Cache)
	if err != nil {
		startup.Fatalf("Failed to initialize decision cache: %v", err)
	}
	defer cache.Close()

	registry := prometheus.NewRegistry()
	serverMetrics := observability.NewMetrics(registry)

	engine := authz.NewEngine(assignmentStore, catalogStore, hierarchyStore)
	serviceOpts := []authz.ServiceOption{
		authz.WithCache(cache),
		authz.WithAuditLogger(auditLog),
		authz.WithLogger(logger),
	}
	if cfg.Observability.MetricsEnabled {
		serviceOpts = append(serviceOpts, authz.WithMetrics(authz.NewMetrics(registry)))
	}
	service := authz.NewService(engine, serviceOpts...)

	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	// Principal resolution runs before logging so the access log can
	// attribute every authenticated request.
	router.Use(mux.MiddlewareFunc(authz.PrincipalFromRequest))
	router.Use(httputil.LoggingMiddleware(logger))
	router.Use(httputil.RecoveryMiddleware(logger))
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(serverMetrics))
	}

	authz.NewHandlers(service).RegisterRoutes(router)
	catalog.NewHandlers(catalogStore, auditLog).RegisterRoutes(router)
	assignment.NewHandlers(assignmentStore, auditLog, cache).RegisterRoutes(router)
	hierarchy.NewHandlers(hierarchyStore, auditLog).RegisterRoutes(router)
	if auditStore != nil {
		audit.NewHandlers(auditStore).RegisterRoutes(router)
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Probes and metrics live on their own port so they stay reachable
	// without a principal header.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	housekeeper := cron.New()
	if auditStore != nil && cfg.Audit.RetentionDays > 0 {
		retention := cfg.Audit.RetentionDays
		housekeeper.AddFunc("0 3 * * *", func() {
			defer observability.RecoverPanic(logger, "audit retention")
			cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			removed, err := auditStore.Cleanup(cleanupCtx, retention)
			if err != nil {
				logger.WithError(err).Error("audit retention cleanup failed")
				return
			}
			logger.WithField("removed", removed).Info("audit retention cleanup complete")
		})
	}
	if cfg.Observability.MetricsEnabled {
		housekeeper.AddFunc("* * * * *", func() {
			serverMetrics.CollectDBStats(db)
		})
	}
	housekeeper.Start()

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		startup.Infof("Warden listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			startup.Fatalf("Server failed: %v", err)
		}
	}()

	manager := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	manager.Register("housekeeper", func(ctx context.Context) error {
		housekeeper.Stop()
		return nil
	})
	manager.Register("health-server", func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if err := manager.WaitForShutdown(); err != nil {
		startup.Fatalf("Shutdown failed: %v", err)
	}
}

// buildCache constructs the configured decision cache backend. The
// redis client is returned separately so the health checker can probe
// it.
func buildCache(cfg config.CacheConfig) (authz.DecisionCache, *redis.Client, error) {
	switch cfg.Backend {
	case config.CacheBackendMemory:
		return authz.NewMemoryCache(cfg.MaxEntries, cfg.TTL), nil, nil
	case config.CacheBackendRedis:
		cache, err := authz.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return cache, cache.Client(), nil
	case config.CacheBackendNone:
		return authz.NopCache{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
