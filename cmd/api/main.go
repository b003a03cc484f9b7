// Package main is the entrypoint for the SolarVest operations API server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/cache"
	"github.com/solarvest/platform/internal/config"
	"github.com/solarvest/platform/internal/crm"
	"github.com/solarvest/platform/internal/dashboard"
	"github.com/solarvest/platform/internal/export"
	"github.com/solarvest/platform/internal/handler"
	"github.com/solarvest/platform/internal/metrics"
	"github.com/solarvest/platform/internal/middleware"
	"github.com/solarvest/platform/internal/model"
	"github.com/solarvest/platform/internal/repository"
	"github.com/solarvest/platform/internal/server"
	"github.com/solarvest/platform/internal/service"
)

const schedulerLockTTL = 50 * time.Second

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Export bookkeeping and CSV queries run over database/sql.
	db, err := openSQL(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open export database handle", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
		os.Exit(1)
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	// Storage is optional; exports fail with a clear error without it.
	var (
		files     export.Storage
		presigner handler.Presigner
		storageHC handler.HealthChecker
	)
	if cfg.StorageConfigured() {
		store, err := export.NewMinioStorage(export.StorageConfig{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Bucket:    cfg.StorageBucket,
			Region:    cfg.StorageRegion,
			UseSSL:    cfg.StorageUseSSL,
		}, logger)
		if err != nil {
			logger.Error("failed to create storage client", "error", err)
			os.Exit(1)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Warn("storage_bucket_unavailable", "bucket", cfg.StorageBucket, "error", err)
		}
		files, presigner, storageHC = store, store, store
	} else {
		logger.Warn("storage_not_configured")
	}

	exportRepo := export.NewRepository(db)
	notifier := export.NewNotifier(export.NewHTTPClient(), cfg.ExportNotifySecret, cfg.ExportNotifyRPS, logger, recorder)
	runner := export.NewRunner(export.NewSQLSource(db), files, exportRepo, notifier, export.RunnerConfig{
		RowLimit: cfg.ExportRowLimit,
		URLTTL:   cfg.ExportURLTTL,
	}, logger, recorder)
	scheduler := export.NewScheduler(exportRepo, runner, export.SchedulerConfig{
		PollInterval:  cfg.ExportPollInterval,
		MaxConcurrent: cfg.ExportMaxConcurrent,
		JobTimeout:    cfg.ExportTimeout,
	}, logger, recorder)
	scheduler.SetLock(cacheClient.LockFunc("export-scheduler", schedulerLockTTL))

	router := crm.NewRouter(repo, model.RoutingStrategy(cfg.CRMRoutingStrategy), logger, recorder)
	engine := crm.NewEngine(repo, router, logger, recorder)
	dash := dashboard.New(repo, cacheClient, cfg.DashboardCacheTTL, logger, recorder)

	opts := service.Options{
		Dashboard: dash,
		Events:    engine,
		Metrics:   recorder,
		Logger:    logger,
	}
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)

	authService := service.NewAuthService(repo, tokens, service.LoginPolicy{
		MaxAttempts: cfg.LoginMaxAttempts,
		Lockout:     cfg.LoginLockout,
	}, opts)
	userService := service.NewUserService(repo, opts)
	keyService := service.NewAPIKeyService(repo, cacheClient, cfg.AppEnv, opts)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r := handler.NewRouter(handler.RouterConfig{
		Logger:        logger,
		IsDevelopment: cfg.IsDevelopment(),
		MaxBodyBytes:  cfg.MaxRequestBodySize,
		CORS:          corsCfg,
		Auth: middleware.AuthConfig{
			Logger: logger,
			Keys:   repo,
			Cache:  cacheClient,
			Tokens: tokens,
		},
		RateLimit: middleware.RateLimitConfig{
			Logger:     logger,
			Limiter:    cacheClient,
			APIEnabled: cfg.RateLimitAPIEnabled,
			LoginRPS:   cfg.RateLimitLoginRPS,
			LoginBurst: cfg.RateLimitLoginBurst,
		},

		Health: handler.NewHealthHandler(logger,
			handler.Dependency{Name: "postgres", Checker: repo},
			handler.Dependency{Name: "redis", Checker: cacheClient},
			handler.Dependency{Name: "storage", Checker: storageHC},
		),
		Accounts: handler.NewAccountHandler(authService, userService, keyService, logger),
		Investors: handler.NewInvestorHandler(
			service.NewInvestorService(repo, opts),
			service.NewInvestmentService(repo, opts),
			logger,
		),
		Applications: handler.NewApplicationHandler(service.NewApplicationService(repo, opts), logger),
		Transactions: handler.NewTransactionHandler(service.NewTransactionService(repo, opts), logger),
		KYC:          handler.NewKYCHandler(service.NewKYCService(repo, opts), logger),
		Tickets:      handler.NewTicketHandler(service.NewTicketService(repo, router, opts), logger),
		CRM: handler.NewCRMHandler(handler.CRMDeps{
			Contacts:    service.NewContactService(repo, router, opts),
			Threads:     service.NewThreadService(repo, opts),
			Templates:   service.NewTemplateService(repo, opts),
			Automations: service.NewAutomationService(repo, engine, opts),
			Workload:    service.NewAssignmentService(repo, opts),
		}, logger),
		Exports: handler.NewExportHandler(
			service.NewExportService(exportRepo, runner, scheduler, opts),
			presigner, cfg.ExportURLTTL, logger,
		),
		Metrics: handler.NewMetricsHandler(dash, recorder, logger),
	})

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Hooks run in reverse: the scheduler drains before its stores close.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("postgres_sql", func(context.Context) error { return db.Close() })
	srv.OnShutdown("redis", func(context.Context) error { return cacheClient.Close() })
	srv.OnShutdown("export_scheduler", scheduler.Shutdown)

	if cfg.ExportSchedulerEnabled {
		go func() {
			if err := scheduler.Run(context.Background()); err != nil {
				logger.Error("export_scheduler_stopped", "error", err)
			}
		}()
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"export_scheduler", cfg.ExportSchedulerEnabled,
		"storage", cfg.StorageConfigured(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openSQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// initLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "solarvest-api")
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s&]+`)

// redactURL drops the password from a connection URL for logging.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		if username := parsed.User.Username(); username != "" {
			parsed.User = url.User(username)
		} else {
			parsed.User = url.User("redacted")
		}
	}
	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}
	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
