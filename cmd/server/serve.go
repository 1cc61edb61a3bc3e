package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carebear/internal/api"
	"carebear/internal/auth"
	"carebear/internal/config"
	"carebear/internal/correlation"
	"carebear/internal/interaction"
	"carebear/internal/logging"
	"carebear/internal/mcp"
	"carebear/internal/observability"
	"carebear/internal/repository"
	"carebear/internal/services"
	"carebear/internal/tls"
	"carebear/internal/workflow"
)

const persistRetryInterval = 500 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting carebear", "version", version)

	shutdownTracing, err := observability.InitTracing(cfg.Tracing.Enabled, os.Stdout)
	if err != nil {
		return fmt.Errorf("tracing initialization failed: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Tracer shutdown error", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	issueStore, closeIssues, err := openIssueStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIssues()

	flows, closeFlows, err := openCorrelationStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFlows()

	gateway := services.NewSlackGateway(cfg.Slack.BotToken, cfg.Slack.APIURL, cfg.Slack.Timeout)
	orch := workflow.New(flows, gateway, issueStore,
		workflow.WithLogger(logger),
		workflow.WithMetrics(metrics),
		workflow.WithConfirmationText(cfg.Slack.ConfirmationText),
		workflow.WithPersistRetry(cfg.Workflow.PersistAttempts, persistRetryInterval),
		workflow.WithMaxInFlight(int64(cfg.Workflow.MaxInFlight)),
	)
	sweeper := workflow.NewSweeper(orch, cfg.Workflow.MaxAge, cfg.Workflow.SweepInterval)
	issueService := services.NewIssueService(issueStore, gateway, logger)
	verifier := auth.New(cfg.Slack.VerificationToken, logger)

	logger.Info("Service layer initialized")

	e := newEcho(logger, metrics)
	apiServer := api.NewServer(
		issueService,
		interaction.NewRouter(orch, logger, metrics),
		verifier,
		issueStore,
		logger,
		version,
	)
	apiServer.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(observability.Handler(registry)))

	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(issueService, version)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	mcpHandler := echo.WrapHandler(verifier.RequireToken(mcpHandlers))
	e.Any("/mcp", mcpHandler)
	e.Any("/mcp/*", mcpHandler)

	logger.Info("MCP protocol handlers mounted")

	server := newHTTPServer(cfg, e, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listen(server, cfg, logger)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		if err := orch.Drain(shutdownCtx); err != nil {
			logger.Warn("Background workflow tasks still running at shutdown", "error", err)
		}

		logger.Info("Server stopped gracefully")
		return nil
	})
	return g.Wait()
}

// newHTTPServer sends net/http's own error output (TLS handshake failures,
// handler panics) through the structured logger.
func newHTTPServer(cfg *config.Config, handler http.Handler, logger *logging.Logger) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger.Zap()),
	}
}

func newEcho(logger *logging.Logger, metrics *observability.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("carebear"))
	e.Use(metrics.Middleware())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				logger.Warn("Request failed", append(fields, "error", v.Error)...)
				return nil
			}
			logger.Debug("Request", fields...)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderContentType, auth.HeaderName},
	}))
	return e
}

func listen(server *http.Server, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)

	var err error
	if cfg.TLS.Enable {
		if err := ensureCertificate(cfg, logger); err != nil {
			return err
		}
		err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	} else {
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ensureCertificate generates a self-signed pair when the configured
// certificate is missing and hostnames are set.
func ensureCertificate(cfg *config.Config, logger *logging.Logger) error {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return errors.New("tls.enable requires tls.cert_file and tls.key_file")
	}
	if _, err := os.Stat(cfg.TLS.CertFile); !os.IsNotExist(err) {
		return nil
	}
	if len(cfg.TLS.Hostnames) == 0 {
		return fmt.Errorf("certificate %s not found and tls.hostnames is empty", cfg.TLS.CertFile)
	}
	logger.Info("Generating self-signed certificate", "cert_file", cfg.TLS.CertFile, "hostnames", cfg.TLS.Hostnames)
	return tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
}

// openIssueStore returns the configured issue store and a function that
// releases it.
func openIssueStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.IssueStore, func(), error) {
	if cfg.Storage.Issues == config.DriverMemory {
		logger.Warn("Using in-memory issue store; issues are lost on restart")
		return repository.NewMemoryIssueStore(), func() {}, nil
	}

	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	logger.Info("Database connected", "host", cfg.DB.Host, "name", cfg.DB.Name)

	store := repository.NewPostgresIssueStore(dbPool)
	if err := store.Migrate(ctx); err != nil {
		dbPool.Close()
		return nil, nil, err
	}
	return store, dbPool.Close, nil
}

// openCorrelationStore returns the configured correlation store and a
// function that releases it.
func openCorrelationStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (correlation.Store, func(), error) {
	if cfg.Storage.Correlation != config.DriverRedis {
		return correlation.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}
	logger.Info("Redis connected", "addr", cfg.Redis.Addr)

	// The key TTL only catches workflows the sweeper never reached.
	ttl := 2 * cfg.Workflow.MaxAge
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Redis close error", "error", err)
		}
	}
	return correlation.NewRedisStore(client, cfg.Redis.KeyPrefix, ttl), closeFn, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
