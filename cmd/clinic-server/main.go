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
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/alert"
	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/realtime"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic emergency alert and realtime API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(alertsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			schema := schemaFlag(cmd, cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			schema := schemaFlag(cmd, cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func schemaFlag(cmd *cobra.Command, cfg *config.Config) string {
	if s, _ := cmd.Flags().GetString("schema"); s != "" {
		return s
	}
	return cfg.DBSchema
}

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Emergency alert maintenance",
	}

	// alerts resume
	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Finish notification fan-out for alerts interrupted mid-send",
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
			if err != nil {
				return err
			}
			defer pool.Close()

			rt, err := newRealtime(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			svc := newAlertService(cfg, pool, logger, rt.broadcaster, nil)
			n, err := svc.ResumeIncomplete(ctx, olderThan)
			fmt.Printf("Resumed %d alert(s).\n", n)
			return err
		},
	}
	resumeCmd.Flags().Duration("older-than", 5*time.Minute, "Only resume alerts created before now minus this duration")
	cmd.AddCommand(resumeCmd)

	return cmd
}

// newLogger writes JSON to stdout, or colored console output in development.
func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newSenders returns the HTTP gateway when any gateway URL is configured and
// a log-only sender otherwise.
func newSenders(cfg *config.Config, logger zerolog.Logger) (notification.SMSSender, notification.EmailSender) {
	if cfg.SMSGatewayURL == "" && cfg.EmailGatewayURL == "" {
		logger.Warn().Msg("no notification gateway configured, messages will only be logged")
		s := notification.NewLogSender(logger)
		return s, s
	}
	gw := notification.NewGateway(cfg.SMSGatewayURL, cfg.EmailGatewayURL, cfg.GatewaySecret,
		notification.WithTimeout(cfg.GatewayTimeout))
	return gw, gw
}

// realtimeStack is the broadcaster plus, for the redis backend, the client and
// subscriber the caller must run and close.
type realtimeStack struct {
	broadcaster *realtime.Broadcaster
	redis       *redis.Client
	subscriber  *realtime.RedisBackend
}

func (r *realtimeStack) Close() {
	if r.redis != nil {
		r.redis.Close()
	}
}

func newRealtime(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *realtime.Metrics) (*realtimeStack, error) {
	hub := realtime.NewHub(metrics)
	if cfg.RealtimeBackend != "redis" {
		return &realtimeStack{broadcaster: realtime.NewBroadcaster(hub, nil, logger, metrics)}, nil
	}

	rdb, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	backend := realtime.NewRedisBackend(rdb, cfg.RealtimeChannel, hub, logger)
	return &realtimeStack{
		broadcaster: realtime.NewBroadcaster(hub, backend, logger, metrics),
		redis:       rdb,
		subscriber:  backend,
	}, nil
}

func newAlertService(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger, publisher alert.Publisher, metrics *alert.Metrics) *alert.Service {
	sms, email := newSenders(cfg, logger)
	return alert.NewService(
		alert.NewAlertRepoPG(pool),
		alert.NewDeliveryRepoPG(pool),
		alert.NewDirectoryRepoPG(pool),
		audit.NewPGLedger(pool),
		sms, email,
		alert.WithLogger(logger),
		alert.WithPublisher(publisher),
		alert.WithMetrics(metrics),
		alert.WithConcurrency(cfg.NotifyConcurrency),
		alert.WithSendTimeout(cfg.NotifySendTimeout),
		alert.WithResolvePolicy(alert.ResolvePolicy(cfg.AlertResolvePolicy)),
	)
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Realtime
	rt, err := newRealtime(ctx, cfg, logger, realtime.NewMetrics(reg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up realtime backend")
	}
	defer rt.Close()
	checks := []db.Check{db.PoolCheck(pool)}
	if rt.redis != nil {
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rt.redis.Ping(ctx).Err()
		}})
		go func() {
			if err := rt.subscriber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("realtime subscriber stopped")
			}
		}()
		logger.Info().Str("channel", cfg.RealtimeChannel).Msg("realtime fan-out via redis")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	// Health and metrics stay outside auth.
	e.GET("/health", db.HealthHandler(checks...))
	e.GET("/health/db", db.HealthHandler(db.PoolCheck(pool)))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	} else {
		authMW = auth.JWTMiddleware(jwtCfg)
	}

	// API groups
	root := e.Group("", authMW)
	apiV1 := e.Group("/api/v1", authMW)

	// Rate limiting middleware
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Emergency alerts
	alertSvc := newAlertService(cfg, pool, logger, rt.broadcaster, alert.NewMetrics(reg))
	alert.NewHandler(alertSvc).RegisterRoutes(apiV1, root)

	// Realtime rooms
	realtime.NewHandler(rt.broadcaster, logger, cfg.CORSOrigins).RegisterRoutes(apiV1, root)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
