package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edhub/edhub/internal/config"
	"github.com/edhub/edhub/internal/domain/ambulance"
	"github.com/edhub/edhub/internal/domain/emergency"
	"github.com/edhub/edhub/internal/domain/notification"
	"github.com/edhub/edhub/internal/domain/records"
	"github.com/edhub/edhub/internal/domain/staff"
	"github.com/edhub/edhub/internal/platform/audit"
	"github.com/edhub/edhub/internal/platform/auth"
	"github.com/edhub/edhub/internal/platform/blobstore"
	"github.com/edhub/edhub/internal/platform/db"
	"github.com/edhub/edhub/internal/platform/metrics"
	"github.com/edhub/edhub/internal/platform/middleware"
	"github.com/edhub/edhub/internal/platform/websocket"
)

const tokenIssuer = "edhub"

// uploadPrefix is the route group allowed the larger upload body limit.
const uploadPrefix = "/api/medical-documents"

func main() {
	rootCmd := &cobra.Command{
		Use:   "edhub-server",
		Short: "Emergency department notification and triage server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API and realtime server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     tokenIssuer,
		SigningKey: []byte(cfg.JWTSigningKey),
		TTL:        cfg.TokenTTL,
		Skipper:    auth.AuthSkipper,
	}
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		return middleware.DefaultRateLimitConfig()
	}
	return rl
}

func newBlobStore(cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.UploadStore {
	case "memory":
		return blobstore.NewInMemoryBlobStore(cfg.MaxUploadBytes), nil
	case "disk", "":
		return blobstore.NewDiskBlobStore(cfg.UploadDir, cfg.MaxUploadBytes)
	}
	return nil, fmt.Errorf("unknown upload store %q", cfg.UploadStore)
}

type serviceDeps struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	publisher websocket.EventPublisher
	blobs     blobstore.BlobStore
	logger    zerolog.Logger
}

// services holds the wired domain layer.
type services struct {
	notifications *notification.Service
	staff         *staff.Service
	emergency     *emergency.Service
	records       *records.Service
	ambulances    *ambulance.Service
	access        *audit.Logger
}

func newServices(deps serviceDeps) *services {
	notifSvc := notification.NewService(notification.NewRepoPG(deps.pool), deps.publisher, deps.logger)
	notifSvc.SetLimits(deps.cfg.NotificationPageSize, deps.cfg.NotificationTTL)

	staffSvc := staff.NewService(staff.NewRepoPG(deps.pool), notifSvc, jwtConfig(deps.cfg), deps.logger)
	emergencySvc := emergency.NewService(emergency.NewRepoPG(deps.pool), staffSvc, notifSvc, deps.publisher, db.NewTxRunner(deps.pool), deps.logger)

	recordsSvc := records.NewService(records.NewRepoPG(deps.pool), deps.blobs, emergencySvc, notifSvc, deps.logger)
	ambulanceSvc := ambulance.NewService(ambulance.NewRepoPG(deps.pool), staffSvc, notifSvc, deps.publisher, db.NewTxRunner(deps.pool), deps.logger)

	access := audit.NewLogger(deps.pool)
	emergencySvc.SetAuditor(access)
	recordsSvc.SetAuditor(access)

	return &services{
		notifications: notifSvc,
		staff:         staffSvc,
		emergency:     emergencySvc,
		records:       recordsSvc,
		ambulances:    ambulanceSvc,
		access:        access,
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Realtime fan-out. With Redis configured every instance relays events
	// published by its peers.
	hub := websocket.NewHub(logger)
	var publisher websocket.EventPublisher = hub
	var checks []db.Check
	if cfg.RedisURL != "" {
		rdb, err := websocket.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		defer rdb.Close()
		bridge := websocket.NewRedisBridge(rdb, cfg.RedisChannel, hub, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("realtime redis bridge stopped")
			}
		}()
		publisher = bridge
		checks = append(checks, db.Check{Name: "redis", Probe: bridge.Ping})
		logger.Info().Str("channel", cfg.RedisChannel).Msg("realtime redis bridge enabled")
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open upload store")
	}

	svcs := newServices(serviceDeps{cfg: cfg, pool: pool, publisher: publisher, blobs: blobs, logger: logger})
	jwtCfg := jwtConfig(cfg)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		HSTS:          cfg.CookieSecure,
		PreviewSuffix: "/preview",
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(middleware.Metrics())
	e.Use(middleware.BodyLimit("1M", strconv.FormatInt(cfg.MaxUploadBytes, 10), uploadPrefix))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	api := e.Group("/api")
	api.Use(auth.JWTMiddleware(jwtCfg))
	api.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	api.Use(audit.Middleware())

	staff.NewHandler(svcs.staff, cfg.CookieSecure).RegisterRoutes(api)
	notification.NewHandler(svcs.notifications).RegisterRoutes(api)
	emergency.NewHandler(svcs.emergency).RegisterRoutes(api)
	records.NewHandler(svcs.records).RegisterRoutes(api)
	ambulance.NewHandler(svcs.ambulances).RegisterRoutes(api)
	audit.NewHandler(svcs.access).RegisterRoutes(api)

	// The socket handshake authenticates itself.
	websocket.NewWebSocketHandler(hub, jwtCfg, cfg.CORSOrigins, logger).RegisterRoutes(e.Group(""))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"sockets": hub.ClientCount(),
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))
	e.GET("/metrics", metrics.Handler())

	go svcs.notifications.RunRetention(ctx, cfg.NotificationSweep)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	hub.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	cancel()
	logger.Info().Msg("server stopped")
	return nil
}
