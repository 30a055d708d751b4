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

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/auth"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	callHandler "learnhub-backend/internal/handler/http/call"
	chatHandler "learnhub-backend/internal/handler/http/chat"
	wsHandler "learnhub-backend/internal/handler/ws"
	"learnhub-backend/internal/media"
	"learnhub-backend/internal/middleware"
	"learnhub-backend/internal/repository/postgres"
	redisRepo "learnhub-backend/internal/repository/redis"
	"learnhub-backend/internal/repository/sqlite"
	"learnhub-backend/internal/room"
	callService "learnhub-backend/internal/service/call"
	"learnhub-backend/internal/telemetry"
	"learnhub-backend/pkg/config"
	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/database"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
	"learnhub-backend/pkg/resilience"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "path to YAML config file",
		EnvVars: []string{"REALTIME_CONFIG"},
	},
	&cli.IntFlag{
		Name:  "port",
		Usage: "HTTP port, overrides config and PORT",
	},
	&cli.StringFlag{
		Name:  "env",
		Usage: "environment (development, staging, production), overrides config and ENV",
	},
}

func main() {
	app := &cli.App{
		Name:        "realtime-service",
		Usage:       "Realtime chat rooms and call coordination",
		Description: "run without subcommands to start the server",
		Flags:       baseFlags,
		Action:      startServer,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the HTTP and WebSocket server",
				Action: startServer,
			},
			{
				Name:   "migrate",
				Usage:  "create the call tables for the configured database driver",
				Action: migrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("env") {
		cfg.Server.Environment = c.String("env")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	err = logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// callStore is a call repository that can create its own schema
type callStore interface {
	callService.CallRepository
	EnsureSchema(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.DatabaseConfig) (callStore, func(), error) {
	switch cfg.Driver {
	case "postgres":
		db, err := database.NewPostgresDB(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewCallRepository(db.Pool), db.Close, nil
	case "sqlite":
		repo, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func migrate(c *cli.Context) error {
	cfg, err := getConfig(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(c.Context, constants.DefaultTimeout)
	defer cancel()

	store, closeStore, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	logger.Info("Schema is up to date", zap.String("driver", cfg.Database.Driver))
	return nil
}

// connectRedis returns nil when Redis is disabled. A failed connection
// starts the service in degraded mode; the health check brings it back.
func connectRedis(ctx context.Context, cfg *config.RedisConfig, appMetrics *metrics.Metrics) *database.RedisDB {
	if !cfg.Enabled {
		logger.Info("Redis disabled, presence mirror and webhook dedup are off")
		return nil
	}

	redisDB, err := database.NewRedisDB(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to connect to Redis, starting in degraded mode", zap.Error(err))
		redisDB = database.NewDegradedRedisDB(cfg)
	} else {
		logger.Info("Connected to Redis",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port))
	}

	appMetrics.SetRedisDegraded(redisDB.IsDegraded())
	redisDB.OnDegradedChange(func(degraded bool) {
		appMetrics.SetRedisDegraded(degraded)
		if degraded {
			logger.Warn("Redis entered degraded mode")
		} else {
			logger.Info("Redis recovered from degraded mode")
		}
	})
	redisDB.StartHealthCheck(ctx, constants.RedisHealthCheckInterval)

	return redisDB
}

func startServer(c *cli.Context) error {
	cfg, err := getConfig(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	// 1. Call store
	store, closeStore, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	logger.Info("Call store ready", zap.String("driver", cfg.Database.Driver))

	// 2. Redis (optional)
	redisDB := connectRedis(ctx, &cfg.Redis, appMetrics)
	defer redisDB.Close()

	// 3. Media service behind a circuit breaker
	breaker := resilience.NewCircuitBreaker("livekit", resilience.Settings{
		Timeout: constants.DefaultTimeout,
		OnStateChange: func(name string, from, to resilience.CircuitBreakerState) {
			appMetrics.SetMediaCircuitBreakerState(to.Gauge())
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", string(from)),
				zap.String("to", string(to)))
		},
		OnResult: func(_, operation, status string) {
			appMetrics.RecordMediaRequest(operation, status)
		},
	})
	mediaService := media.NewLiveKit(&cfg.LiveKit, breaker)

	// 4. Room registries
	observers := room.Observers{
		telemetry.NewMetricsObserver(appMetrics),
		telemetry.NewLogObserver(logger.Named("room")),
	}

	var presence chatHandler.PresenceReader
	var ledger callService.WebhookLedger
	if redisDB != nil {
		presenceRepo := redisRepo.NewPresenceRepository(redisDB, constants.PresenceTTL)
		mirror := telemetry.NewPresenceMirror(presenceRepo, constants.PresenceWorkers)
		defer mirror.Stop()

		observers = append(observers, mirror)
		presence = presenceRepo
		ledger = redisRepo.NewWebhookLedger(redisDB, cfg.Webhook.LedgerTTL)
	}

	roomOpts := room.Options{Logger: logger.Named("room"), Observer: observers}
	chatRooms := room.NewChatRegistry(roomOpts)
	callRooms := room.NewCallRegistry(roomOpts)

	// 5. Call lifecycle
	callSvc, err := callService.NewService(store, mediaService, callRooms, callService.Options{
		Ledger:            ledger,
		WebhookKeys:       auth.NewSimpleKeyProvider(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret),
		Metrics:           appMetrics,
		RoomNameCacheSize: constants.RoomNameCacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create call service: %w", err)
	}

	// 6. Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	// Rate limits key on the peer address; no proxy headers are trusted
	if err := router.SetTrustedProxies(nil); err != nil {
		return err
	}

	router.Use(middleware.HealthCheck(cfg.Server.ServiceName))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	upgrader := wsHandler.NewUpgrader(cfg.WebSocket.AllowedOrigins)
	settings := wsHandler.SettingsFromConfig(cfg.WebSocket)
	gate := wsHandler.NewGate(cfg.WebSocket.MaxConnections)
	router.GET("/ws/chat/:roomId", wsHandler.NewChatHandler(chatRooms, upgrader, settings, gate).ServeWS)
	router.GET("/ws/call", wsHandler.NewCallHandler(callRooms, callSvc, upgrader, settings, gate).ServeWS)

	limiter := middleware.NewRateLimiter(redisDB, cfg.RateLimit.Requests, cfg.RateLimit.Window, appMetrics).
		Exempt("/v1/calls/webhook")

	v1 := router.Group("/v1")
	v1.Use(middleware.CORSMiddleware(cfg.WebSocket.AllowedOrigins))
	v1.Use(limiter.Middleware())
	callHandler.NewHandler(callSvc).RegisterRoutes(v1.Group("/calls"))
	chatHandler.NewHandler(chatRooms, presence).RegisterRoutes(v1.Group("/chat"))

	// 7. Serve until a signal arrives
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Realtime service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down realtime service")

		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = constants.GracefulShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		// Hijacked sockets are not tracked by Shutdown
		closeRooms(chatRooms, callRooms)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Realtime service stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Realtime service stopped")
	return nil
}

func closeRooms(chatRooms *room.ChatRegistry, callRooms *room.CallRegistry) {
	chatRooms.Each(func(_ string, r *room.ChatRoom) {
		r.Close("going away")
	})
	callRooms.Each(func(_ int64, r *room.CallRoom) {
		r.Close("going away")
	})
	logger.Info("Closed resident rooms",
		zap.Int("chat_rooms", chatRooms.Len()),
		zap.Int("call_rooms", callRooms.Len()))
}
