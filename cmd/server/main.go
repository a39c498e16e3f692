package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/openclaw/wager-server-go/internal/config"
	"github.com/openclaw/wager-server-go/internal/database"
	"github.com/openclaw/wager-server-go/internal/handler"
	"github.com/openclaw/wager-server-go/internal/jobs"
	"github.com/openclaw/wager-server-go/internal/ledger"
	"github.com/openclaw/wager-server-go/internal/metrics"
	"github.com/openclaw/wager-server-go/internal/middleware"
	"github.com/openclaw/wager-server-go/internal/redis"
	"github.com/openclaw/wager-server-go/internal/repository"
	"github.com/openclaw/wager-server-go/internal/service"
	"github.com/openclaw/wager-server-go/internal/sse"
	"github.com/openclaw/wager-server-go/internal/tracing"
)

const serviceName = "wager-server"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg)
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	shutdownTracing, err := tracing.Setup(context.Background(), tracing.Options{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: serviceName,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Str("driver", db.DriverName()).Msg("database connected")

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	ctx, cancel = context.WithTimeout(context.Background(), config.DBPingTimeout)
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	m := metrics.New(config.MetricsNamespace)

	broker := sse.NewBroker(redisClient)

	playerRepo := repository.NewPlayerRepository(db)
	gameRepo := repository.NewGameRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	entryRepo := repository.NewEntryRepository(db)
	wallets := ledger.NewWalletLedger(db, time.Now)

	clock := service.SystemClock{}
	playerService := service.NewPlayerService(db, playerRepo, wallets, cfg.WalletStartingFunds, clock)
	balanceService := service.NewBalanceService(db, balanceRepo, entryRepo, wallets, m, clock)
	gameService := service.NewGameService(
		db, gameRepo, balanceRepo, entryRepo, wallets, broker, m,
		service.GameConfig{
			MinStake:     cfg.MinStake,
			MaxStake:     cfg.MaxStake,
			CommitWindow: cfg.CommitWindow(),
			RevealWindow: cfg.RevealWindow(),
			CancelGrace:  cfg.CancelGrace(),
		},
	)
	statsService := service.NewStatsService(playerRepo, gameRepo, balanceRepo, entryRepo)
	rateLimiter := service.NewRateLimiter(redisClient.Client)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	authMiddleware := middleware.NewAuthMiddleware(playerService)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(rateLimiter, config.DefaultRateLimitPerMin)
	registerLimitMiddleware := middleware.NewIPRateLimitMiddleware(
		rateLimiter, config.RegisterLimitPerWindow, config.RegisterLimitWindow, "register",
	)
	adminLimitMiddleware := middleware.NewIPRateLimitMiddleware(
		rateLimiter, config.AdminLimitPerMin, time.Minute, "admin",
	)
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(cfg.AdminPasswordHash)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	playerHandler := handler.NewPlayerHandler(playerService, balanceService)
	gameHandler := handler.NewGameHandler(gameService)
	balanceHandler := handler.NewBalanceHandler(balanceService)
	eventsHandler := handler.NewEventsHandler(broker, m)
	wsHandler := handler.NewWebSocketHandler(broker, m, cfg.CORSAllowedOrigins)
	adminHandler := handler.NewAdminHandler(statsService, playerService)
	healthHandler := handler.NewHealthHandler(config.DBPingTimeout, map[string]handler.Pinger{
		"database": db,
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	})

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(cfg.CORSAllowedOrigins))
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Streams stay open far longer than the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Get("/events", eventsHandler.ServeHTTP)
			r.Get("/ws", wsHandler.ServeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(bodyLimitMiddleware.Handler)

			r.With(registerLimitMiddleware.Handler).Post("/players", playerHandler.Register)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Handler)
				r.Use(rateLimitMiddleware.Handler)
				r.Get("/me", playerHandler.Me)
				r.Mount("/sessions", gameHandler.Routes())
				r.Mount("/balance", balanceHandler.Routes())
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)
		r.Use(adminLimitMiddleware.Handler)
		r.Use(adminAuthMiddleware.Handler)
		r.Mount("/", adminHandler.Routes())
	})

	sweeper := jobs.NewSweeper(gameService, cfg.SweepInterval(), cfg.SweepBatchSize, time.Now)
	sweeper.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	sweeper.Stop()
	broker.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("server stopped")
}

// setupLogger adds a rotating JSON log file next to the console output when
// LOG_FILE is set.
func setupLogger(cfg *config.Config) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.LogFile != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogFileMaxMB,
			MaxBackups: cfg.LogFileMaxBackups,
			Compress:   true,
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", serviceName).Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           600,
	}).Handler
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
