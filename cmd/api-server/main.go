package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/DiggAiHH/abu-abad-sub000/internal/api"
	"github.com/DiggAiHH/abu-abad-sub000/internal/booking"
	"github.com/DiggAiHH/abu-abad-sub000/internal/config"
	"github.com/DiggAiHH/abu-abad-sub000/internal/db"
	"github.com/DiggAiHH/abu-abad-sub000/internal/payment"
	redisclient "github.com/DiggAiHH/abu-abad-sub000/internal/redis"
)

const version = "0.1.0"

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	logger.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	migCtx, cancelMig := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migCtx, pgPool)
	cancelMig()
	if err != nil {
		logger.Fatal().Err(err).Msg("migration error")
	}

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	bookingRepo := booking.NewPgRepository(pgPool)
	paymentRepo := payment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisCalendarLocker(rdb, cfg.LockTTL)
	gateway := payment.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewaySecretKey, cfg.GatewayTimeout)

	bookingSvc := booking.NewService(bookingRepo, locker, logger)
	paymentSvc := payment.NewService(paymentRepo, bookingRepo, gateway, logger, cfg.Currency)
	reconciler := payment.NewReconciler(paymentRepo, cfg.GatewayWebhookSecret, logger)

	router := api.NewRouter(api.RouterConfig{
		Booking:    bookingSvc,
		Payments:   paymentSvc,
		Reconciler: reconciler,
		PgPool:     pgPool,
		Redis:      rdb,
		Log:        logger,
		Env:        cfg.Env,
		Version:    version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()

	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
