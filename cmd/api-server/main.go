package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hackgods/dental-booking/internal/api"
	"github.com/hackgods/dental-booking/internal/appointment"
	"github.com/hackgods/dental-booking/internal/catalog"
	"github.com/hackgods/dental-booking/internal/config"
	"github.com/hackgods/dental-booking/internal/db"
	"github.com/hackgods/dental-booking/internal/metrics"
	"github.com/hackgods/dental-booking/internal/notify"
	redisclient "github.com/hackgods/dental-booking/internal/redis"
	"github.com/hackgods/dental-booking/internal/whatsapp"
	"github.com/hackgods/dental-booking/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "api-server").Logger()
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Connect Redis. Without it the store lock alone serializes bookings.
	var (
		locker     = redisclient.NopLocker()
		redisCheck api.Check
	)
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, running without the fast-fail date lock")
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisDateLocker(rdb, cfg.LockTTL, cfg.LockWait)
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info().Msg("connected to Redis")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(reg)

	catalogSvc := catalog.NewService(catalog.NewPgStore(pgPool), catalog.Defaults(), logger)

	wa := whatsapp.NewClient(whatsapp.Config{
		Token:         cfg.WhatsAppToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		APIVersion:    cfg.WhatsAppAPIVersion,
	}, nil, logger)
	if !wa.Enabled() {
		logger.Warn().Msg("whatsapp is not configured, patient messages are disabled")
	}
	if cfg.WhatsAppAppSecret == "" {
		logger.Warn().Msg("WHATSAPP_APP_SECRET is not set, inbound webhooks will be rejected")
	}

	var pusher notify.Pusher
	if cfg.PushEnabled() {
		fcmPusher, err := notify.NewFCMPusher(rootCtx, cfg.FCMProjectID, cfg.FCMCredentialsFile)
		if err != nil {
			logger.Error().Err(err).Msg("fcm setup failed, push notifications are disabled")
		} else {
			pusher = fcmPusher
		}
	}

	inbox := notify.NewPgAdminStore(pgPool)
	dispatcher := notify.NewDispatcher(inbox, pusher, wa, bookingMetrics, logger)

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		catalogSvc,
		locker,
		dispatcher,
		cfg,
		logger,
		appointment.WithMetrics(bookingMetrics),
	)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Catalog:        catalogSvc,
		Inbox:          inbox,
		WhatsApp:       wa,
		Logger:         logger,
		PostgresCheck:  pgPool.Ping,
		RedisCheck:     redisCheck,
		Gatherer:       reg,
		AdminJWTSecret: cfg.AdminJWTSecret,
		VerifyToken:    cfg.WhatsAppVerifyToken,
		AppSecret:      cfg.WhatsAppAppSecret,
		SiteURL:        cfg.SiteURL,
		RequestTimeout: cfg.RequestTimeout,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("pending notifications dropped")
	}

	logger.Info().Msg("api-server stopped")
}
