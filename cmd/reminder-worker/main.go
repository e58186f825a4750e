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
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-booking/internal/appointment"
	"github.com/hackgods/dental-booking/internal/catalog"
	"github.com/hackgods/dental-booking/internal/config"
	"github.com/hackgods/dental-booking/internal/db"
	"github.com/hackgods/dental-booking/internal/metrics"
	"github.com/hackgods/dental-booking/internal/notify"
	redisclient "github.com/hackgods/dental-booking/internal/redis"
	"github.com/hackgods/dental-booking/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "reminder-worker").Logger()
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Dur("lead", cfg.ReminderLead).Msg("reminder worker starting up")

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

	var pusher notify.Pusher
	if cfg.PushEnabled() {
		fcmPusher, err := notify.NewFCMPusher(rootCtx, cfg.FCMProjectID, cfg.FCMCredentialsFile)
		if err != nil {
			logger.Error().Err(err).Msg("fcm setup failed, reminders go to the inbox only")
		} else {
			pusher = fcmPusher
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	var metricsSrv *http.Server
	if cfg.MetricsPort != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsPort, registry)
		go func() {
			logger.Info().Str("addr", metricsSrv.Addr).Msg("metrics listener up")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener error")
			}
		}()
	}
	dispatcher := notify.NewDispatcher(notify.NewPgAdminStore(pgPool), pusher, nil, bookingMetrics, logger)

	// Reminders never take the date lock.
	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		catalog.NewService(catalog.NewPgStore(pgPool), catalog.Defaults(), logger),
		redisclient.NopLocker(),
		dispatcher,
		cfg,
		logger,
		appointment.WithMetrics(bookingMetrics),
	)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reminder worker")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
			if err := dispatcher.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("pending notifications dropped")
			}
			cancel()
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := svc.SendDueReminders(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("reminder run error")
		return
	}
	logger.Info().Int("sent", sent).Dur("took", time.Since(start)).Msg("reminder run complete")
}
