package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-booking/internal/notify"
)

type RouterConfig struct {
	Service        BookingService
	Catalog        CatalogService
	Inbox          notify.AdminStore
	WhatsApp       TextSender
	Logger         zerolog.Logger
	PostgresCheck  Check
	RedisCheck     Check
	Gatherer       prometheus.Gatherer
	AdminJWTSecret string
	VerifyToken    string
	AppSecret      string
	SiteURL        string
	RequestTimeout time.Duration
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	// Health endpoints
	health := NewHealthHandler(cfg.PostgresCheck, cfg.RedisCheck, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// Public booking endpoints
	r.Get("/catalog", listCatalogHandler(cfg.Catalog))
	r.Get("/slots", slotsHandler(cfg.Service))
	r.Post("/appointments", createAppointmentHandler(cfg.Service))
	r.Get("/appointments/folio/{folio}", lookupByFolioHandler(cfg.Service))
	r.Post("/appointments/folio/{folio}/cancel", cancelByFolioHandler(cfg.Service))

	webhook := NewWebhookHandler(cfg.Service, cfg.WhatsApp, cfg.VerifyToken, cfg.AppSecret, cfg.SiteURL, cfg.Logger)
	r.Get("/webhooks/whatsapp", webhook.Verify)
	r.Post("/webhooks/whatsapp", webhook.Receive)

	// Operator endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminJWT(cfg.AdminJWTSecret))

		r.Put("/catalog", replaceCatalogHandler(cfg.Catalog))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelByIDHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service))
		r.Post("/appointments/{id}/attendance", attendanceHandler(cfg.Service))
		r.Get("/patients/{phone}/appointments", patientAppointmentsHandler(cfg.Service))
		r.Delete("/patients/{phone}", purgePatientHandler(cfg.Service))

		r.Post("/me", ensureAdminHandler(cfg.Inbox))
		r.Put("/me/push-tokens", registerPushTokenHandler(cfg.Inbox))
		r.Get("/notifications", listNotificationsHandler(cfg.Inbox))
		r.Post("/notifications/{id}/read", markNotificationReadHandler(cfg.Inbox))
	})

	return r
}
