package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/dental-booking/internal/appointment"
	"github.com/hackgods/dental-booking/internal/whatsapp"
)

// TextSender replies to a patient over WhatsApp.
type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

type WebhookHandler struct {
	svc         BookingService
	sender      TextSender
	verifyToken string
	appSecret   string
	siteURL     string
	logger      zerolog.Logger
}

func NewWebhookHandler(svc BookingService, sender TextSender, verifyToken, appSecret, siteURL string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		svc:         svc,
		sender:      sender,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		siteURL:     siteURL,
		logger:      logger.With().Str("component", "whatsapp_webhook").Logger(),
	}
}

// Verify answers Meta's subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// Receive handles an inbound patient message. Only payloads signed with the
// app secret are acted on. Meta retries anything that is not a 200, so
// failures after that point are only logged.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !whatsapp.VerifySignature(h.appSecret, body, r.Header.Get(whatsapp.SignatureHeader)) {
		h.logger.Warn().Str("remote_ip", r.RemoteAddr).Msg("rejected webhook with invalid signature")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	defer func() {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}()

	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn().Err(err).Msg("malformed webhook payload")
		return
	}
	from, text, ok := payload.FirstMessage()
	if !ok {
		return
	}

	reply := h.handleCommand(r.Context(), from, whatsapp.ParseCommand(text))
	if reply == "" || h.sender == nil {
		return
	}
	if err := h.sender.SendText(r.Context(), from, reply); err != nil && !errors.Is(err, whatsapp.ErrNotConfigured) {
		h.logger.Error().Err(err).Msg("send reply")
	}
}

func (h *WebhookHandler) handleCommand(ctx context.Context, from string, cmd whatsapp.Command) string {
	log := h.logger.With().Int("command", int(cmd)).Logger()

	switch cmd {
	case whatsapp.CommandConfirm:
		appt, err := h.svc.ConfirmLatestByPhone(ctx, from)
		if err != nil {
			return h.failureReply(log, err)
		}
		return whatsapp.ReplyConfirmed(appt.Date, appt.Time)
	case whatsapp.CommandCancel:
		if _, err := h.svc.CancelLatestByPhone(ctx, from); err != nil {
			return h.failureReply(log, err)
		}
		return whatsapp.ReplyCanceled
	case whatsapp.CommandReschedule:
		return whatsapp.ReplyReschedule(h.siteURL)
	default:
		return whatsapp.ReplyHelp
	}
}

func (h *WebhookHandler) failureReply(log zerolog.Logger, err error) string {
	if errors.Is(err, appointment.ErrAppointmentNotFound) || errors.Is(err, appointment.ErrAlreadyCancelled) {
		return whatsapp.ReplyNotFound
	}
	log.Error().Err(err).Msg("webhook command failed")
	return ""
}
