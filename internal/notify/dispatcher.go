package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-booking/internal/appointment"
	"github.com/hackgods/dental-booking/internal/metrics"
	"github.com/hackgods/dental-booking/internal/whatsapp"
)

const defaultDeliveryTimeout = 15 * time.Second

// ConfirmationSender sends the patient-facing booking confirmation.
type ConfirmationSender interface {
	Enabled() bool
	SendBookingConfirmation(ctx context.Context, b whatsapp.Booking) (string, error)
}

// Dispatcher implements appointment.Notifier. Deliveries run in the
// background and never report back to the lifecycle operation.
type Dispatcher struct {
	store   AdminStore
	pusher  Pusher
	wa      ConfirmationSender
	metrics *metrics.BookingMetrics
	logger  zerolog.Logger
	timeout time.Duration

	wg sync.WaitGroup
}

// NewDispatcher wires the delivery channels. pusher and wa may be nil when
// the channel is not configured.
func NewDispatcher(store AdminStore, pusher Pusher, wa ConfirmationSender, m *metrics.BookingMetrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		pusher:  pusher,
		wa:      wa,
		metrics: m,
		logger:  logger.With().Str("component", "notify").Logger(),
		timeout: defaultDeliveryTimeout,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, ev appointment.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// the request that triggered the event may finish first
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.Deliver(ctx, ev)
	}()
}

// Shutdown waits for in-flight deliveries or until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver runs every channel for ev synchronously. Failures are logged.
func (d *Dispatcher) Deliver(ctx context.Context, ev appointment.Event) {
	log := d.logger.With().
		Str("event", string(ev.Type)).
		Str("appointment_id", ev.Appointment.ID.String()).
		Logger()

	if ev.Type == appointment.EventCreated {
		d.confirmToPatient(ctx, log, ev.Appointment)
	}

	admins, err := d.store.ListAdmins(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list operators")
		return
	}

	a := ev.Appointment
	apptID := a.ID
	for _, admin := range admins {
		n := Notification{
			ID:              uuid.New(),
			AdminID:         admin.ID,
			Type:            string(ev.Type),
			Title:           ev.Title,
			Message:         ev.Message,
			AppointmentID:   &apptID,
			AppointmentDate: a.Date.String(),
			AppointmentTime: a.Time.String(),
		}
		if err := d.store.InsertNotification(ctx, n); err != nil {
			log.Error().Err(err).Str("admin_id", admin.ID).Msg("store notification")
			d.metrics.ObserveDelivery("inbox", false)
		} else {
			d.metrics.ObserveDelivery("inbox", true)
		}

		d.pushToAdmin(ctx, log, admin, n)
	}
}

func (d *Dispatcher) pushToAdmin(ctx context.Context, log zerolog.Logger, admin Admin, n Notification) {
	if d.pusher == nil {
		return
	}
	p := Push{
		Title: n.Title,
		Body:  n.Message,
		Data: map[string]string{
			"type":           n.Type,
			"notificationId": n.ID.String(),
			"appointmentId":  n.AppointmentID.String(),
		},
	}
	for _, token := range admin.PushTokens {
		err := d.pusher.Push(ctx, token, p)
		d.metrics.ObserveDelivery("push", err == nil)
		switch {
		case err == nil:
		case errors.Is(err, ErrTokenUnregistered):
			if err := d.store.RemovePushToken(ctx, admin.ID, token); err != nil {
				log.Warn().Err(err).Str("admin_id", admin.ID).Msg("prune push token")
			} else {
				log.Info().Str("admin_id", admin.ID).Msg("pruned unregistered push token")
			}
		default:
			log.Warn().Err(err).Str("admin_id", admin.ID).Msg("push failed")
		}
	}
}

func (d *Dispatcher) confirmToPatient(ctx context.Context, log zerolog.Logger, a appointment.Appointment) {
	if d.wa == nil || !d.wa.Enabled() {
		log.Debug().Msg("whatsapp not configured, skipping confirmation")
		return
	}
	used, err := d.wa.SendBookingConfirmation(ctx, whatsapp.Booking{
		Phone: a.Phone,
		Name:  a.PatientName,
		Date:  a.Date,
		Time:  a.Time,
		Folio: a.Folio,
	})
	d.metrics.ObserveDelivery("whatsapp", err == nil)
	if err != nil {
		log.Error().Err(err).Msg("whatsapp confirmation")
		return
	}
	log.Info().Str("template", used).Msg("whatsapp confirmation sent")
}
