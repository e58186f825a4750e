package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-booking/internal/catalog"
	"github.com/hackgods/dental-booking/internal/config"
	"github.com/hackgods/dental-booking/internal/metrics"
	redisclient "github.com/hackgods/dental-booking/internal/redis"
	"github.com/hackgods/dental-booking/internal/schedule"
)

// latestByPhoneWindow bounds how many recent appointments a WhatsApp reply
// is matched against.
const latestByPhoneWindow = 5

// maxRangeDays caps the span of one calendar query.
const maxRangeDays = 62

// Notifier receives lifecycle events. Implementations must not block the
// caller on delivery and must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type CatalogResolver interface {
	Resolve(ctx context.Context, reasonCode, otherText string) catalog.Resolution
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

type Service struct {
	repo     Repository
	catalog  CatalogResolver
	locker   redisclient.Locker
	notifier Notifier
	folios   *FolioGenerator
	detector schedule.Detector
	metrics  *metrics.BookingMetrics
	logger   zerolog.Logger

	loc          *time.Location
	now          func() time.Time
	phonePrefix  string
	reminderLead time.Duration
}

type Option func(*Service)

// WithClock replaces time.Now; every "now" comparison in the service uses it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithFolioGenerator(g *FolioGenerator) Option {
	return func(s *Service) { s.folios = g }
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, resolver CatalogResolver, locker redisclient.Locker, notifier Notifier, cfg config.Config, logger zerolog.Logger, opts ...Option) *Service {
	if locker == nil {
		locker = redisclient.NopLocker()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	lead := cfg.ReminderLead
	if lead <= 0 {
		lead = 5 * time.Minute
	}

	s := &Service{
		repo:         repo,
		catalog:      resolver,
		locker:       locker,
		notifier:     notifier,
		folios:       NewFolioGenerator(nil),
		logger:       logger.With().Str("component", "appointment").Logger(),
		loc:          loc,
		now:          time.Now,
		phonePrefix:  cfg.PhoneCountryPrefix,
		reminderLead: lead,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.detector = schedule.NewDetector(s.loc, s.now)
	return s
}

// Location is the zone appointment dates and times are expressed in.
func (s *Service) Location() *time.Location { return s.loc }

// Today returns the current calendar date in the clinic's zone.
func (s *Service) Today() schedule.Date {
	return schedule.DateOf(s.now().In(s.loc))
}

type CreateRequest struct {
	Name        string
	Phone       string
	ReasonCode  string
	ReasonOther string
	Date        string
	Time        string
}

type createInput struct {
	name  string
	phone string
	code  string
	other string
	date  schedule.Date
	at    schedule.Clock
}

func (s *Service) validateCreate(req CreateRequest) (createInput, error) {
	in := createInput{
		name:  strings.TrimSpace(req.Name),
		phone: NormalizePhone(req.Phone),
		code:  strings.TrimSpace(req.ReasonCode),
		other: strings.TrimSpace(req.ReasonOther),
	}
	if in.name == "" {
		return in, invalidArgument("patient name is required")
	}
	if len(in.phone) < minPhoneDigits {
		return in, invalidArgument(fmt.Sprintf("phone must have at least %d digits", minPhoneDigits))
	}
	if in.code == "" {
		return in, invalidArgument("reason is required")
	}
	if strings.EqualFold(in.code, catalog.OtherReason) && in.other == "" {
		return in, invalidArgument("describe the reason when choosing other")
	}

	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		return in, invalidArgument("date must be YYYY-MM-DD")
	}
	if date.Before(s.Today()) {
		return in, invalidArgument("date cannot be in the past")
	}
	at, err := schedule.ParseClock(req.Time)
	if err != nil || !schedule.IsValidStart(at) {
		return in, invalidArgument("time must be one of the half-hour slots between 09:00 and 17:30")
	}
	in.date, in.at = date, at
	return in, nil
}

// CreateAppointment books a new appointment in state ACTIVE.
// The conflict check, the duplicate-phone check and the insert run as one
// unit under the date lock.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (created *Appointment, err error) {
	defer func() { s.observe("create", err) }()

	in, err := s.validateCreate(req)
	if err != nil {
		return nil, err
	}

	res := s.catalog.Resolve(ctx, in.code, in.other)
	candidate := schedule.OccupiedSlots(in.at, res.DurationMinutes)
	startsAt := in.date.At(in.at, s.loc)

	err = s.withDate(ctx, in.date, func(ctx context.Context, l Ledger) error {
		existing, err := l.ListActiveByDate(ctx, in.date)
		if err != nil {
			return err
		}
		if s.detector.HasConflict(candidate, bookings(existing), "") {
			return ErrSlotTaken
		}

		if err := s.checkNoUpcoming(ctx, l, in.phone); err != nil {
			return err
		}

		appt := &Appointment{
			ID:              uuid.New(),
			PatientName:     in.name,
			Phone:           in.phone,
			ReasonCode:      strings.ToLower(in.code),
			Reason:          res.Reason,
			Date:            in.date,
			Time:            in.at,
			DurationMinutes: res.DurationMinutes,
			Status:          StatusActive,
		}
		_, err = s.folios.Mint(ctx, func(ctx context.Context, folio string) error {
			appt.Folio = folio
			return l.InsertAppointment(ctx, appt, startsAt)
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("folio", created.Folio).
		Str("date", created.Date.String()).
		Str("time", created.Time.String()).
		Int("duration_minutes", created.DurationMinutes).
		Msg("appointment created")

	s.notifier.Notify(ctx, Event{
		Type:        EventCreated,
		Title:       "New appointment",
		Message:     fmt.Sprintf("%s booked %s on %s at %s (folio %s)", created.PatientName, created.Reason, created.Date, created.Time, created.Folio),
		Appointment: *created,
	})
	return created, nil
}

// checkNoUpcoming rejects a phone that already holds a non-cancelled
// appointment starting in the future, under either stored phone form.
func (s *Service) checkNoUpcoming(ctx context.Context, l Ledger, phone string) error {
	found, err := l.ListByPhones(ctx, phoneVariants(phone, s.phonePrefix))
	if err != nil {
		return err
	}
	now := s.now()
	seen := make(map[uuid.UUID]struct{}, len(found))
	for _, a := range found {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		if a.Status == StatusCancelled {
			continue
		}
		if a.StartsAt(s.loc).After(now) {
			return ErrUpcomingExists
		}
	}
	return nil
}

// LookupByFolio returns nil without error when folio is malformed or unknown.
func (s *Service) LookupByFolio(ctx context.Context, folio string) (*Appointment, error) {
	folio = NormalizeFolio(folio)
	if !ValidFolio(folio) {
		return nil, nil
	}
	appt, err := s.repo.GetAppointmentByFolio(ctx, folio)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	return appt, err
}

// CancelByFolio cancels the appointment identified by a patient's folio.
func (s *Service) CancelByFolio(ctx context.Context, folio string) (appt *Appointment, err error) {
	defer func() { s.observe("cancel", err) }()

	folio = NormalizeFolio(folio)
	if !ValidFolio(folio) {
		return nil, ErrAppointmentNotFound
	}
	current, err := s.repo.GetAppointmentByFolio(ctx, folio)
	if err != nil {
		return nil, err
	}

	appt, err = s.transition(ctx, current, StatusCancelled)
	if err != nil {
		return nil, err
	}
	s.notifyCancelled(ctx, appt, "folio")
	return appt, nil
}

// CancelByID cancels an appointment from the operator dashboard.
func (s *Service) CancelByID(ctx context.Context, id uuid.UUID) (appt *Appointment, err error) {
	defer func() { s.observe("cancel", err) }()

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	appt, err = s.transition(ctx, current, StatusCancelled)
	if err != nil {
		return nil, err
	}
	s.notifyCancelled(ctx, appt, "admin")
	return appt, nil
}

// Reschedule moves an appointment to a new date and time keeping its
// duration and status. The appointment never conflicts with itself.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (moved *Appointment, err error) {
	defer func() { s.observe("reschedule", err) }()

	date, err := schedule.ParseDate(newDate)
	if err != nil {
		return nil, invalidArgument("date must be YYYY-MM-DD")
	}
	at, err := schedule.ParseClock(newTime)
	if err != nil || !schedule.IsValidStart(at) {
		return nil, invalidArgument("time must be one of the half-hour slots between 09:00 and 17:30")
	}

	var previous Appointment
	err = s.withDate(ctx, date, func(ctx context.Context, l Ledger) error {
		current, err := l.GetAppointmentByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		previous = *current

		existing, err := l.ListActiveByDate(ctx, date)
		if err != nil {
			return err
		}
		candidate := schedule.OccupiedSlots(at, current.DurationMinutes)
		if s.detector.HasConflict(candidate, bookings(existing), current.ID.String()) {
			return ErrSlotTaken
		}

		moved, err = l.UpdateSchedule(ctx, id, date, at, date.At(at, s.loc))
		if errors.Is(err, ErrAppointmentNotFound) {
			// cancelled between the read and the update
			return ErrAlreadyCancelled
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", previous.Date.String()+" "+previous.Time.String()).
		Str("to", moved.Date.String()+" "+moved.Time.String()).
		Msg("appointment rescheduled")

	s.notifier.Notify(ctx, Event{
		Type:        EventRescheduled,
		Title:       "Appointment rescheduled",
		Message:     fmt.Sprintf("%s moved from %s %s to %s %s", moved.PatientName, previous.Date, previous.Time, moved.Date, moved.Time),
		Appointment: *moved,
	})
	return moved, nil
}

// SetAttendance records whether the patient showed up. It can be toggled
// freely once the appointment has started.
func (s *Service) SetAttendance(ctx context.Context, id uuid.UUID, attended bool) (appt *Appointment, err error) {
	defer func() { s.observe("attendance", err) }()

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if !current.StartsAt(s.loc).Before(s.now()) {
		return nil, ErrNotStarted
	}

	appt, err = s.repo.SetAttendance(ctx, id, attended)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", id.String()).Bool("attended", attended).Msg("attendance recorded")
	return appt, nil
}

// OccupiedSlots returns the busy grid slots of a date, optionally ignoring
// one appointment (the one being rescheduled).
func (s *Service) OccupiedSlots(ctx context.Context, date string, excludeID string) ([]schedule.Clock, error) {
	d, err := schedule.ParseDate(date)
	if err != nil {
		return nil, invalidArgument("date must be YYYY-MM-DD")
	}
	existing, err := s.repo.ListActiveByDate(ctx, d)
	if err != nil {
		return nil, err
	}
	return s.detector.Occupied(bookings(existing), excludeID), nil
}

type DayEntry struct {
	Appointment
	State DisplayState
}

// ListDay returns every appointment of a date, cancelled included, with the
// state operators see.
func (s *Service) ListDay(ctx context.Context, date string) ([]DayEntry, error) {
	d, err := schedule.ParseDate(date)
	if err != nil {
		return nil, invalidArgument("date must be YYYY-MM-DD")
	}
	return s.listBetween(ctx, d, d)
}

// ListRange is ListDay over from..to inclusive, for the calendar view.
func (s *Service) ListRange(ctx context.Context, from, to string) ([]DayEntry, error) {
	start, err := schedule.ParseDate(from)
	if err != nil {
		return nil, invalidArgument("from must be YYYY-MM-DD")
	}
	end, err := schedule.ParseDate(to)
	if err != nil {
		return nil, invalidArgument("to must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, invalidArgument("from must not be after to")
	}
	span := end.At(schedule.ClockAt(0), time.UTC).Sub(start.At(schedule.ClockAt(0), time.UTC))
	if span > maxRangeDays*24*time.Hour {
		return nil, invalidArgument(fmt.Sprintf("range must not exceed %d days", maxRangeDays))
	}
	return s.listBetween(ctx, start, end)
}

func (s *Service) listBetween(ctx context.Context, from, to schedule.Date) ([]DayEntry, error) {
	appts, err := s.repo.ListBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return s.withState(appts), nil
}

// ListPatient returns a patient's history under any form of their phone,
// newest first.
func (s *Service) ListPatient(ctx context.Context, phone string) ([]DayEntry, error) {
	phone = NormalizePhone(phone)
	if len(phone) < minPhoneDigits {
		return nil, invalidArgument(fmt.Sprintf("phone must have at least %d digits", minPhoneDigits))
	}
	found, err := s.repo.ListByPhones(ctx, phoneVariants(phone, s.phonePrefix))
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(found))
	appts := found[:0:0]
	for _, a := range found {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		appts = append(appts, a)
	}
	return s.withState(appts), nil
}

func (s *Service) withState(appts []Appointment) []DayEntry {
	now := s.now()
	out := make([]DayEntry, len(appts))
	for i, a := range appts {
		out[i] = DayEntry{Appointment: a, State: a.Display(now, s.loc)}
	}
	return out
}

// ConfirmLatestByPhone confirms the patient's most recent live appointment.
// Confirming an already confirmed appointment is a no-op.
func (s *Service) ConfirmLatestByPhone(ctx context.Context, phone string) (appt *Appointment, err error) {
	defer func() { s.observe("confirm", err) }()

	current, err := s.latestByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusConfirmed {
		return current, nil
	}

	appt, err = s.transition(ctx, current, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, Event{
		Type:        EventConfirmed,
		Title:       "Appointment confirmed",
		Message:     fmt.Sprintf("%s confirmed %s %s", appt.PatientName, appt.Date, appt.Time),
		Appointment: *appt,
	})
	return appt, nil
}

// CancelLatestByPhone cancels the patient's most recent live appointment.
func (s *Service) CancelLatestByPhone(ctx context.Context, phone string) (appt *Appointment, err error) {
	defer func() { s.observe("cancel", err) }()

	current, err := s.latestByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	appt, err = s.transition(ctx, current, StatusCancelled)
	if err != nil {
		return nil, err
	}
	s.notifyCancelled(ctx, appt, "whatsapp")
	return appt, nil
}

func (s *Service) latestByPhone(ctx context.Context, phone string) (*Appointment, error) {
	phone = NormalizePhone(phone)
	if len(phone) < minPhoneDigits {
		return nil, ErrAppointmentNotFound
	}
	found, err := s.repo.ListByPhones(ctx, phoneVariants(phone, s.phonePrefix))
	if err != nil {
		return nil, err
	}
	if len(found) > latestByPhoneWindow {
		found = found[:latestByPhoneWindow]
	}
	for i := range found {
		if found[i].Status != StatusCancelled {
			return &found[i], nil
		}
	}
	return nil, ErrAppointmentNotFound
}

// PurgePatient deletes every appointment stored under phone.
func (s *Service) PurgePatient(ctx context.Context, phone string) (int64, error) {
	phone = NormalizePhone(phone)
	if len(phone) < minPhoneDigits {
		return 0, invalidArgument(fmt.Sprintf("phone must have at least %d digits", minPhoneDigits))
	}
	n, err := s.repo.DeleteByPhone(ctx, phone)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("phone", phone).Int64("deleted", n).Msg("patient records purged")
	return n, nil
}

// SendDueReminders notifies operators once about each appointment starting
// around reminderLead from now. Each appointment is claimed before notifying,
// so overlapping runs never remind twice.
func (s *Service) SendDueReminders(ctx context.Context) (int, error) {
	now := s.now()
	from := now.Add(s.reminderLead - 30*time.Second)
	to := now.Add(s.reminderLead + 30*time.Second)

	due, err := s.repo.ListDueForReminder(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	sent := 0
	for _, a := range due {
		claimed, err := s.repo.MarkReminderSent(ctx, a.ID)
		if err != nil {
			s.logger.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("claim reminder")
			continue
		}
		if !claimed {
			continue
		}
		a.ReminderSent = true
		s.notifier.Notify(ctx, Event{
			Type:        EventUpcoming,
			Title:       "Upcoming appointment",
			Message:     fmt.Sprintf("%s at %s (%s)", a.PatientName, a.Time, a.Reason),
			Appointment: a,
		})
		s.metrics.ObserveReminder()
		sent++
	}
	return sent, nil
}

// transition moves current to status `to`. The status update is conditional
// on the status read; one lost race is retried against a fresh read.
func (s *Service) transition(ctx context.Context, current *Appointment, to AppointmentStatus) (*Appointment, error) {
	for attempt := 0; ; attempt++ {
		if current.Status == StatusCancelled {
			return nil, ErrAlreadyCancelled
		}
		if !CanTransition(current.Status, to) {
			return nil, ErrInvalidTransition
		}

		updated, err := s.repo.UpdateStatus(ctx, current.ID, current.Status, to)
		if err == nil {
			s.logger.Info().
				Str("appointment_id", updated.ID.String()).
				Str("from", string(current.Status)).
				Str("to", string(to)).
				Msg("appointment status changed")
			return updated, nil
		}
		if !errors.Is(err, ErrAppointmentNotFound) || attempt > 0 {
			return nil, err
		}

		current, err = s.repo.GetAppointmentByID(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == to {
			return current, nil
		}
	}
}

func (s *Service) notifyCancelled(ctx context.Context, appt *Appointment, via string) {
	s.notifier.Notify(ctx, Event{
		Type:        EventCancelled,
		Title:       "Appointment cancelled",
		Message:     fmt.Sprintf("%s cancelled %s %s (via %s)", appt.PatientName, appt.Date, appt.Time, via),
		Appointment: *appt,
	})
}

// withDate serializes fn against every other writer of the same date: the
// Redis lock turns contention away early, the advisory lock inside the
// transaction is what guarantees it.
func (s *Service) withDate(ctx context.Context, date schedule.Date, fn func(ctx context.Context, l Ledger) error) error {
	err := s.locker.WithDateLock(ctx, date.String(), func(lockCtx context.Context) error {
		start := time.Now()
		defer func() { s.metrics.ObserveCriticalSection(time.Since(start).Seconds()) }()
		return s.repo.InDateTx(lockCtx, date, fn)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrDateBusy
	}
	return err
}

func (s *Service) observe(op string, err error) {
	if err == nil {
		s.metrics.ObserveOperation(op, "")
		return
	}
	kind := KindOf(err)
	s.metrics.ObserveOperation(op, string(kind))
	if kind == KindInternal || kind == KindUnavailable {
		s.logger.Error().Err(err).Str("operation", op).Msg("appointment operation failed")
	}
}
