package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-booking/internal/appointment"
	"github.com/hackgods/dental-booking/internal/metrics"
	"github.com/hackgods/dental-booking/internal/schedule"
	"github.com/hackgods/dental-booking/internal/whatsapp"
)

type memStore struct {
	mu       sync.Mutex
	admins   []Admin
	inbox    []Notification
	removed  []string
	failList bool
}

func (s *memStore) EnsureAdmin(_ context.Context, id, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins = append(s.admins, Admin{ID: id, Email: email})
	return nil
}

func (s *memStore) ListAdmins(context.Context) ([]Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("db down")
	}
	return append([]Admin(nil), s.admins...), nil
}

func (s *memStore) RegisterPushToken(context.Context, string, string) error { return nil }

func (s *memStore) RemovePushToken(_ context.Context, _ string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, token)
	return nil
}

func (s *memStore) InsertNotification(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox = append(s.inbox, n)
	return nil
}

func (s *memStore) ListForAdmin(context.Context, string, int) ([]Notification, error) {
	return nil, nil
}

func (s *memStore) MarkRead(context.Context, string, uuid.UUID) error { return nil }

type fakePusher struct {
	mu    sync.Mutex
	sent  []string
	stale map[string]bool
}

func (p *fakePusher) Push(_ context.Context, token string, _ Push) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stale[token] {
		return ErrTokenUnregistered
	}
	p.sent = append(p.sent, token)
	return nil
}

type fakeWhatsApp struct {
	mu     sync.Mutex
	booked []whatsapp.Booking
}

func (f *fakeWhatsApp) Enabled() bool { return true }

func (f *fakeWhatsApp) SendBookingConfirmation(_ context.Context, b whatsapp.Booking) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.booked = append(f.booked, b)
	return whatsapp.TemplateWithFolio, nil
}

func testEvent(t *testing.T, typ appointment.EventType) appointment.Event {
	t.Helper()
	d, err := schedule.ParseDate("2026-10-19")
	require.NoError(t, err)
	c, err := schedule.ParseClock("09:00")
	require.NoError(t, err)
	return appointment.Event{
		Type:    typ,
		Title:   "New appointment",
		Message: "Ana booked Dental cleaning",
		Appointment: appointment.Appointment{
			ID: uuid.New(), Folio: "AB2CD", PatientName: "Ana", Phone: "5512345678",
			Date: d, Time: c, DurationMinutes: 40, Status: appointment.StatusActive,
		},
	}
}

func TestDispatcherFansOutToOperators(t *testing.T) {
	store := &memStore{admins: []Admin{
		{ID: "op-1", PushTokens: []string{"tok-a", "tok-stale"}},
		{ID: "op-2"},
	}}
	pusher := &fakePusher{stale: map[string]bool{"tok-stale": true}}
	wa := &fakeWhatsApp{}
	d := NewDispatcher(store, pusher, wa, metrics.NewBookingMetrics(prometheus.NewRegistry()), zerolog.Nop())

	ev := testEvent(t, appointment.EventCreated)
	d.Notify(context.Background(), ev)
	require.NoError(t, d.Shutdown(context.Background()))

	require.Len(t, store.inbox, 2)
	assert.Equal(t, "op-1", store.inbox[0].AdminID)
	assert.Equal(t, "appointment_created", store.inbox[0].Type)
	assert.Equal(t, "2026-10-19", store.inbox[0].AppointmentDate)
	assert.Equal(t, ev.Appointment.ID, *store.inbox[1].AppointmentID)

	assert.Equal(t, []string{"tok-a"}, pusher.sent)
	assert.Equal(t, []string{"tok-stale"}, store.removed)

	require.Len(t, wa.booked, 1)
	assert.Equal(t, "AB2CD", wa.booked[0].Folio)
}

func TestDispatcherOnlyConfirmsCreatedBookings(t *testing.T) {
	store := &memStore{admins: []Admin{{ID: "op-1"}}}
	wa := &fakeWhatsApp{}
	d := NewDispatcher(store, nil, wa, nil, zerolog.Nop())

	d.Deliver(context.Background(), testEvent(t, appointment.EventCancelled))
	assert.Empty(t, wa.booked)
	assert.Len(t, store.inbox, 1)
}

func TestDispatcherSwallowsStoreFailures(t *testing.T) {
	store := &memStore{failList: true}
	d := NewDispatcher(store, nil, nil, nil, zerolog.Nop())

	d.Notify(context.Background(), testEvent(t, appointment.EventUpcoming))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.Empty(t, store.inbox)
}

func TestDispatcherOutlivesCallerContext(t *testing.T) {
	store := &memStore{admins: []Admin{{ID: "op-1"}}}
	d := NewDispatcher(store, nil, nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, testEvent(t, appointment.EventConfirmed))
	require.NoError(t, d.Shutdown(context.Background()))
	assert.Len(t, store.inbox, 1)
}

func TestPgAdminStoreListAdmins(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM admins").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "push_tokens"}).
			AddRow("op-1", "dr@clinic.example", []string{"tok-a"}).
			AddRow("op-2", "", []string{}))

	admins, err := NewPgAdminStore(mock).ListAdmins(context.Background())
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, []string{"tok-a"}, admins[0].PushTokens)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgAdminStoreRegisterPushTokenUnknownAdmin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE admins").
		WithArgs("ghost", "tok").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewPgAdminStore(mock).RegisterPushToken(context.Background(), "ghost", "tok")
	assert.ErrorIs(t, err, ErrAdminNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgAdminStoreMarkRead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("UPDATE admin_notifications").
		WithArgs(id, "op-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
	mock.ExpectQuery("UPDATE admin_notifications").
		WithArgs(id, "op-2").
		WillReturnError(pgx.ErrNoRows)

	store := NewPgAdminStore(mock)
	require.NoError(t, store.MarkRead(context.Background(), "op-1", id))
	assert.ErrorIs(t, store.MarkRead(context.Background(), "op-2", id), ErrNotificationNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgAdminStoreInsertNotification(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n := Notification{ID: uuid.New(), AdminID: "op-1", Type: "upcoming_appointment", Title: "t", Message: "m"}
	mock.ExpectExec("INSERT INTO admin_notifications").
		WithArgs(n.ID, "op-1", "upcoming_appointment", "t", "m", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewPgAdminStore(mock).InsertNotification(context.Background(), n))
	require.NoError(t, mock.ExpectationsWereMet())
}
