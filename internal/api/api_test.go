package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-booking/internal/appointment"
	"github.com/hackgods/dental-booking/internal/catalog"
	"github.com/hackgods/dental-booking/internal/metrics"
	"github.com/hackgods/dental-booking/internal/notify"
	"github.com/hackgods/dental-booking/internal/schedule"
	"github.com/hackgods/dental-booking/internal/whatsapp"
)

const (
	testSecret    = "test-secret"
	testAppSecret = "meta-app-secret"
)

type stubBooking struct {
	create      func(appointment.CreateRequest) (*appointment.Appointment, error)
	lookup      func(string) (*appointment.Appointment, error)
	occupied    []schedule.Clock
	day         []appointment.DayEntry
	ranges      [][2]string
	history     map[string][]appointment.DayEntry
	cancelled   map[uuid.UUID]bool
	confirmErr  error
	cancelErr   error
	cancelCalls int
	latest      *appointment.Appointment
	attendance  []bool
	purged      string
}

func (s *stubBooking) CreateAppointment(_ context.Context, req appointment.CreateRequest) (*appointment.Appointment, error) {
	return s.create(req)
}

func (s *stubBooking) LookupByFolio(_ context.Context, folio string) (*appointment.Appointment, error) {
	return s.lookup(folio)
}

func (s *stubBooking) CancelByFolio(_ context.Context, folio string) (*appointment.Appointment, error) {
	return s.lookup(folio)
}

func (s *stubBooking) Reschedule(_ context.Context, id uuid.UUID, date, at string) (*appointment.Appointment, error) {
	a := testAppointment()
	a.ID = id
	a.Date = mustDate(date)
	a.Time = mustClock(at)
	return &a, nil
}

func (s *stubBooking) SetAttendance(_ context.Context, _ uuid.UUID, attended bool) (*appointment.Appointment, error) {
	s.attendance = append(s.attendance, attended)
	a := testAppointment()
	a.Attended = &attended
	return &a, nil
}

func (s *stubBooking) OccupiedSlots(context.Context, string, string) ([]schedule.Clock, error) {
	return s.occupied, nil
}

func (s *stubBooking) ListDay(_ context.Context, date string) ([]appointment.DayEntry, error) {
	if date == "" {
		return nil, &appointment.Error{Kind: appointment.KindInvalidArgument, Message: "date must be YYYY-MM-DD"}
	}
	return s.day, nil
}

func (s *stubBooking) ListRange(_ context.Context, from, to string) ([]appointment.DayEntry, error) {
	if from == "" || to == "" {
		return nil, &appointment.Error{Kind: appointment.KindInvalidArgument, Message: "from must be YYYY-MM-DD"}
	}
	s.ranges = append(s.ranges, [2]string{from, to})
	return s.day, nil
}

func (s *stubBooking) ListPatient(_ context.Context, phone string) ([]appointment.DayEntry, error) {
	if len(phone) < 10 {
		return nil, &appointment.Error{Kind: appointment.KindInvalidArgument, Message: "phone must have at least 10 digits"}
	}
	return s.history[phone], nil
}

func (s *stubBooking) CancelByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	if s.cancelled == nil {
		s.cancelled = map[uuid.UUID]bool{}
	}
	if s.cancelled[id] {
		return nil, appointment.ErrAlreadyCancelled
	}
	s.cancelled[id] = true
	a := testAppointment()
	a.ID = id
	a.Status = appointment.StatusCancelled
	return &a, nil
}

func (s *stubBooking) ConfirmLatestByPhone(context.Context, string) (*appointment.Appointment, error) {
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return s.latest, nil
}

func (s *stubBooking) CancelLatestByPhone(context.Context, string) (*appointment.Appointment, error) {
	s.cancelCalls++
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return s.latest, nil
}

func (s *stubBooking) PurgePatient(_ context.Context, phone string) (int64, error) {
	s.purged = phone
	return 3, nil
}

type stubCatalog struct {
	saved []catalog.Entry
}

func (c *stubCatalog) Entries(context.Context) ([]catalog.Entry, error) {
	return catalog.Defaults(), nil
}

func (c *stubCatalog) Replace(_ context.Context, entries []catalog.Entry) ([]catalog.Entry, error) {
	c.saved = catalog.Normalize(entries)
	return c.saved, nil
}

type memInbox struct {
	mu     sync.Mutex
	admins map[string]string
	tokens map[string][]string
	items  []notify.Notification
}

func newMemInbox() *memInbox {
	return &memInbox{admins: map[string]string{}, tokens: map[string][]string{}}
}

func (m *memInbox) EnsureAdmin(_ context.Context, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[id] = email
	return nil
}

func (m *memInbox) ListAdmins(context.Context) ([]notify.Admin, error) { return nil, nil }

func (m *memInbox) RegisterPushToken(_ context.Context, adminID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[adminID]; !ok {
		return notify.ErrAdminNotFound
	}
	m.tokens[adminID] = append(m.tokens[adminID], token)
	return nil
}

func (m *memInbox) RemovePushToken(context.Context, string, string) error { return nil }

func (m *memInbox) InsertNotification(_ context.Context, n notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, n)
	return nil
}

func (m *memInbox) ListForAdmin(_ context.Context, adminID string, _ int) ([]notify.Notification, error) {
	var out []notify.Notification
	for _, n := range m.items {
		if n.AdminID == adminID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memInbox) MarkRead(_ context.Context, adminID string, id uuid.UUID) error {
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].AdminID == adminID {
			m.items[i].Read = true
			return nil
		}
	}
	return notify.ErrNotificationNotFound
}

type recordingSender struct {
	mu   sync.Mutex
	sent map[string]string
}

func (r *recordingSender) SendText(_ context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = map[string]string{}
	}
	r.sent[to] = body
	return nil
}

func testAppointment() appointment.Appointment {
	return appointment.Appointment{
		ID:              uuid.New(),
		Folio:           "AB2CD",
		PatientName:     "Ana",
		Phone:           "5512345678",
		ReasonCode:      "cleaning",
		Reason:          "Dental cleaning",
		Date:            mustDate("2026-10-19"),
		Time:            mustClock("09:00"),
		DurationMinutes: 40,
		Status:          appointment.StatusActive,
	}
}

type testServer struct {
	booking *stubBooking
	catalog *stubCatalog
	inbox   *memInbox
	sender  *recordingSender
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		booking: &stubBooking{
			create: func(appointment.CreateRequest) (*appointment.Appointment, error) {
				a := testAppointment()
				return &a, nil
			},
			lookup: func(string) (*appointment.Appointment, error) { return nil, nil },
		},
		catalog: &stubCatalog{},
		inbox:   newMemInbox(),
		sender:  &recordingSender{},
	}

	reg := prometheus.NewRegistry()
	metrics.NewBookingMetrics(reg).ObserveOperation("create", "")

	ts.handler = NewRouter(RouterConfig{
		Service:        ts.booking,
		Catalog:        ts.catalog,
		Inbox:          ts.inbox,
		WhatsApp:       ts.sender,
		Logger:         zerolog.Nop(),
		PostgresCheck:  func(context.Context) error { return nil },
		Gatherer:       reg,
		AdminJWTSecret: testSecret,
		VerifyToken:    "verify-me",
		AppSecret:      testAppSecret,
		SiteURL:        "https://clinic.example",
		RequestTimeout: 5 * time.Second,
		Env:            "test",
		Version:        "dev",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// postWebhook delivers body the way Meta does, signed with signature.
func (ts *testServer) postWebhook(t *testing.T, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(whatsapp.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func signed(body string) string {
	return whatsapp.Sign(testAppSecret, []byte(body))
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateAppointment(t *testing.T) {
	ts := newTestServer(t)
	var got appointment.CreateRequest
	ts.booking.create = func(req appointment.CreateRequest) (*appointment.Appointment, error) {
		got = req
		a := testAppointment()
		return &a, nil
	}

	rec := ts.do(t, http.MethodPost, "/appointments",
		`{"name":"Ana","phone":"55 1234 5678","reasonCode":"cleaning","date":"2026-10-19","time":"09:00"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "cleaning", got.ReasonCode)
	assert.Equal(t, "55 1234 5678", got.Phone)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AB2CD", resp.Folio)
	assert.Equal(t, 40, resp.DurationMinutes)
	assert.Equal(t, "ACTIVE", resp.Status)
}

func TestCreateAppointmentErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"conflict", appointment.ErrSlotTaken, http.StatusConflict, "resource-exhausted"},
		{"upcoming", appointment.ErrUpcomingExists, http.StatusUnprocessableEntity, "failed-precondition"},
		{"busy", appointment.ErrDateBusy, http.StatusServiceUnavailable, "unavailable"},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.booking.create = func(appointment.CreateRequest) (*appointment.Appointment, error) {
				return nil, tt.err
			}
			rec := ts.do(t, http.MethodPost, "/appointments", `{"name":"Ana"}`, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantKind, resp.Error)
			assert.NotContains(t, resp.Details, "connection refused")
		})
	}
}

func TestCreateAppointmentMalformedBody(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/appointments", `{"name":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid-argument", decodeError(t, rec).Error)
}

func TestSlots(t *testing.T) {
	ts := newTestServer(t)
	ts.booking.occupied = []schedule.Clock{mustClock("09:00"), mustClock("09:30")}

	rec := ts.do(t, http.MethodGet, "/slots?date=2026-10-19", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SlotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"09:00", "09:30"}, resp.OccupiedSlots)
	assert.NotContains(t, resp.FreeSlots, "09:00")
	assert.Contains(t, resp.FreeSlots, "10:00")
	assert.Len(t, resp.FreeSlots, len(schedule.AllSlots())-2)

	rec = ts.do(t, http.MethodGet, "/slots", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupByFolio(t *testing.T) {
	ts := newTestServer(t)
	ts.booking.lookup = func(folio string) (*appointment.Appointment, error) {
		if folio != "AB2CD" {
			return nil, nil
		}
		a := testAppointment()
		return &a, nil
	}

	rec := ts.do(t, http.MethodGet, "/appointments/folio/ZZZZZ", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"appointment": null}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/appointments/folio/AB2CD", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Appointment)
	assert.Equal(t, "Ana", resp.Appointment.Name)
	assert.Empty(t, resp.Appointment.Phone)
}

func TestCancelByFolio(t *testing.T) {
	ts := newTestServer(t)
	ts.booking.lookup = func(string) (*appointment.Appointment, error) {
		a := testAppointment()
		a.Status = appointment.StatusCancelled
		return &a, nil
	}
	rec := ts.do(t, http.MethodPost, "/appointments/folio/AB2CD/cancel", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	require.NotNil(t, resp.Appointment)
	assert.Equal(t, "CANCELLED", resp.Appointment.Status)
	assert.Empty(t, resp.Appointment.Phone)
}

func TestCancelByFolioNotFound(t *testing.T) {
	ts := newTestServer(t)
	ts.booking.lookup = func(string) (*appointment.Appointment, error) {
		return nil, appointment.ErrAppointmentNotFound
	}
	rec := ts.do(t, http.MethodPost, "/appointments/folio/AB2CD/cancel", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not-found", decodeError(t, rec).Error)
}

func TestCatalog(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/catalog", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []catalog.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, len(catalog.Defaults()))
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/admin/appointments?date=2026-10-19", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/admin/appointments?date=2026-10-19", "", signToken(t, "wrong-secret", "op-1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/appointments?date=2026-10-19", "", signToken(t, testSecret, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminListDay(t *testing.T) {
	ts := newTestServer(t)
	ts.booking.day = []appointment.DayEntry{{Appointment: testAppointment(), State: appointment.DisplayNoShow}}
	token := signToken(t, testSecret, "op-1")

	rec := ts.do(t, http.MethodGet, "/admin/appointments?date=2026-10-19", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp []AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "NO_SHOW", resp[0].State)
	assert.Equal(t, "5512345678", resp[0].Phone)

	rec = ts.do(t, http.MethodGet, "/admin/appointments", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListRange(t *testing.T) {
	ts := newTestServer(t)
	ts.booking.day = []appointment.DayEntry{
		{Appointment: testAppointment(), State: appointment.DisplayActive},
		{Appointment: testAppointment(), State: appointment.DisplayCancelled},
	}
	token := signToken(t, testSecret, "op-1")

	rec := ts.do(t, http.MethodGet, "/admin/appointments?from=2026-10-19&to=2026-10-25", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp []AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "CANCELLED", resp[1].State)
	assert.Equal(t, [][2]string{{"2026-10-19", "2026-10-25"}}, ts.booking.ranges)

	rec = ts.do(t, http.MethodGet, "/admin/appointments?from=2026-10-19", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid-argument", decodeError(t, rec).Error)
}

func TestAdminPatientAppointments(t *testing.T) {
	ts := newTestServer(t)
	newer, older := testAppointment(), testAppointment()
	ts.booking.history = map[string][]appointment.DayEntry{
		"5512345678": {
			{Appointment: newer, State: appointment.DisplayConfirmed},
			{Appointment: older, State: appointment.DisplayAttended},
		},
	}
	token := signToken(t, testSecret, "op-1")

	rec := ts.do(t, http.MethodGet, "/admin/patients/5512345678/appointments", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp []AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, newer.ID, resp[0].ID)
	assert.Equal(t, "CONFIRMED", resp[0].State)
	assert.Equal(t, "ATTENDED", resp[1].State)

	rec = ts.do(t, http.MethodGet, "/admin/patients/5500000000/appointments", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/admin/patients/123/appointments", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCancelAppointment(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, testSecret, "op-1")
	id := uuid.New()
	path := "/admin/appointments/" + id.String() + "/cancel"

	rec := ts.do(t, http.MethodPost, path, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, path, "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, "CANCELLED", resp.Status)

	rec = ts.do(t, http.MethodPost, path, "", token)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "failed-precondition", decodeError(t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/admin/appointments/nope/cancel", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminReplaceCatalog(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPut, "/admin/catalog",
		`[{"id":"whitening","name":"Whitening","durationMinutes":500}]`, signToken(t, testSecret, "op-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.catalog.saved, 1)
	assert.Equal(t, catalog.MaxDurationMinutes, ts.catalog.saved[0].DurationMinutes)
}

func TestAdminReschedule(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()
	rec := ts.do(t, http.MethodPost, "/admin/appointments/"+id.String()+"/reschedule",
		`{"date":"2026-10-20","time":"11:30"}`, signToken(t, testSecret, "op-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"date":"2026-10-20","time":"11:30"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/admin/appointments/not-a-uuid/reschedule",
		`{"date":"2026-10-20","time":"11:30"}`, signToken(t, testSecret, "op-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAttendance(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, testSecret, "op-1")
	path := "/admin/appointments/" + uuid.NewString() + "/attendance"

	rec := ts.do(t, http.MethodPost, path, `{}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, path, `{"attended":false}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []bool{false}, ts.booking.attendance)
}

func TestAdminPurgePatient(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodDelete, "/admin/patients/5512345678", "", signToken(t, testSecret, "op-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":3}`, rec.Body.String())
	assert.Equal(t, "5512345678", ts.booking.purged)
}

func TestOperatorInbox(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, testSecret, "op-1")

	rec := ts.do(t, http.MethodPut, "/admin/me/push-tokens", `{"token":"tok-a"}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/me", `{"email":"dr@clinic.example"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dr@clinic.example", ts.inbox.admins["op-1"])

	rec = ts.do(t, http.MethodPut, "/admin/me/push-tokens", `{"token":"tok-a"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"tok-a"}, ts.inbox.tokens["op-1"])

	rec = ts.do(t, http.MethodGet, "/admin/notifications", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	n := notify.Notification{ID: uuid.New(), AdminID: "op-1", Type: "appointment_created", Title: "New appointment"}
	require.NoError(t, ts.inbox.InsertNotification(context.Background(), n))

	rec = ts.do(t, http.MethodPost, "/admin/notifications/"+n.ID.String()+"/read", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.inbox.items[0].Read)

	rec = ts.do(t, http.MethodPost, "/admin/notifications/"+n.ID.String()+"/read", "", signToken(t, testSecret, "op-2"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookVerify(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func inbound(from, text string) string {
	return `{"object":"whatsapp_business_account","entry":[{"changes":[{"field":"messages","value":{"messages":[{"from":"` +
		from + `","type":"text","text":{"body":"` + text + `"}}]}}]}]}`
}

func TestWebhookCommands(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		setup func(*stubBooking)
		want  string
	}{
		{"confirm", "1", func(s *stubBooking) {
			a := testAppointment()
			s.latest = &a
		}, "Tu cita del 19 de octubre de 2026 a las 09:00 ha sido confirmada."},
		{"confirm without appointment", "1", func(s *stubBooking) {
			s.confirmErr = appointment.ErrAppointmentNotFound
		}, "No encontramos una cita activa con este número."},
		{"cancel", "2", func(s *stubBooking) {
			a := testAppointment()
			s.latest = &a
		}, "Tu cita ha sido cancelada. Si deseas reagendar, visita nuestro sitio o responde REAGENDAR."},
		{"reschedule", "reagendar", nil, "Para reagendar tu cita entra a: https://clinic.example/agendar"},
		{"anything else", "hola", nil, "Responde 1 para confirmar, 2 para cancelar, o REAGENDAR para cambiar tu cita."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.setup != nil {
				tt.setup(ts.booking)
			}
			body := inbound("5215512345678", tt.text)
			rec := ts.postWebhook(t, body, signed(body))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, ts.sender.sent["5215512345678"])
		})
	}
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.postWebhook(t, `not json`, signed(`not json`))
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.booking.confirmErr = errors.New("db down")
	body := inbound("5512345678", "1")
	rec = ts.postWebhook(t, body, signed(body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.sender.sent)
}

func TestWebhookRejectsUnsignedPayloads(t *testing.T) {
	ts := newTestServer(t)
	a := testAppointment()
	ts.booking.latest = &a

	body := inbound("5512345678", "2")
	tests := []struct {
		name      string
		signature string
	}{
		{"no signature", ""},
		{"signed with another secret", whatsapp.Sign("forged", []byte(body))},
		{"signature of another body", signed(inbound("5512345678", "1"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.postWebhook(t, body, tt.signature)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
	assert.Empty(t, ts.sender.sent)
	assert.Zero(t, ts.booking.cancelCalls)
}

func TestWebhookRejectedWithoutAppSecret(t *testing.T) {
	h := NewWebhookHandler(&stubBooking{}, &recordingSender{}, "verify-me", "", "https://clinic.example", zerolog.Nop())
	body := inbound("5512345678", "2")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set(whatsapp.SignatureHeader, whatsapp.Sign("", []byte(body)))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health/ready", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ok", ready.Dependencies["postgres"])
	assert.Equal(t, "disabled", ready.Dependencies["redis"])

	rec = ts.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dental_booking_operations_total")
}

func TestReadinessFailsWithoutPostgres(t *testing.T) {
	h := NewHealthHandler(func(context.Context) error { return errors.New("down") }, nil, "test", "dev")
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func mustDate(s string) schedule.Date {
	d, err := schedule.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func mustClock(s string) schedule.Clock {
	c, err := schedule.ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}
