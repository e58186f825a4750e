package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/dental-booking/internal/appointment"
	"github.com/hackgods/dental-booking/internal/catalog"
	"github.com/hackgods/dental-booking/internal/schedule"
)

// BookingService is the lifecycle surface the HTTP layer drives.
type BookingService interface {
	CreateAppointment(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error)
	LookupByFolio(ctx context.Context, folio string) (*appointment.Appointment, error)
	CancelByFolio(ctx context.Context, folio string) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*appointment.Appointment, error)
	SetAttendance(ctx context.Context, id uuid.UUID, attended bool) (*appointment.Appointment, error)
	OccupiedSlots(ctx context.Context, date string, excludeID string) ([]schedule.Clock, error)
	CancelByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListDay(ctx context.Context, date string) ([]appointment.DayEntry, error)
	ListRange(ctx context.Context, from, to string) ([]appointment.DayEntry, error)
	ListPatient(ctx context.Context, phone string) ([]appointment.DayEntry, error)
	ConfirmLatestByPhone(ctx context.Context, phone string) (*appointment.Appointment, error)
	CancelLatestByPhone(ctx context.Context, phone string) (*appointment.Appointment, error)
	PurgePatient(ctx context.Context, phone string) (int64, error)
}

type CatalogService interface {
	Entries(ctx context.Context) ([]catalog.Entry, error)
	Replace(ctx context.Context, entries []catalog.Entry) ([]catalog.Entry, error)
}

func listCatalogHandler(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.Entries(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func slotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, string(appointment.KindInvalidArgument), "date is required")
			return
		}

		occupied, err := svc.OccupiedSlots(r.Context(), date, r.URL.Query().Get("exclude_id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			Date:          date,
			OccupiedSlots: schedule.Labels(occupied),
			FreeSlots:     schedule.Labels(schedule.Free(occupied)),
		})
	}
}

func createAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, string(appointment.KindInvalidArgument), "could not parse JSON")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), appointment.CreateRequest{
			Name:        req.Name,
			Phone:       req.Phone,
			ReasonCode:  req.ReasonCode,
			ReasonOther: req.ReasonOther,
			Date:        req.Date,
			Time:        req.Time,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

// publicView strips what an anonymous folio holder should not see.
func publicView(a *appointment.Appointment) *AppointmentResponse {
	resp := toAppointmentResponse(a)
	resp.Phone = ""
	return &resp
}

func lookupByFolioHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.LookupByFolio(r.Context(), chi.URLParam(r, "folio"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := LookupResponse{}
		if appt != nil {
			resp.Appointment = publicView(appt)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelByFolioHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.CancelByFolio(r.Context(), chi.URLParam(r, "folio"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CancelResponse{OK: true, Appointment: publicView(appt)})
	}
}
