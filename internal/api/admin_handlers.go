package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/dental-booking/internal/appointment"
	"github.com/hackgods/dental-booking/internal/catalog"
	"github.com/hackgods/dental-booking/internal/notify"
)

const (
	errInvalidArgument = string(appointment.KindInvalidArgument)
	errNotFound        = string(appointment.KindNotFound)
	errInternal        = string(appointment.KindInternal)
)

func uuidParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidArgument, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func replaceCatalogHandler(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entries []catalog.Entry
		if err := decodeJSON(w, r, &entries); err != nil {
			writeError(w, http.StatusBadRequest, errInvalidArgument, "body must be a list of services")
			return
		}

		saved, err := svc.Replace(r.Context(), entries)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func rescheduleHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r)
		if !ok {
			return
		}
		var req RescheduleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, errInvalidArgument, "could not parse JSON")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, req.Date, req.Time)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RescheduleResponse{
			OK:   true,
			Date: appt.Date.String(),
			Time: appt.Time.String(),
		})
	}
}

func attendanceHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r)
		if !ok {
			return
		}
		var req AttendanceRequest
		if err := decodeJSON(w, r, &req); err != nil || req.Attended == nil {
			writeError(w, http.StatusBadRequest, errInvalidArgument, "attended must be true or false")
			return
		}

		appt, err := svc.SetAttendance(r.Context(), id, *req.Attended)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// listAppointmentsHandler serves the day view (?date=) and the calendar
// range view (?from=&to=).
func listAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var (
			entries []appointment.DayEntry
			err     error
		)
		if q.Has("from") || q.Has("to") {
			entries, err = svc.ListRange(r.Context(), q.Get("from"), q.Get("to"))
		} else {
			entries, err = svc.ListDay(r.Context(), q.Get("date"))
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, withStates(entries))
	}
}

func patientAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.ListPatient(r.Context(), chi.URLParam(r, "phone"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, withStates(entries))
	}
}

func withStates(entries []appointment.DayEntry) []AppointmentResponse {
	resp := make([]AppointmentResponse, 0, len(entries))
	for i := range entries {
		item := toAppointmentResponse(&entries[i].Appointment)
		item.State = string(entries[i].State)
		resp = append(resp, item)
	}
	return resp
}

func cancelByIDHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.CancelByID(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func purgePatientHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := svc.PurgePatient(r.Context(), chi.URLParam(r, "phone"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, PurgeResponse{Deleted: deleted})
	}
}

func ensureAdminHandler(store notify.AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, _ := AdminIDFromContext(r.Context())
		var req EnsureAdminRequest
		if r.ContentLength > 0 {
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, http.StatusBadRequest, errInvalidArgument, "could not parse JSON")
				return
			}
		}

		if err := store.EnsureAdmin(r.Context(), adminID, req.Email); err != nil {
			writeError(w, http.StatusInternalServerError, errInternal, "could not register operator")
			return
		}
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func registerPushTokenHandler(store notify.AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, _ := AdminIDFromContext(r.Context())
		var req PushTokenRequest
		if err := decodeJSON(w, r, &req); err != nil || req.Token == "" {
			writeError(w, http.StatusBadRequest, errInvalidArgument, "token is required")
			return
		}

		err := store.RegisterPushToken(r.Context(), adminID, req.Token)
		switch {
		case errors.Is(err, notify.ErrAdminNotFound):
			writeError(w, http.StatusNotFound, errNotFound, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, errInternal, "could not register token")
		default:
			writeJSON(w, http.StatusOK, OKResponse{OK: true})
		}
	}
}

func listNotificationsHandler(store notify.AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, _ := AdminIDFromContext(r.Context())
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		items, err := store.ListForAdmin(r.Context(), adminID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, errInternal, "could not load notifications")
			return
		}
		if items == nil {
			items = []notify.Notification{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func markNotificationReadHandler(store notify.AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, _ := AdminIDFromContext(r.Context())
		id, ok := uuidParam(w, r)
		if !ok {
			return
		}

		err := store.MarkRead(r.Context(), adminID, id)
		switch {
		case errors.Is(err, notify.ErrNotificationNotFound):
			writeError(w, http.StatusNotFound, errNotFound, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, errInternal, "could not update notification")
		default:
			writeJSON(w, http.StatusOK, OKResponse{OK: true})
		}
	}
}
