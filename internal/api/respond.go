package api

import (
	"encoding/json"
	"net/http"

	"github.com/hackgods/dental-booking/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var kindStatus = map[appointment.Kind]int{
	appointment.KindInvalidArgument:    http.StatusBadRequest,
	appointment.KindResourceExhausted:  http.StatusConflict,
	appointment.KindFailedPrecondition: http.StatusUnprocessableEntity,
	appointment.KindNotFound:           http.StatusNotFound,
	appointment.KindUnauthenticated:    http.StatusUnauthorized,
	appointment.KindUnavailable:        http.StatusServiceUnavailable,
	appointment.KindInternal:           http.StatusInternalServerError,
}

// writeServiceError maps a lifecycle error to its HTTP status. Internal
// details never reach the client.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := appointment.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	details := err.Error()
	switch kind {
	case appointment.KindInternal:
		details = "something went wrong, please try again"
	case appointment.KindUnavailable:
		details = "the service is busy, please retry"
	}
	writeError(w, status, string(kind), details)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
