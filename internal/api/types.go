package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking/internal/appointment"
)

type CreateAppointmentRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	ReasonCode  string `json:"reasonCode"`
	ReasonOther string `json:"reasonOther,omitempty"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type AttendanceRequest struct {
	Attended *bool `json:"attended"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	Folio           string    `json:"folio"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone,omitempty"`
	ReasonCode      string    `json:"reasonCode"`
	Reason          string    `json:"reason"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	DurationMinutes int       `json:"durationMinutes"`
	Status          string    `json:"status"`
	State           string    `json:"state,omitempty"`
	Attended        *bool     `json:"attended"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		Folio:           a.Folio,
		Name:            a.PatientName,
		Phone:           a.Phone,
		ReasonCode:      a.ReasonCode,
		Reason:          a.Reason,
		Date:            a.Date.String(),
		Time:            a.Time.String(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Attended:        a.Attended,
		CreatedAt:       a.CreatedAt,
	}
}

type LookupResponse struct {
	Appointment *AppointmentResponse `json:"appointment"`
}

type SlotsResponse struct {
	Date          string   `json:"date"`
	OccupiedSlots []string `json:"occupiedSlots"`
	FreeSlots     []string `json:"freeSlots"`
}

type RescheduleResponse struct {
	OK   bool   `json:"ok"`
	Date string `json:"date"`
	Time string `json:"time"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type CancelResponse struct {
	OK          bool                 `json:"ok"`
	Appointment *AppointmentResponse `json:"appointment"`
}

type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

type PushTokenRequest struct {
	Token string `json:"token"`
}

type EnsureAdminRequest struct {
	Email string `json:"email"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
