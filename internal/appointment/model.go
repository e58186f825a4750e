package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking/internal/schedule"
)

type AppointmentStatus string

const (
	StatusActive    AppointmentStatus = "ACTIVE"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

// DisplayState is derived from status, attendance and the clock; it is never stored.
type DisplayState string

const (
	DisplayActive    DisplayState = "ACTIVE"
	DisplayConfirmed DisplayState = "CONFIRMED"
	DisplayCancelled DisplayState = "CANCELLED"
	DisplayFinalized DisplayState = "FINALIZED"
	DisplayAttended  DisplayState = "ATTENDED"
	DisplayNoShow    DisplayState = "NO_SHOW"
)

// CanTransition reports whether status may move from -> to.
func CanTransition(from, to AppointmentStatus) bool {
	switch from {
	case StatusActive:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled
	default:
		return false
	}
}

type Appointment struct {
	ID              uuid.UUID
	Folio           string
	PatientName     string
	Phone           string
	ReasonCode      string
	Reason          string
	Date            schedule.Date
	Time            schedule.Clock
	DurationMinutes int
	Status          AppointmentStatus
	Attended        *bool
	ReminderSent    bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StartsAt returns the appointment start in loc.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.Time, loc)
}

// Slots returns the grid slots the appointment occupies at its current date/time.
func (a Appointment) Slots() []schedule.Clock {
	return schedule.OccupiedSlots(a.Time, a.DurationMinutes)
}

// Display computes the state shown to operators.
func (a Appointment) Display(now time.Time, loc *time.Location) DisplayState {
	if a.Status == StatusCancelled {
		return DisplayCancelled
	}
	if a.Attended != nil {
		if *a.Attended {
			return DisplayAttended
		}
		return DisplayNoShow
	}
	if a.StartsAt(loc).Before(now) {
		return DisplayFinalized
	}
	if a.Status == StatusConfirmed {
		return DisplayConfirmed
	}
	return DisplayActive
}

func (a Appointment) booking() schedule.Booking {
	return schedule.Booking{
		ID:              a.ID.String(),
		Date:            a.Date,
		Start:           a.Time,
		DurationMinutes: a.DurationMinutes,
		Attended:        a.Attended,
	}
}

func bookings(appts []Appointment) []schedule.Booking {
	out := make([]schedule.Booking, len(appts))
	for i, a := range appts {
		out[i] = a.booking()
	}
	return out
}

// EventType names a lifecycle event sent to the notifier.
type EventType string

const (
	EventCreated     EventType = "appointment_created"
	EventCancelled   EventType = "appointment_cancelled"
	EventConfirmed   EventType = "appointment_confirmed"
	EventRescheduled EventType = "appointment_rescheduled"
	EventUpcoming    EventType = "upcoming_appointment"
)

type Event struct {
	Type        EventType
	Title       string
	Message     string
	Appointment Appointment
}
