package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking/internal/schedule"
)

// Ledger is the set of reads and writes available inside a date transaction.
type Ledger interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks; cancelled appointments are never returned.
	ListActiveByDate(ctx context.Context, date schedule.Date) ([]Appointment, error)
	// For the upcoming-appointment rule; all statuses, newest first.
	ListByPhones(ctx context.Context, phones []string) ([]Appointment, error)

	// InsertAppointment returns ErrFolioTaken when the folio is already used.
	InsertAppointment(ctx context.Context, a *Appointment, startsAt time.Time) error
	UpdateSchedule(ctx context.Context, id uuid.UUID, date schedule.Date, at schedule.Clock, startsAt time.Time) (*Appointment, error)
}

// Repository contains all ledger interactions needed by the service.
type Repository interface {
	Ledger

	// InDateTx runs fn in a transaction serialized against every other
	// InDateTx for the same date.
	InDateTx(ctx context.Context, date schedule.Date, fn func(ctx context.Context, l Ledger) error) error

	GetAppointmentByFolio(ctx context.Context, folio string) (*Appointment, error)
	// ListBetween returns every appointment dated from..to inclusive, in
	// calendar order. Cancelled appointments are included.
	ListBetween(ctx context.Context, from, to schedule.Date) ([]Appointment, error)

	// UpdateStatus only applies when the current status equals from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	SetAttendance(ctx context.Context, id uuid.UUID, attended bool) (*Appointment, error)

	// Reminder worker
	ListDueForReminder(ctx context.Context, from, to time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error)

	DeleteByPhone(ctx context.Context, phone string) (int64, error)
}
