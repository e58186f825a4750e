package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-booking/internal/db"
	"github.com/hackgods/dental-booking/internal/schedule"
)

const appointmentColumns = `id, folio, patient_name, phone, reason_code, reason, appt_date, appt_time,
	duration_minutes, status, attended, reminder_sent, created_at, updated_at`

type PgRepository struct {
	pgLedger
	pool db.Pool
}

func NewPgRepository(pool db.Pool) *PgRepository {
	return &PgRepository{pgLedger: pgLedger{q: pool}, pool: pool}
}

// pgLedger runs ledger statements against a pool or an open transaction.
type pgLedger struct {
	q db.Querier
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var day time.Time
	var clock string
	var attended *bool

	err := row.Scan(
		&a.ID,
		&a.Folio,
		&a.PatientName,
		&a.Phone,
		&a.ReasonCode,
		&a.Reason,
		&day,
		&clock,
		&a.DurationMinutes,
		&a.Status,
		&attended,
		&a.ReminderSent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = schedule.DateOf(day)
	a.Time, err = schedule.ParseClock(clock)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	a.Attended = attended
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Ledger methods

func (l *pgLedger) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (l *pgLedger) ListActiveByDate(ctx context.Context, date schedule.Date) ([]Appointment, error) {
	rows, err := l.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date = $1::date
		  AND status <> 'CANCELLED'
		ORDER BY appt_time
	`, date.String())
	if err != nil {
		return nil, fmt.Errorf("list appointments by date: %w", err)
	}
	return collectAppointments(rows)
}

func (l *pgLedger) ListByPhones(ctx context.Context, phones []string) ([]Appointment, error) {
	rows, err := l.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE phone = ANY($1)
		ORDER BY created_at DESC
	`, phones)
	if err != nil {
		return nil, fmt.Errorf("list appointments by phone: %w", err)
	}
	return collectAppointments(rows)
}

func (l *pgLedger) InsertAppointment(ctx context.Context, a *Appointment, startsAt time.Time) error {
	err := l.q.QueryRow(ctx, `
		INSERT INTO appointments (id, folio, patient_name, phone, reason_code, reason, appt_date, appt_time,
			duration_minutes, starts_at, status, reminder_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, $11, false, now(), now())
		ON CONFLICT (folio) DO NOTHING
		RETURNING created_at, updated_at
	`, a.ID, a.Folio, a.PatientName, a.Phone, a.ReasonCode, a.Reason, a.Date.String(), a.Time.String(),
		a.DurationMinutes, startsAt, a.Status).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrFolioTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (l *pgLedger) UpdateSchedule(ctx context.Context, id uuid.UUID, date schedule.Date, at schedule.Clock, startsAt time.Time) (*Appointment, error) {
	row := l.q.QueryRow(ctx, `
		UPDATE appointments
		SET appt_date = $2::date,
		    appt_time = $3,
		    starts_at = $4,
		    reminder_sent = false,
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'CANCELLED'
		RETURNING `+appointmentColumns+`
	`, id, date.String(), at.String(), startsAt)
	return scanAppointment(row)
}

// Repository methods

func (r *PgRepository) InDateTx(ctx context.Context, date schedule.Date, fn func(ctx context.Context, l Ledger) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "appointments:"+date.String()); err != nil {
		return fmt.Errorf("lock date %s: %w", date, err)
	}

	if err := fn(ctx, &pgLedger{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAppointmentByFolio(ctx context.Context, folio string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE folio = $1
	`, folio)
	return scanAppointment(row)
}

func (r *PgRepository) ListBetween(ctx context.Context, from, to schedule.Date) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date BETWEEN $1::date AND $2::date
		ORDER BY appt_date, appt_time, created_at
	`, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list appointments between dates: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) SetAttendance(ctx context.Context, id uuid.UUID, attended bool) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET attended = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, attended)
	return scanAppointment(row)
}

func (r *PgRepository) ListDueForReminder(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status <> 'CANCELLED'
		  AND reminder_sent = false
		  AND starts_at >= $1
		  AND starts_at < $2
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent = true
		WHERE id = $1
		  AND reminder_sent = false
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) DeleteByPhone(ctx context.Context, phone string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE phone = $1
	`, phone)
	if err != nil {
		return 0, fmt.Errorf("delete appointments by phone: %w", err)
	}
	return tag.RowsAffected(), nil
}
