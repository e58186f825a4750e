package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-booking/internal/db"
)

var (
	ErrAdminNotFound        = errors.New("operator not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

type Admin struct {
	ID         string
	Email      string
	PushTokens []string
}

// Notification is one operator's copy of a lifecycle event.
type Notification struct {
	ID              uuid.UUID  `json:"id"`
	AdminID         string     `json:"-"`
	Type            string     `json:"type"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	AppointmentID   *uuid.UUID `json:"appointmentId,omitempty"`
	AppointmentDate string     `json:"appointmentDate,omitempty"`
	AppointmentTime string     `json:"appointmentTime,omitempty"`
	Read            bool       `json:"read"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// AdminStore persists operators, their push tokens and their inbox.
type AdminStore interface {
	EnsureAdmin(ctx context.Context, id, email string) error
	ListAdmins(ctx context.Context) ([]Admin, error)
	RegisterPushToken(ctx context.Context, adminID, token string) error
	RemovePushToken(ctx context.Context, adminID, token string) error

	InsertNotification(ctx context.Context, n Notification) error
	ListForAdmin(ctx context.Context, adminID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, adminID string, id uuid.UUID) error
}

type PgAdminStore struct {
	q db.Querier
}

func NewPgAdminStore(q db.Querier) *PgAdminStore {
	return &PgAdminStore{q: q}
}

func (s *PgAdminStore) EnsureAdmin(ctx context.Context, id, email string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO admins (id, email)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET email = COALESCE(NULLIF(EXCLUDED.email, ''), admins.email)
	`, id, email)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	return nil
}

func (s *PgAdminStore) ListAdmins(ctx context.Context) ([]Admin, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, email, push_tokens
		FROM admins
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var admins []Admin
	for rows.Next() {
		var a Admin
		if err := rows.Scan(&a.ID, &a.Email, &a.PushTokens); err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

func (s *PgAdminStore) RegisterPushToken(ctx context.Context, adminID, token string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE admins
		SET push_tokens = array_append(array_remove(push_tokens, $2), $2)
		WHERE id = $1
	`, adminID, token)
	if err != nil {
		return fmt.Errorf("register push token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func (s *PgAdminStore) RemovePushToken(ctx context.Context, adminID, token string) error {
	_, err := s.q.Exec(ctx, `
		UPDATE admins
		SET push_tokens = array_remove(push_tokens, $2)
		WHERE id = $1
	`, adminID, token)
	if err != nil {
		return fmt.Errorf("remove push token: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PgAdminStore) InsertNotification(ctx context.Context, n Notification) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO admin_notifications (id, admin_id, type, title, message,
			appointment_id, appointment_date, appointment_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8)
	`, n.ID, n.AdminID, n.Type, n.Title, n.Message,
		n.AppointmentID, nullable(n.AppointmentDate), nullable(n.AppointmentTime))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PgAdminStore) ListForAdmin(ctx context.Context, adminID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, admin_id, type, title, message, appointment_id,
		       COALESCE(appointment_date::text, ''), COALESCE(appointment_time, ''),
		       read, created_at
		FROM admin_notifications
		WHERE admin_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, adminID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.AdminID, &n.Type, &n.Title, &n.Message, &n.AppointmentID,
			&n.AppointmentDate, &n.AppointmentTime, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PgAdminStore) MarkRead(ctx context.Context, adminID string, id uuid.UUID) error {
	var marked uuid.UUID
	err := s.q.QueryRow(ctx, `
		UPDATE admin_notifications
		SET read = true
		WHERE id = $1
		  AND admin_id = $2
		RETURNING id
	`, id, adminID).Scan(&marked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}
