package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-booking/internal/db"
)

// Store persists the catalog as a single document.
type Store interface {
	// Load returns nil entries when no catalog has been stored yet.
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

type PgStore struct {
	q db.Querier
}

func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

func (s *PgStore) Load(ctx context.Context) ([]Entry, error) {
	var raw []byte
	err := s.q.QueryRow(ctx, `
		SELECT items
		FROM service_catalog
		WHERE id = 1
	`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return entries, nil
}

func (s *PgStore) Save(ctx context.Context, entries []Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO service_catalog (id, items, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET items = EXCLUDED.items,
		    updated_at = now()
	`, raw)
	if err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}

// Service serves the current catalog, falling back to the seed.
type Service struct {
	store  Store
	seed   []Entry
	logger zerolog.Logger
}

func NewService(store Store, seed []Entry, logger zerolog.Logger) *Service {
	if seed == nil {
		seed = Defaults()
	}
	return &Service{store: store, seed: seed, logger: logger}
}

// Entries returns the stored catalog, or the seed when none is stored.
func (s *Service) Entries(ctx context.Context) ([]Entry, error) {
	entries, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return s.seed, nil
	}
	return entries, nil
}

// Replace normalizes and stores the whole catalog.
func (s *Service) Replace(ctx context.Context, entries []Entry) ([]Entry, error) {
	normalized := Normalize(entries)
	if err := s.store.Save(ctx, normalized); err != nil {
		return nil, err
	}
	s.logger.Info().Int("entries", len(normalized)).Msg("catalog replaced")
	return normalized, nil
}

// Resolve looks the reason up in the current catalog. A store failure falls
// back to the seed so bookings keep working.
func (s *Service) Resolve(ctx context.Context, reasonCode, otherText string) Resolution {
	entries, err := s.Entries(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog unavailable, resolving against seed")
		entries = s.seed
	}
	return Resolve(reasonCode, otherText, entries)
}
