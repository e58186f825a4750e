package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-booking/internal/appointment"
	"github.com/hackgods/dental-booking/internal/catalog"
	"github.com/hackgods/dental-booking/internal/config"
	"github.com/hackgods/dental-booking/internal/db"
	"github.com/hackgods/dental-booking/internal/notify"
	redisclient "github.com/hackgods/dental-booking/internal/redis"
	"github.com/hackgods/dental-booking/internal/schedule"
	"github.com/hackgods/dental-booking/pkg/logging"
)

const devAdminID = "dev-admin"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	catalogSvc := catalog.NewService(catalog.NewPgStore(pool), catalog.Defaults(), logger)
	entries, err := catalogSvc.Replace(ctx, catalog.Defaults())
	if err != nil {
		logger.Fatal().Err(err).Msg("seed catalog")
	}

	inbox := notify.NewPgAdminStore(pool)
	if err := inbox.EnsureAdmin(ctx, devAdminID, "dev@clinic.local"); err != nil {
		logger.Fatal().Err(err).Msg("seed operator")
	}

	// Seeding is single-process, so the store lock is enough.
	svc := appointment.NewService(appointment.NewPgRepository(pool), catalogSvc, redisclient.NopLocker(), nil, cfg, logger)

	count := 60
	if v, err := strconv.Atoi(os.Getenv("SEED_APPOINTMENTS")); err == nil && v > 0 {
		count = v
	}
	seedAppointments(ctx, svc, entries, count, logger)

	if cfg.AdminJWTSecret != "" {
		token, err := devToken(cfg.AdminJWTSecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("sign dev token")
		}
		fmt.Printf("operator token for %s (24h):\n%s\n", devAdminID, token)
	}

	logger.Info().Msg("seed complete")
}

// seedAppointments books fake patients over the next two weeks. Conflicts are
// expected and skipped.
func seedAppointments(ctx context.Context, svc *appointment.Service, entries []catalog.Entry, count int, logger zerolog.Logger) {
	slots := schedule.AllSlots()
	today := svc.Today().At(slots[0], svc.Location())

	var booked, skipped int
	for i := 0; i < count; i++ {
		day := today.AddDate(0, 0, gofakeit.Number(1, 14))
		entry := entries[gofakeit.Number(0, len(entries)-1)]

		req := appointment.CreateRequest{
			Name:       gofakeit.Name(),
			Phone:      gofakeit.Phone(),
			ReasonCode: entry.ID,
			Date:       schedule.DateOf(day).String(),
			Time:       slots[gofakeit.Number(0, len(slots)-1)].String(),
		}
		if entry.ID == catalog.OtherReason {
			req.ReasonOther = gofakeit.Sentence(4)
		}

		_, err := svc.CreateAppointment(ctx, req)
		switch {
		case err == nil:
			booked++
		case errors.Is(err, appointment.ErrSlotTaken), errors.Is(err, appointment.ErrUpcomingExists):
			skipped++
		default:
			logger.Fatal().Err(err).Msg("seed appointment")
		}
	}
	logger.Info().Int("booked", booked).Int("skipped", skipped).Msg("appointments seeded")
}

func devToken(secret string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   devAdminID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
