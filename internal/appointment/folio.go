package appointment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// FolioAlphabet has 32 symbols; 0/O and 1/I are left out.
	FolioAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	FolioLength   = 5
	folioAttempts = 10
)

// FolioGenerator mints short public codes.
type FolioGenerator struct {
	rand     io.Reader
	attempts int
}

func NewFolioGenerator(r io.Reader) *FolioGenerator {
	if r == nil {
		r = rand.Reader
	}
	return &FolioGenerator{rand: r, attempts: folioAttempts}
}

// Candidate draws one code. The alphabet size is a power of two, so masking
// each byte keeps the draw uniform.
func (g *FolioGenerator) Candidate() (string, error) {
	buf := make([]byte, FolioLength)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = FolioAlphabet[int(b)&(len(FolioAlphabet)-1)]
	}
	return string(buf), nil
}

// Mint offers candidates to claim until one is accepted. claim must write
// the folio atomically and return ErrFolioTaken when it is already in use.
func (g *FolioGenerator) Mint(ctx context.Context, claim func(ctx context.Context, folio string) error) (string, error) {
	for attempt := 0; attempt < g.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		folio, err := g.Candidate()
		if err != nil {
			return "", err
		}
		err = claim(ctx, folio)
		if err == nil {
			return folio, nil
		}
		if !errors.Is(err, ErrFolioTaken) {
			return "", err
		}
	}
	return "", ErrFolioExhausted
}

// NormalizeFolio upper-cases and trims a folio typed by a patient.
func NormalizeFolio(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidFolio reports whether s could be a folio at all.
func ValidFolio(s string) bool {
	if len(s) != FolioLength {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(FolioAlphabet, r) {
			return false
		}
	}
	return true
}
