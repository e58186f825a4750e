package appointment

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateUsesAlphabet(t *testing.T) {
	g := NewFolioGenerator(nil)
	for i := 0; i < 200; i++ {
		folio, err := g.Candidate()
		require.NoError(t, err)
		assert.True(t, ValidFolio(folio), folio)
	}
}

func TestCandidateDeterministicReader(t *testing.T) {
	// 24 and 56 both mask to index 24, '2'
	g := NewFolioGenerator(bytes.NewReader([]byte{0, 1, 24, 56, 31}))
	folio, err := g.Candidate()
	require.NoError(t, err)
	assert.Equal(t, "AB229", folio)
}

func TestMintNeverReturnsTakenFolio(t *testing.T) {
	g := NewFolioGenerator(nil)
	taken := make(map[string]struct{})
	claim := func(_ context.Context, folio string) error {
		if _, ok := taken[folio]; ok {
			return ErrFolioTaken
		}
		taken[folio] = struct{}{}
		return nil
	}

	for i := 0; i < 1000; i++ {
		_, err := g.Mint(context.Background(), claim)
		require.NoError(t, err)
	}
	assert.Len(t, taken, 1000)
}

func TestMintFindsMissingCodeOnLaterAttempt(t *testing.T) {
	// six taken candidates, then "22222"
	var stream []byte
	for i := 0; i < 6; i++ {
		stream = append(stream, 0, 0, 0, 0, byte(i))
	}
	stream = append(stream, 24, 24, 24, 24, 24)
	g := NewFolioGenerator(bytes.NewReader(stream))

	calls := 0
	folio, err := g.Mint(context.Background(), func(_ context.Context, folio string) error {
		calls++
		if folio != "22222" {
			return ErrFolioTaken
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "22222", folio)
	assert.Equal(t, 7, calls)
}

func TestMintExhaustsAfterTenAttempts(t *testing.T) {
	g := NewFolioGenerator(nil)
	calls := 0
	_, err := g.Mint(context.Background(), func(context.Context, string) error {
		calls++
		return ErrFolioTaken
	})
	require.ErrorIs(t, err, ErrFolioExhausted)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, 10, calls)
}

func TestMintStopsOnOtherErrors(t *testing.T) {
	g := NewFolioGenerator(nil)
	boom := errors.New("connection reset")
	calls := 0
	_, err := g.Mint(context.Background(), func(context.Context, string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestNormalizeAndValidateFolio(t *testing.T) {
	assert.Equal(t, "AB2CD", NormalizeFolio("  ab2cd "))
	assert.True(t, ValidFolio("AB2CD"))
	assert.False(t, ValidFolio("AB2C"))
	assert.False(t, ValidFolio("AB0CD"))
	assert.False(t, ValidFolio("ab2cd"))
}
