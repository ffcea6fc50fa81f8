package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolCodesRoundTrip(t *testing.T) {
	seen := map[int]bool{}
	for _, s := range Alphabet {
		code := s.Code()
		assert.False(t, seen[code], "code %d used twice", code)
		seen[code] = true

		back, err := FromCode(code)
		require.NoError(t, err)
		assert.Equal(t, s, back)
	}
	assert.Len(t, seen, 4)
}

func TestFromCodeRejectsReservedCodes(t *testing.T) {
	for _, code := range []int{-1, 4, 5, 42} {
		_, err := FromCode(code)
		assert.Error(t, err, "code %d", code)
	}
}

func TestParseDifficulty(t *testing.T) {
	for code, want := range []Difficulty{Easy, Medium, Hard} {
		got, err := ParseDifficulty(code)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDifficulty(3)
	assert.Error(t, err)
}

func TestPresetsGrowHarder(t *testing.T) {
	assert.Equal(t, 1, Presets[Easy].SymbolsPerRound)
	assert.Equal(t, 2, Presets[Hard].SymbolsPerRound)
	assert.Greater(t, Presets[Easy].PerSymbolTimeout, Presets[Hard].PerSymbolTimeout)
	assert.Equal(t, 300*time.Second, Presets[Easy].TurnBudget(3))
}

func TestPacingDwell(t *testing.T) {
	base := 2 * time.Second

	t.Run("normal is constant", func(t *testing.T) {
		for i := 0; i < 12; i++ {
			assert.Equal(t, base, PacingNormal.Dwell(base, i))
		}
	})

	t.Run("progressive steps every five cues", func(t *testing.T) {
		assert.Equal(t, base, PacingProgressive.Dwell(base, 4))
		assert.InDelta(t, float64(base)/1.2, float64(PacingProgressive.Dwell(base, 5)), 1)
		assert.InDelta(t, float64(base)/1.4, float64(PacingProgressive.Dwell(base, 10)), 1)
	})

	t.Run("accelerating shrinks every cue", func(t *testing.T) {
		prev := PacingAccelerating.Dwell(base, 0)
		assert.Equal(t, base, prev)
		for i := 1; i < 8; i++ {
			d := PacingAccelerating.Dwell(base, i)
			assert.Less(t, d, prev)
			prev = d
		}
	})

	assert.Equal(t, 4*time.Second, PacingNormal.Total(base, 2))
}
