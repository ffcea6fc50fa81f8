// internal/game/types.go
//
// Core type definitions for the floor Simon game.
// Defines:
//   - Symbol: one of the four floor colors plus the reserved wire codes.
//   - Difficulty: Easy/Medium/Hard and the immutable Config each maps to.
//   - Pacing: how the audio dwell time decays inside one cue sequence.

package game

import (
	"fmt"
	"strconv"
	"time"
)

// Symbol is a color of the game alphabet. Its integer value is the code
// used on the wire and as the sound id.
type Symbol int

const (
	Green  Symbol = 0
	Red    Symbol = 1
	Blue   Symbol = 2
	Yellow Symbol = 3

	// ErrorMarker and TurnMarker are reserved codes outside the alphabet.
	ErrorMarker Symbol = 4
	TurnMarker  Symbol = 5

	// Unknown is what ZoneMapper returns for positions outside every zone.
	// It never reaches the wire.
	Unknown Symbol = -1
)

// Alphabet lists the playable symbols in code order.
var Alphabet = [...]Symbol{Green, Red, Blue, Yellow}

var symbolNames = map[Symbol]string{
	Green:       "green",
	Red:         "red",
	Blue:        "blue",
	Yellow:      "yellow",
	ErrorMarker: "error",
	TurnMarker:  "turn",
	Unknown:     "unknown",
}

func (s Symbol) String() string {
	if n, ok := symbolNames[s]; ok {
		return n
	}
	return "symbol(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s belongs to the four-color alphabet.
func (s Symbol) Valid() bool { return s >= Green && s <= Yellow }

// Code returns the wire code of s.
func (s Symbol) Code() int { return int(s) }

// FromCode decodes a wire code into an alphabet symbol.
func FromCode(code int) (Symbol, error) {
	s := Symbol(code)
	if !s.Valid() {
		return Unknown, fmt.Errorf("code %d is not a color", code)
	}
	return s, nil
}

// Codes converts a sequence into its wire codes.
func Codes(seq []Symbol) []int {
	out := make([]int, len(seq))
	for i, s := range seq {
		out[i] = s.Code()
	}
	return out
}

// Difficulty selects one of the configuration presets.
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
)

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	}
	return "difficulty(" + strconv.Itoa(int(d)) + ")"
}

// ParseDifficulty maps the external numeric code (0, 1, 2) to a Difficulty.
func ParseDifficulty(code int) (Difficulty, error) {
	d := Difficulty(code)
	if _, ok := Presets[d]; !ok {
		return Easy, fmt.Errorf("difficulty must be 0, 1 or 2, got %d", code)
	}
	return d, nil
}

// Pacing controls how the dwell time of each cue shrinks within one sequence.
type Pacing int

const (
	PacingNormal       Pacing = iota // constant dwell
	PacingProgressive                // 20% faster every 5 cues
	PacingAccelerating               // 10% faster every cue
)

func (p Pacing) String() string {
	switch p {
	case PacingProgressive:
		return "progressive"
	case PacingAccelerating:
		return "accelerating"
	}
	return "normal"
}

// Dwell returns the time cue idx of a sequence stays audible.
func (p Pacing) Dwell(base time.Duration, idx int) time.Duration {
	factor := 1.0
	switch p {
	case PacingProgressive:
		factor = 1.0 / (1 + float64(idx/5)*0.2)
	case PacingAccelerating:
		factor = 1.0 / (1 + float64(idx)*0.1)
	}
	return time.Duration(float64(base) * factor)
}

// Total sums the dwell of n consecutive cues.
func (p Pacing) Total(base time.Duration, n int) time.Duration {
	var d time.Duration
	for i := 0; i < n; i++ {
		d += p.Dwell(base, i)
	}
	return d
}

// Config is the immutable parameter record of a difficulty.
type Config struct {
	Difficulty       Difficulty
	PerSymbolTimeout time.Duration // summed over the expected sequence
	SymbolsPerRound  int           // new symbols appended each round
	InterRoundDelay  time.Duration // pause between broadcast and input
	Pacing           Pacing        // audio dwell decay
}

// TurnBudget is the total time allowed to reproduce a sequence of n symbols.
func (c Config) TurnBudget(n int) time.Duration {
	return c.PerSymbolTimeout * time.Duration(n)
}

// Presets holds the built-in configuration per difficulty.
var Presets = map[Difficulty]Config{
	Easy: {
		Difficulty:       Easy,
		PerSymbolTimeout: 100 * time.Second,
		SymbolsPerRound:  1,
		InterRoundDelay:  time.Second,
		Pacing:           PacingNormal,
	},
	Medium: {
		Difficulty:       Medium,
		PerSymbolTimeout: 70 * time.Second,
		SymbolsPerRound:  1,
		InterRoundDelay:  time.Second,
		Pacing:           PacingProgressive,
	},
	Hard: {
		Difficulty:       Hard,
		PerSymbolTimeout: 50 * time.Second,
		SymbolsPerRound:  2,
		InterRoundDelay:  time.Second,
		Pacing:           PacingAccelerating,
	},
}
