package game

import (
	"math/rand/v2"
	"sync"
)

// Generator grows round sequences. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a Generator drawing from src. A nil src seeds a
// fresh PCG source.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{rng: rand.New(src)}
}

// Next returns a copy of prev extended by count symbols. Each appended
// symbol is drawn uniformly from the alphabet minus its immediate
// predecessor, so the result never holds two equal adjacent symbols.
func (g *Generator) Next(prev []Symbol, count int) []Symbol {
	out := make([]Symbol, len(prev), len(prev)+max(count, 0))
	copy(out, prev)

	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < count; i++ {
		out = append(out, g.pick(out))
	}
	return out
}

func (g *Generator) pick(seq []Symbol) Symbol {
	if len(seq) == 0 {
		return Alphabet[g.rng.IntN(len(Alphabet))]
	}
	last := seq[len(seq)-1]
	candidates := make([]Symbol, 0, len(Alphabet)-1)
	for _, s := range Alphabet {
		if s != last {
			candidates = append(candidates, s)
		}
	}
	return candidates[g.rng.IntN(len(candidates))]
}
