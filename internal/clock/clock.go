// Package clock provides the time source and seeded randomness the
// orchestrator and mock provider depend on, so tests can substitute a
// deterministic implementation.
package clock

import (
	"math/rand/v2"
	"time"
)

// Clock abstracts wall-clock time and sleeping so tests can run without
// real delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the production Clock backed by the standard library.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Seeded wraps a *rand.Rand seeded deterministically from a config value,
// used by the mock provider and by backoff jitter.
type Seeded struct {
	*rand.Rand
}

// NewSeeded builds a Seeded RNG from a 64-bit seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))}
}
