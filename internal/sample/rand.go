package sample

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Rand is a seedable random source safe for concurrent use.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a source seeded with seed, or with the clock when seed is 0.
func NewRand(seed int64) *Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Rand{r: rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))}
}

// IntRange returns an int in [min, max).
func (r *Rand) IntRange(min, max int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.r.IntN(max-min)
}

// IntN returns an int in [0, n).
func (r *Rand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.IntN(n)
}

// NonNegative returns an int in [0, MaxInt32).
func (r *Rand) NonNegative() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.r.Int32N(math.MaxInt32))
}
