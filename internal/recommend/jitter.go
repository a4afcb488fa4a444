package recommend

import (
	"math/rand"
	"sync"
)

// Jitter supplies small random score offsets in [0, 1).
type Jitter interface {
	Float64() float64
}

// NoJitter always returns 0.
type NoJitter struct{}

// Float64 implements Jitter.
func (NoJitter) Float64() float64 { return 0 }

type seededJitter struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewJitter returns a goroutine-safe seeded jitter source. A zero seed
// disables jitter.
func NewJitter(seed int64) Jitter {
	if seed == 0 {
		return NoJitter{}
	}
	return &seededJitter{rnd: rand.New(rand.NewSource(seed))}
}

func (j *seededJitter) Float64() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rnd.Float64()
}
