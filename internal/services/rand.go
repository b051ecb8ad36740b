package services

import (
	"math/rand/v2"
	"sync"
)

// RandSource picks uniformly in [0, n).
type RandSource interface {
	IntN(n int) int
}

// LockedRand is a seeded RandSource safe for concurrent use.
type LockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewLockedRand(seed uint64) *LockedRand {
	return &LockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *LockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
