package service

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

const idSuffixSpace = 1000

// IDGenerator issues document ids of the form DOC-<unix ms>-<0..999>.
//
// The suffix is random, but the generator remembers which suffixes it has handed
// out in the current millisecond and never repeats one. When a millisecond runs
// out of suffixes the timestamp component moves ahead by one, so ids stay unique
// and ordered within a process. Uniqueness across processes is not guaranteed.
type IDGenerator struct {
	now  func() time.Time
	intn func(n int) int

	mu     sync.Mutex
	lastMs int64
	used   map[int]struct{}
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		now:  time.Now,
		intn: rand.IntN,
		used: make(map[int]struct{}, 16),
	}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	if ms != g.lastMs {
		g.lastMs = ms
		clear(g.used)
	}
	if len(g.used) == idSuffixSpace {
		g.lastMs++
		ms = g.lastMs
		clear(g.used)
	}

	n := g.intn(idSuffixSpace)
	for {
		if _, taken := g.used[n]; !taken {
			break
		}
		n = (n + 1) % idSuffixSpace
	}
	g.used[n] = struct{}{}

	return fmt.Sprintf("DOC-%d-%d", ms, n)
}
