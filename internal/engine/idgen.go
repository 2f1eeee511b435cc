package engine

import (
	"sync"

	"github.com/roach88/trawl/internal/model"
)

// JobIDGenerator produces IDs for submitted jobs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type JobIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 job IDs.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 job ID.
func (UUIDv7Generator) Generate() string {
	return model.NewJobID()
}

// FixedGenerator returns predetermined job IDs for testing.
// Deterministic IDs make golden output comparison possible.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns IDs in order.
// Generate panics once all IDs are consumed; that fail-fast catches
// tests submitting more jobs than they meant to.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all job IDs exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
