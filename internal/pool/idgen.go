package pool

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces request identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random UUIDv4 identifiers.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// CounterGenerator issues prefix-1, prefix-2, ... in call order.
type CounterGenerator struct {
	prefix string
	n      atomic.Uint64
}

// NewCounterGenerator returns a generator starting at 1.
func NewCounterGenerator(prefix string) *CounterGenerator {
	return &CounterGenerator{prefix: prefix}
}

// NewID implements IDGenerator.
func (g *CounterGenerator) NewID() string {
	return g.prefix + "-" + strconv.FormatUint(g.n.Add(1), 10)
}
