// Package sequence owns monotonic correlation id generation.
package sequence

import "sync/atomic"

// Generator hands out monotonically increasing 32-bit ids. Concurrent callers
// never observe the same value from one generator. The counter wraps on
// overflow per two's-complement arithmetic; callers that care about ordering
// across a wrap must not, and none here do.
type Generator struct {
	last atomic.Int32
}

// Next returns the next id.
func (g *Generator) Next() int32 {
	return g.last.Add(1)
}

// Last returns the most recently issued id.
func (g *Generator) Last() int32 {
	return g.last.Load()
}

// SetLast resets the counter so the next id is v+1.
func (g *Generator) SetLast(v int32) {
	g.last.Store(v)
}
