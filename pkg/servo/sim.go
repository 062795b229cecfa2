package servo

import (
	"sync"
)

// SimBus is a bus with no hardware behind it. Writes always succeed and are
// recorded, which makes it both the degrade target when no servo controller
// is detected and a convenient test double.
type SimBus struct {
	mu     sync.Mutex
	angles map[int]float64
	writes int
}

var _ Bus = (*SimBus)(nil)

// NewSimBus creates an empty simulated bus.
func NewSimBus() *SimBus {
	return &SimBus{angles: make(map[int]float64)}
}

// Write records the angle and succeeds.
func (b *SimBus) Write(channel int, angle float64) WriteResult {
	b.mu.Lock()
	b.angles[channel] = angle
	b.writes++
	b.mu.Unlock()
	return WriteResult{Status: WriteOK}
}

// Available always reports true; the simulation never disconnects.
func (b *SimBus) Available() bool { return true }

// Close is a no-op.
func (b *SimBus) Close() error { return nil }

// Angle returns the last written angle for a channel.
func (b *SimBus) Angle(channel int) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.angles[channel]
	return a, ok
}

// Writes returns the total number of writes received.
func (b *SimBus) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}
