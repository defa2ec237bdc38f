package stream

import "time"

const (
	initialChunkSize = 2048
	minChunkSize     = 1024
	maxChunkSize     = 8192

	// Inter-chunk latency bounds steering the chunk size.
	highLatency = 500 * time.Millisecond
	lowLatency  = 100 * time.Millisecond
)

// Clock abstracts wall time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// BufferManager recommends the outbound audio chunk size for one stream.
// High inter-chunk latency grows chunks (fewer, larger writes survive a
// slow link better); low latency shrinks them for earlier playback.
// One instance per active stream, never shared.
type BufferManager struct {
	clock Clock

	size        int
	lastReceive time.Time
}

func NewBufferManager(clock Clock) *BufferManager {
	return &BufferManager{
		clock: clock,
		size:  initialChunkSize,
	}
}

// Size returns the current recommendation in bytes.
func (b *BufferManager) Size() int {
	return b.size
}

// Observe records the arrival of one inbound read and adapts the
// recommendation from the gap since the previous one.
func (b *BufferManager) Observe() {
	now := b.clock.Now()

	if !b.lastReceive.IsZero() {
		gap := now.Sub(b.lastReceive)

		switch {
		case gap > highLatency && b.size < maxChunkSize:
			b.size = min(b.size*2, maxChunkSize)
		case gap < lowLatency && b.size > minChunkSize:
			b.size = max(b.size/2, minChunkSize)
		}
	}

	b.lastReceive = now
}
