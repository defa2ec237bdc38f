// Package vad classifies audio energy readings as speech or silence.
//
// Silence is confirmed twice, independently: a fast path fed by
// continuous energy readings (Monitor) and a server-side poll over
// time-since-last-chunk owned by the session manager. Delivery of the
// client's "recording stopped" signal is not guaranteed, so whichever
// path fires first wins; both are idempotent.
package vad

import (
	"math"
	"time"
)

const (
	// SilenceThresholdDB is the fixed decibel floor below which a
	// reading counts as silence.
	SilenceThresholdDB = -50.0

	// SilenceDuration is how long the fast path must observe
	// uninterrupted silence before reporting the caller stopped talking.
	SilenceDuration = 1500 * time.Millisecond
)

// ChunkEnergy computes the normalized average magnitude of a 16-bit
// little-endian PCM chunk, in [0, 1]. A trailing odd byte is ignored.
func ChunkEnergy(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var sum float64

	samples := len(pcm) / 2
	for i := 0; i < samples; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		sum += math.Abs(float64(s))
	}

	return sum / float64(samples) / 32768.0
}

// Decibels converts a normalized average energy magnitude to decibels
// relative to maxEnergy. Shared by both confirmation paths so the two
// never diverge.
func Decibels(avgEnergy, maxEnergy float64) float64 {
	if avgEnergy <= 0 || maxEnergy <= 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(avgEnergy/maxEnergy)
}

// Detector is the stateless per-reading classifier.
type Detector struct {
	ThresholdDB float64
	MaxEnergy   float64
}

func NewDetector(maxEnergy float64) *Detector {
	return &Detector{
		ThresholdDB: SilenceThresholdDB,
		MaxEnergy:   maxEnergy,
	}
}

func (d *Detector) IsSilent(avgEnergy float64) bool {
	return Decibels(avgEnergy, d.MaxEnergy) < d.ThresholdDB
}

// Clock abstracts wall time so silence timing is testable.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Monitor is the fast confirmation path: it consumes instantaneous
// readings and reports once silence has persisted for SilenceDuration.
// Not goroutine-safe; one monitor belongs to one audio front end.
type Monitor struct {
	detector *Detector
	clock    Clock
	duration time.Duration

	silenceStart time.Time
}

func NewMonitor(detector *Detector, clock Clock) *Monitor {
	return &Monitor{
		detector: detector,
		clock:    clock,
		duration: SilenceDuration,
	}
}

// Observe feeds one energy reading and returns true exactly when the
// reading extends a silent stretch past the configured duration. Any
// speech resets the stretch.
func (m *Monitor) Observe(avgEnergy float64) bool {
	if !m.detector.IsSilent(avgEnergy) {
		m.silenceStart = time.Time{}
		return false
	}

	now := m.clock.Now()

	if m.silenceStart.IsZero() {
		m.silenceStart = now
		return false
	}

	return now.Sub(m.silenceStart) > m.duration
}

// Reset clears the silent stretch, e.g. when recording restarts.
func (m *Monitor) Reset() {
	m.silenceStart = time.Time{}
}
