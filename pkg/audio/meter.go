package audio

import (
	"math"
	"sync/atomic"
)

// RMS computes the root-mean-square energy of an s16le PCM payload,
// normalised to [0, 1]. A trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := range samples {
		v := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += v * v
	}
	return math.Sqrt(sum/float64(samples)) / 32768
}

// Envelope is a lock-free volume tap. The capture and playback paths each own
// one and update it from their hot path; the presentation layer polls Level
// from any goroutine.
type Envelope struct {
	bits atomic.Uint64
}

// Observe updates the envelope with the energy of one PCM payload.
func (e *Envelope) Observe(pcm []byte) {
	e.Set(RMS(pcm))
}

// Set stores a level, clamped to [0, 1].
func (e *Envelope) Set(v float64) {
	if v < 0 || math.IsNaN(v) {
		v = 0
	} else if v > 1 {
		v = 1
	}
	e.bits.Store(math.Float64bits(v))
}

// Level returns the most recently observed level in [0, 1].
func (e *Envelope) Level() float64 {
	return math.Float64frombits(e.bits.Load())
}

// Reset zeroes the envelope. Called when the owning stream goes silent.
func (e *Envelope) Reset() {
	e.bits.Store(0)
}
