// Package audio defines the frame, buffer, and device primitives shared by the
// Astra capture and playback pipelines, plus the PCM16 wire codec used by the
// live session transports.
//
// Two independent audio domains exist at runtime: capture (16 kHz mono, the
// rate the live protocols require for input) and playback (24 kHz mono, the
// rate synthesised audio arrives at). The [Format] values below pin both; the
// pipelines never resample between the two domains — each owns its own device
// and clock.
package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// CaptureFormat is the fixed microphone format required by the live protocols
// for realtime input.
var CaptureFormat = Format{SampleRate: 16000, Channels: 1}

// PlaybackFormat is the fixed format synthesised audio arrives at.
var PlaybackFormat = Format{SampleRate: 24000, Channels: 1}

// Chunk is one fixed-size slice of captured audio, the unit of outbound
// transmission. A Chunk is immutable once created and is consumed exactly once
// by the transport send path.
type Chunk struct {
	// Data is little-endian 16-bit PCM.
	Data []byte

	// SampleRate and Channels record the format the chunk was captured at.
	SampleRate int
	Channels   int

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Buffer is one unit of decoded inbound audio ready for playback scheduling.
// It is owned exclusively by the playback scheduler from the moment it is
// scheduled until it finishes playing or is cancelled.
type Buffer struct {
	// Data is little-endian 16-bit PCM.
	Data []byte

	SampleRate int
	Channels   int
}

// Duration returns the play time of the buffer at its own sample rate.
// Returns zero for a buffer with an invalid format.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	samples := len(b.Data) / (2 * b.Channels)
	return time.Duration(samples) * time.Second / time.Duration(b.SampleRate)
}
