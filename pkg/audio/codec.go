package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
)

// ErrCodec reports a malformed wire audio payload. Callers drop the
// offending buffer and keep the session alive.
var ErrCodec = errors.New("audio: malformed PCM payload")

// EncodePCM16 quantises floating-point samples in [-1, 1] to little-endian
// 16-bit PCM. Out-of-range input is clamped rather than rejected.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(float64(s) * 32767))
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

// DecodePCM16 converts little-endian 16-bit PCM back to floating-point
// samples in [-1, 1]. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float32(v) / 32767
	}
	return samples
}

// DecodeBuffer validates a wire PCM payload against the expected format and
// wraps it in a [Buffer]. The error wraps [ErrCodec] on empty input or input
// that is not a whole number of frames.
func DecodeBuffer(pcm []byte, format Format) (Buffer, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return Buffer{}, fmt.Errorf("%w: invalid target format %q", ErrCodec, format)
	}
	if len(pcm) == 0 {
		return Buffer{}, fmt.Errorf("%w: empty payload", ErrCodec)
	}
	if len(pcm)%(2*format.Channels) != 0 {
		return Buffer{}, fmt.Errorf("%w: %d bytes is not a whole number of %d-channel s16le frames",
			ErrCodec, len(pcm), format.Channels)
	}
	return Buffer{Data: pcm, SampleRate: format.SampleRate, Channels: format.Channels}, nil
}

// MarshalBase64 wraps a PCM payload for a JSON transport.
func MarshalBase64(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// UnmarshalBase64 decodes a base64-wrapped PCM payload. The error wraps
// [ErrCodec] so transports can drop the fragment without tearing down.
func UnmarshalBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrCodec, err)
	}
	return data, nil
}
