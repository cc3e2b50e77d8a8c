package audio

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceUnavailable reports that an audio device could not be acquired:
// missing hardware, denied permission, or a busy device. It is fatal to the
// current connection attempt but never to the process.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// StopFunc silences one scheduled buffer immediately. After it returns the
// buffer is neither audible nor pending and its completion callback will not
// fire. Calling a StopFunc more than once is a no-op.
type StopFunc func()

// InputDevice is a microphone-like capture source. Implementations are
// provided by device adapter packages (audio/wavfile for file-backed input,
// audio/mock for tests).
type InputDevice interface {
	// Start acquires the device at format and begins delivering chunks of
	// exactly frameSize samples to fn. fn is invoked from the device's
	// capture goroutine, one chunk per fixed time slice, and must not block.
	//
	// Returns an error wrapping [ErrDeviceUnavailable] when the device cannot
	// be acquired. Start on an already started device is an error.
	Start(ctx context.Context, format Format, frameSize int, fn func(Chunk)) error

	// Stop releases the device. After Stop returns no further fn invocations
	// are made. Safe to call multiple times.
	Stop() error
}

// OutputDevice is a speaker-like playback sink with its own clock.
// Implementations must be safe for concurrent use: the playback scheduler
// calls Now and Play from the session dispatch path while StopFuncs may run
// during interruption handling.
type OutputDevice interface {
	// Now returns the device clock's current position. The clock is
	// monotonically nondecreasing and starts near zero when the device opens.
	Now() time.Duration

	// Play schedules buf to start at the given clock position and returns a
	// StopFunc that cancels it. done is called from an internal goroutine
	// once the buffer has finished playing naturally; it is not called for
	// stopped buffers.
	Play(buf Buffer, at time.Duration, done func()) (StopFunc, error)

	// Close releases the device and silences anything still scheduled.
	// Safe to call multiple times.
	Close() error
}
