// Package playback schedules synthesised audio fragments on an output device
// so they play gaplessly in arrival order, and silences everything at once
// when the user barges in.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/astra/pkg/audio"
)

// ErrFormat is returned when a buffer does not match the scheduler's output
// format.
var ErrFormat = errors.New("playback: buffer format mismatch")

// Scheduler queues decoded audio buffers on an output device. Each buffer
// starts at the later of the playback cursor and the device clock; the cursor
// then advances by the buffer's duration, so fragments that arrive faster
// than real time are laid out back to back without gaps or overlap.
//
// Thread-safe for concurrent use.
type Scheduler struct {
	out    audio.OutputDevice
	format audio.Format
	logger *slog.Logger
	env    *audio.Envelope

	mu      sync.Mutex
	cursor  time.Duration
	handles map[uint64]audio.StopFunc
	nextID  uint64
}

// NewScheduler creates a Scheduler playing through out in the given format.
func NewScheduler(out audio.OutputDevice, format audio.Format, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		out:     out,
		format:  format,
		logger:  logger,
		env:     &audio.Envelope{},
		handles: make(map[uint64]audio.StopFunc),
	}
}

// Schedule queues one buffer for playback. Buffers scheduled earlier always
// start earlier. The buffer must match the scheduler's output format.
func (s *Scheduler) Schedule(buf audio.Buffer) error {
	if buf.SampleRate != s.format.SampleRate || buf.Channels != s.format.Channels {
		return fmt.Errorf("%w: got %dHz/%dch, want %s",
			ErrFormat, buf.SampleRate, buf.Channels, s.format)
	}
	if len(buf.Data) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.cursor
	if now := s.out.Now(); now > start {
		start = now
	}
	// The cursor advances at schedule time, not at completion, so fragments
	// that arrive while earlier ones are still playing queue up seamlessly.
	s.cursor = start + buf.Duration()

	id := s.nextID
	s.nextID++

	stop, err := s.out.Play(buf, start, func() { s.complete(id) })
	if err != nil {
		s.cursor = start
		return fmt.Errorf("playback: schedule: %w", err)
	}
	s.handles[id] = stop
	s.env.Observe(buf.Data)

	s.logger.Debug("buffer scheduled",
		"start", start, "duration", buf.Duration(), "pending", len(s.handles))
	return nil
}

// complete drops the bookkeeping for a buffer that finished playing on its
// own.
func (s *Scheduler) complete(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, id)
	if len(s.handles) == 0 {
		s.env.Reset()
	}
}

// CancelAll silences every queued and playing buffer immediately and resets
// the cursor to the device clock, so the next Schedule starts right away.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, stop := range s.handles {
		stop()
		delete(s.handles, id)
	}
	s.cursor = s.out.Now()
	s.env.Reset()

	s.logger.Debug("playback cancelled", "cursor", s.cursor)
}

// Pending reports how many buffers are queued or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Level returns the current output loudness in [0, 1].
func (s *Scheduler) Level() float64 { return s.env.Level() }
