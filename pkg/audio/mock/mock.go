// Package mock provides in-memory implementations of [audio.InputDevice] and
// [audio.OutputDevice] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields the test can set to control return values.
//
// Typical usage:
//
//	in := &mock.Input{}
//	if err := pipeline.Start(ctx, onChunk); err != nil { ... }
//	in.Emit([]byte{0x01, 0x00})           // as if the mic produced a chunk
//
//	out := &mock.Output{}
//	out.SetNow(2 * time.Second)           // position the device clock
//	scheduler.Schedule(buf)
//	out.Complete(0)                        // finish the first scheduled buffer
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/astra/pkg/audio"
)

// Compile-time interface checks.
var (
	_ audio.InputDevice  = (*Input)(nil)
	_ audio.OutputDevice = (*Output)(nil)
)

// ─── Input ────────────────────────────────────────────────────────────────────

// Input is a mock [audio.InputDevice]. Chunks are produced only when the test
// calls [Input.Emit] or [Input.EmitChunk].
type Input struct {
	mu sync.Mutex

	// StartErr, when non-nil, is returned by Start.
	StartErr error

	// CallCountStart and CallCountStop record lifecycle invocations.
	CallCountStart int
	CallCountStop  int

	started   bool
	format    audio.Format
	frameSize int
	fn        func(audio.Chunk)
	emitted   int
}

// Start implements [audio.InputDevice].
func (d *Input) Start(_ context.Context, format audio.Format, frameSize int, fn func(audio.Chunk)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStart++
	if d.StartErr != nil {
		return d.StartErr
	}
	if d.started {
		return fmt.Errorf("mock: input already started")
	}
	d.started = true
	d.format = format
	d.frameSize = frameSize
	d.fn = fn
	return nil
}

// Stop implements [audio.InputDevice]. Safe to call multiple times.
func (d *Input) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	d.started = false
	d.fn = nil
	return nil
}

// Started reports whether the device is currently capturing.
func (d *Input) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Emit synthesises a chunk from raw PCM data using the format the device was
// started with and delivers it to the registered callback. A no-op when the
// device is stopped.
func (d *Input) Emit(data []byte) {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	frameDur := time.Duration(0)
	if d.format.SampleRate > 0 {
		frameDur = time.Duration(d.frameSize) * time.Second / time.Duration(d.format.SampleRate)
	}
	chunk := audio.Chunk{
		Data:       data,
		SampleRate: d.format.SampleRate,
		Channels:   d.format.Channels,
		Timestamp:  time.Duration(d.emitted) * frameDur,
	}
	d.emitted++
	fn := d.fn
	d.mu.Unlock()

	fn(chunk)
}

// EmitChunk delivers a fully specified chunk to the registered callback.
func (d *Input) EmitChunk(chunk audio.Chunk) {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	d.mu.Unlock()

	fn(chunk)
}

// ─── Output ───────────────────────────────────────────────────────────────────

// Play records a single Play invocation on [Output].
type Play struct {
	Buf audio.Buffer
	At  time.Duration
}

type scheduled struct {
	play    Play
	done    func()
	stopped bool
	fired   bool
}

// Output is a mock [audio.OutputDevice] with a manually advanced clock.
// Buffers never complete on their own; the test drives completion via
// [Output.Complete].
type Output struct {
	mu sync.Mutex

	// PlayErr, when non-nil, is returned by Play.
	PlayErr error

	// CallCountClose records Close invocations.
	CallCountClose int

	now   time.Duration
	calls []*scheduled
}

// SetNow positions the device clock. The clock never moves on its own.
func (d *Output) SetNow(t time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = t
}

// Now implements [audio.OutputDevice].
func (d *Output) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

// Play implements [audio.OutputDevice]. The returned StopFunc marks the
// buffer stopped; it never fires done.
func (d *Output) Play(buf audio.Buffer, at time.Duration, done func()) (audio.StopFunc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PlayErr != nil {
		return nil, d.PlayErr
	}
	s := &scheduled{play: Play{Buf: buf, At: at}, done: done}
	d.calls = append(d.calls, s)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		s.stopped = true
	}, nil
}

// Close implements [audio.OutputDevice].
func (d *Output) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	for _, s := range d.calls {
		s.stopped = true
	}
	return nil
}

// Plays returns every Play invocation in order, including stopped ones.
func (d *Output) Plays() []Play {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Play, len(d.calls))
	for i, s := range d.calls {
		out[i] = s.play
	}
	return out
}

// Audible returns the number of buffers that are scheduled, not stopped, and
// not yet completed.
func (d *Output) Audible() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.calls {
		if !s.stopped && !s.fired {
			n++
		}
	}
	return n
}

// Stopped reports whether the i-th Play invocation has been stopped.
func (d *Output) Stopped(i int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.calls) {
		return false
	}
	return d.calls[i].stopped
}

// Complete fires the done callback of the i-th Play invocation, simulating
// natural completion. A no-op for stopped or already completed buffers.
func (d *Output) Complete(i int) {
	d.mu.Lock()
	if i < 0 || i >= len(d.calls) {
		d.mu.Unlock()
		return
	}
	s := d.calls[i]
	if s.stopped || s.fired || s.done == nil {
		d.mu.Unlock()
		return
	}
	s.fired = true
	done := s.done
	d.mu.Unlock()

	done()
}
