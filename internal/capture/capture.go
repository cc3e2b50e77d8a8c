// Package capture runs the microphone side of a session: it starts the input
// device at the capture format, meters the incoming signal, and hands each
// frame to a consumer without ever blocking the device callback.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/astra/pkg/audio"
)

// FrameSize is the number of samples per capture frame, 256 ms at 16 kHz.
const FrameSize = 4096

// ErrAlreadyRunning is returned by Start while a previous run is active.
var ErrAlreadyRunning = errors.New("capture: already running")

// Pipeline owns one input device. Start and Stop bracket a capture run; the
// frame callback runs on the device's delivery goroutine and must not block.
// Thread-safe for concurrent use.
type Pipeline struct {
	dev    audio.InputDevice
	format audio.Format
	logger *slog.Logger
	env    *audio.Envelope

	mu      sync.Mutex
	running bool
}

// NewPipeline creates a Pipeline reading from dev at the given format.
func NewPipeline(dev audio.InputDevice, format audio.Format, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		dev:    dev,
		format: format,
		logger: logger,
		env:    &audio.Envelope{},
	}
}

// Start opens the device and begins delivering frames to fn. Frames carry raw
// PCM16 at the pipeline's format. Device failures are wrapped in
// [audio.ErrDeviceUnavailable] by the device itself and surfaced unchanged.
func (p *Pipeline) Start(ctx context.Context, fn func(audio.Chunk)) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()

	err := p.dev.Start(ctx, p.format, FrameSize, func(chunk audio.Chunk) {
		p.env.Observe(chunk.Data)
		fn(chunk)
	})
	if err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return fmt.Errorf("capture: start: %w", err)
	}

	p.logger.Debug("capture started", "format", p.format, "frame_size", FrameSize)
	return nil
}

// Stop halts frame delivery. Safe to call when not running and safe to call
// more than once.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	if err := p.dev.Stop(); err != nil {
		return fmt.Errorf("capture: stop: %w", err)
	}
	// Only reset after the device has stopped delivering, so a frame racing
	// Stop cannot re-raise the level.
	p.env.Reset()
	p.logger.Debug("capture stopped")
	return nil
}

// Running reports whether a capture run is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Level returns the current input loudness in [0, 1].
func (p *Pipeline) Level() float64 { return p.env.Level() }
