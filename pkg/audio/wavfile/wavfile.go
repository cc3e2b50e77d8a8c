// Package wavfile provides file-backed implementations of the audio device
// interfaces so a full session can run on machines without sound hardware:
// an [Output] that lays scheduled buffers out into a WAV file and an [Input]
// that replays a PCM or WAV file through the capture callback in real time.
package wavfile

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/astra/pkg/audio"
)

// Compile-time interface checks.
var (
	_ audio.InputDevice  = (*Input)(nil)
	_ audio.OutputDevice = (*Output)(nil)
)

const wavHeaderSize = 44

// ─── Output ───────────────────────────────────────────────────────────────────

// Output is an [audio.OutputDevice] that writes scheduled buffers into a WAV
// file. It has no real-time clock: Now reports the end of the audio laid out
// so far, and completion callbacks fire as soon as a buffer's bytes are on
// disk. Gaps between a buffer's start position and the current end are filled
// with silence, so the file mirrors the schedule the scheduler produced.
type Output struct {
	mu      sync.Mutex
	f       *os.File
	format  audio.Format
	written int64 // PCM bytes after the header
	closed  bool
}

// CreateOutput creates (or truncates) a WAV file at path for the given
// format and returns an open device.
func CreateOutput(path string, format audio.Format) (*Output, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("wavfile: invalid format %q", format)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: create %q: %w", path, err)
	}
	o := &Output{f: f, format: format}
	if err := o.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return o, nil
}

// writeHeader writes a 44-byte PCM WAV header with placeholder sizes.
// Close patches the sizes once the data length is known.
func (o *Output) writeHeader() error {
	var hdr [wavHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(o.format.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(o.format.SampleRate))
	byteRate := o.format.SampleRate * o.format.Channels * 2
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(o.format.Channels*2))
	binary.LittleEndian.PutUint16(hdr[34:36], 16) // bits per sample
	copy(hdr[36:40], "data")
	if _, err := o.f.Write(hdr[:]); err != nil {
		return fmt.Errorf("wavfile: write header: %w", err)
	}
	return nil
}

// Now implements [audio.OutputDevice]. It returns the end position of the
// audio written so far.
func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.positionLocked()
}

func (o *Output) positionLocked() time.Duration {
	bytesPerSec := int64(o.format.SampleRate * o.format.Channels * 2)
	if bytesPerSec == 0 {
		return 0
	}
	return time.Duration(o.written * int64(time.Second) / bytesPerSec)
}

// Play implements [audio.OutputDevice]. The buffer's bytes (preceded by
// silence padding when at is beyond the current end) are written immediately
// and done fires from a fresh goroutine. The StopFunc is a no-op once the
// bytes are on disk; it exists to satisfy the device contract.
func (o *Output) Play(buf audio.Buffer, at time.Duration, done func()) (audio.StopFunc, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, fmt.Errorf("wavfile: output closed")
	}
	if buf.SampleRate != o.format.SampleRate || buf.Channels != o.format.Channels {
		return nil, fmt.Errorf("wavfile: buffer format %dHz/%dch does not match device %q",
			buf.SampleRate, buf.Channels, o.format)
	}

	if gap := at - o.positionLocked(); gap > 0 {
		bytesPerSec := int64(o.format.SampleRate * o.format.Channels * 2)
		pad := gap.Seconds() * float64(bytesPerSec)
		padBytes := int64(pad)
		padBytes -= padBytes % int64(o.format.Channels*2) // frame-align
		if padBytes > 0 {
			if _, err := o.f.Write(make([]byte, padBytes)); err != nil {
				return nil, fmt.Errorf("wavfile: write silence: %w", err)
			}
			o.written += padBytes
		}
	}

	if _, err := o.f.Write(buf.Data); err != nil {
		return nil, fmt.Errorf("wavfile: write buffer: %w", err)
	}
	o.written += int64(len(buf.Data))

	if done != nil {
		go done()
	}
	return func() {}, nil
}

// Close patches the WAV header sizes and closes the file. Safe to call
// multiple times.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	var sizes [4]byte
	binary.LittleEndian.PutUint32(sizes[:], uint32(36+o.written))
	if _, err := o.f.WriteAt(sizes[:], 4); err != nil {
		o.f.Close()
		return fmt.Errorf("wavfile: patch RIFF size: %w", err)
	}
	binary.LittleEndian.PutUint32(sizes[:], uint32(o.written))
	if _, err := o.f.WriteAt(sizes[:], 40); err != nil {
		o.f.Close()
		return fmt.Errorf("wavfile: patch data size: %w", err)
	}
	if err := o.f.Close(); err != nil {
		return fmt.Errorf("wavfile: close: %w", err)
	}
	return nil
}

// ─── Input ────────────────────────────────────────────────────────────────────

// Input is an [audio.InputDevice] that replays a file of little-endian 16-bit
// PCM through the capture callback, paced to real time. A leading WAV header
// is detected and skipped, so both raw PCM dumps and WAV files work.
type Input struct {
	path    string
	srcRate int

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// InputOption is a functional option for configuring an [Input].
type InputOption func(*Input)

// WithSourceRate declares the sample rate the file was recorded at. When it
// differs from the capture format requested in Start, each frame is
// resampled to the capture rate before delivery. The default assumes the
// file already matches the capture rate.
func WithSourceRate(rate int) InputOption {
	return func(i *Input) {
		if rate > 0 {
			i.srcRate = rate
		}
	}
}

// NewInput creates an input device that reads from path. The file is opened
// on Start so that a missing file surfaces as [audio.ErrDeviceUnavailable]
// at connection time, matching how a missing microphone behaves.
func NewInput(path string, opts ...InputOption) *Input {
	i := &Input{path: path}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start implements [audio.InputDevice]. It emits one chunk of frameSize
// samples per frame period until the file is exhausted, ctx is cancelled, or
// Stop is called.
func (i *Input) Start(ctx context.Context, format audio.Format, frameSize int, fn func(audio.Chunk)) error {
	if format.SampleRate <= 0 || format.Channels <= 0 || frameSize <= 0 {
		return fmt.Errorf("wavfile: invalid capture parameters %q frame=%d", format, frameSize)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return fmt.Errorf("wavfile: input already started")
	}

	f, err := os.Open(i.path)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", audio.ErrDeviceUnavailable, i.path, err)
	}
	if err := skipWAVHeader(f); err != nil {
		f.Close()
		return fmt.Errorf("%w: read %q: %v", audio.ErrDeviceUnavailable, i.path, err)
	}

	i.started = true
	i.stop = make(chan struct{})
	stop := i.stop

	frameDur := time.Duration(frameSize) * time.Second / time.Duration(format.SampleRate)
	frameBytes := frameSize * format.Channels * 2

	// When the file's rate differs from the capture rate, read enough source
	// samples per slice to resample into one full capture frame.
	srcRate := i.srcRate
	if srcRate == 0 {
		srcRate = format.SampleRate
	}
	readBytes := frameBytes
	if srcRate != format.SampleRate {
		readBytes = frameSize * srcRate / format.SampleRate * format.Channels * 2
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer f.Close()

		ticker := time.NewTicker(frameDur)
		defer ticker.Stop()

		var ts time.Duration
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
			}

			data := make([]byte, readBytes)
			n, err := io.ReadFull(f, data)
			if n == 0 {
				return // end of file: the mic goes silent
			}
			if err != nil {
				// Short final read: zero-pad to a full frame.
				clear(data[n:])
			}
			if srcRate != format.SampleRate {
				data = audio.ResampleMono16(data, srcRate, format.SampleRate)
				if len(data) < frameBytes {
					data = append(data, make([]byte, frameBytes-len(data))...)
				}
				data = data[:frameBytes]
			}
			fn(audio.Chunk{
				Data:       data,
				SampleRate: format.SampleRate,
				Channels:   format.Channels,
				Timestamp:  ts,
			})
			ts += frameDur
			if err != nil {
				return
			}
		}
	}()
	return nil
}

// Stop implements [audio.InputDevice]. It blocks until the reader goroutine
// has exited, so no callback fires after Stop returns.
func (i *Input) Stop() error {
	i.mu.Lock()
	if !i.started {
		i.mu.Unlock()
		return nil
	}
	i.started = false
	close(i.stop)
	i.mu.Unlock()

	i.wg.Wait()
	return nil
}

// skipWAVHeader advances r past a standard 44-byte WAV header when the file
// starts with a RIFF chunk; raw PCM files are left at offset zero.
func skipWAVHeader(f *os.File) error {
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil // tiny file: treat as raw PCM
		}
		return err
	}
	if string(magic[:]) != "RIFF" {
		_, err := f.Seek(0, io.SeekStart)
		return err
	}
	_, err := f.Seek(wavHeaderSize, io.SeekStart)
	return err
}
