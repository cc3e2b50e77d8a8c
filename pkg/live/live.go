// Package live defines the boundary to a remote conversational AI voice
// session: a bidirectional stream that accepts raw PCM audio and tool-call
// responses and yields synthesised audio fragments, tool-call requests, and
// interruption signals.
//
// The central abstraction is [SessionHandle]. Inbound traffic arrives on a
// single channel so the consumer can serialise handling without locks; the
// outbound methods are safe for concurrent use. Implementations live in the
// sibling packages live/gemini and live/openai; live/mock supplies a scripted
// handle for tests.
package live

import (
	"context"
	"errors"

	"github.com/MrWong99/astra/pkg/audio"
)

// ErrSessionClosed is returned by outbound methods after Close or after the
// session has terminated.
var ErrSessionClosed = errors.New("live: session closed")

// ToolDefinition declares a function the remote model may invoke
// mid-conversation.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is a JSON-schema-shaped description of the arguments.
	Parameters map[string]any
}

// ToolCallRequest is a function invocation requested by the remote model.
// It exists only for the duration of one request/response round-trip.
type ToolCallRequest struct {
	// ID correlates the request with its response. The remote session blocks
	// conversational progress until a response carrying this ID arrives.
	ID   string
	Name string
	Args map[string]any
}

// ToolCallResponse answers one ToolCallRequest. ID and Name must match the
// triggering request.
type ToolCallResponse struct {
	ID     string
	Name   string
	Result map[string]any
}

// ServerMessage is one unit of the serialised inbound stream. Any combination
// of fields may be set; all are optional.
type ServerMessage struct {
	// Audio is a decoded PCM16 fragment at the session's output format.
	Audio []byte

	// ToolCalls carries the function invocations of this message, in wire
	// order. All must be answered in one SendToolResponses batch.
	ToolCalls []ToolCallRequest

	// Interrupted signals barge-in: the user started speaking while
	// synthesised audio was still playing, and everything scheduled must be
	// silenced now.
	Interrupted bool

	// TurnComplete marks the end of a model response turn.
	TurnComplete bool

	// Err is a terminal transport or protocol error. The Messages channel
	// closes after a message carrying Err.
	Err error
}

// SessionConfig is the configuration bundle a session is opened with.
type SessionConfig struct {
	// Model identifies the remote model. Empty selects the provider default.
	Model string

	// Instructions is the system-level prompt for the conversation.
	Instructions string

	// Voice selects the prebuilt synthesis voice.
	Voice string

	// Tools is the set of callable tool declarations offered to the model.
	Tools []ToolDefinition

	// Input and Output fix the wire audio formats. Zero values default to
	// [audio.CaptureFormat] and [audio.PlaybackFormat].
	Input  audio.Format
	Output audio.Format
}

// WithDefaults returns a copy of cfg with zero-valued formats filled in.
func (cfg SessionConfig) WithDefaults() SessionConfig {
	if cfg.Input.SampleRate == 0 {
		cfg.Input = audio.CaptureFormat
	}
	if cfg.Output.SampleRate == 0 {
		cfg.Output = audio.PlaybackFormat
	}
	return cfg
}

// SessionHandle represents an open live session.
//
// Outbound methods (SendAudio, SendToolResponses) must return quickly and be
// safe for concurrent use. Inbound traffic is delivered on the Messages
// channel in arrival order; the channel is closed when the session ends, after
// which Err reports whether the ending was clean. Callers must call Close when
// the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers one raw PCM chunk at the session's input format.
	// Chunks appear on the wire in the order SendAudio is called.
	SendAudio(chunk []byte) error

	// SendToolResponses answers the tool calls of one inbound message as a
	// single batch, preserving order and correlation IDs.
	SendToolResponses(resps []ToolCallResponse) error

	// Messages returns the read-only inbound stream. Consumers must drain it
	// promptly; a stalled consumer backpressures the provider receive loop.
	Messages() <-chan ServerMessage

	// Err returns the error that terminated the session, or nil while it is
	// open or after a clean close.
	Err() error

	// Close terminates the session and closes the Messages channel.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider opens live sessions against one remote service.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect establishes a new session and blocks until the remote side has
	// acknowledged the setup, so a returned handle is ready for audio. The
	// caller owns the handle and is responsible for Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
