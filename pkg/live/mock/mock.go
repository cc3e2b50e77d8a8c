// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions.
// Use Session to script the inbound message stream and inspect what the
// session controller sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Emit(live.ServerMessage{Audio: pcm})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/astra/pkg/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect returns
	// a fresh default Session.
	Session live.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectHook, if set, runs inside Connect before anything else. Tests use
	// it to inject delays or cancellation races.
	ConnectHook func(ctx context.Context) error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	hook := p.ConnectHook
	p.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			p.mu.Lock()
			p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
			p.mu.Unlock()
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Calls returns a copy of the recorded Connect calls. Thread-safe.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
}

// Ensure Provider implements live.Provider at compile time.
var _ live.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// ToolResponsesCall records a single invocation of Session.SendToolResponses.
type ToolResponsesCall struct {
	// Resps is a copy of the batch passed to SendToolResponses.
	Resps []live.ToolCallResponse
}

// Session is a mock implementation of live.SessionHandle.
// Drive the inbound stream with Emit, then End to close it.
type Session struct {
	mu sync.Mutex

	msgCh   chan live.ServerMessage
	ended   bool
	endOnce sync.Once

	errVal error

	// --- Configurable behaviour ---

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SendAudioHook, if set, runs inside SendAudio before the call is
	// recorded. Tests use it to stall individual sends.
	SendAudioHook func(chunk []byte)

	// SendToolResponsesErr, if non-nil, is returned by every SendToolResponses
	// call.
	SendToolResponsesErr error

	// CloseErr, if non-nil, is returned by the first Close.
	CloseErr error

	// --- Call records ---

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// ToolResponsesCalls records every call to SendToolResponses in order.
	ToolResponsesCalls []ToolResponsesCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession creates a Session with a buffered inbound stream.
func NewSession() *Session {
	return &Session{msgCh: make(chan live.ServerMessage, 64)}
}

// Emit places one message on the inbound stream. Panics if End was called.
func (s *Session) Emit(msg live.ServerMessage) {
	s.msgCh <- msg
}

// End closes the inbound stream, recording err as the terminal session error.
// If err is non-nil it is emitted as a final Err message first, mirroring how
// real providers report transport failures. Idempotent.
func (s *Session) End(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.ended = true
		if err != nil && s.errVal == nil {
			s.errVal = err
		}
		s.mu.Unlock()
		if err != nil {
			s.msgCh <- live.ServerMessage{Err: err}
		}
		close(s.msgCh)
	})
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	hook := s.SendAudioHook
	s.mu.Unlock()
	if hook != nil {
		hook(chunk)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// SendToolResponses records the call and returns SendToolResponsesErr.
func (s *Session) SendToolResponses(resps []live.ToolCallResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]live.ToolCallResponse, len(resps))
	copy(cp, resps)
	s.ToolResponsesCalls = append(s.ToolResponsesCalls, ToolResponsesCall{Resps: cp})
	return s.SendToolResponsesErr
}

// Messages returns the scripted inbound stream.
func (s *Session) Messages() <-chan live.ServerMessage { return s.msgCh }

// Err returns the error recorded by End.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close records the call, closes the inbound stream and returns CloseErr on
// the first call only.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	first := s.CloseCallCount == 1
	err := s.CloseErr
	s.mu.Unlock()

	s.endOnce.Do(func() {
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
		close(s.msgCh)
	})

	if first {
		return err
	}
	return nil
}

// Audio returns copies of all chunks passed to SendAudio, in order.
// Thread-safe.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SendAudioCalls))
	for i, c := range s.SendAudioCalls {
		out[i] = c.Chunk
	}
	return out
}

// ToolResponses returns copies of all batches passed to SendToolResponses,
// in order. Thread-safe.
func (s *Session) ToolResponses() [][]live.ToolCallResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]live.ToolCallResponse, len(s.ToolResponsesCalls))
	for i, c := range s.ToolResponsesCalls {
		out[i] = c.Resps
	}
	return out
}

// CloseCalls returns the number of times Close was called. Thread-safe.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.ToolResponsesCalls = nil
	s.CloseCallCount = 0
}

// Ensure Session implements live.SessionHandle at compile time.
var _ live.SessionHandle = (*Session)(nil)
