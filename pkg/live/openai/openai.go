// Package openai implements the live.Provider interface for OpenAI's Realtime
// API.
//
// It establishes a bidirectional WebSocket connection to the OpenAI Realtime
// endpoint and exchanges JSON events according to the Realtime API protocol.
// Audio travels as base64-encoded PCM16 chunks; tool calls, barge-in signals
// and turn boundaries are surfaced on the session's Messages channel.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/astra/pkg/audio"
	"github.com/MrWong99/astra/pkg/live"
	"github.com/coder/websocket"
)

// Compile-time assertions that Provider and session satisfy the live interfaces.
var _ live.Provider = (*Provider)(nil)
var _ live.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// setupTimeout bounds the wait for the session.created ack during Connect.
	setupTimeout = 10 * time.Second
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the default OpenAI model used when SessionConfig.Model is
// empty.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect establishes a new OpenAI Realtime session with the given
// configuration. It sends the session.update event and blocks until the
// server announces the session, so the returned handle is ready to accept
// audio.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	cfg = cfg.WithDefaults()

	model := cfg.Model
	if model == "" {
		model = p.model
	}
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		msgCh:  make(chan live.ServerMessage, 64),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	if err := sess.awaitSessionReady(ctx); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session not acknowledged")
		return nil, err
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice             string    `json:"voice,omitempty"`
	Instructions      string    `json:"instructions,omitempty"`
	Tools             []oaiTool `json:"tools,omitempty"`
	InputAudioFormat  string    `json:"input_audio_format"`
	OutputAudioFormat string    `json:"output_audio_format"`
}

type oaiTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

// serverErrorDetail represents the nested error object in an OpenAI Realtime
// error event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta
	Delta string `json:"delta,omitempty"`

	// response.function_call_arguments.done
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn  *websocket.Conn
	msgCh chan live.ServerMessage

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate sends a session.update event to configure voice,
// instructions, tools and audio formats.
func (s *session) sendSessionUpdate(cfg live.SessionConfig) error {
	params := sessionParams{
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}
	if cfg.Voice != "" {
		params.Voice = cfg.Voice
	}
	if cfg.Instructions != "" {
		params.Instructions = cfg.Instructions
	}
	if len(cfg.Tools) > 0 {
		params.Tools = toOAITools(cfg.Tools)
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// awaitSessionReady reads events until the server announces the session.
// Both session.created and session.updated count as the ready signal since
// their relative order is not guaranteed.
func (s *session) awaitSessionReady(ctx context.Context) error {
	readCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	for {
		_, data, err := s.conn.Read(readCtx)
		if err != nil {
			return fmt.Errorf("openai: await session ack: %w", err)
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		switch evt.Type {
		case "session.created", "session.updated":
			return nil
		case "error":
			msg := "unknown error"
			if evt.Error != nil && evt.Error.Message != "" {
				msg = evt.Error.Message
			}
			return fmt.Errorf("openai: session rejected: %s", msg)
		}
	}
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them.
// It owns msgCh and closes it when it exits.
func (s *session) receiveLoop() {
	defer s.closeChannel()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			s.emit(live.ServerMessage{Err: fmt.Errorf("openai: read: %w", err)})
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		if terminal := s.handleServerEvent(&evt); terminal {
			return
		}
	}
}

// handleServerEvent converts one Realtime event into a ServerMessage.
// It reports whether the event terminated the session.
func (s *session) handleServerEvent(evt *serverEvent) bool {
	switch evt.Type {
	case "response.audio.delta":
		if evt.Delta == "" {
			return false
		}
		pcm, err := audio.UnmarshalBase64(evt.Delta)
		if err != nil || len(pcm) == 0 {
			return false
		}
		s.emit(live.ServerMessage{Audio: pcm})

	case "input_audio_buffer.speech_started":
		// Server-side VAD detected the user talking over the model.
		s.emit(live.ServerMessage{Interrupted: true})

	case "response.done":
		s.emit(live.ServerMessage{TurnComplete: true})

	case "response.function_call_arguments.done":
		var args map[string]any
		if evt.Arguments != "" {
			if err := json.Unmarshal([]byte(evt.Arguments), &args); err != nil {
				args = map[string]any{"raw": evt.Arguments}
			}
		}
		s.emit(live.ServerMessage{
			ToolCalls: []live.ToolCallRequest{
				{ID: evt.CallID, Name: evt.Name, Args: args},
			},
		})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		err := fmt.Errorf("openai: %s", msg)
		s.setErr(err)
		s.emit(live.ServerMessage{Err: err})
		return true
	}

	return false
}

// emit delivers one message to the consumer, giving up if the session is torn
// down while the consumer is stalled.
func (s *session) emit(msg live.ServerMessage) {
	select {
	case s.msgCh <- msg:
	case <-s.ctx.Done():
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeChannel() {
	s.closeOnce.Do(func() { close(s.msgCh) })
}

// toOAITools converts tool definitions to the OpenAI Realtime tool format.
func toOAITools(tools []live.ToolDefinition) []oaiTool {
	out := make([]oaiTool, len(tools))
	for i, t := range tools {
		out[i] = oaiTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}
	return out
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// SendAudio delivers a raw PCM16 audio chunk to the input buffer.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return live.ErrSessionClosed
	}
	s.mu.Unlock()

	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: audio.MarshalBase64(chunk),
	})
}

// SendToolResponses answers a batch of tool calls. Each response becomes a
// function_call_output conversation item; a single response.create after the
// batch asks the model to continue.
func (s *session) SendToolResponses(resps []live.ToolCallResponse) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return live.ErrSessionClosed
	}
	s.mu.Unlock()

	if len(resps) == 0 {
		return nil
	}

	for _, r := range resps {
		output, err := json.Marshal(r.Result)
		if err != nil {
			return fmt.Errorf("openai: marshal tool result %q: %w", r.ID, err)
		}
		msg := createConversationItemMessage{
			Type: "conversation.item.create",
			Item: conversationItem{
				Type:   "function_call_output",
				CallID: r.ID,
				Output: string(output),
			},
		}
		if err := s.writeJSON(msg); err != nil {
			return err
		}
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

// Messages returns the channel on which inbound server traffic arrives.
func (s *session) Messages() <-chan live.ServerMessage { return s.msgCh }

// Err returns the first non-nil error that caused the session to terminate.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
