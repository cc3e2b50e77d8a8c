// Package controller implements the session orchestration core: it owns the
// connection state machine, wires microphone capture to the remote live
// session, routes inbound server messages to the playback scheduler and the
// tool-call mediator, and exposes the volume / state / strengths signals the
// presentation layer reads.
//
// One Controller manages at most one live session at a time. Every connection
// attempt increments a session epoch; goroutines and callbacks spawned for an
// older epoch discard their events once a newer epoch exists, so a rapid
// disconnect/reconnect can never interleave two sessions' audio or state.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/astra/internal/capture"
	"github.com/MrWong99/astra/internal/i18n"
	"github.com/MrWong99/astra/internal/observe"
	"github.com/MrWong99/astra/internal/playback"
	"github.com/MrWong99/astra/internal/strengths"
	"github.com/MrWong99/astra/pkg/audio"
	"github.com/MrWong99/astra/pkg/live"
)

// SessionState describes the controller's connection lifecycle phase.
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
	StateError        SessionState = "error"
)

// defaultConnectTimeout bounds a connection attempt, including the provider's
// setup handshake.
const defaultConnectTimeout = 15 * time.Second

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithVoice sets the provider voice used for speech output.
func WithVoice(voice string) Option {
	return func(c *Controller) {
		if voice != "" {
			c.voice = voice
		}
	}
}

// WithModel sets the remote model identifier passed to the provider.
// An empty value keeps the provider's default.
func WithModel(model string) Option {
	return func(c *Controller) {
		c.model = model
	}
}

// WithLanguage sets the initial language profile. The default is English.
func WithLanguage(lang i18n.Language) Option {
	return func(c *Controller) {
		c.lang = lang
	}
}

// WithConnectTimeout overrides the default 15s connection attempt bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithLogger sets the structured logger. The default is [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics instance. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithProviderName sets the provider label attached to connection metrics.
func WithProviderName(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.providerName = name
		}
	}
}

// WithStore replaces the internally created strength store, e.g. with a
// journaled one.
func WithStore(store *strengths.Store) Option {
	return func(c *Controller) {
		if store != nil {
			c.store = store
		}
	}
}

// session bundles everything owned by one connection epoch.
type session struct {
	epoch  uint64
	handle live.SessionHandle
	queue  *sendQueue
	cancel context.CancelFunc
}

// Controller is the session orchestrator. It is safe for concurrent use:
// the presentation layer may call State, Volume, Strengths, and the
// connect/disconnect operations from any goroutine.
type Controller struct {
	provider live.Provider
	capture  *capture.Pipeline
	playback *playback.Scheduler
	store    *strengths.Store
	mediator *strengths.Mediator
	logger   *slog.Logger
	metrics  *observe.Metrics

	model          string
	voice          string
	providerName   string
	connectTimeout time.Duration

	// epoch is incremented on every connection attempt and every disconnect.
	// Callbacks compare their captured value against it and discard stale events.
	epoch atomic.Uint64

	mu      sync.Mutex
	state   SessionState
	lastErr error
	lang    i18n.Language
	sess    *session
}

// New creates a Controller around the given live provider and audio devices.
// Options are applied in order. The controller starts in the Disconnected
// state and opens no connection until [Controller.Connect] is called.
func New(provider live.Provider, in audio.InputDevice, out audio.OutputDevice, opts ...Option) *Controller {
	c := &Controller{
		provider:       provider,
		voice:          "Fenrir",
		providerName:   "live",
		connectTimeout: defaultConnectTimeout,
		logger:         slog.Default(),
		state:          StateDisconnected,
		lang:           i18n.English,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.store == nil {
		c.store = strengths.NewStore()
	}
	c.capture = capture.NewPipeline(in, audio.CaptureFormat, c.logger)
	c.playback = playback.NewScheduler(out, audio.PlaybackFormat, c.logger)
	c.mediator = strengths.NewMediator(c.store, c.lang, c.logger)
	return c
}

// Connect opens a live session for the given language profile. It is valid
// only from the Disconnected and Error states. The attempt is bounded by the
// configured connect timeout; on any failure the controller transitions to
// the Error state and the cause is returned and retained for [Controller.LastError].
func (c *Controller) Connect(ctx context.Context, lang i18n.Language) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("controller: connect while %s", state)
	}
	c.state = StateConnecting
	c.lastErr = nil
	c.lang = lang
	c.mediator.SetLanguage(lang)
	epoch := c.epoch.Add(1)
	c.mu.Unlock()

	cfg := live.SessionConfig{
		Model:        c.model,
		Instructions: i18n.SystemInstruction(lang),
		Voice:        c.voice,
		Tools:        []live.ToolDefinition{i18n.SaveStrengthTool()},
	}.WithDefaults()

	dialCtx, cancelDial := context.WithTimeout(ctx, c.connectTimeout)
	defer cancelDial()

	start := time.Now()
	handle, err := c.provider.Connect(dialCtx, cfg)
	c.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", c.providerName)))
	if err != nil {
		c.metrics.RecordConnect(ctx, c.providerName, "error")
		return c.failConnect(epoch, fmt.Errorf("controller: connect: %w", err))
	}
	c.metrics.RecordConnect(ctx, c.providerName, "ok")

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		epoch:  epoch,
		handle: handle,
		queue:  newSendQueue(),
		cancel: cancel,
	}

	if err := c.capture.Start(sessCtx, func(chunk audio.Chunk) {
		c.onChunk(sess, chunk)
	}); err != nil {
		cancel()
		_ = handle.Close()
		return c.failConnect(epoch, fmt.Errorf("controller: start capture: %w", err))
	}

	c.mu.Lock()
	if c.epoch.Load() != epoch {
		// A concurrent disconnect invalidated this attempt mid-flight.
		c.mu.Unlock()
		cancel()
		_ = c.capture.Stop()
		_ = handle.Close()
		return fmt.Errorf("controller: connect superseded")
	}
	c.sess = sess
	c.state = StateConnected
	c.mu.Unlock()

	c.metrics.ActiveSessions.Add(ctx, 1)
	go c.drainQueue(sess)
	go c.dispatch(sess)

	c.logger.Info("session connected", "provider", c.providerName, "language", string(lang))
	return nil
}

// failConnect records err and moves to the Error state unless the attempt has
// already been superseded by a newer epoch.
func (c *Controller) failConnect(epoch uint64, err error) error {
	c.metrics.RecordSessionError(context.Background(), "connect")
	c.mu.Lock()
	if c.epoch.Load() == epoch {
		c.state = StateError
		c.lastErr = err
	}
	c.mu.Unlock()
	c.logger.Error("session connect failed", "err", err)
	return err
}

// Disconnect tears the current session down. It is idempotent and valid from
// any state: capture stops synchronously, all scheduled playback is silenced,
// and the remote session is closed.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.epoch.Add(1)
	sess := c.sess
	c.sess = nil
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.lastErr = nil
	c.mu.Unlock()

	c.teardown(sess, wasConnected)
	c.logger.Info("session disconnected")
}

// teardown releases everything owned by sess. It is called with c.mu released
// because handle.Close can block on the network.
func (c *Controller) teardown(sess *session, wasConnected bool) {
	_ = c.capture.Stop()
	c.playback.CancelAll()
	if sess == nil {
		return
	}
	sess.cancel()
	sess.queue.close()
	_ = sess.handle.Close()
	if wasConnected {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// SetLanguage switches the active language profile. Per the session's
// language semantics a live connection is torn down first: the system prompt
// is fixed at setup, so the new language takes effect on the next connect.
func (c *Controller) SetLanguage(lang i18n.Language) {
	c.mu.Lock()
	active := c.state == StateConnecting || c.state == StateConnected
	c.lang = lang
	c.mediator.SetLanguage(lang)
	c.mu.Unlock()

	if active {
		c.Disconnect()
	}
}

// SetVoice changes the synthesized voice used for future sessions. An active
// session keeps its voice; the change applies on the next connect.
func (c *Controller) SetVoice(voice string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voice = voice
}

// Language returns the current language profile.
func (c *Controller) Language() i18n.Language {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lang
}

// State returns the current lifecycle state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error that moved the controller into the Error
// state, or nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Volume returns the louder of the capture and playback envelopes,
// normalized to [0, 1].
func (c *Controller) Volume() float64 {
	v := max(c.capture.Level(), c.playback.Level())
	return min(v, 1)
}

// Strengths returns a snapshot of all recorded strengths.
func (c *Controller) Strengths() []strengths.Record {
	return c.store.All()
}

// Close disconnects any active session. It exists so the controller can sit
// at the end of a defer chain; it never fails.
func (c *Controller) Close() error {
	c.Disconnect()
	return nil
}

// onChunk is the capture callback. It must not block: it only enqueues the
// chunk for the drain goroutine. Chunks from a stale epoch are discarded.
func (c *Controller) onChunk(sess *session, chunk audio.Chunk) {
	if c.epoch.Load() != sess.epoch {
		return
	}
	if sess.queue.push(chunk.Data) {
		c.metrics.SendQueueDepth.Add(context.Background(), 1)
	}
}

// drainQueue sends queued capture chunks to the remote session in FIFO
// order. Send failures are logged and do not surface to the capture path;
// a closed session ends the loop.
func (c *Controller) drainQueue(sess *session) {
	ctx := context.Background()
	for {
		data, ok := sess.queue.pop()
		if !ok {
			return
		}
		c.metrics.SendQueueDepth.Add(ctx, -1)

		start := time.Now()
		err := sess.handle.SendAudio(data)
		c.metrics.SendDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			if errors.Is(err, live.ErrSessionClosed) {
				break
			}
			c.logger.Warn("send audio failed", "err", err)
			continue
		}
		c.metrics.AudioChunksSent.Add(ctx, 1)
	}

	// The session is gone but chunks may still be queued. Keep draining until
	// teardown closes the queue so the depth gauge settles back to zero.
	for {
		if _, ok := sess.queue.pop(); !ok {
			return
		}
		c.metrics.SendQueueDepth.Add(ctx, -1)
	}
}

// dispatch drains the session's inbound message stream. It is the only
// goroutine touching the playback scheduler and the mediator for this epoch,
// so inbound handling is fully serialized.
func (c *Controller) dispatch(sess *session) {
	for msg := range sess.handle.Messages() {
		if c.epoch.Load() != sess.epoch {
			continue
		}
		c.handleMessage(sess, msg)
	}
	c.sessionEnded(sess)
}

// handleMessage processes one inbound server message. A panic while handling
// a single message is recovered here and treated as a no-op for that message.
func (c *Controller) handleMessage(sess *session, msg live.ServerMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in message dispatch", "recovered", r)
		}
	}()

	if msg.Err != nil {
		// The terminal cause is reported once the channel closes.
		return
	}

	if msg.Interrupted {
		c.playback.CancelAll()
		c.metrics.Interruptions.Add(context.Background(), 1)
		c.logger.Debug("playback interrupted by server")
	}

	if len(msg.Audio) > 0 {
		buf, err := audio.DecodeBuffer(msg.Audio, audio.PlaybackFormat)
		if err != nil {
			c.logger.Warn("dropping malformed audio payload", "err", err)
		} else if err := c.playback.Schedule(buf); err != nil {
			c.logger.Warn("schedule playback failed", "err", err)
		} else {
			c.metrics.BuffersScheduled.Add(context.Background(), 1)
		}
	}

	if len(msg.ToolCalls) > 0 {
		c.handleToolCalls(sess, msg.ToolCalls)
	}

	if msg.TurnComplete {
		c.logger.Debug("model turn complete")
	}
}

// handleToolCalls answers every request of one inbound message in order,
// preserving the correlation ids the server assigned.
func (c *Controller) handleToolCalls(sess *session, calls []live.ToolCallRequest) {
	ctx := context.Background()
	resps := c.mediator.HandleBatch(calls)
	for _, resp := range resps {
		status := "ok"
		if _, failed := resp.Result["error"]; failed {
			status = "error"
		}
		c.metrics.RecordToolCall(ctx, resp.Name, status)
	}
	if err := sess.handle.SendToolResponses(resps); err != nil {
		c.logger.Warn("send tool responses failed", "err", err)
	}
}

// sessionEnded runs when the inbound stream closes. For the current epoch it
// performs a full teardown; a terminal transport cause moves the controller
// to the Error state so the user can see why, and a clean close returns to
// Disconnected. Either way a new Connect is immediately valid.
func (c *Controller) sessionEnded(sess *session) {
	cause := sess.handle.Err()

	c.mu.Lock()
	if c.epoch.Load() != sess.epoch {
		// A disconnect or newer connect already owns teardown.
		c.mu.Unlock()
		return
	}
	c.epoch.Add(1)
	c.sess = nil
	wasConnected := c.state == StateConnected
	if cause != nil {
		c.state = StateError
		c.lastErr = cause
	} else {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	c.teardown(sess, wasConnected)
	if cause != nil {
		c.metrics.RecordSessionError(context.Background(), "transport")
		c.logger.Error("session ended with error", "err", cause)
	} else {
		c.logger.Info("session ended")
	}
}
