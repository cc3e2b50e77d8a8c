package openai_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/astra/pkg/live"
	"github.com/MrWong99/astra/pkg/live/openai"
	"github.com/coder/websocket"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startRealtimeServer launches a test WebSocket server. The handler function
// receives the accepted *websocket.Conn. The server is automatically closed
// when the test finishes.
func startRealtimeServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// sendSessionCreated sends the server-side session announcement.
func sendSessionCreated(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeJSON(t, conn, map[string]any{"type": "session.created", "session": map[string]any{}})
}

func newProvider(srv *httptest.Server) *openai.Provider {
	return openai.New("test-api-key", openai.WithBaseURL(wsURL(srv)))
}

func nextMessage(t *testing.T, handle live.SessionHandle) live.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-handle.Messages():
		if !ok {
			t.Fatal("Messages channel closed unexpectedly")
		}
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for server message")
	}
	return live.ServerMessage{}
}

// ── TestConnect ────────────────────────────────────────────────────────────────

func TestConnect_SendsSessionUpdate(t *testing.T) {
	t.Parallel()

	type updateMsg struct {
		Type    string `json:"type"`
		Session struct {
			Voice            string `json:"voice"`
			Instructions     string `json:"instructions"`
			InputAudioFormat string `json:"input_audio_format"`
			Tools            []struct {
				Type string `json:"type"`
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"session"`
	}

	received := make(chan updateMsg, 1)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg updateMsg
		readJSON(t, conn, &msg)
		received <- msg
		sendSessionCreated(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	cfg := live.SessionConfig{
		Instructions: "You are a friendly interviewer.",
		Voice:        "verse",
		Tools: []live.ToolDefinition{
			{Name: "save_strength", Description: "Records a strength"},
		},
	}
	handle, err := p.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case msg := <-received:
		if msg.Type != "session.update" {
			t.Errorf("type = %q; want session.update", msg.Type)
		}
		if msg.Session.Voice != "verse" {
			t.Errorf("voice = %q; want verse", msg.Session.Voice)
		}
		if msg.Session.Instructions != "You are a friendly interviewer." {
			t.Errorf("instructions = %q", msg.Session.Instructions)
		}
		if msg.Session.InputAudioFormat != "pcm16" {
			t.Errorf("input_audio_format = %q; want pcm16", msg.Session.InputAudioFormat)
		}
		if len(msg.Session.Tools) != 1 || msg.Session.Tools[0].Type != "function" || msg.Session.Tools[0].Name != "save_strength" {
			t.Errorf("unexpected tools: %+v", msg.Session.Tools)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for session.update")
	}
}

func TestConnect_SetsAuthHeaderAndModel(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 1)
	query := make(chan string, 1)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, r *http.Request) {
		headers <- r.Header.Clone()
		query <- r.URL.RawQuery
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("secret-key", openai.WithModel("custom-realtime"), openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case h := <-headers:
		if got := h.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization = %q; want Bearer secret-key", got)
		}
		if got := h.Get("OpenAI-Beta"); got != "realtime=v1" {
			t.Errorf("OpenAI-Beta = %q; want realtime=v1", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}

	if q := <-query; !strings.Contains(q, "model=custom-realtime") {
		t.Errorf("URL query %q should carry the model", q)
	}
}

func TestConnect_SessionRejected_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "invalid_request_error", "message": "bad key"},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	_, err := p.Connect(context.Background(), live.SessionConfig{})
	if err == nil {
		t.Fatal("Connect should fail when the session is rejected")
	}
	if !strings.Contains(err.Error(), "bad key") {
		t.Errorf("error %q should carry the server message", err)
	}
}

// ── TestSendAudio ──────────────────────────────────────────────────────────────

func TestSendAudio_AppendsToInputBuffer(t *testing.T) {
	t.Parallel()

	type appendMsg struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}

	audioMsg := make(chan appendMsg, 1)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)

		var msg appendMsg
		readJSON(t, conn, &msg)
		audioMsg <- msg

		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	wantPCM := []byte{0x01, 0x02, 0x03, 0x04}
	if err := handle.SendAudio(wantPCM); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-audioMsg:
		if msg.Type != "input_audio_buffer.append" {
			t.Errorf("type = %q; want input_audio_buffer.append", msg.Type)
		}
		got, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			t.Fatalf("base64 decode: %v", err)
		}
		if string(got) != string(wantPCM) {
			t.Errorf("decoded audio = %v; want %v", got, wantPCM)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for append message")
	}
}

func TestSendAudio_AfterClose_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = handle.Close()

	if err := handle.SendAudio([]byte{1, 2, 3}); err != live.ErrSessionClosed {
		t.Fatalf("SendAudio after Close = %v; want ErrSessionClosed", err)
	}
}

// ── TestMessages ───────────────────────────────────────────────────────────────

func TestMessages_AudioDelta(t *testing.T) {
	t.Parallel()

	wantPCM := []byte{0xAA, 0xBB, 0xCC, 0xDD}

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)

		writeJSON(t, conn, map[string]any{
			"type":  "response.audio.delta",
			"delta": base64.StdEncoding.EncodeToString(wantPCM),
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	msg := nextMessage(t, handle)
	if string(msg.Audio) != string(wantPCM) {
		t.Errorf("audio = %v; want %v", msg.Audio, wantPCM)
	}
}

func TestMessages_SpeechStarted_MapsToInterrupted(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)

		writeJSON(t, conn, map[string]any{"type": "input_audio_buffer.speech_started"})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	msg := nextMessage(t, handle)
	if !msg.Interrupted {
		t.Errorf("expected Interrupted message, got %+v", msg)
	}
}

func TestMessages_ResponseDone_MapsToTurnComplete(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)

		writeJSON(t, conn, map[string]any{"type": "response.done"})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	msg := nextMessage(t, handle)
	if !msg.TurnComplete {
		t.Errorf("expected TurnComplete message, got %+v", msg)
	}
}

func TestMessages_FunctionCall(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)

		writeJSON(t, conn, map[string]any{
			"type":      "response.function_call_arguments.done",
			"call_id":   "call-7",
			"name":      "save_strength",
			"arguments": `{"title":"Patience","description":"Stays calm"}`,
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	msg := nextMessage(t, handle)
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls; want 1", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.ID != "call-7" || tc.Name != "save_strength" {
		t.Errorf("tool call = %+v", tc)
	}
	if got := tc.Args["title"]; got != "Patience" {
		t.Errorf("args[title] = %v; want Patience", got)
	}
}

func TestMessages_ErrorEvent_Terminal(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)

		writeJSON(t, conn, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "server_error", "message": "overloaded"},
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	msg := nextMessage(t, handle)
	if msg.Err == nil || !strings.Contains(msg.Err.Error(), "overloaded") {
		t.Fatalf("expected error message, got %+v", msg)
	}

	select {
	case _, open := <-handle.Messages():
		if open {
			t.Error("Messages channel should close after a terminal error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Messages channel to close")
	}
}

// ── TestSendToolResponses ──────────────────────────────────────────────────────

func TestSendToolResponses_CreatesItemsAndResponse(t *testing.T) {
	t.Parallel()

	type itemMsg struct {
		Type string `json:"type"`
		Item struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		} `json:"item"`
	}

	frames := make(chan json.RawMessage, 4)

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)

		ctx := context.Background()
		for range 3 {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			frames <- json.RawMessage(data)
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	resps := []live.ToolCallResponse{
		{ID: "call-1", Name: "save_strength", Result: map[string]any{"result": "ok"}},
		{ID: "call-2", Name: "save_strength", Result: map[string]any{"error": "unknown tool"}},
	}
	if err := handle.SendToolResponses(resps); err != nil {
		t.Fatalf("SendToolResponses: %v", err)
	}

	wantCallIDs := []string{"call-1", "call-2"}
	for i := range 2 {
		select {
		case data := <-frames:
			var msg itemMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal frame %d: %v", i, err)
			}
			if msg.Type != "conversation.item.create" || msg.Item.Type != "function_call_output" {
				t.Errorf("frame %d = %+v", i, msg)
			}
			if msg.Item.CallID != wantCallIDs[i] {
				t.Errorf("frame %d call_id = %q; want %q", i, msg.Item.CallID, wantCallIDs[i])
			}
			if msg.Item.Output == "" {
				t.Errorf("frame %d has empty output", i)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for conversation item")
		}
	}

	select {
	case data := <-frames:
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal response.create: %v", err)
		}
		if msg.Type != "response.create" {
			t.Errorf("final frame type = %q; want response.create", msg.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for response.create")
	}
}

// ── TestClose ──────────────────────────────────────────────────────────────────

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := handle.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}
}

func TestClose_ClosesMessagesChannel(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSessionCreated(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(srv)
	handle, err := p.Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_ = handle.Close()

	select {
	case _, open := <-handle.Messages():
		if open {
			t.Error("Messages channel should be closed after Close()")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Messages channel to close")
	}
}
