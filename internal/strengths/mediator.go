package strengths

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/astra/internal/i18n"
	"github.com/MrWong99/astra/pkg/live"
)

// Handler executes one tool call and returns the result payload sent back to
// the model.
type Handler func(args map[string]any) (map[string]any, error)

// Mediator answers the tool calls of a live session. Every request in a batch
// gets exactly one response with the matching ID and name; unknown tools are
// answered with an error payload so the remote conversation never stalls.
// Thread-safe for concurrent use.
type Mediator struct {
	mu       sync.Mutex
	handlers map[string]Handler
	lang     i18n.Language
	logger   *slog.Logger
}

// NewMediator creates a Mediator wired to the given store, with the
// save_strength handler pre-registered.
func NewMediator(store *Store, lang i18n.Language, logger *slog.Logger) *Mediator {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mediator{
		handlers: make(map[string]Handler),
		lang:     lang,
		logger:   logger,
	}
	m.Register("save_strength", func(args map[string]any) (map[string]any, error) {
		title, _ := args["title"].(string)
		description, _ := args["description"].(string)
		// Both parameters are declared required in the tool schema.
		if title == "" {
			return nil, fmt.Errorf("strengths: save_strength call missing title")
		}
		if description == "" {
			return nil, fmt.Errorf("strengths: save_strength call missing description")
		}

		rec, err := store.Add(title, description)
		if err != nil {
			// The record is kept in memory even when the journal write fails.
			logger.Warn("strength journal write failed", "error", err)
		}
		logger.Info("strength recorded", "id", rec.ID, "title", rec.Title)

		return map[string]any{"result": i18n.Lookup(m.language()).StrengthRecorded}, nil
	})
	return m
}

// Register installs a handler for the named tool, replacing any existing one.
func (m *Mediator) Register(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// SetLanguage switches the language used for localized result payloads.
func (m *Mediator) SetLanguage(lang i18n.Language) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lang = lang
}

func (m *Mediator) language() i18n.Language {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lang
}

// HandleBatch answers one inbound batch of tool calls. The returned responses
// preserve request order and correlation IDs; a request for an unregistered
// tool or a failing handler yields an error payload instead of being dropped.
func (m *Mediator) HandleBatch(calls []live.ToolCallRequest) []live.ToolCallResponse {
	if len(calls) == 0 {
		return nil
	}

	resps := make([]live.ToolCallResponse, len(calls))
	for i, call := range calls {
		m.mu.Lock()
		h, ok := m.handlers[call.Name]
		m.mu.Unlock()

		resp := live.ToolCallResponse{ID: call.ID, Name: call.Name}
		switch {
		case !ok:
			m.logger.Warn("unknown tool requested", "tool", call.Name, "call_id", call.ID)
			resp.Result = map[string]any{"error": fmt.Sprintf("unknown tool %q", call.Name)}
		default:
			result, err := h(call.Args)
			if err != nil {
				m.logger.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
				resp.Result = map[string]any{"error": err.Error()}
			} else {
				resp.Result = result
			}
		}
		resps[i] = resp
	}
	return resps
}
