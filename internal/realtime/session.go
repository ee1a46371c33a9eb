package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	stderrors "companion-agent/internal/common/errors"
	"companion-agent/internal/common/logger"
)

// Options configures a realtime session.
type Options struct {
	BaseURL string // wss://api.openai.com/v1/realtime
	APIKey  string
	Model   string // gpt-4o-realtime-preview
}

// Session is a live model session. Configure it once, then append items,
// request responses, and consume Events until the socket closes.
type Session struct {
	conn   *websocket.Conn
	log    logger.Logger
	events chan Event

	mu     sync.Mutex
	closed bool
}

// Connect dials the realtime endpoint and starts the event loop.
func Connect(ctx context.Context, opts Options, log logger.Logger) (*Session, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, stderrors.NewRealtimeSessionFailedError(fmt.Errorf("parsing realtime URL: %w", err))
	}
	q := u.Query()
	q.Set("model", opts.Model)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := map[string][]string{
		"Authorization": {"Bearer " + opts.APIKey},
		"OpenAI-Beta":   {"realtime=v1"},
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, stderrors.NewRealtimeSessionFailedError(err)
	}

	s := &Session{
		conn:   conn,
		log:    log,
		events: make(chan Event, 32),
	}
	go s.readLoop()
	return s, nil
}

// Events returns the session event stream. The channel is closed after
// EventClosed is delivered.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Configure updates the session voice, instructions, and tool set.
func (s *Session) Configure(cfg SessionConfig) error {
	return s.send(sessionUpdateEvent{Type: "session.update", Session: cfg})
}

// AppendMessage adds a text message to the conversation without
// triggering a response.
func (s *Session) AppendMessage(role, text string) error {
	return s.send(conversationItemCreateEvent{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:    "message",
			Role:    role,
			Content: []contentPart{{Type: "input_text", Text: text}},
		},
	})
}

// Respond asks the model to produce a response. A non-empty instructions
// string overrides the session instructions for this response only; it is
// used for the greeting and for "I'm looking that up" interstitials.
func (s *Session) Respond(instructions string) error {
	ev := responseCreateEvent{Type: "response.create"}
	if instructions != "" {
		ev.Response = &responseParams{Instructions: instructions}
	}
	return s.send(ev)
}

// SendToolResult returns a function call's output to the model and
// requests the follow-up response.
func (s *Session) SendToolResult(callID, output string) error {
	if err := s.send(conversationItemCreateEvent{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}); err != nil {
		return err
	}
	return s.Respond("")
}

// Close tears down the socket. The event channel closes shortly after.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *Session) send(payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("realtime session closed")
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *Session) readLoop() {
	defer func() {
		s.events <- Event{Kind: EventClosed}
		close(s.events)
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.log.WithError(err).Debug("Realtime socket closed", nil)
			}
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.log.WithError(err).Warn("Malformed realtime event", nil)
			continue
		}
		s.dispatch(ev)
	}
}

func (s *Session) dispatch(ev serverEvent) {
	switch ev.Type {
	case "conversation.item.input_audio_transcription.completed":
		s.emit(Event{Kind: EventUserTranscript, Text: ev.Transcript})

	case "response.done":
		if ev.Response == nil {
			return
		}
		for _, item := range ev.Response.Output {
			switch item.Type {
			case "function_call":
				s.emit(Event{
					Kind:   EventFunctionCall,
					CallID: item.CallID,
					Name:   item.Name,
					Args:   json.RawMessage(item.Arguments),
				})
			case "message":
				s.emit(Event{Kind: EventAssistantDone, Text: flattenContent(item.Content)})
			}
		}

	case "error":
		msg := "unknown realtime error"
		if ev.Error != nil {
			msg = fmt.Sprintf("%s: %s", ev.Error.Code, ev.Error.Message)
		}
		s.emit(Event{Kind: EventError, Err: stderrors.NewRealtimeSessionFailedError(fmt.Errorf("%s", msg))})
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("Dropping realtime event, consumer too slow", map[string]interface{}{
			"kind": ev.Kind,
		})
	}
}

func flattenContent(parts []contentPart) string {
	out := ""
	for _, p := range parts {
		out += p.Text
	}
	return out
}
