package agent

import (
	"context"
	"time"

	"companion-agent/internal/agent/tools"
	"companion-agent/internal/common/logger"
	"companion-agent/internal/common/metrics"
	"companion-agent/internal/common/observability"
	"companion-agent/internal/realtime"
	"companion-agent/internal/store"
)

const greetingInstruction = "Greet the user and offer your assistance."

// Model is the realtime session surface the orchestrator drives.
type Model interface {
	Configure(cfg realtime.SessionConfig) error
	AppendMessage(role, text string) error
	Respond(instructions string) error
	SendToolResult(callID, output string) error
	Events() <-chan realtime.Event
	Close() error
}

// StatePublisher announces the agent lifecycle state to the room.
type StatePublisher interface {
	PublishState(state string) error
}

// SessionOptions configures a call session run.
type SessionOptions struct {
	SessionID string
	UserID    string
	Room      string
	Voice     string
	Meter     *observability.Meter // optional
}

// Session runs one call: it configures the model, seeds the context,
// greets, and pumps model events until the call ends.
type Session struct {
	opts    SessionOptions
	model   Model
	agent   Agent
	chatCtx *ChatContext
	tools   *tools.Registry
	callLog *store.CallLog
	state   StatePublisher
	log     logger.Logger

	transcript   []store.TranscriptEntry
	lastUserTurn time.Time
}

// NewSession wires a session. tools, callLog, and state may be nil: the
// onboarding path carries no tools, and the call log degrades to
// logging-only when Postgres is down.
func NewSession(opts SessionOptions, model Model, ag Agent, chatCtx *ChatContext, reg *tools.Registry, callLog *store.CallLog, state StatePublisher, log logger.Logger) *Session {
	if opts.Voice == "" {
		opts.Voice = "ash"
	}
	return &Session{
		opts:    opts,
		model:   model,
		agent:   ag,
		chatCtx: chatCtx,
		tools:   reg,
		callLog: callLog,
		state:   state,
		log:     log,
	}
}

// Run drives the session until the model socket closes or the context is
// canceled. The transcript is persisted at teardown.
func (s *Session) Run(ctx context.Context) error {
	start := time.Now()
	kind := string(s.agent.Kind())
	metrics.CallSessionsTotal.WithLabelValues(kind, "started").Inc()

	cfg := realtime.SessionConfig{
		Voice:        s.opts.Voice,
		Instructions: s.agent.Instructions(),
		Modalities:   []string{"audio", "text"},
		InputAudioTranscription: map[string]interface{}{
			"model":    "whisper-1",
			"language": "nl",
		},
	}
	if s.tools != nil {
		cfg.Tools = s.tools.Defs()
	}
	if err := s.model.Configure(cfg); err != nil {
		metrics.CallSessionsTotal.WithLabelValues(kind, "failed").Inc()
		return err
	}

	for _, item := range s.chatCtx.Items() {
		if err := s.model.AppendMessage(item.Role, item.Content); err != nil {
			metrics.CallSessionsTotal.WithLabelValues(kind, "failed").Inc()
			return err
		}
	}

	s.publishState("listening")
	if err := s.model.Respond(greetingInstruction); err != nil {
		metrics.CallSessionsTotal.WithLabelValues(kind, "failed").Inc()
		return err
	}

	outcome := "completed"
	if err := s.pumpEvents(ctx); err != nil {
		outcome = "failed"
		s.teardown(start, kind, outcome)
		return err
	}
	s.teardown(start, kind, outcome)
	return nil
}

func (s *Session) pumpEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.model.Close()
			// drain so the read loop can exit
			for range s.model.Events() {
			}
			return ctx.Err()

		case ev, ok := <-s.model.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case realtime.EventUserTranscript:
				s.onUserTranscript(ctx, ev.Text)

			case realtime.EventAssistantDone:
				if !s.lastUserTurn.IsZero() {
					s.opts.Meter.RecordResponseLatency(ctx, time.Since(s.lastUserTurn))
					s.lastUserTurn = time.Time{}
				}
				s.chatCtx.AddMessage("assistant", ev.Text)
				s.appendTranscript("assistant", ev.Text)
				s.publishState("listening")

			case realtime.EventFunctionCall:
				s.onFunctionCall(ctx, ev)

			case realtime.EventError:
				s.log.WithError(ev.Err).Error("Realtime session error", map[string]interface{}{
					"sessionId": s.opts.SessionID,
				})

			case realtime.EventClosed:
				return nil
			}
		}
	}
}

func (s *Session) onUserTranscript(ctx context.Context, text string) {
	msg := ChatMessage{Role: "user", Content: text}
	// hook sees the history without the new message; see ChatContext
	s.agent.OnUserTurnCompleted(ctx, s.chatCtx, msg)
	s.chatCtx.AddMessage(msg.Role, msg.Content)
	s.appendTranscript("user", text)
	s.lastUserTurn = time.Now()
	s.publishState("thinking")
}

func (s *Session) onFunctionCall(ctx context.Context, ev realtime.Event) {
	if s.tools == nil {
		s.log.Warn("Function call without a tool registry", map[string]interface{}{
			"tool": ev.Name,
		})
		_ = s.model.SendToolResult(ev.CallID, "That capability is not available right now.")
		return
	}

	s.opts.Meter.RecordToolCall(ctx, ev.Name)
	out := s.tools.Dispatch(ctx, ev.Name, ev.Args)
	if err := s.model.SendToolResult(ev.CallID, out); err != nil {
		s.log.WithError(err).Error("Returning tool result failed", map[string]interface{}{
			"tool": ev.Name,
		})
	}
}

func (s *Session) appendTranscript(role, content string) {
	if content == "" {
		return
	}
	s.transcript = append(s.transcript, store.TranscriptEntry{
		Seq:     len(s.transcript) + 1,
		Role:    role,
		Content: content,
	})
	s.opts.Meter.RecordTranscriptTurn(context.Background(), role)
}

func (s *Session) publishState(state string) {
	if s.state == nil {
		return
	}
	if err := s.state.PublishState(state); err != nil {
		s.log.WithError(err).Debug("Publishing agent state failed", nil)
	}
}

func (s *Session) teardown(start time.Time, kind, outcome string) {
	s.agent.Flush()

	metrics.CallSessionsTotal.WithLabelValues(kind, outcome).Inc()
	metrics.CallSessionDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	s.opts.Meter.RecordSession(context.Background(), kind, outcome, time.Since(start))

	if s.callLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.callLog.AppendTranscript(ctx, s.opts.SessionID, s.transcript); err != nil {
		s.log.WithError(err).Error("Persisting transcript failed", map[string]interface{}{
			"sessionId": s.opts.SessionID,
		})
	}
	if err := s.callLog.EndSession(ctx, s.opts.SessionID); err != nil {
		s.log.WithError(err).Error("Closing call session record failed", map[string]interface{}{
			"sessionId": s.opts.SessionID,
		})
	}
}
