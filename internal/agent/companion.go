package agent

import (
	"context"
	"sync"
	"time"

	"companion-agent/internal/common/errors"
	"companion-agent/internal/common/logger"
	"companion-agent/internal/common/metrics"
	"companion-agent/internal/directory"
	"companion-agent/internal/memory"
	"companion-agent/internal/prompts"
	"companion-agent/internal/store"
)

// ingestTimeout bounds a single memory ingestion, including the
// background ones that outlive their turn.
const ingestTimeout = 30 * time.Second

// Agent is a call persona: its instructions and its turn-completed hook.
type Agent interface {
	Kind() store.AgentKind
	Instructions() string
	// OnUserTurnCompleted runs when a user turn's transcript is final.
	// turnCtx holds the history up to but not including newMessage.
	OnUserTurnCompleted(ctx context.Context, turnCtx *ChatContext, newMessage ChatMessage)
	// Flush waits for any in-flight background ingestion.
	Flush()
}

// CompanionAgent is the primary-user persona.
type CompanionAgent struct {
	sessionID string
	user      *directory.User
	memory    *memory.Client
	log       logger.Logger
	slots     chan struct{} // bounds in-flight background ingests
	sleep     func(time.Duration)
	wg        sync.WaitGroup
}

// NewCompanionAgent builds the companion persona for a session.
// ingestBuffer caps how many background ingests may be in flight at once;
// turns arriving past the cap are dropped rather than piling up goroutines
// against a slow memory store.
func NewCompanionAgent(sessionID string, user *directory.User, mem *memory.Client, ingestBuffer int, log logger.Logger) *CompanionAgent {
	if ingestBuffer <= 0 {
		ingestBuffer = 64
	}
	return &CompanionAgent{
		sessionID: sessionID,
		user:      user,
		memory:    mem,
		log:       log,
		slots:     make(chan struct{}, ingestBuffer),
		sleep:     time.Sleep,
	}
}

func (a *CompanionAgent) Kind() store.AgentKind {
	return store.KindCompanion
}

// Instructions returns the tiny core prompt; it is re-processed every
// turn, so it stays small. Skills ride in the chat context instead.
func (a *CompanionAgent) Instructions() string {
	return prompts.SystemPrompt(a.user.Name, "nl")
}

// OnUserTurnCompleted ingests the completed (user, assistant) pair into
// memory. Only a user message directly following an assistant message
// forms a pair; the assistant half is ignored for graph building but
// keeps short user replies ("Ja.") interpretable. Ingestion runs in the
// background so it never delays the next model turn.
func (a *CompanionAgent) OnUserTurnCompleted(ctx context.Context, turnCtx *ChatContext, newMessage ChatMessage) {
	if a.sessionID == "" {
		return
	}
	pair, ok := ingestionPair(turnCtx, newMessage, a.user.Name, "")
	if !ok {
		return
	}

	select {
	case a.slots <- struct{}{}:
	default:
		a.log.Warn("Memory ingestion buffer full, dropping turn", map[string]interface{}{
			"sessionId": a.sessionID,
		})
		return
	}

	a.wg.Add(1)
	metrics.MemoryIngestQueueDepth.Inc()
	go func() {
		defer a.wg.Done()
		defer metrics.MemoryIngestQueueDepth.Dec()
		defer func() { <-a.slots }()
		a.ingest(pair)
	}()
}

// ingest writes the pair to memory, retrying per the error taxonomy.
// Exhausted retries are logged with the payload and counted; the session
// itself never fails because the memory store is down.
func (a *CompanionAgent) ingest(pair []memory.Message) {
	attempt := func() error {
		ingestCtx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()
		return a.memory.AddMessages(ingestCtx, a.sessionID, pair, []string{"assistant"})
	}

	err := attempt()
	if err == nil {
		return
	}

	action := errors.Classify(err)
	for i := 0; action.Retry && i < action.Retries && err != nil; i++ {
		a.sleep(action.Backoff)
		err = attempt()
	}
	if err != nil {
		stdErr := errors.AsStandard(err, "zep")
		metrics.ErrorsTotal.WithLabelValues(string(stdErr.Code), errors.GetErrorCategory(stdErr.Code)).Inc()
		a.log.WithError(err).Error("Memory ingestion failed", map[string]interface{}{
			"sessionId": a.sessionID,
			"messages":  pair,
		})
	}
}

// Flush waits for background ingestions to finish; called at teardown.
func (a *CompanionAgent) Flush() {
	a.wg.Wait()
}

// ingestionPair applies the pair rule: the new message must be a user
// message and the previous context item an assistant message. The user
// half is prefixed with the speaker's name; role, when set, overrides the
// speaker role on both halves.
func ingestionPair(turnCtx *ChatContext, newMessage ChatMessage, speakerName, role string) ([]memory.Message, bool) {
	if newMessage.Role != "user" {
		return nil, false
	}
	prev, ok := turnCtx.Last()
	if !ok || prev.Role != "assistant" {
		return nil, false
	}

	if speakerName == "" {
		speakerName = "Unknown Caller"
	}

	return []memory.Message{
		{
			Content:  speakerName + ": " + newMessage.Content,
			Role:     role,
			RoleType: "user",
		},
		{
			Content:  prev.Content,
			Role:     role,
			RoleType: "assistant",
		},
	}, true
}
