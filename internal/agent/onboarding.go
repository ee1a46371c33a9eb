package agent

import (
	"context"

	"companion-agent/internal/common/logger"
	"companion-agent/internal/memory"
	"companion-agent/internal/prompts"
	"companion-agent/internal/store"
)

// OnboardingAgent is the persona for family members calling in to share
// or receive updates about the primary user.
type OnboardingAgent struct {
	sessionID   string
	callerName  string
	language    string
	elderlyName string
	memory      *memory.Client
	log         logger.Logger
}

// NewOnboardingAgent builds the family-caller persona for a session.
func NewOnboardingAgent(sessionID, elderlyName, callerName, language string, mem *memory.Client, log logger.Logger) *OnboardingAgent {
	return &OnboardingAgent{
		sessionID:   sessionID,
		callerName:  callerName,
		language:    language,
		elderlyName: elderlyName,
		memory:      mem,
		log:         log,
	}
}

func (a *OnboardingAgent) Kind() store.AgentKind {
	return store.KindOnboarding
}

func (a *OnboardingAgent) Instructions() string {
	return prompts.OnboardingPrompt(a.elderlyName, a.callerName, a.language)
}

// OnUserTurnCompleted ingests the completed pair synchronously. Family
// calls are short and their facts feed the next companion session, so the
// write happens before the call can end. Both halves carry the
// family_member role; the graph attributes the facts to the caller, not
// the primary user.
func (a *OnboardingAgent) OnUserTurnCompleted(ctx context.Context, turnCtx *ChatContext, newMessage ChatMessage) {
	if a.sessionID == "" {
		return
	}
	pair, ok := ingestionPair(turnCtx, newMessage, a.callerName, "family_member")
	if !ok {
		return
	}

	if err := a.memory.AddMessages(ctx, a.sessionID, pair, []string{"assistant"}); err != nil {
		a.log.WithError(err).Error("Memory ingestion failed", map[string]interface{}{
			"sessionId": a.sessionID,
			"messages":  pair,
		})
	}
}

// Flush is a no-op: onboarding ingestion is synchronous.
func (a *OnboardingAgent) Flush() {}
