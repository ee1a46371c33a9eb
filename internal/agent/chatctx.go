// Package agent orchestrates call sessions: caller classification, memory
// bootstrap, the realtime session loop, and per-turn memory ingestion.
package agent

// ChatMessage is one conversation item.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatContext is the ordered conversation history for a session. The
// turn-completed hook receives it before the new user message is appended,
// so the last item is the message that preceded the new one.
type ChatContext struct {
	items []ChatMessage
}

// NewChatContext returns an empty context.
func NewChatContext() *ChatContext {
	return &ChatContext{}
}

// AddMessage appends a message.
func (c *ChatContext) AddMessage(role, content string) {
	c.items = append(c.items, ChatMessage{Role: role, Content: content})
}

// Items returns the history in order.
func (c *ChatContext) Items() []ChatMessage {
	return c.items
}

// Last returns the most recent message, if any.
func (c *ChatContext) Last() (ChatMessage, bool) {
	if len(c.items) == 0 {
		return ChatMessage{}, false
	}
	return c.items[len(c.items)-1], true
}

// Len returns the number of messages.
func (c *ChatContext) Len() int {
	return len(c.items)
}
