package agent

import (
	"sync"

	"voice-agent-server/internal/clients/openai"
)

// Conversation is the accumulating sequence of dialogue turns supplied to
// the LLM. It is owned by one running agent and discarded with it; there
// is no cross-call memory.
type Conversation struct {
	mu       sync.Mutex
	messages []openai.Message
}

// NewConversation seeds the context with one system instruction.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []openai.Message{{Role: "system", Content: systemPrompt}},
	}
}

// Append adds one role-tagged turn to the context.
func (c *Conversation) Append(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, openai.Message{Role: role, Content: content})
}

// Messages returns a snapshot of the context in order.
func (c *Conversation) Messages() []openai.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]openai.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of turns including the system seed.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
