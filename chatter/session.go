package chatter

import (
	"sync"

	"github.com/EPecherkin/sloth-chat/llm"
	"github.com/EPecherkin/sloth-chat/prompts"
	"github.com/google/uuid"
)

// Keep the context window bounded; older exchanges fall off the front.
const maxHistoryMessages = 40

// Session is the per-conversation state owned by the frontend: the persona,
// the delay configuration, the conversation history sent as model context,
// and the running turn counter. One session maps to one Conversation row.
// Sessions are shared between concurrent handlers; mu serializes turns and
// guards the mutable state, so at most one turn of a conversation runs at a
// time.
type Session struct {
	ConversationID string

	mu      sync.Mutex
	preset  prompts.Preset
	delay   DelaySettings
	history []llm.Message
	seq     int
}

func NewSession(preset prompts.Preset, delaySettings DelaySettings) *Session {
	return &Session{
		ConversationID: uuid.NewString(),
		preset:         preset,
		delay:          delaySettings,
	}
}

func (session *Session) Preset() prompts.Preset {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.preset
}

func (session *Session) SetPreset(preset prompts.Preset) {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.preset = preset
}

func (session *Session) Delay() DelaySettings {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.delay
}

func (session *Session) SetDelay(settings DelaySettings) {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.delay = settings
}

// nextSeq must be called with mu held.
func (session *Session) nextSeq() int {
	session.seq++
	return session.seq
}

// remember must be called with mu held.
func (session *Session) remember(userText, assistantText string) {
	session.history = append(session.history,
		llm.Message{Role: llm.RoleUser, Text: userText},
		llm.Message{Role: llm.RoleAssistant, Text: assistantText},
	)
	if len(session.history) > maxHistoryMessages {
		session.history = session.history[len(session.history)-maxHistoryMessages:]
	}
}
