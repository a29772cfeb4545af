package chat

import "sync"

// Role is the conversational role of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolCall is a pending function invocation requested by a message
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn of a group chat
type Message struct {
	Role     Role      `json:"role"`
	Name     string    `json:"name"`
	Content  string    `json:"content"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
	// Payload carries structured data attached by the producing agent,
	// such as a command batch or its execution report
	Payload any `json:"-"`
}

// MessageLog is the ordered conversation shared by a chat's participants.
// It only grows, except through Truncate.
type MessageLog struct {
	mu       sync.RWMutex
	messages []Message
}

func NewMessageLog(initial ...Message) *MessageLog {
	l := &MessageLog{}
	l.messages = append(l.messages, initial...)
	return l
}

// Append adds messages in order
func (l *MessageLog) Append(msgs ...Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msgs...)
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Snapshot returns a copy of the log. The result is never nil.
func (l *MessageLog) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Tail returns a copy of the last n messages
func (l *MessageLog) Tail(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.messages) {
		n = len(l.messages)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Message, n)
	copy(out, l.messages[len(l.messages)-n:])
	return out
}

// Last returns the most recent message
func (l *MessageLog) Last() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Truncate drops every message before index keepFrom. Out of range values
// are clamped, so Truncate(Len()) empties the log.
func (l *MessageLog) Truncate(keepFrom int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if keepFrom <= 0 {
		return
	}
	if keepFrom > len(l.messages) {
		keepFrom = len(l.messages)
	}
	kept := make([]Message, len(l.messages)-keepFrom)
	copy(kept, l.messages[keepFrom:])
	l.messages = kept
}

// KeepLast truncates the log to its last n messages
func (l *MessageLog) KeepLast(n int) {
	l.Truncate(l.Len() - n)
}
