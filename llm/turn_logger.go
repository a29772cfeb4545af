package llm

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

const contentPreviewMaxLen = 200

// TurnLogger writes a snapshot of every request sent to a model as one JSONL line.
type TurnLogger struct {
	mu        sync.Mutex
	file      *os.File
	turnCount int
}

// NewTurnLogger creates a turn logger that writes to the given file path.
func NewTurnLogger(filename string) (*TurnLogger, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &TurnLogger{file: f}, nil
}

// Close closes the underlying file.
func (tl *TurnLogger) Close() {
	if tl.file != nil {
		tl.file.Close()
	}
}

type turnSnapshot struct {
	Turn         int               `json:"turn"`
	Timestamp    string            `json:"timestamp"`
	Action       string            `json:"action,omitempty"`
	MessageCount int               `json:"message_count"`
	Messages     []messageSnapshot `json:"messages"`
}

type messageSnapshot struct {
	Index          int    `json:"index"`
	Role           string `json:"role"`
	ContentPreview string `json:"content_preview,omitempty"`
	ContentLength  int    `json:"content_length"`
}

// LogTurn snapshots the message list and writes one JSONL line.
func (tl *TurnLogger) LogTurn(action string, messages []Message) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.turnCount++

	snap := turnSnapshot{
		Turn:         tl.turnCount,
		Timestamp:    time.Now().Format(time.RFC3339Nano),
		Action:       action,
		MessageCount: len(messages),
		Messages:     make([]messageSnapshot, len(messages)),
	}
	for i, msg := range messages {
		ms := messageSnapshot{
			Index:         i,
			Role:          string(msg.Role),
			ContentLength: len(msg.Content),
		}
		if len(msg.Content) > contentPreviewMaxLen {
			ms.ContentPreview = msg.Content[:contentPreviewMaxLen] + "..."
		} else {
			ms.ContentPreview = msg.Content
		}
		snap.Messages[i] = ms
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	tl.file.Write(append(data, '\n'))
}
