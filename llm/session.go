package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session binds a provider and model to a fixed set of system prompts. The
// conversation itself is supplied on every call, so one Session can serve a
// group-chat agent whose visible history changes from turn to turn.
type Session struct {
	provider      Provider
	model         string
	systemPrompts []string
	stopSequences []string
	temperature   float64
	maxTokens     int
	cache         Cache
	debugFile     *os.File
	turnLogger    *TurnLogger
}

func NewSession(provider Provider, model string, systemPrompts ...string) *Session {
	return &Session{
		provider:      provider,
		model:         model,
		systemPrompts: systemPrompts,
	}
}

// EnableDebug opens a debug file for logging all requests and responses
func (s *Session) EnableDebug(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	s.debugFile = f
	for i, prompt := range s.systemPrompts {
		s.logMessage(fmt.Sprintf("System Prompt %d", i+1), prompt)
	}
	return nil
}

// EnableTurnLog records a JSONL snapshot of every request
func (s *Session) EnableTurnLog(filename string) error {
	tl, err := NewTurnLogger(filename)
	if err != nil {
		return err
	}
	s.turnLogger = tl
	return nil
}

// Close closes any open resources
func (s *Session) Close() {
	if s.debugFile != nil {
		s.debugFile.Close()
	}
	if s.turnLogger != nil {
		s.turnLogger.Close()
	}
}

func (s *Session) logMessage(label string, content string) {
	if s.debugFile == nil {
		return
	}
	timestamp := time.Now().Format(time.RFC3339)
	fmt.Fprintf(s.debugFile, "[%s] === %s ===\n%s\n\n", timestamp, label, content)
}

func (s *Session) AddSystemPrompt(prompt string) {
	s.systemPrompts = append(s.systemPrompts, prompt)
	s.logMessage(fmt.Sprintf("System Prompt %d", len(s.systemPrompts)), prompt)
}

func (s *Session) SetStopSequences(sequences []string) {
	s.stopSequences = sequences
}

func (s *Session) SetTemperature(t float64) {
	s.temperature = t
}

func (s *Session) SetMaxTokens(n int) {
	s.maxTokens = n
}

// Model returns the provider-specific model name
func (s *Session) Model() string {
	return s.model
}

// SystemPrompts returns the session's system prompts
func (s *Session) SystemPrompts() []string {
	return s.systemPrompts
}

// SetCache installs c as the response cache and returns the previous one.
// A nil cache disables caching.
func (s *Session) SetCache(c Cache) Cache {
	prev := s.cache
	s.cache = c
	return prev
}

// Cache returns the current response cache, if any
func (s *Session) Cache() Cache {
	return s.cache
}

func (s *Session) buildRequest(history []Message) *ChatRequest {
	msgs := make([]Message, 0, len(s.systemPrompts)+len(history))
	for _, sp := range s.systemPrompts {
		msgs = append(msgs, Message{Role: RoleSystem, Content: sp})
	}
	msgs = append(msgs, history...)

	return &ChatRequest{
		Model:         s.model,
		Messages:      msgs,
		MaxTokens:     s.maxTokens,
		Temperature:   s.temperature,
		StopSequences: s.stopSequences,
	}
}

func (s *Session) lookup(req *ChatRequest) (string, *ChatResponse) {
	if s.cache == nil {
		return "", nil
	}
	key := CacheKey(req)
	if resp, ok := s.cache.Get(key); ok {
		resp.Cached = true
		return key, resp
	}
	return key, nil
}

func (s *Session) store(key string, resp *ChatResponse) {
	if s.cache == nil || key == "" {
		return
	}
	if err := s.cache.Set(key, resp); err != nil {
		s.logMessage("Cache Error", err.Error())
	}
}

// Complete sends the system prompts followed by history and returns the reply
func (s *Session) Complete(ctx context.Context, history []Message) (*ChatResponse, error) {
	req := s.buildRequest(history)
	if s.turnLogger != nil {
		s.turnLogger.LogTurn("complete", req.Messages)
	}

	key, cached := s.lookup(req)
	if cached != nil {
		s.logMessage("Cached Response", cached.Content)
		return cached, nil
	}

	resp, err := s.provider.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logMessage("LLM Response", resp.Content)
	s.store(key, resp)
	return resp, nil
}

// CompleteStream is Complete with incremental delivery of the reply
func (s *Session) CompleteStream(ctx context.Context, history []Message, onChunk func(StreamChunk)) (*ChatResponse, error) {
	req := s.buildRequest(history)
	if s.turnLogger != nil {
		s.turnLogger.LogTurn("stream", req.Messages)
	}

	key, cached := s.lookup(req)
	if cached != nil {
		if onChunk != nil {
			onChunk(StreamChunk{Content: cached.Content})
			onChunk(StreamChunk{Done: true, Usage: &cached.Usage})
		}
		return cached, nil
	}

	stream, err := s.provider.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	var last StreamChunk
	for chunk := range stream {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		content.WriteString(chunk.Content)
		if onChunk != nil {
			onChunk(chunk)
		}
		last = chunk
	}

	resp := &ChatResponse{
		ID:      uuid.New().String(),
		Content: content.String(),
	}
	if last.Usage != nil {
		resp.Usage = *last.Usage
	}
	s.logMessage("LLM Response", resp.Content)
	s.store(key, resp)
	return resp, nil
}
