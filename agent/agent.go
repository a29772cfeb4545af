package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"devcrew/agent/internal/prompts"
	"devcrew/aitools"
	"devcrew/chat"
	"devcrew/command"
	"devcrew/internal/logging"
	"devcrew/llm"
	"devcrew/streamers"
)

// ErrNoMessages is returned when an agent is asked to reply to nothing
var ErrNoMessages = errors.New("no messages to reply to")

// ModelOptions configures a ModelAgent
type ModelOptions struct {
	Name        string
	Description string
	// SystemPrompt is added after the participant introduction
	SystemPrompt string
	Session      *llm.Session
	// Tools are executed by another participant; the agent only requests them
	Tools   []aitools.Tool
	Stream  bool
	Handler streamers.ChatHandler
	Events  EventLogger
	Logger  hclog.Logger
}

// ModelAgent is a participant whose replies come from a language model
type ModelAgent struct {
	name        string
	description string
	session     *llm.Session
	tools       []aitools.Tool
	stream      bool
	handler     streamers.ChatHandler
	events      EventLogger
	logger      hclog.Logger

	mu     sync.Mutex
	memory []chat.Message
}

// NewModelAgent creates a model agent. The session's system prompts are
// extended with the participant introduction and, when tools are given,
// the tool-call format.
func NewModelAgent(opts ModelOptions) (*ModelAgent, error) {
	if opts.Name == "" {
		return nil, errors.New("agent name is required")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("agent '%s': session is required", opts.Name)
	}

	opts.Session.AddSystemPrompt(prompts.Participant(opts.Name, opts.Description))
	if opts.SystemPrompt != "" {
		opts.Session.AddSystemPrompt(opts.SystemPrompt)
	}
	if len(opts.Tools) > 0 {
		opts.Session.AddSystemPrompt(prompts.Tools(opts.Tools))
		opts.Session.SetStopSequences([]string{StopSequence})
	}

	a := &ModelAgent{
		name:        opts.Name,
		description: opts.Description,
		session:     opts.Session,
		tools:       opts.Tools,
		stream:      opts.Stream,
		handler:     opts.Handler,
		events:      withAgent(opts.Events, opts.Name),
		logger:      logging.OrNull(opts.Logger),
	}
	if a.handler == nil {
		a.handler = streamers.Nop{}
	}
	return a, nil
}

func (a *ModelAgent) Name() string        { return a.name }
func (a *ModelAgent) Description() string { return a.description }
func (a *ModelAgent) Kind() chat.Kind     { return chat.KindModel }

func (a *ModelAgent) Capabilities() chat.Capabilities {
	return chat.Capabilities{HasModel: true}
}

// Receive records a broadcast message
func (a *ModelAgent) Receive(_ context.Context, msg chat.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memory = append(a.memory, msg)
	return nil
}

// ClearMemory keeps only the last keep received messages
func (a *ModelAgent) ClearMemory(keep int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if keep <= 0 {
		a.memory = nil
		return
	}
	if len(a.memory) > keep {
		a.memory = append([]chat.Message(nil), a.memory[len(a.memory)-keep:]...)
	}
}

// Memory returns a copy of the received messages
func (a *ModelAgent) Memory() []chat.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]chat.Message{}, a.memory...)
}

// SetCache installs c on the agent's session
func (a *ModelAgent) SetCache(c llm.Cache) llm.Cache {
	return a.session.SetCache(c)
}

// Close releases the session's log files
func (a *ModelAgent) Close() {
	a.session.Close()
}

// Generate replies to exactly msgs. Visible text is streamed to the chat
// handler; a tool request becomes the message's ToolCall and a command
// batch in the reply becomes its Payload.
func (a *ModelAgent) Generate(ctx context.Context, msgs []chat.Message) (*chat.Message, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("agent '%s': %w", a.name, ErrNoMessages)
	}

	history := healHistory(toHistory(msgs, a.name))
	parser := NewReplyParser(func(chunk string) {
		a.handler.PublishAnswerChunk(a.name, chunk)
	})

	var resp *llm.ChatResponse
	var err error
	if a.stream {
		resp, err = a.session.CompleteStream(ctx, history, func(chunk llm.StreamChunk) {
			parser.ProcessChunk(chunk.Content)
		})
	} else {
		resp, err = a.session.Complete(ctx, history)
		if err == nil {
			parser.ProcessChunk(resp.Content)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("agent '%s': %w", a.name, err)
	}
	parser.Finish()

	reply := &chat.Message{
		Role:     chat.RoleAssistant,
		Name:     a.name,
		Content:  strings.TrimSpace(resp.Content),
		ToolCall: parser.ToolCall(),
	}
	if reply.ToolCall != nil {
		a.events.LogEvent("tool_requested", map[string]any{
			"tool":      reply.ToolCall.Name,
			"arguments": reply.ToolCall.Arguments,
		})
	} else if batch, err := command.ParseReply(reply.Content); err == nil {
		reply.Payload = batch
		a.events.LogEvent("batch_proposed", map[string]any{"groups": len(batch.Groups)})
	}

	a.logger.Debug("generated reply", "agent", a.name, "cached", resp.Cached, "chars", len(reply.Content))
	a.events.LogEvent("reply", map[string]any{
		"visible":       len(msgs),
		"cached":        resp.Cached,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	})
	return reply, nil
}

// toHistory maps chat messages onto provider turns from self's point of
// view: self speaks as assistant, everyone else as a named user turn.
func toHistory(msgs []chat.Message, self string) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.Role == chat.RoleSystem:
			out = append(out, llm.NewTextMessage(llm.RoleSystem, m.Content))
		case m.Name == self:
			out = append(out, llm.NewTextMessage(llm.RoleAssistant, m.Content))
		case m.Name != "":
			out = append(out, llm.NewTextMessage(llm.RoleUser, fmt.Sprintf("%s: %s", m.Name, m.Content)))
		default:
			out = append(out, llm.NewTextMessage(llm.RoleUser, m.Content))
		}
	}
	return out
}

var (
	_ chat.Agent         = (*ModelAgent)(nil)
	_ chat.CacheBinder   = (*ModelAgent)(nil)
	_ chat.MemoryClearer = (*ModelAgent)(nil)
)
