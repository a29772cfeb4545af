package chat

import (
	"context"
	"fmt"
	"slices"

	"devcrew/llm"
)

// Kind is the closed set of participant variants
type Kind int

const (
	// KindHumanProxy stands in for the operator: it executes tools and
	// command batches instead of calling a model
	KindHumanProxy Kind = iota
	// KindModel replies through a language model
	KindModel
	// KindSystem injects fixed messages, such as the chat initializer
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindHumanProxy:
		return "human_proxy"
	case KindModel:
		return "model"
	case KindSystem:
		return "system"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a configuration name to a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "human_proxy", "proxy":
		return KindHumanProxy, nil
	case "model", "assistant":
		return KindModel, nil
	case "system":
		return KindSystem, nil
	}
	return 0, fmt.Errorf("unknown agent kind '%s'", s)
}

// Capabilities are the explicit flags the selector and runner consult
// instead of inspecting concrete agent types
type Capabilities struct {
	// CanExecute marks agents that run tool calls and command batches
	CanExecute bool
	// HasModel marks agents whose replies come from a language model
	HasModel bool
	// Tools lists the function names this agent can execute
	Tools []string
}

// CanCall reports whether the agent can execute the named function
func (c Capabilities) CanCall(name string) bool {
	return c.CanExecute && slices.Contains(c.Tools, name)
}

// Agent is a group chat participant
type Agent interface {
	Name() string
	Description() string
	Kind() Kind
	Capabilities() Capabilities

	// Receive delivers a broadcast message without requesting a reply
	Receive(ctx context.Context, msg Message) error

	// Generate produces a reply to exactly msgs. A nil message with a nil
	// error means the agent has nothing to say and ends the chat.
	Generate(ctx context.Context, msgs []Message) (*Message, error)
}

// CacheBinder is implemented by agents whose model responses can be served
// from a shared cache for the duration of one run
type CacheBinder interface {
	// SetCache installs c and returns the previously installed cache
	SetCache(c llm.Cache) llm.Cache
}

// MemoryClearer is implemented by agents that keep received messages
type MemoryClearer interface {
	// ClearMemory keeps only the last keep received messages
	ClearMemory(keep int)
}

func agentNames(agents []Agent) []string {
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name())
	}
	return names
}

func findAgent(agents []Agent, name string) Agent {
	for _, a := range agents {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func isParticipant(agents []Agent, a Agent) bool {
	return a != nil && findAgent(agents, a.Name()) != nil
}
