package config

import (
	"fmt"
	"slices"

	"devcrew/chat"
)

const (
	ToolAskUser = "ask_user"
	ToolBash    = "bash"
)

// BuiltinTools are the tools agents can reference as tools.<name>
var BuiltinTools = []string{ToolAskUser, ToolBash}

// Agent is a group chat participant
type Agent struct {
	Name string `hcl:"name,label"`
	// Kind is one of model, human_proxy or system (default model)
	Kind         string   `hcl:"kind,optional"`
	Model        string   `hcl:"model,optional"`
	Description  string   `hcl:"description,optional"`
	SystemPrompt string   `hcl:"system_prompt,optional"`
	Tools        []string `hcl:"tools,optional"`

	// Content is the fixed reply of a system agent
	Content string `hcl:"content,optional"`

	Temperature *float64 `hcl:"temperature,optional"`
	MaxTokens   int      `hcl:"max_tokens,optional"`
	Stream      *bool    `hcl:"stream,optional"`
}

// AgentKind returns the parsed kind, defaulting to a model agent
func (a *Agent) AgentKind() (chat.Kind, error) {
	if a.Kind == "" {
		return chat.KindModel, nil
	}
	return chat.ParseKind(a.Kind)
}

// Streaming reports whether model replies are streamed (default true)
func (a *Agent) Streaming() bool {
	return a.Stream == nil || *a.Stream
}

func (a *Agent) Validate(models []Model) error {
	kind, err := a.AgentKind()
	if err != nil {
		return err
	}

	for _, t := range a.Tools {
		if !slices.Contains(BuiltinTools, t) {
			return fmt.Errorf("unknown tool '%s' (available: %v)", t, BuiltinTools)
		}
	}

	switch kind {
	case chat.KindModel:
		if a.Model == "" {
			return fmt.Errorf("model agents require 'model'")
		}
		if _, _, err := ResolveModel(models, a.Model); err != nil {
			return err
		}
	case chat.KindSystem:
		if a.Model != "" {
			return fmt.Errorf("system agents cannot set 'model'")
		}
		if len(a.Tools) > 0 {
			return fmt.Errorf("system agents cannot own tools")
		}
	case chat.KindHumanProxy:
		if a.Model != "" {
			return fmt.Errorf("human_proxy agents cannot set 'model'")
		}
	}

	if a.Temperature != nil && (*a.Temperature < 0 || *a.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", *a.Temperature)
	}
	if a.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", a.MaxTokens)
	}
	return nil
}
