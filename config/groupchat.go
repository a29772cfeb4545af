package config

import (
	"fmt"
	"slices"

	"devcrew/chat"
)

// Transition lists the agents allowed to speak after From
type Transition struct {
	From string   `hcl:"from,label"`
	To   []string `hcl:"to"`
}

// GroupChat configures one multi-agent conversation
type GroupChat struct {
	Name        string   `hcl:"name,label"`
	Description string   `hcl:"description,optional"`
	Agents      []string `hcl:"agents"`
	MaxRound    int      `hcl:"max_round,optional"`

	// Speaker selection
	SpeakerSelection   string   `hcl:"speaker_selection,optional"`
	MaxRetries         int      `hcl:"max_retries,optional"`
	AllowRepeatSpeaker *bool    `hcl:"allow_repeat_speaker,optional"`
	NoRepeat           []string `hcl:"no_repeat,optional"`
	SelectorModel      string   `hcl:"selector_model,optional"`
	SelectMessage      string   `hcl:"select_message,optional"`
	SelectPrompt       string   `hcl:"select_prompt,optional"`
	Plan               string   `hcl:"plan,optional"`
	VisibleTail        int      `hcl:"visible_tail,optional"`

	Transitions []Transition `hcl:"transition,block"`

	Admin              string `hcl:"admin,optional"`
	SendIntroductions  bool   `hcl:"send_introductions,optional"`
	EnableClearHistory bool   `hcl:"enable_clear_history,optional"`
	ClearHistoryKeep   int    `hcl:"clear_history_keep,optional"`
	TerminationMarker  string `hcl:"termination_marker,optional"`
	Async              bool   `hcl:"async,optional"`
}

// Strategy returns the parsed selection method (default auto)
func (g *GroupChat) Strategy() (chat.Strategy, error) {
	if g.SpeakerSelection == "" {
		return chat.StrategyAuto, nil
	}
	return chat.ParseStrategy(g.SpeakerSelection)
}

// MaxRounds returns the configured round limit or the runner default
func (g *GroupChat) MaxRounds() int {
	if g.MaxRound == 0 {
		return chat.DefaultMaxRounds
	}
	return g.MaxRound
}

// Graph builds the transition graph, or nil when no transitions are declared
func (g *GroupChat) Graph() chat.TransitionGraph {
	if len(g.Transitions) == 0 {
		return nil
	}
	graph := make(chat.TransitionGraph, len(g.Transitions))
	for _, t := range g.Transitions {
		graph[t.From] = append(graph[t.From], t.To...)
	}
	return graph
}

// RepeatPolicy converts the repeat settings for the selector
func (g *GroupChat) RepeatPolicy() chat.RepeatPolicy {
	return chat.RepeatPolicy{
		Disallow: g.AllowRepeatSpeaker != nil && !*g.AllowRepeatSpeaker,
		Exclude:  g.NoRepeat,
	}
}

func (g *GroupChat) Validate(models []Model, agents []Agent) error {
	if len(g.Agents) < 2 {
		return fmt.Errorf("at least 2 agents are required, got %d", len(g.Agents))
	}

	known := make(map[string]bool, len(agents))
	for _, a := range agents {
		known[a.Name] = true
	}
	seen := make(map[string]bool, len(g.Agents))
	for _, name := range g.Agents {
		if !known[name] {
			return fmt.Errorf("unknown agent '%s'", name)
		}
		if seen[name] {
			return fmt.Errorf("agent '%s' listed twice", name)
		}
		seen[name] = true
	}

	strategy, err := g.Strategy()
	if err != nil {
		return err
	}
	if strategy == chat.StrategyAuto {
		if g.SelectorModel == "" {
			return fmt.Errorf("speaker_selection 'auto' requires 'selector_model'")
		}
		if _, _, err := ResolveModel(models, g.SelectorModel); err != nil {
			return fmt.Errorf("selector_model: %w", err)
		}
	}

	if g.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", g.MaxRetries)
	}
	if g.MaxRound < 0 {
		return fmt.Errorf("max_round must not be negative, got %d", g.MaxRound)
	}
	if g.ClearHistoryKeep < 0 {
		return fmt.Errorf("clear_history_keep must not be negative, got %d", g.ClearHistoryKeep)
	}
	if g.VisibleTail < 0 {
		return fmt.Errorf("visible_tail must not be negative, got %d", g.VisibleTail)
	}

	for _, name := range g.NoRepeat {
		if !seen[name] {
			return fmt.Errorf("no_repeat agent '%s' is not a participant", name)
		}
	}
	if g.Admin != "" && !seen[g.Admin] {
		return fmt.Errorf("admin '%s' is not a participant", g.Admin)
	}

	for _, t := range g.Transitions {
		if !seen[t.From] {
			return fmt.Errorf("transition from unknown agent '%s'", t.From)
		}
		if len(t.To) == 0 {
			return fmt.Errorf("transition from '%s' has no targets", t.From)
		}
		for _, to := range t.To {
			if !slices.Contains(g.Agents, to) {
				return fmt.Errorf("transition from '%s' to unknown agent '%s'", t.From, to)
			}
		}
	}
	return nil
}
