package chat

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"devcrew/internal/logging"
)

// Strategy names a built-in speaker selection method
type Strategy string

const (
	StrategyAuto       Strategy = "auto"
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRandom     Strategy = "random"
	StrategyManual     Strategy = "manual"
)

// ParseStrategy accepts the method names used in configuration
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyAuto, "":
		return StrategyAuto, nil
	case StrategyRoundRobin, "round-robin":
		return StrategyRoundRobin, nil
	case StrategyRandom:
		return StrategyRandom, nil
	case StrategyManual:
		return StrategyManual, nil
	}
	return "", fmt.Errorf("unknown speaker selection method '%s'", s)
}

// ChatState is the read-only view handed to a selector
type ChatState struct {
	// Messages is a snapshot of the log taken before selection
	Messages    []Message
	Agents      []Agent
	LastSpeaker Agent
	Round       int
	MaxRounds   int
	// Eligible is the candidate pool left after pre-filtering
	Eligible []Agent
}

// Selection is the outcome of a selection step. A custom function either
// names an Agent with the exact Messages it should see, defers to a
// built-in Strategy, or returns the zero Selection to end the chat.
type Selection struct {
	Agent    Agent
	Messages []Message
	Strategy Strategy
	// ClearLog truncates the shared log before the selected agent replies
	ClearLog bool
}

// SelectFunc is a deterministic speaker selection function
type SelectFunc func(ctx context.Context, last Agent, state *ChatState) (Selection, error)

// Asker is the blocking human input boundary
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// AskFunc adapts a function to Asker
type AskFunc func(ctx context.Context, question string) (string, error)

func (f AskFunc) Ask(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// RepeatPolicy controls whether the last speaker may be selected again
type RepeatPolicy struct {
	Disallow bool
	// Exclude lists agents that may not speak twice in a row even when
	// repeats are otherwise allowed
	Exclude []string
}

func (p RepeatPolicy) allows(name string) bool {
	return !p.Disallow && !slices.Contains(p.Exclude, name)
}

// SelectorOptions configures a Selector
type SelectorOptions struct {
	Agents []Agent
	Method Strategy
	Custom SelectFunc
	Graph  TransitionGraph
	Repeat RepeatPolicy

	// MaxRetries bounds auto selection requeries
	MaxRetries int
	// Complete asks the selection model for a candidate name; required for auto
	Complete CompletionFunc
	// SelectMessage is the selection system message template ({roles}, {agentlist}, {plan})
	SelectMessage string
	// SelectPrompt seeds the exchange instead of the conversation tail when set
	SelectPrompt string
	Plan         string

	// Asker is required for manual selection
	Asker Asker
	// Intn overrides the random source of the random strategy
	Intn func(n int) int
	// VisibleTail limits what built-in strategies hand the speaker to the
	// first message plus the last VisibleTail messages; zero means the full log
	VisibleTail int

	Logger hclog.Logger
}

// Selector decides who speaks next and what they see
type Selector struct {
	agents        []Agent
	method        Strategy
	custom        SelectFunc
	graph         TransitionGraph
	repeat        RepeatPolicy
	maxRetries    int
	complete      CompletionFunc
	selectMessage string
	selectPrompt  string
	plan          string
	asker         Asker
	intn          func(n int) int
	visibleTail   int
	logger        hclog.Logger
}

// manualAttempts is how many invalid answers manual selection tolerates
const manualAttempts = 3

func NewSelector(opts SelectorOptions) (*Selector, error) {
	if len(opts.Agents) < 2 {
		return nil, fmt.Errorf("%w (got %d)", ErrTooFewAgents, len(opts.Agents))
	}
	seen := make(map[string]bool)
	for _, a := range opts.Agents {
		if seen[a.Name()] {
			return nil, fmt.Errorf("duplicate agent name '%s'", a.Name())
		}
		seen[a.Name()] = true
	}
	if err := opts.Graph.Validate(opts.Agents); err != nil {
		return nil, err
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative (got %d)", opts.MaxRetries)
	}

	s := &Selector{
		agents:        opts.Agents,
		method:        opts.Method,
		custom:        opts.Custom,
		graph:         opts.Graph,
		repeat:        opts.Repeat,
		maxRetries:    opts.MaxRetries,
		complete:      opts.Complete,
		selectMessage: opts.SelectMessage,
		selectPrompt:  opts.SelectPrompt,
		plan:          opts.Plan,
		asker:         opts.Asker,
		intn:          opts.Intn,
		visibleTail:   opts.VisibleTail,
		logger:        logging.OrNull(opts.Logger),
	}
	if s.method == "" {
		s.method = StrategyAuto
	}
	if s.selectMessage == "" {
		s.selectMessage = DefaultSelectMessage
	}
	if s.intn == nil {
		s.intn = rand.IntN
	}
	if err := s.checkStrategy(s.method); err != nil && s.custom == nil {
		return nil, err
	}
	return s, nil
}

// Custom reports whether a deterministic function controls selection
func (s *Selector) Custom() bool {
	return s.custom != nil
}

func (s *Selector) checkStrategy(method Strategy) error {
	switch method {
	case StrategyAuto:
		if s.complete == nil {
			return fmt.Errorf("auto speaker selection requires a selection model")
		}
	case StrategyManual:
		if s.asker == nil {
			return fmt.Errorf("manual speaker selection requires an input handler")
		}
	case StrategyRoundRobin, StrategyRandom:
	default:
		return fmt.Errorf("unknown speaker selection method '%s'", method)
	}
	return nil
}

// Select returns the next speaker and the messages it should see.
// ErrNoEligibleSpeaker means the chat should end.
func (s *Selector) Select(ctx context.Context, last Agent, state *ChatState) (Selection, error) {
	candidates, single, err := s.eligible(last, state.Messages)
	if err != nil {
		return Selection{}, err
	}
	state.Eligible = candidates
	if single {
		s.logger.Debug("single eligible speaker", "speaker", candidates[0].Name())
		return Selection{Agent: candidates[0], Messages: s.visible(state.Messages)}, nil
	}

	method := s.method
	if s.custom != nil {
		sel, err := s.custom(ctx, last, state)
		if err != nil {
			return Selection{}, err
		}
		if sel.Strategy == "" {
			return s.checkSelection(sel)
		}
		method = sel.Strategy
		if err := s.checkStrategy(method); err != nil {
			return Selection{}, err
		}
	}

	var next Agent
	switch method {
	case StrategyRoundRobin:
		next = s.nextAgent(last, candidates)
	case StrategyRandom:
		next = candidates[s.intn(len(candidates))]
	case StrategyManual:
		next, err = s.manualSelect(ctx, last, candidates)
	default:
		next, err = s.autoSelect(ctx, last, state.Messages, candidates)
	}
	if err != nil {
		return Selection{}, err
	}
	return Selection{Agent: next, Messages: s.visible(state.Messages)}, nil
}

func (s *Selector) checkSelection(sel Selection) (Selection, error) {
	if sel.Agent == nil {
		return Selection{}, ErrNoEligibleSpeaker
	}
	if !isParticipant(s.agents, sel.Agent) {
		return Selection{}, fmt.Errorf("%w: '%s'", ErrUnknownAgent, sel.Agent.Name())
	}
	if sel.Messages == nil {
		return Selection{}, fmt.Errorf("%w: '%s'", ErrMissingMessages, sel.Agent.Name())
	}
	return sel, nil
}

// eligible applies the repeat policy, the transition graph and pending
// tool call filtering in that order. single reports a short-circuit.
func (s *Selector) eligible(last Agent, messages []Message) ([]Agent, bool, error) {
	candidates := slices.Clone(s.agents)
	if last != nil && !s.repeat.allows(last.Name()) {
		candidates = slices.DeleteFunc(candidates, func(a Agent) bool { return a.Name() == last.Name() })
	}

	if last != nil && len(s.graph) > 0 {
		allowed, err := s.graph.Allowed(last.Name(), candidates)
		if err != nil {
			return nil, false, err
		}
		candidates = allowed
	}

	if n := len(messages); n > 0 && messages[n-1].ToolCall != nil {
		fn := messages[n-1].ToolCall.Name
		var capable []Agent
		for _, a := range candidates {
			if a.Capabilities().CanCall(fn) {
				capable = append(capable, a)
			}
		}
		if len(capable) == 0 {
			return nil, false, fmt.Errorf("%w: '%s'", ErrNoCapableAgent, fn)
		}
		candidates = capable
	}

	if len(candidates) == 0 {
		return nil, false, ErrNoEligibleSpeaker
	}
	return candidates, len(candidates) == 1, nil
}

// nextAgent returns the first candidate after last in roster order
func (s *Selector) nextAgent(last Agent, candidates []Agent) Agent {
	start := 0
	if last != nil {
		if i := slices.IndexFunc(s.agents, func(a Agent) bool { return a.Name() == last.Name() }); i >= 0 {
			start = i + 1
		}
	}
	for i := range s.agents {
		a := s.agents[(start+i)%len(s.agents)]
		if isParticipant(candidates, a) {
			return a
		}
	}
	return candidates[0]
}

func (s *Selector) visible(messages []Message) []Message {
	if s.visibleTail <= 0 || len(messages) <= s.visibleTail+1 {
		return slices.Clone(messages)
	}
	out := []Message{messages[0]}
	return append(out, messages[len(messages)-s.visibleTail:]...)
}

func (s *Selector) manualSelect(ctx context.Context, last Agent, candidates []Agent) (Agent, error) {
	var b strings.Builder
	b.WriteString("Please select the next speaker from the following list:\n")
	for i, a := range candidates {
		fmt.Fprintf(&b, "%d: %s\n", i+1, a.Name())
	}
	b.WriteString("Enter the number or name of the next speaker (press enter to skip): ")
	question := b.String()

	for attempt := 1; attempt <= manualAttempts; attempt++ {
		answer, err := s.asker.Ask(ctx, question)
		if err != nil {
			return nil, err
		}
		answer = strings.TrimSpace(answer)
		if answer == "" || strings.EqualFold(answer, "q") {
			break
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(candidates) {
			return candidates[n-1], nil
		}
		for _, a := range candidates {
			if strings.EqualFold(a.Name(), answer) {
				return a, nil
			}
		}
		s.logger.Debug("invalid manual selection", "answer", answer, "attempt", attempt)
	}
	return s.nextAgent(last, candidates), nil
}
