package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"devcrew/internal/logging"
	"devcrew/llm"
	"devcrew/streamers"
)

// State is a run loop state
type State string

const (
	StateAwaitIntro  State = "await_intro"
	StateRunning     State = "running"
	StateTerminated  State = "terminated"
	StateExhausted   State = "exhausted"
	StateInterrupted State = "interrupted"
)

// DefaultMaxRounds bounds a chat when Config.MaxRounds is zero
const DefaultMaxRounds = 10

var clearHistoryMarker = regexp.MustCompile(`(?i)CLEAR HISTORY(?:[ \t]+(\d+))?`)

// Config configures a Runner
type Config struct {
	Name   string
	Agents []Agent
	// Selection configures the speaker selector; its Agents default to Agents
	Selection SelectorOptions
	MaxRounds int
	// IsTerminal defaults to MarkerTermination(DefaultMarker, DefaultMarkerLines)
	IsTerminal TerminationFunc
	// SendIntroductions broadcasts the participant list once before the first round
	SendIntroductions bool
	// EnableClearHistory honors "CLEAR HISTORY [n]" in replies
	EnableClearHistory bool
	// ClearHistoryKeep is how many messages a bare CLEAR HISTORY keeps
	ClearHistoryKeep int
	// Admin names the participant that takes over on interrupt
	Admin   string
	Handler streamers.ChatHandler
	Logger  hclog.Logger
}

// RunOptions are per-run arguments
type RunOptions struct {
	// Cache is installed on every CacheBinder participant for this run and
	// the previous caches are restored when Run returns
	Cache llm.Cache
	// Stepper defaults to SyncStepper without interrupts
	Stepper Stepper
}

// Result is the outcome of a run
type Result struct {
	State       State
	Rounds      int
	LastMessage Message
	Messages    []Message
}

// Runner drives a group chat: broadcast, select, generate, append
type Runner struct {
	name              string
	agents            []Agent
	selector          *Selector
	maxRounds         int
	isTerminal        TerminationFunc
	sendIntroductions bool
	clearHistory      bool
	clearHistoryKeep  int
	admin             string
	handler           streamers.ChatHandler
	logger            hclog.Logger
}

func NewRunner(cfg Config) (*Runner, error) {
	if len(cfg.Agents) < 2 {
		return nil, fmt.Errorf("%w (got %d)", ErrTooFewAgents, len(cfg.Agents))
	}
	if cfg.MaxRounds < 0 {
		return nil, fmt.Errorf("max rounds must not be negative (got %d)", cfg.MaxRounds)
	}
	opts := cfg.Selection
	if opts.Agents == nil {
		opts.Agents = cfg.Agents
	}
	if opts.Logger == nil {
		opts.Logger = cfg.Logger
	}
	selector, err := NewSelector(opts)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		name:              cfg.Name,
		agents:            cfg.Agents,
		selector:          selector,
		maxRounds:         cfg.MaxRounds,
		isTerminal:        cfg.IsTerminal,
		sendIntroductions: cfg.SendIntroductions,
		clearHistory:      cfg.EnableClearHistory,
		clearHistoryKeep:  cfg.ClearHistoryKeep,
		admin:             cfg.Admin,
		handler:           cfg.Handler,
		logger:            logging.OrNull(cfg.Logger),
	}
	if r.maxRounds == 0 {
		r.maxRounds = DefaultMaxRounds
	}
	if r.isTerminal == nil {
		r.isTerminal = MarkerTermination(DefaultMarker, DefaultMarkerLines)
	}
	if r.handler == nil {
		r.handler = streamers.Nop{}
	}
	return r, nil
}

// Agents returns the participants in roster order
func (r *Runner) Agents() []Agent {
	return r.agents
}

// Agent returns the participant with the given name, or nil
func (r *Runner) Agent(name string) Agent {
	return findAgent(r.agents, name)
}

// Run starts the chat with initial sent by sender. Rounds never exceed the
// configured maximum. A termination match, a nil reply or the absence of an
// eligible speaker end the chat as Terminated; running out of rounds ends it
// as Exhausted.
func (r *Runner) Run(ctx context.Context, sender Agent, initial Message, opts RunOptions) (*Result, error) {
	if sender == nil {
		return nil, errors.New("group chat requires a sender")
	}
	stepper := opts.Stepper
	if stepper == nil {
		stepper = SyncStepper{}
	}
	restore := r.bindCache(opts.Cache)
	defer restore()

	log := NewMessageLog()
	res := &Result{State: StateAwaitIntro}
	r.handler.ChatStarted(r.name, agentNames(r.agents))

	if r.sendIntroductions {
		intro := Message{Role: RoleSystem, Name: r.name, Content: r.introduction()}
		for _, a := range r.agents {
			if err := a.Receive(ctx, intro); err != nil {
				return r.finish(res, log, initial), fmt.Errorf("introducing '%s': %w", a.Name(), err)
			}
		}
	}
	res.State = StateRunning

	speaker := sender
	message := normalize(initial, sender)
	for round := 1; round <= r.maxRounds; round++ {
		res.Rounds = round
		log.Append(message)
		r.handler.MessageAppended(round, message.Name, string(message.Role), message.Content)

		if !r.selector.Custom() || round == 1 {
			if err := r.broadcast(ctx, speaker, message); err != nil {
				return r.finish(res, log, message), err
			}
		}

		if r.isTerminal(message) {
			res.State = StateTerminated
			break
		}
		if round == r.maxRounds {
			res.State = StateExhausted
			break
		}

		reply, next, err := r.turn(ctx, stepper, speaker, log, round)
		if errors.Is(err, ErrNoEligibleSpeaker) {
			r.logger.Debug("no eligible speaker", "round", round)
			res.State = StateTerminated
			break
		}
		if errors.Is(err, ErrInterrupted) {
			admin := r.Agent(r.admin)
			if admin == nil {
				res.State = StateInterrupted
				return r.finish(res, log, message), err
			}
			r.logger.Info("interrupted, handing over to admin", "admin", admin.Name())
			next = admin
			reply, err = admin.Generate(ctx, log.Snapshot())
		}
		if err != nil {
			if ctx.Err() != nil {
				res.State = StateInterrupted
			}
			r.handler.Error(err)
			return r.finish(res, log, message), err
		}
		if reply == nil {
			res.State = StateTerminated
			break
		}

		speaker = next
		message = normalize(*reply, speaker)
		if r.clearHistory && strings.Contains(strings.ToUpper(message.Content), "CLEAR HISTORY") {
			message.Content = r.clearAgentsHistory(log, message.Content)
		}
	}
	return r.finish(res, log, message), nil
}

// turn selects the next speaker and lets it reply, each as one step
func (r *Runner) turn(ctx context.Context, stepper Stepper, last Agent, log *MessageLog, round int) (*Message, Agent, error) {
	state := &ChatState{
		Messages:    log.Snapshot(),
		Agents:      r.agents,
		LastSpeaker: last,
		Round:       round,
		MaxRounds:   r.maxRounds,
	}

	var sel Selection
	err := stepper.Step(ctx, func(ctx context.Context) error {
		var err error
		sel, err = r.selector.Select(ctx, last, state)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if sel.ClearLog {
		log.Truncate(log.Len())
	}

	speaker := sel.Agent
	r.handler.SpeakerSelected(round, speaker.Name(), len(sel.Messages))
	r.handler.AgentThinking(speaker.Name())

	var reply *Message
	err = stepper.Step(ctx, func(ctx context.Context) error {
		var err error
		reply, err = speaker.Generate(ctx, sel.Messages)
		return err
	})
	if err != nil {
		return nil, speaker, err
	}
	return reply, speaker, nil
}

func (r *Runner) broadcast(ctx context.Context, speaker Agent, msg Message) error {
	for _, a := range r.agents {
		if speaker != nil && a.Name() == speaker.Name() {
			continue
		}
		if err := a.Receive(ctx, msg); err != nil {
			return fmt.Errorf("broadcast to '%s': %w", a.Name(), err)
		}
	}
	return nil
}

// clearAgentsHistory truncates the log and agent memories and returns the
// reply content with the marker removed
func (r *Runner) clearAgentsHistory(log *MessageLog, content string) string {
	keep := r.clearHistoryKeep
	if m := clearHistoryMarker.FindStringSubmatch(content); m != nil && m[1] != "" {
		if n, err := strconv.Atoi(m[1]); err == nil {
			keep = n
		}
	}
	log.KeepLast(keep)
	for _, a := range r.agents {
		if c, ok := a.(MemoryClearer); ok {
			c.ClearMemory(keep)
		}
	}
	r.handler.HistoryCleared(keep)
	r.logger.Debug("history cleared", "kept", keep)
	return strings.TrimSpace(clearHistoryMarker.ReplaceAllString(content, ""))
}

func (r *Runner) introduction() string {
	return "Hello everyone. We have assembled a team to work on this task. In attendance are:\n\n" +
		participantRoles(r.agents)
}

func (r *Runner) bindCache(cache llm.Cache) func() {
	if cache == nil {
		return func() {}
	}
	type binding struct {
		binder CacheBinder
		prev   llm.Cache
	}
	var bound []binding
	for _, a := range r.agents {
		if b, ok := a.(CacheBinder); ok {
			bound = append(bound, binding{binder: b, prev: b.SetCache(cache)})
		}
	}
	return func() {
		for _, b := range bound {
			b.binder.SetCache(b.prev)
		}
	}
}

func (r *Runner) finish(res *Result, log *MessageLog, last Message) *Result {
	res.LastMessage = last
	res.Messages = log.Snapshot()
	r.handler.ChatFinished(string(res.State), res.Rounds)
	return res
}

func normalize(msg Message, speaker Agent) Message {
	if msg.Name == "" && speaker != nil {
		msg.Name = speaker.Name()
	}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	return msg
}
