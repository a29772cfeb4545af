package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"devcrew/aitools"
	"devcrew/chat"
	"devcrew/command"
	"devcrew/config"
	"devcrew/internal/logging"
	"devcrew/llm"
	"devcrew/recovery"
	"devcrew/streamers"
)

// Providers creates at most one provider per model block and closes the
// ones that hold connections
type Providers struct {
	cfg     *config.Config
	byName  map[string]llm.Provider
	closers []func()
}

func NewProviders(cfg *config.Config) *Providers {
	return &Providers{cfg: cfg, byName: make(map[string]llm.Provider)}
}

// Session resolves modelKey and returns a fresh session on its provider
func (p *Providers) Session(ctx context.Context, modelKey string, systemPrompts ...string) (*llm.Session, error) {
	modelConfig, actualModelName, err := p.cfg.ResolveModel(modelKey)
	if err != nil {
		return nil, fmt.Errorf("resolving model: %w", err)
	}
	if modelConfig.APIKey == "" {
		return nil, fmt.Errorf("API key not set for model '%s'", modelConfig.Name)
	}

	provider, ok := p.byName[modelConfig.Name]
	if !ok {
		var owns bool
		provider, owns, err = createProvider(ctx, modelConfig)
		if err != nil {
			return nil, fmt.Errorf("creating provider: %w", err)
		}
		p.byName[modelConfig.Name] = provider
		if owns {
			if closer, ok := provider.(interface{ Close() error }); ok {
				p.closers = append(p.closers, func() { closer.Close() })
			}
		}
	}
	return llm.NewSession(provider, actualModelName, systemPrompts...), nil
}

// Close closes every provider that needs it
func (p *Providers) Close() {
	for _, c := range p.closers {
		c()
	}
	p.closers = nil
}

// createProvider creates the appropriate LLM provider based on config
func createProvider(ctx context.Context, modelConfig *config.Model) (llm.Provider, bool, error) {
	switch modelConfig.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIProvider(modelConfig.APIKey), false, nil
	case config.ProviderAnthropic:
		return llm.NewAnthropicProvider(modelConfig.APIKey), false, nil
	case config.ProviderGemini:
		provider, err := llm.NewGeminiProvider(ctx, modelConfig.APIKey)
		if err != nil {
			return nil, false, err
		}
		return provider, true, nil // Gemini provider needs to be closed
	default:
		return nil, false, fmt.Errorf("unknown provider: %s", modelConfig.Provider)
	}
}

// BuildTools instantiates the named built-in tools
func BuildTools(names []string, input streamers.InputHandler, dir string) ([]aitools.Tool, error) {
	tools := make([]aitools.Tool, 0, len(names))
	for _, name := range names {
		switch name {
		case config.ToolAskUser:
			if input == nil {
				return nil, fmt.Errorf("tool '%s' requires an input handler", name)
			}
			tools = append(tools, aitools.NewAskUserTool(input))
		case config.ToolBash:
			tools = append(tools, aitools.NewBashTool(dir))
		default:
			return nil, fmt.Errorf("unknown tool '%s'", name)
		}
	}
	return tools, nil
}

// requestOnly backs tools that are listed in a prompt but never called
type requestOnly struct{}

func (requestOnly) Ask(string) (string, error) {
	return "", errors.New("tool is executed by another participant")
}

func (requestOnly) Confirm(string) (bool, error) {
	return false, errors.New("tool is executed by another participant")
}

// BuildOptions carries the runtime collaborators shared by all agents
type BuildOptions struct {
	Config    *config.Config
	Providers *Providers
	Handler   streamers.ChatHandler
	Input     streamers.InputHandler
	Executor  *command.Executor
	Mode      command.Mode
	Recovery  *recovery.Engine
	Events    EventLogger
	// TurnLogDir enables a JSONL turn log per model agent
	TurnLogDir string
	Logger     hclog.Logger
}

// Crew is the set of agents built for one chat
type Crew struct {
	Agents []chat.Agent
	closed []func()
}

// Close releases the agents' sessions
func (c *Crew) Close() {
	for _, f := range c.closed {
		f()
	}
	c.closed = nil
}

// BuildAgent creates the configured agent named name
func BuildAgent(ctx context.Context, name string, opts BuildOptions) (chat.Agent, error) {
	agentCfg, err := opts.Config.GetAgent(name)
	if err != nil {
		return nil, err
	}
	kind, err := agentCfg.AgentKind()
	if err != nil {
		return nil, fmt.Errorf("agent '%s': %w", name, err)
	}

	dir := "."
	if opts.Executor != nil {
		dir = opts.Executor.WorkDir()
	}
	input := opts.Input
	if kind == chat.KindModel {
		// Model agents only describe their tools; a proxy executes them
		input = requestOnly{}
	}
	tools, err := BuildTools(agentCfg.Tools, input, dir)
	if err != nil {
		return nil, fmt.Errorf("agent '%s': %w", name, err)
	}

	switch kind {
	case chat.KindSystem:
		return NewSystemAgent(agentCfg.Name, agentCfg.Description, agentCfg.Content), nil

	case chat.KindHumanProxy:
		var asker chat.Asker
		if opts.Input != nil {
			asker = InputAsker(opts.Input)
		}
		return NewProxyAgent(ProxyOptions{
			Name:        agentCfg.Name,
			Description: agentCfg.Description,
			Tools:       tools,
			Executor:    opts.Executor,
			Mode:        opts.Mode,
			Recovery:    opts.Recovery,
			Asker:       asker,
			Events:      opts.Events,
			Logger:      opts.Logger,
		})

	default:
		session, err := opts.Providers.Session(ctx, agentCfg.Model)
		if err != nil {
			return nil, fmt.Errorf("agent '%s': %w", name, err)
		}
		if agentCfg.Temperature != nil {
			session.SetTemperature(*agentCfg.Temperature)
		}
		if agentCfg.MaxTokens > 0 {
			session.SetMaxTokens(agentCfg.MaxTokens)
		}
		if opts.TurnLogDir != "" {
			if err := session.EnableTurnLog(filepath.Join(opts.TurnLogDir, name+"_turns.jsonl")); err != nil {
				logging.OrNull(opts.Logger).Warn("could not enable turn log", "agent", name, "error", err)
			}
		}
		return NewModelAgent(ModelOptions{
			Name:         agentCfg.Name,
			Description:  agentCfg.Description,
			SystemPrompt: agentCfg.SystemPrompt,
			Session:      session,
			Tools:        tools,
			Stream:       agentCfg.Streaming(),
			Handler:      opts.Handler,
			Events:       opts.Events,
			Logger:       opts.Logger,
		})
	}
}

// BuildGroupChat creates the runner for the configured groupchat named name
func BuildGroupChat(ctx context.Context, name string, opts BuildOptions) (*chat.Runner, *Crew, error) {
	g, err := opts.Config.GetGroupChat(name)
	if err != nil {
		return nil, nil, err
	}

	crew := &Crew{}
	for _, agentName := range g.Agents {
		a, err := BuildAgent(ctx, agentName, opts)
		if err != nil {
			crew.Close()
			return nil, nil, err
		}
		if m, ok := a.(*ModelAgent); ok {
			crew.closed = append(crew.closed, m.Close)
		}
		crew.Agents = append(crew.Agents, a)
	}

	strategy, err := g.Strategy()
	if err != nil {
		crew.Close()
		return nil, nil, fmt.Errorf("groupchat '%s': %w", name, err)
	}
	selection := chat.SelectorOptions{
		Method:        strategy,
		Graph:         g.Graph(),
		Repeat:        g.RepeatPolicy(),
		MaxRetries:    g.MaxRetries,
		SelectMessage: g.SelectMessage,
		SelectPrompt:  g.SelectPrompt,
		Plan:          g.Plan,
		VisibleTail:   g.VisibleTail,
		Logger:        opts.Logger,
	}
	if strategy == chat.StrategyAuto {
		session, err := opts.Providers.Session(ctx, g.SelectorModel)
		if err != nil {
			crew.Close()
			return nil, nil, fmt.Errorf("groupchat '%s': selector: %w", name, err)
		}
		selection.Complete = SelectionModel(session)
	}
	if strategy == chat.StrategyManual && opts.Input != nil {
		selection.Asker = InputAsker(opts.Input)
	}

	marker := g.TerminationMarker
	if marker == "" {
		marker = chat.DefaultMarker
	}
	runner, err := chat.NewRunner(chat.Config{
		Name:               g.Name,
		Agents:             crew.Agents,
		Selection:          selection,
		MaxRounds:          g.MaxRounds(),
		IsTerminal:         chat.MarkerTermination(marker, chat.DefaultMarkerLines),
		SendIntroductions:  g.SendIntroductions,
		EnableClearHistory: g.EnableClearHistory,
		ClearHistoryKeep:   g.ClearHistoryKeep,
		Admin:              g.Admin,
		Handler:            opts.Handler,
		Logger:             opts.Logger,
	})
	if err != nil {
		crew.Close()
		return nil, nil, fmt.Errorf("groupchat '%s': %w", name, err)
	}
	return runner, crew, nil
}
