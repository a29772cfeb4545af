package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"devcrew/agent"
	"devcrew/aitools"
	"devcrew/chat"
	"devcrew/command"
	"devcrew/config"
	"devcrew/internal/logging"
	"devcrew/llm"
	"devcrew/recovery"
	"devcrew/streamers"
	"devcrew/workflow/internal/prompts"
)

// Participant names of the scaffolding chats
const (
	ProxyName       = "human_proxy"
	ExtractorName   = "info_extractor"
	InitializerName = "initializer"
	ExecutorName    = "HumanProxyGroup"
	TemplateName    = "TemplateAgent"
	TesterName      = "TesterAgent"
	DockerName      = "DockerAgent"
)

// SessionFunc opens a model session seeded with systemPrompts
type SessionFunc func(ctx context.Context, systemPrompts ...string) (*llm.Session, error)

// ProviderSessions opens sessions for the configured scaffold model
func ProviderSessions(providers *agent.Providers, modelKey string) SessionFunc {
	return func(ctx context.Context, systemPrompts ...string) (*llm.Session, error) {
		return providers.Session(ctx, modelKey, systemPrompts...)
	}
}

// Options configures a Scaffold
type Options struct {
	Settings config.Scaffold
	Sessions SessionFunc
	// Input answers the extractor's questions; required
	Input    streamers.InputHandler
	Executor *command.Executor
	Mode     command.Mode
	Recovery *recovery.Engine
	Handler  streamers.ChatHandler
	// OnStage observes build stage progress
	OnStage func(StageEvent)
	Events  agent.EventLogger
	Cache   llm.Cache
	// Stepper delivers interrupts to both chats; nil runs synchronously
	Stepper chat.Stepper
	Logger  hclog.Logger
}

// Result is the outcome of a scaffolding run
type Result struct {
	Description string
	Extraction  *chat.Result
	Build       *chat.Result
	Stages      []string
	// Completed lists the stages that finished successfully
	Completed []string
	Summaries []chat.Message
}

// Succeeded reports whether every stage finished
func (r *Result) Succeeded() bool {
	return r.Build != nil && len(r.Stages) > 0 && len(r.Completed) == len(r.Stages)
}

// Scaffold gathers a project description from the user, then has a crew of
// stage agents create the project one stage at a time
type Scaffold struct {
	opts   Options
	docker bool
	logger hclog.Logger
}

func NewScaffold(opts Options) (*Scaffold, error) {
	if opts.Sessions == nil {
		return nil, errors.New("scaffold requires a model session source")
	}
	if opts.Input == nil {
		return nil, errors.New("scaffold requires an input handler")
	}
	if opts.Executor == nil {
		return nil, errors.New("scaffold requires a command executor")
	}
	opts.Settings.Defaults()
	if opts.Handler == nil {
		opts.Handler = streamers.Nop{}
	}
	return &Scaffold{
		opts:   opts,
		docker: opts.Settings.Environment == config.EnvDocker,
		logger: logging.OrNull(opts.Logger),
	}, nil
}

// Stages returns the build stage agents in order
func (s *Scaffold) Stages() []string {
	if s.docker {
		return []string{TemplateName, TesterName, DockerName}
	}
	return []string{TemplateName, TesterName}
}

// Run extracts the project description and builds the project
func (s *Scaffold) Run(ctx context.Context, projectName, projectDescription string) (*Result, error) {
	res := &Result{Stages: s.Stages()}
	desc, extraction, err := s.Extract(ctx, projectName, projectDescription)
	res.Extraction = extraction
	if err != nil {
		return res, err
	}
	res.Description = desc

	build, selector, err := s.Build(ctx, desc)
	res.Build = build
	if selector != nil {
		res.Completed = selector.Completed()
		res.Summaries = selector.Summaries()
	}
	return res, err
}

// Extract runs the information extraction chat and returns the numbered
// description from the extractor's final answer
func (s *Scaffold) Extract(ctx context.Context, projectName, projectDescription string) (string, *chat.Result, error) {
	s.logger.Info("gathering project information", "project", projectName)

	session, err := s.opts.Sessions(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("extractor session: %w", err)
	}
	extractor, err := agent.NewModelAgent(agent.ModelOptions{
		Name:         ExtractorName,
		Description:  "Extracts a structured project description and asks the user for missing details.",
		SystemPrompt: prompts.Extractor(s.docker),
		Session:      session,
		Tools:        []aitools.Tool{aitools.NewAskUserTool(s.opts.Input)},
		Stream:       true,
		Handler:      s.opts.Handler,
		Events:       s.opts.Events,
		Logger:       s.opts.Logger,
	})
	if err != nil {
		return "", nil, err
	}
	defer extractor.Close()

	proxy, err := agent.NewProxyAgent(agent.ProxyOptions{
		Name:        ProxyName,
		Description: "Relays the extractor's questions to the user.",
		Tools:       []aitools.Tool{aitools.NewAskUserTool(s.opts.Input)},
		Asker:       agent.InputAsker(s.opts.Input),
		Events:      s.opts.Events,
		Logger:      s.opts.Logger,
	})
	if err != nil {
		return "", nil, err
	}

	runner, err := chat.NewRunner(chat.Config{
		Name:      "extract",
		Agents:    []chat.Agent{proxy, extractor},
		Admin:     ProxyName,
		Selection: chat.SelectorOptions{Method: chat.StrategyRoundRobin},
		MaxRounds: s.opts.Settings.ExtractRounds,
		Handler:   s.opts.Handler,
		Logger:    s.opts.Logger,
	})
	if err != nil {
		return "", nil, err
	}

	initial := chat.Message{
		Role:    chat.RoleUser,
		Name:    ProxyName,
		Content: fmt.Sprintf("Project Name: %s\nProject Description: %s", projectName, projectDescription),
	}
	res, err := runner.Run(ctx, proxy, initial, chat.RunOptions{Cache: s.opts.Cache, Stepper: s.opts.Stepper})
	if err != nil {
		return "", res, fmt.Errorf("information extraction: %w", err)
	}

	answer, ok := lastFrom(res.Messages, ExtractorName)
	if !ok {
		return "", res, ErrNoDescription
	}
	desc, err := ExtractDescription(answer.Content)
	if err != nil {
		return "", res, err
	}
	return desc, res, nil
}

// Build runs the staged build chat seeded with description
func (s *Scaffold) Build(ctx context.Context, description string) (*chat.Result, *StageSelector, error) {
	s.logger.Info("starting project generation", "environment", s.opts.Settings.Environment)

	crew := []chat.Agent{agent.NewSystemAgent(InitializerName, "Hands the project description to the team.", "")}
	var closers []func()
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	stagePrompts := map[string]string{
		TemplateName: prompts.Template(s.docker),
		TesterName:   prompts.Tester(s.docker),
		DockerName:   prompts.Docker(),
	}
	stageDescriptions := map[string]string{
		TemplateName: "Creates the project structure and boilerplate code.",
		TesterName:   "Creates and runs tests for the project.",
		DockerName:   "Writes the Dockerfile and docker-compose.yml.",
	}
	for _, name := range s.Stages() {
		session, err := s.opts.Sessions(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("%s session: %w", name, err)
		}
		a, err := agent.NewModelAgent(agent.ModelOptions{
			Name:         name,
			Description:  stageDescriptions[name],
			SystemPrompt: stagePrompts[name],
			Session:      session,
			Stream:       true,
			Handler:      s.opts.Handler,
			Events:       s.opts.Events,
			Logger:       s.opts.Logger,
		})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, a.Close)
		crew = append(crew, a)
	}

	executor, err := agent.NewProxyAgent(agent.ProxyOptions{
		Name:        ExecutorName,
		Description: "Runs the command batches proposed by the team.",
		Executor:    s.opts.Executor,
		Mode:        s.opts.Mode,
		Recovery:    s.opts.Recovery,
		Events:      s.opts.Events,
		Logger:      s.opts.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	crew = append(crew, executor)

	selector, err := NewStageSelector(InitializerName, ExecutorName, s.Stages(), s.opts.OnStage)
	if err != nil {
		return nil, nil, err
	}
	runner, err := chat.NewRunner(chat.Config{
		Name:      "scaffold",
		Agents:    crew,
		Selection: chat.SelectorOptions{Custom: selector.Select},
		MaxRounds: s.opts.Settings.MaxRound,
		// The stage selector alone decides when the build is over
		IsTerminal: func(chat.Message) bool { return false },
		Handler:    s.opts.Handler,
		Logger:     s.opts.Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	initial := chat.Message{Role: chat.RoleUser, Name: InitializerName, Content: description}
	res, err := runner.Run(ctx, crew[0], initial, chat.RunOptions{Cache: s.opts.Cache, Stepper: s.opts.Stepper})
	if err != nil {
		return res, selector, fmt.Errorf("project generation: %w", err)
	}
	if res.State == chat.StateExhausted {
		s.logger.Warn("round limit reached before all stages finished", "completed", selector.Completed())
	}
	return res, selector, nil
}

func lastFrom(msgs []chat.Message, name string) (chat.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Name == name {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}
