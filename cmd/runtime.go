package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"

	"devcrew/agent"
	"devcrew/command"
	"devcrew/config"
	"devcrew/internal/logging"
	"devcrew/llm"
	"devcrew/recovery"
	"devcrew/store"
	"devcrew/streamers"
	"devcrew/streamers/cli"
	"devcrew/workflow"
	"devcrew/wsbridge"
)

// runtimeOptions are the command-line overrides shared by the run, chat and
// exec commands
type runtimeOptions struct {
	Config      *config.Config
	Mode        string
	WorkDir     string
	ProjectName string
	// Recover enables recovery even when the config leaves it off
	Recover bool
	// DebugName enables the debug directory debug/<name>_<timestamp>
	DebugName string
}

// runtime holds the collaborators wired for one command invocation
type runtime struct {
	cfg       *config.Config
	providers *agent.Providers
	input     *cli.InputHandler
	stores    *store.Bundle
	storing   *streamers.StoringChatHandler
	bridge    *wsbridge.Client
	debug     *workflow.DebugLogger
	executor  *command.Executor
	recovery  *recovery.Engine
	mode      command.Mode
	cache     llm.Cache

	// chat, exec and stages fan out to the terminal, debug logger and bridge
	chat   streamers.ChatHandler
	exec   streamers.ExecutionHandler
	stages streamers.StageHandler

	logger hclog.Logger
}

func newRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
		cfg.Execution.Defaults()
		cfg.Storage.Defaults()
		cfg.Cache.Defaults()
		cfg.Scaffold.Defaults()
	}

	rt := &runtime{
		cfg:       cfg,
		providers: agent.NewProviders(cfg),
		input:     cli.NewInputHandler(os.Stdin, os.Stdout),
		logger:    logging.New("cli"),
	}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	modeName := cfg.Execution.Mode
	if opts.Mode != "" {
		modeName = opts.Mode
	}
	mode, err := command.ParseMode(modeName)
	if err != nil {
		return nil, err
	}
	rt.mode = mode

	var debugDir string
	if opts.DebugName != "" {
		debugDir = filepath.Join("debug", fmt.Sprintf("%s_%s", opts.DebugName, time.Now().Format("20060102_150405")))
	}
	if rt.debug, err = workflow.NewDebugLogger(debugDir); err != nil {
		return nil, err
	}
	if rt.debug.IsEnabled() {
		fmt.Printf("Debug mode enabled. Writing to: %s\n", rt.debug.Dir())
	}

	if rt.stores, err = store.NewBundle(ctx, cfg.Storage.Options()); err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Backend, err)
	}

	if cfg.Bridge.Enabled() {
		client := wsbridge.NewClient(wsbridge.Options{
			URL:          cfg.Bridge.URL,
			InstanceName: cfg.Bridge.InstanceName,
			Version:      Version,
			Config:       cfg,
			Stores:       rt.stores,
			Logger:       logging.New("wsbridge"),
		})
		if err := client.Connect(ctx); err != nil {
			rt.logger.Warn("event bridge unavailable, continuing without it", "url", cfg.Bridge.URL, "error", err)
		} else {
			rt.bridge = client
		}
	}

	animate := isatty.IsTerminal(os.Stdout.Fd())
	chatOut := cli.NewChatHandler(os.Stdout, animate)
	execOut := cli.NewExecutionHandler(os.Stdout)

	chatInner := []any{chatOut, rt.debug}
	execInner := []any{execOut}
	recoveryInner := []any{execOut}
	stageInner := []any{chatOut, rt.debug}

	runID := func() string { return rt.storing.RunID() }
	if rt.bridge != nil {
		publisher := wsbridge.NewPublisher(rt.bridge, runID, logging.New("wsbridge"))
		chatInner = append(chatInner, publisher)
		execInner = append(execInner, publisher)
		recoveryInner = append(recoveryInner, publisher)
		stageInner = append(stageInner, publisher)
	}
	rt.storing = streamers.NewStoringChatHandler(streamers.NewMulti(chatInner...), rt.stores.Chats, logging.New("store"))
	rt.chat = rt.storing
	rt.exec = streamers.NewStoringExecutionHandler(streamers.NewMulti(execInner...), rt.stores.Executions, runID, logging.New("store"))
	rt.stages = streamers.NewMulti(stageInner...)

	if cfg.Cache.Enabled {
		if cfg.Cache.Dir == "" {
			rt.cache = llm.NewMemoryCache()
		} else if rt.cache, err = llm.NewFileCache(cfg.Cache.Dir, cfg.Cache.Seed); err != nil {
			return nil, err
		}
	}

	workDir := cfg.Execution.WorkDir
	if opts.WorkDir != "" {
		workDir = opts.WorkDir
	}
	execOpts := command.Options{
		WorkDir:             workDir,
		Shell:               cfg.Execution.Shell,
		ProjectName:         opts.ProjectName,
		InteractivePatterns: cfg.Execution.InteractivePatterns,
		Handler:             rt.exec,
		Logger:              logging.New("exec"),
	}
	if mode == command.ModeStep {
		execOpts.Confirm = rt.confirmGroup
	}
	if rt.executor, err = command.New(execOpts); err != nil {
		return nil, err
	}

	if cfg.Recovery.Enabled || opts.Recover {
		if cfg.Recovery.Model == "" {
			return nil, fmt.Errorf("recovery requires a 'model' in the recovery block")
		}
		session, err := rt.providers.Session(ctx, cfg.Recovery.Model)
		if err != nil {
			return nil, fmt.Errorf("recovery model: %w", err)
		}
		recOpts := recovery.Options{
			Executor: rt.executor,
			Repairer: recovery.NewLLMRepairer(session),
			Handler:  streamers.NewMulti(recoveryInner...),
			Logger:   logging.New("recovery"),
		}
		if cfg.Recovery.Confirm {
			recOpts.Confirm = rt.confirmPlan
		}
		if rt.recovery, err = recovery.NewEngine(recOpts); err != nil {
			return nil, err
		}
	}

	ok = true
	return rt, nil
}

// Close releases providers, stores, the bridge and debug files
func (rt *runtime) Close() {
	if rt.providers != nil {
		rt.providers.Close()
	}
	if rt.bridge != nil {
		rt.bridge.Close()
	}
	if rt.stores != nil {
		rt.stores.Close()
	}
	if rt.debug != nil {
		rt.debug.Close()
	}
}

// buildOptions returns the collaborators for agent.BuildGroupChat
func (rt *runtime) buildOptions() agent.BuildOptions {
	opts := agent.BuildOptions{
		Config:    rt.cfg,
		Providers: rt.providers,
		Handler:   rt.chat,
		Input:     rt.input,
		Executor:  rt.executor,
		Mode:      rt.mode,
		Recovery:  rt.recovery,
		Events:    rt.debug,
		Logger:    logging.New("chat"),
	}
	if rt.debug.IsEnabled() {
		opts.TurnLogDir = rt.debug.Dir()
	}
	return opts
}

func (rt *runtime) confirmGroup(g command.Group) (bool, error) {
	return rt.input.Confirm(fmt.Sprintf("Run group '%s' (%d commands)?", g.Name, len(g.Commands)))
}

func (rt *runtime) confirmPlan(group string, plan *recovery.Plan) (bool, error) {
	return rt.input.Confirm(fmt.Sprintf("Apply %d fixes to group '%s'?", len(plan.FixedCommands), group))
}

// loadConfig loads and validates the configuration at path
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadAndValidate(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
