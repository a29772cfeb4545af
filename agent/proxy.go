package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"devcrew/aitools"
	"devcrew/chat"
	"devcrew/command"
	"devcrew/internal/logging"
	"devcrew/recovery"
)

// Exit status lines that open every proxy reply; other agents and the
// termination check key off them.
const (
	ExitSuccess = "exitcode: 0"
	ExitFailure = "exitcode: 1"
)

// ProxyOptions configures a ProxyAgent
type ProxyOptions struct {
	Name        string
	Description string
	// Tools are executed for tool requests addressed to the chat
	Tools    []aitools.Tool
	Executor *command.Executor
	Mode     command.Mode
	// Recovery repairs failed groups before the result is reported
	Recovery *recovery.Engine
	// Asker, when set, supplies the reply for messages that carry nothing to run
	Asker  chat.Asker
	Events EventLogger
	Logger hclog.Logger
}

// ProxyAgent stands in for the human: it runs the tool requests and
// command batches proposed by model agents and reports the outcome.
type ProxyAgent struct {
	name        string
	description string
	tools       []aitools.Tool
	executor    *command.Executor
	mode        command.Mode
	recovery    *recovery.Engine
	asker       chat.Asker
	events      EventLogger
	logger      hclog.Logger

	mu     sync.Mutex
	memory []chat.Message
}

func NewProxyAgent(opts ProxyOptions) (*ProxyAgent, error) {
	if opts.Name == "" {
		return nil, errors.New("agent name is required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = command.ModeAll
	}
	return &ProxyAgent{
		name:        opts.Name,
		description: opts.Description,
		tools:       opts.Tools,
		executor:    opts.Executor,
		mode:        mode,
		recovery:    opts.Recovery,
		asker:       opts.Asker,
		events:      withAgent(opts.Events, opts.Name),
		logger:      logging.OrNull(opts.Logger),
	}, nil
}

func (p *ProxyAgent) Name() string        { return p.name }
func (p *ProxyAgent) Description() string { return p.description }
func (p *ProxyAgent) Kind() chat.Kind     { return chat.KindHumanProxy }

func (p *ProxyAgent) Capabilities() chat.Capabilities {
	return chat.Capabilities{CanExecute: true, Tools: aitools.Names(p.tools)}
}

func (p *ProxyAgent) Receive(_ context.Context, msg chat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.memory = append(p.memory, msg)
	return nil
}

func (p *ProxyAgent) ClearMemory(keep int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if keep <= 0 {
		p.memory = nil
		return
	}
	if len(p.memory) > keep {
		p.memory = append([]chat.Message(nil), p.memory[len(p.memory)-keep:]...)
	}
}

// Generate acts on the last message: a tool request is executed, a command
// batch is run (and repaired when recovery is configured), anything else is
// answered by the asker or with a failure status.
func (p *ProxyAgent) Generate(ctx context.Context, msgs []chat.Message) (*chat.Message, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("agent '%s': %w", p.name, ErrNoMessages)
	}
	last := msgs[len(msgs)-1]

	if last.ToolCall != nil {
		return p.callTool(ctx, last.ToolCall)
	}

	batch, ok := last.Payload.(*command.Response)
	if !ok || batch == nil {
		var err error
		batch, err = command.ParseReply(last.Content)
		if err != nil {
			return p.noBatch(ctx, last, err)
		}
	}
	return p.execute(ctx, batch)
}

func (p *ProxyAgent) callTool(ctx context.Context, call *chat.ToolCall) (*chat.Message, error) {
	tool := aitools.Find(p.tools, call.Name)
	if tool == nil {
		return p.reply(fmt.Sprintf("Error: unknown tool '%s'. Available tools: %s", call.Name, strings.Join(aitools.Names(p.tools), ", "))), nil
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &params); err != nil {
		return p.reply(fmt.Sprintf("Error: invalid input for tool '%s': %v", call.Name, err)), nil
	}
	if missing := tool.ToolPayloadSchema().Missing(params); len(missing) > 0 {
		return p.reply(fmt.Sprintf("Error: tool '%s' requires %s", call.Name, strings.Join(missing, ", "))), nil
	}

	p.logger.Debug("calling tool", "agent", p.name, "tool", call.Name)
	result := tool.Call(ctx, call.Arguments)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.events.LogEvent("tool_called", map[string]any{"tool": call.Name, "result": result})
	return p.reply(fmt.Sprintf("Result of %s:\n%s", call.Name, strings.TrimSpace(result))), nil
}

func (p *ProxyAgent) noBatch(ctx context.Context, last chat.Message, parseErr error) (*chat.Message, error) {
	if parseErr != command.ErrNoPayload {
		// A candidate was found but did not decode or validate
		return p.reply(fmt.Sprintf("%s (invalid command batch)\n%v", ExitFailure, parseErr)), nil
	}

	if p.asker != nil {
		answer, err := p.asker.Ask(ctx, fmt.Sprintf("Reply to %s (leave empty to skip):", last.Name))
		if err != nil {
			return nil, err
		}
		if answer = strings.TrimSpace(answer); answer != "" {
			return p.reply(answer), nil
		}
	}
	return p.reply(ExitFailure + " (no command batch found in the last message)"), nil
}

func (p *ProxyAgent) execute(ctx context.Context, batch *command.Response) (*chat.Message, error) {
	if p.executor == nil {
		return p.reply(ExitFailure + " (command execution is not configured)"), nil
	}

	report, err := p.executor.Execute(ctx, batch, p.mode)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		p.logger.Warn("batch not executed", "agent", p.name, "error", err)
		msg := p.reply(fmt.Sprintf("%s (execution failed)\n%v", ExitFailure, err))
		if report != nil {
			msg.Content += "\n" + command.FormatReport(report)
			msg.Payload = report
		}
		return msg, nil
	}

	if report.ScriptPath != "" {
		msg := p.reply(fmt.Sprintf("%s (script saved to %s)", ExitSuccess, report.ScriptPath))
		msg.Payload = report
		return msg, nil
	}

	if len(report.FailedGroups) > 0 && p.recovery != nil {
		outcome, err := p.recovery.Recover(ctx, batch, report)
		if err != nil {
			return nil, err
		}
		report = outcome.Report
	}

	p.events.LogEvent("batch_executed", map[string]any{
		"groups":    len(report.Groups),
		"failed":    len(report.FailedGroups),
		"succeeded": !report.Failed(),
		"declined":  len(report.Names(command.StatusDeclined)),
	})

	var msg *chat.Message
	if !report.Failed() {
		msg = p.reply(fmt.Sprintf("%s (execution succeeded)\n%s", ExitSuccess, command.FormatReport(report)))
	} else {
		content := fmt.Sprintf("%s (execution failed)\n%s", ExitFailure, command.FormatReport(report))
		if failures := command.FormatFailures(report.FailedGroups); failures != "" {
			content += "\n\n" + failures
		}
		msg = p.reply(content)
	}
	msg.Payload = report
	return msg, nil
}

func (p *ProxyAgent) reply(content string) *chat.Message {
	return &chat.Message{Role: chat.RoleUser, Name: p.name, Content: content}
}

var (
	_ chat.Agent         = (*ProxyAgent)(nil)
	_ chat.MemoryClearer = (*ProxyAgent)(nil)
)
