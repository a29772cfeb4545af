package wsbridge

import (
	"errors"
	"fmt"
)

var errNoStore = errors.New("run history is not enabled")

func (c *Client) registerHandlers() {
	c.handlers[TypeGetConfig] = c.handleGetConfig
	c.handlers[TypeGetRuns] = c.handleGetRuns
	c.handlers[TypeGetRun] = c.handleGetRun
	c.handlers[TypeGetExecutions] = c.handleGetExecutions
}

func (c *Client) handleGetConfig(env *Envelope) (*Envelope, error) {
	return NewResponse(env.RequestID, TypeConfigResult, &ConfigResultPayload{
		Config: ConfigToInstanceConfig(c.opts.Config),
	})
}

func (c *Client) handleGetRuns(env *Envelope) (*Envelope, error) {
	if c.opts.Stores == nil {
		return nil, errNoStore
	}
	var payload GetRunsPayload
	if len(env.Payload) > 0 {
		if err := DecodePayload(env, &payload); err != nil {
			return nil, fmt.Errorf("decode get_runs: %w", err)
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 50
	}

	runs, total, err := c.opts.Stores.Chats.ListRuns(payload.Limit, payload.Offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return NewResponse(env.RequestID, TypeRunsResult, &RunsResultPayload{Runs: runs, Total: total})
}

func (c *Client) handleGetRun(env *Envelope) (*Envelope, error) {
	if c.opts.Stores == nil {
		return nil, errNoStore
	}
	var payload GetRunPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode get_run: %w", err)
	}

	run, err := c.opts.Stores.Chats.GetRun(payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	msgs, err := c.opts.Stores.Chats.GetMessages(payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return NewResponse(env.RequestID, TypeRunResult, &RunResultPayload{Run: run, Messages: msgs})
}

func (c *Client) handleGetExecutions(env *Envelope) (*Envelope, error) {
	if c.opts.Stores == nil {
		return nil, errNoStore
	}
	var payload GetExecutionsPayload
	if err := DecodePayload(env, &payload); err != nil {
		return nil, fmt.Errorf("decode get_executions: %w", err)
	}

	infos, err := c.opts.Stores.Executions.ListExecutions(payload.RunID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	result := &ExecutionsResultPayload{Executions: make([]ExecutionDetail, 0, len(infos))}
	for _, info := range infos {
		cmds, err := c.opts.Stores.Executions.GetCommands(info.ID)
		if err != nil {
			return nil, fmt.Errorf("get commands for %s: %w", info.ID, err)
		}
		result.Executions = append(result.Executions, ExecutionDetail{ExecutionInfo: info, Commands: cmds})
	}
	return NewResponse(env.RequestID, TypeExecsResult, result)
}
