package wsbridge

import (
	"github.com/hashicorp/go-hclog"

	"devcrew/internal/logging"
	"devcrew/streamers"
)

// Chat event types
const (
	EventChatStarted     = "chat_started"
	EventSpeakerSelected = "speaker_selected"
	EventAgentThinking   = "agent_thinking"
	EventAnswerChunk     = "answer_chunk"
	EventMessage         = "message"
	EventHistoryCleared  = "history_cleared"
	EventChatFinished    = "chat_finished"
	EventError           = "error"
	EventStageStarted    = "stage_started"
	EventStageCompleted  = "stage_completed"
)

// Execution and recovery event types
const (
	EventBatchStarted    = "batch_started"
	EventBatchFinished   = "batch_finished"
	EventGroupStarted    = "group_started"
	EventCommandStarted  = "command_started"
	EventCommandOutput   = "command_output"
	EventCommandFinished = "command_finished"
	EventCommandSkipped  = "command_skipped"
	EventGroupFinished   = "group_finished"
	EventGroupDeclined   = "group_declined"
	EventDependencyCycle = "dependency_cycle"
	EventScriptSaved     = "script_saved"
	EventRecoveryStarted = "recovery_started"
	EventPlanReceived    = "plan_received"
	EventFixStarted      = "fix_started"
	EventFixFinished     = "fix_finished"
	EventGroupRecovered  = "group_recovered"
)

// Publisher implements the chat, execution and recovery handlers by sending
// every event over the bridge. Send failures are logged and dropped so a
// slow or gone viewer never stalls a run.
type Publisher struct {
	client *Client
	runID  func() string
	logger hclog.Logger
}

// NewPublisher creates a Publisher. runID stamps events with the stored chat
// run; it may be nil.
func NewPublisher(client *Client, runID func() string, logger hclog.Logger) *Publisher {
	if runID == nil {
		runID = func() string { return "" }
	}
	return &Publisher{client: client, runID: runID, logger: logging.OrNull(logger)}
}

func (p *Publisher) publish(t MessageType, eventType string, data map[string]any) {
	env, err := NewEvent(t, &EventPayload{RunID: p.runID(), EventType: eventType, Data: data})
	if err != nil {
		p.logger.Warn("failed to encode event", "event", eventType, "error", err)
		return
	}
	if err := p.client.SendEvent(env); err != nil {
		p.logger.Debug("failed to send event", "event", eventType, "error", err)
	}
}

func (p *Publisher) chat(eventType string, data map[string]any) {
	p.publish(TypeChatEvent, eventType, data)
}

func (p *Publisher) exec(eventType string, data map[string]any) {
	p.publish(TypeExecEvent, eventType, data)
}

// =============================================================================
// ChatHandler implementation
// =============================================================================

func (p *Publisher) ChatStarted(chatName string, participants []string) {
	p.chat(EventChatStarted, map[string]any{"chat": chatName, "participants": participants})
}

func (p *Publisher) SpeakerSelected(round int, speaker string, visibleMessages int) {
	p.chat(EventSpeakerSelected, map[string]any{"round": round, "speaker": speaker, "visible": visibleMessages})
}

func (p *Publisher) AgentThinking(agent string) {
	p.chat(EventAgentThinking, map[string]any{"agent": agent})
}

func (p *Publisher) PublishAnswerChunk(agent string, chunk string) {
	p.chat(EventAnswerChunk, map[string]any{"agent": agent, "content": chunk})
}

func (p *Publisher) MessageAppended(round int, name string, role string, content string) {
	p.chat(EventMessage, map[string]any{"round": round, "name": name, "role": role, "content": content})
}

func (p *Publisher) HistoryCleared(kept int) {
	p.chat(EventHistoryCleared, map[string]any{"kept": kept})
}

func (p *Publisher) ChatFinished(state string, rounds int) {
	p.chat(EventChatFinished, map[string]any{"state": state, "rounds": rounds})
}

func (p *Publisher) Error(err error) {
	p.chat(EventError, map[string]any{"message": err.Error()})
}

// StageStarted announces a build stage
func (p *Publisher) StageStarted(stage string, index, total int) {
	p.chat(EventStageStarted, map[string]any{"stage": stage, "index": index, "total": total})
}

// StageCompleted reports a finished build stage
func (p *Publisher) StageCompleted(stage string, summary string) {
	p.chat(EventStageCompleted, map[string]any{"stage": stage, "summary": summary})
}

// =============================================================================
// ExecutionHandler implementation
// =============================================================================

func (p *Publisher) BatchStarted(mode string, groupCount int) {
	p.exec(EventBatchStarted, map[string]any{"mode": mode, "groups": groupCount})
}

func (p *Publisher) BatchFinished(success bool) {
	p.exec(EventBatchFinished, map[string]any{"success": success})
}

func (p *Publisher) GroupStarted(group string, description string, commandCount int) {
	p.exec(EventGroupStarted, map[string]any{"group": group, "description": description, "commands": commandCount})
}

func (p *Publisher) CommandStarted(group string, command string, comment string, commandType string, interactive bool) {
	p.exec(EventCommandStarted, map[string]any{
		"group":       group,
		"command":     command,
		"comment":     comment,
		"type":        commandType,
		"interactive": interactive,
	})
}

func (p *Publisher) CommandOutput(group string, line string, stderr bool) {
	p.exec(EventCommandOutput, map[string]any{"group": group, "line": line, "stderr": stderr})
}

func (p *Publisher) CommandFinished(group string, command string, success bool, output string, errText string) {
	p.exec(EventCommandFinished, map[string]any{
		"group":   group,
		"command": command,
		"success": success,
		"output":  output,
		"error":   errText,
	})
}

func (p *Publisher) CommandSkipped(group string, command string, reason string) {
	p.exec(EventCommandSkipped, map[string]any{"group": group, "command": command, "reason": reason})
}

func (p *Publisher) GroupFinished(group string, success bool) {
	p.exec(EventGroupFinished, map[string]any{"group": group, "success": success})
}

func (p *Publisher) GroupDeclined(group string) {
	p.exec(EventGroupDeclined, map[string]any{"group": group})
}

func (p *Publisher) DependencyCycle(unresolved []string) {
	p.exec(EventDependencyCycle, map[string]any{"unresolved": unresolved})
}

func (p *Publisher) ScriptSaved(path string) {
	p.exec(EventScriptSaved, map[string]any{"path": path})
}

// =============================================================================
// RecoveryHandler implementation
// =============================================================================

func (p *Publisher) RecoveryStarted(independent []string, dependent []string) {
	p.exec(EventRecoveryStarted, map[string]any{"independent": independent, "dependent": dependent})
}

func (p *Publisher) PlanReceived(group string, analysis string, fixCount int, instructions string) {
	p.exec(EventPlanReceived, map[string]any{
		"group":        group,
		"analysis":     analysis,
		"fixes":        fixCount,
		"instructions": instructions,
	})
}

func (p *Publisher) FixStarted(group string, original string, fixed string, explanation string) {
	p.exec(EventFixStarted, map[string]any{
		"group":       group,
		"original":    original,
		"fixed":       fixed,
		"explanation": explanation,
	})
}

func (p *Publisher) FixFinished(group string, fixed string, success bool, errText string) {
	p.exec(EventFixFinished, map[string]any{"group": group, "fixed": fixed, "success": success, "error": errText})
}

func (p *Publisher) GroupRecovered(group string, repaired bool, reason string) {
	p.exec(EventGroupRecovered, map[string]any{"group": group, "repaired": repaired, "reason": reason})
}

var (
	_ streamers.ChatHandler      = (*Publisher)(nil)
	_ streamers.ExecutionHandler = (*Publisher)(nil)
	_ streamers.RecoveryHandler  = (*Publisher)(nil)
)
