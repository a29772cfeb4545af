package streamers

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"devcrew/internal/logging"
	"devcrew/store"
)

// StoringChatHandler is a ChatHandler decorator that persists every chat run
// and its messages to a ChatStore, then delegates to an inner handler (e.g.
// CLI or WebSocket). Store failures are logged, never returned.
type StoringChatHandler struct {
	inner  ChatHandler
	chats  store.ChatStore
	logger hclog.Logger

	mu      sync.Mutex
	runID   string
	lastErr string
}

// NewStoringChatHandler wraps inner with chat persistence. inner may be nil.
func NewStoringChatHandler(inner ChatHandler, chats store.ChatStore, logger hclog.Logger) *StoringChatHandler {
	if inner == nil {
		inner = Nop{}
	}
	return &StoringChatHandler{
		inner:  inner,
		chats:  chats,
		logger: logging.OrNull(logger),
	}
}

// RunID returns the ID of the current (or last) stored run
func (h *StoringChatHandler) RunID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runID
}

func (h *StoringChatHandler) ChatStarted(chatName string, participants []string) {
	id, err := h.chats.CreateRun(chatName, participants)
	if err != nil {
		h.logger.Warn("failed to store chat run", "chat", chatName, "error", err)
	}
	h.mu.Lock()
	h.runID = id
	h.lastErr = ""
	h.mu.Unlock()

	h.inner.ChatStarted(chatName, participants)
}

func (h *StoringChatHandler) SpeakerSelected(round int, speaker string, visibleMessages int) {
	h.inner.SpeakerSelected(round, speaker, visibleMessages)
}

func (h *StoringChatHandler) AgentThinking(agent string) {
	h.inner.AgentThinking(agent)
}

func (h *StoringChatHandler) PublishAnswerChunk(agent string, chunk string) {
	h.inner.PublishAnswerChunk(agent, chunk)
}

func (h *StoringChatHandler) MessageAppended(round int, name string, role string, content string) {
	if id := h.RunID(); id != "" {
		msg := store.StoredMessage{Round: round, Name: name, Role: role, Content: content}
		if err := h.chats.AppendMessage(id, msg); err != nil {
			h.logger.Warn("failed to store message", "run", id, "name", name, "error", err)
		}
	}
	h.inner.MessageAppended(round, name, role, content)
}

func (h *StoringChatHandler) HistoryCleared(kept int) {
	h.inner.HistoryCleared(kept)
}

func (h *StoringChatHandler) ChatFinished(state string, rounds int) {
	h.mu.Lock()
	id, lastErr := h.runID, h.lastErr
	h.mu.Unlock()

	if id != "" {
		var errMsg *string
		if lastErr != "" {
			errMsg = &lastErr
		}
		if err := h.chats.FinishRun(id, state, rounds, errMsg); err != nil {
			h.logger.Warn("failed to finish chat run", "run", id, "error", err)
		}
	}
	h.inner.ChatFinished(state, rounds)
}

func (h *StoringChatHandler) Error(err error) {
	h.mu.Lock()
	h.lastErr = err.Error()
	h.mu.Unlock()
	h.inner.Error(err)
}

// =============================================================================
// Executions
// =============================================================================

// StoringExecutionHandler is an ExecutionHandler decorator that records each
// batch and its command results to an ExecutionStore before delegating.
type StoringExecutionHandler struct {
	inner      ExecutionHandler
	executions store.ExecutionStore
	runID      func() string
	logger     hclog.Logger

	mu     sync.Mutex
	execID string
}

// NewStoringExecutionHandler wraps inner with execution persistence. runID
// links each batch to the chat run in progress; it may be nil for standalone
// batches.
func NewStoringExecutionHandler(inner ExecutionHandler, executions store.ExecutionStore, runID func() string, logger hclog.Logger) *StoringExecutionHandler {
	if inner == nil {
		inner = Nop{}
	}
	if runID == nil {
		runID = func() string { return "" }
	}
	return &StoringExecutionHandler{
		inner:      inner,
		executions: executions,
		runID:      runID,
		logger:     logging.OrNull(logger),
	}
}

// ExecutionID returns the ID of the current (or last) stored batch
func (h *StoringExecutionHandler) ExecutionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.execID
}

func (h *StoringExecutionHandler) record(group, command string, status string, output, errText string) {
	id := h.ExecutionID()
	if id == "" {
		return
	}
	rec := store.CommandRecord{Group: group, Command: command, Status: status, Output: output, Error: errText}
	if err := h.executions.RecordCommand(id, rec); err != nil {
		h.logger.Warn("failed to store command result", "execution", id, "command", command, "error", err)
	}
}

func (h *StoringExecutionHandler) BatchStarted(mode string, groupCount int) {
	id, err := h.executions.CreateExecution(h.runID(), mode)
	if err != nil {
		h.logger.Warn("failed to store execution", "mode", mode, "error", err)
	}
	h.mu.Lock()
	h.execID = id
	h.mu.Unlock()

	h.inner.BatchStarted(mode, groupCount)
}

func (h *StoringExecutionHandler) BatchFinished(success bool) {
	if id := h.ExecutionID(); id != "" {
		if err := h.executions.FinishExecution(id, success); err != nil {
			h.logger.Warn("failed to finish execution", "execution", id, "error", err)
		}
	}
	h.inner.BatchFinished(success)
}

func (h *StoringExecutionHandler) GroupStarted(group string, description string, commandCount int) {
	h.inner.GroupStarted(group, description, commandCount)
}

func (h *StoringExecutionHandler) CommandStarted(group string, command string, comment string, commandType string, interactive bool) {
	h.inner.CommandStarted(group, command, comment, commandType, interactive)
}

func (h *StoringExecutionHandler) CommandOutput(group string, line string, stderr bool) {
	h.inner.CommandOutput(group, line, stderr)
}

func (h *StoringExecutionHandler) CommandFinished(group string, command string, success bool, output string, errText string) {
	status := store.CommandSucceeded
	if !success {
		status = store.CommandFailed
	}
	h.record(group, command, status, output, errText)
	h.inner.CommandFinished(group, command, success, output, errText)
}

func (h *StoringExecutionHandler) CommandSkipped(group string, command string, reason string) {
	h.record(group, command, store.CommandSkipped, "", reason)
	h.inner.CommandSkipped(group, command, reason)
}

func (h *StoringExecutionHandler) GroupFinished(group string, success bool) {
	h.inner.GroupFinished(group, success)
}

func (h *StoringExecutionHandler) GroupDeclined(group string) {
	h.inner.GroupDeclined(group)
}

func (h *StoringExecutionHandler) DependencyCycle(unresolved []string) {
	h.inner.DependencyCycle(unresolved)
}

func (h *StoringExecutionHandler) ScriptSaved(path string) {
	h.inner.ScriptSaved(path)
}

var (
	_ ChatHandler      = (*StoringChatHandler)(nil)
	_ ExecutionHandler = (*StoringExecutionHandler)(nil)
)
