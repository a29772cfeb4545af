package streamers

// ChatHandler receives group chat progress events.
// Different implementations render to the terminal, persist, or forward over a websocket.
type ChatHandler interface {
	// ChatStarted is called once before the introduction broadcast
	ChatStarted(chatName string, participants []string)

	// SpeakerSelected is called after the selector picks the next speaker
	SpeakerSelected(round int, speaker string, visibleMessages int)

	// AgentThinking is called when the selected agent starts generating
	AgentThinking(agent string)

	// PublishAnswerChunk is called for each streamed chunk of a model reply
	PublishAnswerChunk(agent string, chunk string)

	// MessageAppended is called for every message added to the shared log
	MessageAppended(round int, name string, role string, content string)

	// HistoryCleared is called when a reply asks for the log to be truncated
	HistoryCleared(kept int)

	// ChatFinished is called when the run loop exits
	ChatFinished(state string, rounds int)

	// Error displays an error message
	Error(err error)
}

// ExecutionHandler receives command batch execution events
type ExecutionHandler interface {
	// BatchStarted and BatchFinished bracket one Execute call
	BatchStarted(mode string, groupCount int)
	BatchFinished(success bool)

	GroupStarted(group string, description string, commandCount int)
	CommandStarted(group string, command string, comment string, commandType string, interactive bool)
	CommandOutput(group string, line string, stderr bool)
	CommandFinished(group string, command string, success bool, output string, errText string)
	CommandSkipped(group string, command string, reason string)
	GroupFinished(group string, success bool)
	GroupDeclined(group string)
	DependencyCycle(unresolved []string)
	ScriptSaved(path string)
}

// RecoveryHandler receives repair events for failed command groups
type RecoveryHandler interface {
	RecoveryStarted(independent []string, dependent []string)
	PlanReceived(group string, analysis string, fixCount int, instructions string)
	FixStarted(group string, original string, fixed string, explanation string)
	FixFinished(group string, fixed string, success bool, errText string)
	GroupRecovered(group string, repaired bool, reason string)
}

// StageHandler receives scaffolding stage progress
type StageHandler interface {
	StageStarted(stage string, index, total int)
	StageCompleted(stage string, summary string)
}

// InputHandler is the blocking human-input boundary
type InputHandler interface {
	// Ask prompts for and reads a free-form answer
	Ask(question string) (string, error)

	// Confirm asks a yes/no question
	Confirm(prompt string) (bool, error)
}
