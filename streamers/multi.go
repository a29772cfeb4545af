package streamers

// Multi fans every event out to several handlers in order. Each handler
// only receives the events of the interfaces it implements.
type Multi struct {
	handlers []any
}

// NewMulti combines handlers; nil entries are ignored
func NewMulti(handlers ...any) *Multi {
	m := &Multi{}
	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
	return m
}

func (m *Multi) chat(fn func(ChatHandler)) {
	for _, h := range m.handlers {
		if c, ok := h.(ChatHandler); ok {
			fn(c)
		}
	}
}

func (m *Multi) exec(fn func(ExecutionHandler)) {
	for _, h := range m.handlers {
		if e, ok := h.(ExecutionHandler); ok {
			fn(e)
		}
	}
}

func (m *Multi) recovery(fn func(RecoveryHandler)) {
	for _, h := range m.handlers {
		if r, ok := h.(RecoveryHandler); ok {
			fn(r)
		}
	}
}

func (m *Multi) stage(fn func(StageHandler)) {
	for _, h := range m.handlers {
		if s, ok := h.(StageHandler); ok {
			fn(s)
		}
	}
}

func (m *Multi) ChatStarted(chatName string, participants []string) {
	m.chat(func(h ChatHandler) { h.ChatStarted(chatName, participants) })
}

func (m *Multi) SpeakerSelected(round int, speaker string, visibleMessages int) {
	m.chat(func(h ChatHandler) { h.SpeakerSelected(round, speaker, visibleMessages) })
}

func (m *Multi) AgentThinking(agent string) {
	m.chat(func(h ChatHandler) { h.AgentThinking(agent) })
}

func (m *Multi) PublishAnswerChunk(agent string, chunk string) {
	m.chat(func(h ChatHandler) { h.PublishAnswerChunk(agent, chunk) })
}

func (m *Multi) MessageAppended(round int, name string, role string, content string) {
	m.chat(func(h ChatHandler) { h.MessageAppended(round, name, role, content) })
}

func (m *Multi) HistoryCleared(kept int) {
	m.chat(func(h ChatHandler) { h.HistoryCleared(kept) })
}

func (m *Multi) ChatFinished(state string, rounds int) {
	m.chat(func(h ChatHandler) { h.ChatFinished(state, rounds) })
}

func (m *Multi) Error(err error) {
	m.chat(func(h ChatHandler) { h.Error(err) })
}

func (m *Multi) BatchStarted(mode string, groupCount int) {
	m.exec(func(h ExecutionHandler) { h.BatchStarted(mode, groupCount) })
}

func (m *Multi) BatchFinished(success bool) {
	m.exec(func(h ExecutionHandler) { h.BatchFinished(success) })
}

func (m *Multi) GroupStarted(group string, description string, commandCount int) {
	m.exec(func(h ExecutionHandler) { h.GroupStarted(group, description, commandCount) })
}

func (m *Multi) CommandStarted(group string, command string, comment string, commandType string, interactive bool) {
	m.exec(func(h ExecutionHandler) { h.CommandStarted(group, command, comment, commandType, interactive) })
}

func (m *Multi) CommandOutput(group string, line string, stderr bool) {
	m.exec(func(h ExecutionHandler) { h.CommandOutput(group, line, stderr) })
}

func (m *Multi) CommandFinished(group string, command string, success bool, output string, errText string) {
	m.exec(func(h ExecutionHandler) { h.CommandFinished(group, command, success, output, errText) })
}

func (m *Multi) CommandSkipped(group string, command string, reason string) {
	m.exec(func(h ExecutionHandler) { h.CommandSkipped(group, command, reason) })
}

func (m *Multi) GroupFinished(group string, success bool) {
	m.exec(func(h ExecutionHandler) { h.GroupFinished(group, success) })
}

func (m *Multi) GroupDeclined(group string) {
	m.exec(func(h ExecutionHandler) { h.GroupDeclined(group) })
}

func (m *Multi) DependencyCycle(unresolved []string) {
	m.exec(func(h ExecutionHandler) { h.DependencyCycle(unresolved) })
}

func (m *Multi) ScriptSaved(path string) {
	m.exec(func(h ExecutionHandler) { h.ScriptSaved(path) })
}

func (m *Multi) RecoveryStarted(independent []string, dependent []string) {
	m.recovery(func(h RecoveryHandler) { h.RecoveryStarted(independent, dependent) })
}

func (m *Multi) PlanReceived(group string, analysis string, fixCount int, instructions string) {
	m.recovery(func(h RecoveryHandler) { h.PlanReceived(group, analysis, fixCount, instructions) })
}

func (m *Multi) FixStarted(group string, original string, fixed string, explanation string) {
	m.recovery(func(h RecoveryHandler) { h.FixStarted(group, original, fixed, explanation) })
}

func (m *Multi) FixFinished(group string, fixed string, success bool, errText string) {
	m.recovery(func(h RecoveryHandler) { h.FixFinished(group, fixed, success, errText) })
}

func (m *Multi) GroupRecovered(group string, repaired bool, reason string) {
	m.recovery(func(h RecoveryHandler) { h.GroupRecovered(group, repaired, reason) })
}

func (m *Multi) StageStarted(stage string, index, total int) {
	m.stage(func(h StageHandler) { h.StageStarted(stage, index, total) })
}

func (m *Multi) StageCompleted(stage string, summary string) {
	m.stage(func(h StageHandler) { h.StageCompleted(stage, summary) })
}

var (
	_ ChatHandler      = (*Multi)(nil)
	_ ExecutionHandler = (*Multi)(nil)
	_ RecoveryHandler  = (*Multi)(nil)
	_ StageHandler     = (*Multi)(nil)
)
