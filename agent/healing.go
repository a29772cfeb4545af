package agent

import (
	"strings"

	"devcrew/llm"
)

// pendingToolNote is appended when the visible history ends on a tool request
// that nobody answered, for example after the log was cleared or the selector
// handed the turn back to the requester
const pendingToolNote = "Observation unavailable: your last tool request was not executed. Repeat it if you still need the result."

// healHistory makes a history ending on the agent's own unanswered tool
// request safe to send: providers expect the conversation to end on a user turn.
func healHistory(msgs []llm.Message) []llm.Message {
	if len(msgs) == 0 {
		return msgs
	}
	last := msgs[len(msgs)-1]
	if last.Role == llm.RoleAssistant && strings.Contains(last.Content, actionOpen) {
		return append(msgs, llm.NewTextMessage(llm.RoleUser, pendingToolNote))
	}
	return msgs
}
