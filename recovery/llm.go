package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"devcrew/llm"
)

// RepairPrompt is the system prompt given to the repair model
const RepairPrompt = `You repair failed shell command groups for a project scaffolding tool.
You receive the group name and description, every failed command with its error and output, and the full list of commands in the group.
Reply with a single JSON object and nothing else:
{
  "analysis": "what went wrong and why",
  "fixed_commands": [
    {"original_command": "...", "fixed_command": "...", "explanation": "..."}
  ],
  "additional_instructions": "anything the user must do by hand, or an empty string"
}
fixed_commands must contain every command needed to finish the group, in order, starting from the failed one.
Commands run non-interactively in bash from the project working directory; never use commands that wait for input.`

var jsonObject = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

// LLMRepairer asks a model for a JSON recovery plan
type LLMRepairer struct {
	session *llm.Session
}

// NewLLMRepairer wraps session, adding the repair system prompt
func NewLLMRepairer(session *llm.Session) *LLMRepairer {
	session.AddSystemPrompt(RepairPrompt)
	return &LLMRepairer{session: session}
}

func (r *LLMRepairer) Repair(ctx context.Context, req Request) (*Plan, error) {
	resp, err := r.session.Complete(ctx, []llm.Message{
		llm.NewTextMessage(llm.RoleUser, req.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("group '%s': %w", req.GroupName, err)
	}
	plan, err := ParsePlan(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("group '%s': %w", req.GroupName, err)
	}
	return plan, nil
}

// ParsePlan decodes a plan from model output, accepting a fenced block or
// the outermost JSON object
func ParsePlan(text string) (*Plan, error) {
	body := text
	if m := jsonObject.FindStringSubmatch(text); m != nil {
		body = m[1]
	} else if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		body = text[start : end+1]
	}

	var plan Plan
	if err := json.Unmarshal([]byte(body), &plan); err != nil {
		return nil, fmt.Errorf("parse recovery plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}
