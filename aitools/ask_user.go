package aitools

import (
	"context"
	"encoding/json"
	"strings"

	"devcrew/streamers"
)

// AskUserTool forwards a question from an agent to the human operator
type AskUserTool struct {
	Input streamers.InputHandler
}

func NewAskUserTool(input streamers.InputHandler) *AskUserTool {
	return &AskUserTool{Input: input}
}

func (t *AskUserTool) ToolName() string {
	return "ask_user"
}

func (t *AskUserTool) ToolDescription() string {
	return "Asks the user a question and returns their answer. Use it when a detail needed for the project is missing or ambiguous."
}

func (t *AskUserTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"question": {
				Type:        TypeString,
				Description: "The question to ask the user",
			},
		},
		Required: []string{"question"},
	}
}

type askUserParams struct {
	Question string `json:"question"`
}

func (t *AskUserTool) Call(ctx context.Context, params string) string {
	var p askUserParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}
	if strings.TrimSpace(p.Question) == "" {
		return "Error: question is required"
	}
	if err := ctx.Err(); err != nil {
		return "Error: " + err.Error()
	}

	answer, err := t.Input.Ask(p.Question)
	if err != nil {
		return "Error: " + err.Error()
	}
	if strings.TrimSpace(answer) == "" {
		return "The user gave no answer."
	}
	return answer
}
