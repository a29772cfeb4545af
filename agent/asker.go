package agent

import (
	"context"
	"fmt"
	"strings"

	"devcrew/chat"
	"devcrew/llm"
	"devcrew/streamers"
)

// InputAsker adapts a blocking input handler to the chat's Asker
func InputAsker(input streamers.InputHandler) chat.Asker {
	return chat.AskFunc(func(ctx context.Context, question string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return input.Ask(question)
	})
}

// SelectionModel backs auto speaker selection with session. The session
// speaks as the selector in the exchange it is given.
func SelectionModel(session *llm.Session) chat.CompletionFunc {
	return func(ctx context.Context, msgs []chat.Message) (string, error) {
		resp, err := session.Complete(ctx, toHistory(msgs, chat.SelectorName))
		if err != nil {
			return "", fmt.Errorf("selection model: %w", err)
		}
		return strings.TrimSpace(resp.Content), nil
	}
}
