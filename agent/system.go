package agent

import (
	"context"

	"devcrew/chat"
)

// SystemAgent injects fixed content, such as a task statement, whenever it
// is selected. Without content it ends the chat.
type SystemAgent struct {
	name        string
	description string
	content     string
}

func NewSystemAgent(name, description, content string) *SystemAgent {
	return &SystemAgent{name: name, description: description, content: content}
}

func (s *SystemAgent) Name() string                    { return s.name }
func (s *SystemAgent) Description() string             { return s.description }
func (s *SystemAgent) Kind() chat.Kind                 { return chat.KindSystem }
func (s *SystemAgent) Capabilities() chat.Capabilities { return chat.Capabilities{} }

func (s *SystemAgent) Receive(context.Context, chat.Message) error {
	return nil
}

func (s *SystemAgent) Generate(_ context.Context, msgs []chat.Message) (*chat.Message, error) {
	if s.content == "" {
		return nil, nil
	}
	return &chat.Message{Role: chat.RoleSystem, Name: s.name, Content: s.content}, nil
}

var _ chat.Agent = (*SystemAgent)(nil)
