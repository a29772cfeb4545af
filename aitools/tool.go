package aitools

import "context"

// Tool defines the interface for tools a proxy agent executes on behalf of
// the model agents in a chat
type Tool interface {
	// ToolName returns the name of the tool
	ToolName() string

	// ToolDescription returns a description of what the tool does
	ToolDescription() string

	// ToolPayloadSchema returns the JSON schema for the tool's input parameters
	ToolPayloadSchema() Schema

	// Call executes the tool with the given JSON parameters and returns a stringified response
	Call(ctx context.Context, params string) string
}

// Find returns the tool named name, or nil
func Find(tools []Tool, name string) Tool {
	for _, t := range tools {
		if t.ToolName() == name {
			return t
		}
	}
	return nil
}

// Names returns the names of tools in order
func Names(tools []Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.ToolName())
	}
	return names
}
