package prompts

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"devcrew/aitools"
)

//go:embed participant.md
var participantTemplate string

//go:embed tools.md
var toolsTemplate string

// Participant returns the system prompt introducing an agent to the chat
func Participant(name, description string) string {
	if description == "" {
		description = "contribute to the shared task"
	}
	return strings.NewReplacer("{{NAME}}", name, "{{DESCRIPTION}}", description).Replace(participantTemplate)
}

// Tools returns the tool-call instructions listing tools in name order
func Tools(tools []aitools.Tool) string {
	return strings.Replace(toolsTemplate, "{{TOOLS}}", formatTools(tools), 1)
}

func formatTools(tools []aitools.Tool) string {
	sorted := append([]aitools.Tool(nil), tools...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ToolName() < sorted[j].ToolName() })

	var sb strings.Builder
	for _, t := range sorted {
		sb.WriteString(fmt.Sprintf("### %s\n", t.ToolName()))
		sb.WriteString(fmt.Sprintf("%s\n", t.ToolDescription()))
		sb.WriteString(fmt.Sprintf("Input schema: %s\n\n", t.ToolPayloadSchema()))
	}
	return strings.TrimRight(sb.String(), "\n")
}
