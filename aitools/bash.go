package aitools

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"
)

// BashTool executes bash commands and returns the output
type BashTool struct {
	// Dir is the working directory commands run in
	Dir string
	// Timeout bounds a single command (0 means no limit)
	Timeout time.Duration
}

// NewBashTool creates a Bash tool running in dir
func NewBashTool(dir string) *BashTool {
	return &BashTool{Dir: dir}
}

func (t *BashTool) ToolName() string {
	return "bash"
}

func (t *BashTool) ToolDescription() string {
	return "Executes a single bash command in the project directory and returns its combined output. Use it for quick inspections such as listing files or reading versions."
}

func (t *BashTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"command": {
				Type:        TypeString,
				Description: "The bash command to execute",
			},
		},
		Required: []string{"command"},
	}
}

type bashParams struct {
	Command string `json:"command"`
}

func (t *BashTool) Call(ctx context.Context, params string) string {
	var p bashParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "Error: invalid parameters - " + err.Error()
	}

	if p.Command == "" {
		return "Error: command is required"
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", p.Command)
	cmd.Dir = t.Dir
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output) + "\nError: " + err.Error()
	}

	return string(output)
}
