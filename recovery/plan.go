package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devcrew/command"
)

// ErrEmptyPlan is returned when a repair collaborator proposes no fixes
var ErrEmptyPlan = errors.New("recovery plan contains no fixes")

// Fix replaces one failed command
type Fix struct {
	OriginalCommand string `json:"original_command"`
	FixedCommand    string `json:"fixed_command"`
	Explanation     string `json:"explanation"`
}

// Plan is a structured repair proposal for one failed group
type Plan struct {
	Analysis               string `json:"analysis"`
	FixedCommands          []Fix  `json:"fixed_commands"`
	AdditionalInstructions string `json:"additional_instructions,omitempty"`
}

// Validate checks that the plan can be applied
func (p *Plan) Validate() error {
	if len(p.FixedCommands) == 0 {
		return ErrEmptyPlan
	}
	for i, f := range p.FixedCommands {
		if strings.TrimSpace(f.FixedCommand) == "" {
			return fmt.Errorf("fix %d: fixed_command is empty", i+1)
		}
	}
	return nil
}

// Request is the context handed to a repair collaborator
type Request struct {
	GroupName      string
	Description    string
	FailedCommands []command.FailedCommand
	// Commands is the group's full original command list
	Commands []command.Command
}

// NewRequest assembles the repair context for a failed group of resp
func NewRequest(resp *command.Response, failed command.FailedGroup) Request {
	req := Request{
		GroupName:      failed.GroupName,
		Description:    failed.Description,
		FailedCommands: failed.FailedCommands,
	}
	if g := resp.Group(failed.GroupName); g != nil {
		req.Commands = g.Commands
		if req.Description == "" {
			req.Description = g.Description
		}
	}
	return req
}

// String renders the request as the prompt body sent to a model
func (r Request) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Group: %s\n", r.GroupName)
	fmt.Fprintf(&b, "Description: %s\n\n", r.Description)

	b.WriteString("Failed commands:\n")
	for _, fc := range r.FailedCommands {
		fmt.Fprintf(&b, "- Command: %s\n", fc.Command)
		fmt.Fprintf(&b, "  Error: %s\n", strings.TrimSpace(fc.Error))
		if out := strings.TrimSpace(fc.Result.Output); out != "" {
			fmt.Fprintf(&b, "  Output: %s\n", out)
		}
	}

	b.WriteString("\nAll commands in the group:\n")
	for i, c := range r.Commands {
		fmt.Fprintf(&b, "%d. %s", i+1, c.Command)
		if c.Comment != "" {
			fmt.Fprintf(&b, "  # %s", c.Comment)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Repairer proposes fixes for a failed group
type Repairer interface {
	Repair(ctx context.Context, req Request) (*Plan, error)
}

// RepairFunc adapts a function to Repairer
type RepairFunc func(ctx context.Context, req Request) (*Plan, error)

func (f RepairFunc) Repair(ctx context.Context, req Request) (*Plan, error) {
	return f(ctx, req)
}
