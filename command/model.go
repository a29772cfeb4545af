package command

import (
	"errors"
	"fmt"
)

// Type is the safety classification of a command
type Type string

const (
	TypeSafe      Type = "safe"
	TypeSystem    Type = "system"
	TypeDangerous Type = "dangerous"
	TypeNetwork   Type = "network"
)

var (
	// ErrInvalidBatch is returned for batches that fail schema validation
	ErrInvalidBatch = errors.New("invalid command batch")
	// ErrDependencyCycle is returned when no remaining group can become ready
	ErrDependencyCycle = errors.New("dependency cycle detected")
)

// Command is a single shell invocation proposed by an agent
type Command struct {
	Command     string `json:"command" yaml:"command"`
	Comment     string `json:"comment" yaml:"comment"`
	Interactive bool   `json:"interactive,omitempty" yaml:"interactive,omitempty"`
	Type        Type   `json:"type,omitempty" yaml:"type,omitempty"`
}

// Group is a named, dependency-ordered batch of commands with a single
// failure-isolation boundary
type Group struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Commands    []Command `json:"commands" yaml:"commands"`
	DependsOn   []string  `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Response is the structured payload an agent emits to request execution
type Response struct {
	Groups  []Group `json:"groups" yaml:"groups"`
	Summary string  `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Result is the outcome of one command. It is never mutated after creation.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error"`
	Skipped bool   `json:"skipped,omitempty"`
}

// FailedCommand binds a failing command to its result
type FailedCommand struct {
	Command string `json:"command"`
	Error   string `json:"error"`
	Result  Result `json:"result"`
}

// FailedGroup is the failure record consumed by recovery
type FailedGroup struct {
	GroupName      string          `json:"group_name"`
	Description    string          `json:"description"`
	FailedCommands []FailedCommand `json:"failed_commands"`
}

func (t Type) valid() bool {
	switch t {
	case TypeSafe, TypeSystem, TypeDangerous, TypeNetwork:
		return true
	}
	return false
}

// Group returns the group with the given name, or nil
func (r *Response) Group(name string) *Group {
	for i := range r.Groups {
		if r.Groups[i].Name == name {
			return &r.Groups[i]
		}
	}
	return nil
}

// Validate checks the batch schema: group names are present and unique,
// every command has text and a known classification, and dependencies
// reference groups of the same batch. Cycles are detected separately so
// that acyclic prefixes of a batch can still run.
func (r *Response) Validate() error {
	return r.validateWith(nil)
}

// validateWith also accepts dependencies on groups in external, which have
// completed in an earlier run.
func (r *Response) validateWith(external map[string]bool) error {
	if len(r.Groups) == 0 {
		return fmt.Errorf("%w: no command groups", ErrInvalidBatch)
	}

	names := make(map[string]bool, len(r.Groups))
	for _, g := range r.Groups {
		if g.Name == "" {
			return fmt.Errorf("%w: group name is required", ErrInvalidBatch)
		}
		if names[g.Name] {
			return fmt.Errorf("%w: duplicate group name '%s'", ErrInvalidBatch, g.Name)
		}
		names[g.Name] = true
	}

	for _, g := range r.Groups {
		for i, c := range g.Commands {
			if c.Command == "" {
				return fmt.Errorf("%w: group '%s': command %d is empty", ErrInvalidBatch, g.Name, i+1)
			}
			if c.Type != "" && !c.Type.valid() {
				return fmt.Errorf("%w: group '%s': unknown command type '%s'", ErrInvalidBatch, g.Name, c.Type)
			}
		}
		for _, dep := range g.DependsOn {
			if !names[dep] && !external[dep] {
				return fmt.Errorf("%w: group '%s' depends on unknown group '%s'", ErrInvalidBatch, g.Name, dep)
			}
		}
	}
	return nil
}
