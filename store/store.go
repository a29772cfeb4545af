package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a run or execution does not exist
var ErrNotFound = errors.New("not found")

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Bundle holds the stores for chat runs and command executions
type Bundle struct {
	Chats      ChatStore
	Executions ExecutionStore
	closer     func() error
}

// Close cleans up the bundle resources
func (b *Bundle) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// ChatStore tracks group chat runs and their message logs
type ChatStore interface {
	CreateRun(chatName string, participants []string) (id string, err error)
	AppendMessage(runID string, msg StoredMessage) error
	FinishRun(id, state string, rounds int, errMsg *string) error
	GetRun(id string) (*ChatRun, error)
	// ListRuns returns runs newest first together with the total count
	ListRuns(limit, offset int) ([]ChatRun, int, error)
	GetMessages(runID string) ([]StoredMessage, error)
}

// ChatRun describes one group chat run
type ChatRun struct {
	ID           string     `json:"id"`
	ChatName     string     `json:"chatName"`
	Participants []string   `json:"participants"`
	Status       string     `json:"status"`
	State        string     `json:"state,omitempty"`
	Rounds       int        `json:"rounds"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	Error        *string    `json:"error,omitempty"`
}

// StoredMessage is one message of a run's log
type StoredMessage struct {
	Seq       int       `json:"seq"`
	Round     int       `json:"round"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExecutionStore tracks command batch executions and per-command results
type ExecutionStore interface {
	// CreateExecution starts an execution record; runID may be empty
	CreateExecution(runID, mode string) (id string, err error)
	RecordCommand(executionID string, rec CommandRecord) error
	FinishExecution(id string, success bool) error
	GetExecution(id string) (*ExecutionInfo, error)
	GetCommands(executionID string) ([]CommandRecord, error)
	// ListExecutions returns the executions of a run, oldest first
	ListExecutions(runID string) ([]ExecutionInfo, error)
}

// ExecutionInfo describes one command batch execution
type ExecutionInfo struct {
	ID         string     `json:"id"`
	RunID      string     `json:"runId,omitempty"`
	Mode       string     `json:"mode"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Command outcomes
const (
	CommandSucceeded = "succeeded"
	CommandFailed    = "failed"
	CommandSkipped   = "skipped"
)

// CommandRecord is the persisted outcome of one command
type CommandRecord struct {
	Seq       int       `json:"seq"`
	Group     string    `json:"group"`
	Command   string    `json:"command"`
	Status    string    `json:"status"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func generateID() string {
	return uuid.New().String()
}

func finishedStatus(success bool) string {
	if success {
		return StatusCompleted
	}
	return StatusFailed
}
