package store

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// NewMemoryBundle creates a Bundle backed entirely by in-memory stores
func NewMemoryBundle() *Bundle {
	return &Bundle{
		Chats:      &MemoryChatStore{runs: make(map[string]*memRun)},
		Executions: &MemoryExecutionStore{executions: make(map[string]*memExecution)},
	}
}

// =============================================================================
// MemoryChatStore
// =============================================================================

type memRun struct {
	run      ChatRun
	messages []StoredMessage
}

type MemoryChatStore struct {
	mu   sync.Mutex
	runs map[string]*memRun
}

func (s *MemoryChatStore) CreateRun(chatName string, participants []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := generateID()
	s.runs[id] = &memRun{run: ChatRun{
		ID:           id,
		ChatName:     chatName,
		Participants: slices.Clone(participants),
		Status:       StatusRunning,
		StartedAt:    time.Now(),
	}}
	return id, nil
}

func (s *MemoryChatStore) AppendMessage(runID string, msg StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	msg.Seq = len(r.messages) + 1
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (s *MemoryChatStore) FinishRun(id, state string, rounds int, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	now := time.Now()
	r.run.Status = finishedStatus(errMsg == nil)
	r.run.State = state
	r.run.Rounds = rounds
	r.run.Error = errMsg
	r.run.FinishedAt = &now
	return nil
}

func (s *MemoryChatStore) GetRun(id string) (*ChatRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	run := r.run
	return &run, nil
}

func (s *MemoryChatStore) ListRuns(limit, offset int) ([]ChatRun, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]ChatRun, 0, len(s.runs))
	for _, r := range s.runs {
		all = append(all, r.run)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	total := len(all)
	if offset >= total {
		return []ChatRun{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (s *MemoryChatStore) GetMessages(runID string) ([]StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return slices.Clone(r.messages), nil
}

// =============================================================================
// MemoryExecutionStore
// =============================================================================

type memExecution struct {
	info     ExecutionInfo
	commands []CommandRecord
}

type MemoryExecutionStore struct {
	mu         sync.Mutex
	executions map[string]*memExecution
	order      []string
}

func (s *MemoryExecutionStore) CreateExecution(runID, mode string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := generateID()
	s.executions[id] = &memExecution{info: ExecutionInfo{
		ID:        id,
		RunID:     runID,
		Mode:      mode,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}}
	s.order = append(s.order, id)
	return id, nil
}

func (s *MemoryExecutionStore) RecordCommand(executionID string, rec CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}
	rec.Seq = len(e.commands) + 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	e.commands = append(e.commands, rec)
	return nil
}

func (s *MemoryExecutionStore) FinishExecution(id string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	now := time.Now()
	e.info.Status = finishedStatus(success)
	e.info.FinishedAt = &now
	return nil
}

func (s *MemoryExecutionStore) GetExecution(id string) (*ExecutionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	info := e.info
	return &info, nil
}

func (s *MemoryExecutionStore) GetCommands(executionID string) ([]CommandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrNotFound)
	}
	return slices.Clone(e.commands), nil
}

func (s *MemoryExecutionStore) ListExecutions(runID string) ([]ExecutionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ExecutionInfo
	for _, id := range s.order {
		if e := s.executions[id]; e.info.RunID == runID {
			out = append(out, e.info)
		}
	}
	return out, nil
}
