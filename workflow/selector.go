package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"devcrew/chat"
	"devcrew/command"
	"devcrew/streamers"
)

// summaryHeading introduces the hand-off notes a stage agent writes for the team
const summaryHeading = "summary for the team:"

// ErrNoDescription is returned when the extractor's answer has no numbered description
var ErrNoDescription = errors.New("project description not found in the extractor reply")

var stageSucceeded = chat.ExitStatusTermination(0)

// StageEvent reports stage progress to a StageSelector's observer
type StageEvent struct {
	Stage   string
	Index   int
	Total   int
	Done    bool
	Summary string
}

// NotifyStages returns a stage observer that forwards to handlers
func NotifyStages(handlers ...streamers.StageHandler) func(StageEvent) {
	return func(ev StageEvent) {
		for _, h := range handlers {
			if ev.Done {
				h.StageCompleted(ev.Stage, ev.Summary)
			} else {
				h.StageStarted(ev.Stage, ev.Index, ev.Total)
			}
		}
	}
}

// StageSelector routes a build chat through a fixed sequence of stages. Each
// stage agent's reply goes to the executor; a successful run hands the next
// stage a log of stage summaries instead of the raw conversation, a failed
// run goes back to the same stage agent.
type StageSelector struct {
	initializer string
	executor    string
	stages      []string
	observe     func(StageEvent)

	mu        sync.Mutex
	summaries []chat.Message
	completed []string
}

// NewStageSelector creates a selector for stages run in order. observe may be nil.
func NewStageSelector(initializer, executor string, stages []string, observe func(StageEvent)) (*StageSelector, error) {
	if len(stages) == 0 {
		return nil, errors.New("at least one stage is required")
	}
	names := append([]string{initializer, executor}, stages...)
	for i, n := range names {
		if n == "" {
			return nil, errors.New("stage selector names must not be empty")
		}
		if slices.Contains(names[:i], n) {
			return nil, fmt.Errorf("'%s' is used twice", n)
		}
	}
	return &StageSelector{
		initializer: initializer,
		executor:    executor,
		stages:      stages,
		observe:     observe,
	}, nil
}

// Summaries returns a copy of the summary log
func (s *StageSelector) Summaries() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.summaries)
}

// Completed returns the stages that finished, in order
func (s *StageSelector) Completed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.completed)
}

// Select implements chat.SelectFunc
func (s *StageSelector) Select(_ context.Context, last chat.Agent, state *chat.ChatState) (chat.Selection, error) {
	if last == nil || len(state.Messages) == 0 {
		return chat.Selection{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch name := last.Name(); {
	case name == s.initializer:
		s.summaries = append(s.summaries, state.Messages[0])
		s.notify(StageEvent{Stage: s.stages[0], Index: 0})
		return s.pick(state, s.stages[0], state.Messages)

	case slices.Contains(s.stages, name):
		return s.pick(state, s.executor, state.Messages)

	case name == s.executor:
		if len(state.Messages) < 2 {
			return chat.Selection{}, fmt.Errorf("executor '%s' replied without a stage message", name)
		}
		prev := state.Messages[len(state.Messages)-2]
		idx := slices.Index(s.stages, prev.Name)
		if idx < 0 {
			return chat.Selection{}, fmt.Errorf("executor '%s' replied to '%s', which is not a stage", name, prev.Name)
		}
		if !stageSucceeded(state.Messages[len(state.Messages)-1]) {
			return s.pick(state, prev.Name, state.Messages)
		}

		summary := ExtractSummary(prev)
		s.summaries = append(s.summaries, chat.Message{
			Role:    chat.RoleAssistant,
			Name:    prev.Name,
			Content: fmt.Sprintf("Summary from %s:\n%s", prev.Name, summary),
		})
		s.completed = append(s.completed, prev.Name)
		s.notify(StageEvent{Stage: prev.Name, Index: idx, Done: true, Summary: summary})

		if idx == len(s.stages)-1 {
			return chat.Selection{}, nil
		}
		next := s.stages[idx+1]
		s.notify(StageEvent{Stage: next, Index: idx + 1})
		sel, err := s.pick(state, next, slices.Clone(s.summaries))
		sel.ClearLog = true
		return sel, err
	}
	return chat.Selection{}, nil
}

func (s *StageSelector) pick(state *chat.ChatState, name string, msgs []chat.Message) (chat.Selection, error) {
	for _, a := range state.Agents {
		if a.Name() == name {
			return chat.Selection{Agent: a, Messages: msgs}, nil
		}
	}
	return chat.Selection{}, fmt.Errorf("%w: '%s'", chat.ErrUnknownAgent, name)
}

func (s *StageSelector) notify(ev StageEvent) {
	if s.observe == nil {
		return
	}
	ev.Total = len(s.stages)
	s.observe(ev)
}

// ExtractSummary returns the hand-off notes of a stage reply: the text under
// "Summary for the team:", else the batch summary, else the whole reply.
func ExtractSummary(msg chat.Message) string {
	if i := strings.Index(strings.ToLower(msg.Content), summaryHeading); i >= 0 {
		if s := strings.TrimSpace(msg.Content[i+len(summaryHeading):]); s != "" {
			return s
		}
	}
	if batch, ok := msg.Payload.(*command.Response); ok && batch != nil && batch.Summary != "" {
		return batch.Summary
	}
	if batch, err := command.ParseReply(msg.Content); err == nil && batch.Summary != "" {
		return batch.Summary
	}
	return strings.TrimSpace(msg.Content)
}

// ExtractDescription returns the numbered project description of an
// extractor reply, from "1." up to the TERMINATE line
func ExtractDescription(content string) (string, error) {
	start := strings.Index(content, "1.")
	if start < 0 {
		return "", ErrNoDescription
	}
	desc := content[start:]
	if end := strings.Index(desc, "\n"+chat.DefaultMarker); end >= 0 {
		desc = desc[:end]
	}
	desc = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(desc), chat.DefaultMarker))
	if desc == "" {
		return "", ErrNoDescription
	}
	return desc, nil
}
