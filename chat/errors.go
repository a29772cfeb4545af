package chat

import "errors"

var (
	// ErrTooFewAgents is a configuration error: a group chat needs two participants
	ErrTooFewAgents = errors.New("group chat requires at least 2 agents")
	// ErrSinkSpeaker is returned when the transition graph leaves the last speaker no successor
	ErrSinkSpeaker = errors.New("no transition allowed from last speaker")
	// ErrNoCapableAgent is returned when no participant can execute a pending tool call
	ErrNoCapableAgent = errors.New("no agent can execute the pending tool call")
	// ErrNoEligibleSpeaker ends a chat gracefully
	ErrNoEligibleSpeaker = errors.New("no eligible speaker")
	// ErrInterrupted is returned when an interrupt reaches a chat without an admin
	ErrInterrupted = errors.New("group chat interrupted")
	// ErrMissingMessages flags a custom selection that names an agent without a message slice
	ErrMissingMessages = errors.New("selection names an agent but no messages")
	// ErrUnknownAgent is returned for selections outside the participant set
	ErrUnknownAgent = errors.New("agent is not a participant")
)
