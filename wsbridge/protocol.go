package wsbridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"devcrew/store"
)

// MessageType identifies an envelope
type MessageType string

const (
	TypeRegister      MessageType = "register"
	TypeRegisterAck   MessageType = "register_ack"
	TypeHeartbeat     MessageType = "heartbeat"
	TypeHeartbeatAck  MessageType = "heartbeat_ack"
	TypeError         MessageType = "error"
	TypeChatEvent     MessageType = "chat_event"
	TypeExecEvent     MessageType = "execution_event"
	TypeGetConfig     MessageType = "get_config"
	TypeConfigResult  MessageType = "get_config_result"
	TypeGetRuns       MessageType = "get_runs"
	TypeRunsResult    MessageType = "get_runs_result"
	TypeGetRun        MessageType = "get_run"
	TypeRunResult     MessageType = "get_run_result"
	TypeGetExecutions MessageType = "get_executions"
	TypeExecsResult   MessageType = "get_executions_result"
)

// Envelope wraps every message exchanged with the viewer. Responses carry
// the RequestID of the request they answer.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func newEnvelope(t MessageType, requestID string, payload any) (*Envelope, error) {
	env := &Envelope{Type: t, RequestID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = data
	}
	return env, nil
}

// NewRequest creates an envelope with a fresh request ID
func NewRequest(t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, uuid.New().String(), payload)
}

// NewResponse creates the answer to requestID
func NewResponse(requestID string, t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, requestID, payload)
}

// NewEvent creates a one-way envelope
func NewEvent(t MessageType, payload any) (*Envelope, error) {
	return newEnvelope(t, "", payload)
}

// NewError creates an error answer to requestID
func NewError(requestID, code, message string) (*Envelope, error) {
	return newEnvelope(TypeError, requestID, &ErrorPayload{Code: code, Message: message})
}

// DecodePayload unmarshals the envelope payload into v
func DecodePayload(env *Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", env.Type)
	}
	return json.Unmarshal(env.Payload, v)
}

// =============================================================================
// Payloads
// =============================================================================

type RegisterPayload struct {
	InstanceName string         `json:"instanceName"`
	Version      string         `json:"version"`
	Config       InstanceConfig `json:"config"`
}

type RegisterAckPayload struct {
	Accepted   bool   `json:"accepted"`
	InstanceID string `json:"instanceId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type HeartbeatAckPayload struct{}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventPayload carries one chat or execution event. RunID links it to the
// stored chat run when persistence is enabled.
type EventPayload struct {
	RunID     string         `json:"runId,omitempty"`
	EventType string         `json:"eventType"`
	Data      map[string]any `json:"data,omitempty"`
}

type ConfigResultPayload struct {
	Config InstanceConfig `json:"config"`
}

type GetRunsPayload struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type RunsResultPayload struct {
	Runs  []store.ChatRun `json:"runs"`
	Total int             `json:"total"`
}

type GetRunPayload struct {
	RunID string `json:"runId"`
}

type RunResultPayload struct {
	Run      *store.ChatRun        `json:"run"`
	Messages []store.StoredMessage `json:"messages"`
}

type GetExecutionsPayload struct {
	RunID string `json:"runId"`
}

// ExecutionDetail is an execution with its command results
type ExecutionDetail struct {
	store.ExecutionInfo
	Commands []store.CommandRecord `json:"commands"`
}

type ExecutionsResultPayload struct {
	Executions []ExecutionDetail `json:"executions"`
}
