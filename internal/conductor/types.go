// Package conductor supervises Claude CLI child processes. It spawns one child
// per agent, drives an NDJSON conversation over the child's standard streams,
// turns the child's stream-json output into typed events, and keeps the live
// children in a registry keyed by agent ID.
package conductor

import (
	"bytes"
	"encoding/json"
	"errors"
)

const (
	// DefaultAgentID is used whenever a caller does not name an agent.
	DefaultAgentID = "default"
	// EventTopic is the bus topic every conductor event is published on.
	EventTopic = "cli-event"
)

var (
	ErrNoActiveSession    = errors.New("No active session for this agent")
	ErrCLINotFound        = errors.New("Claude CLI not found. Make sure 'claude' is installed and in PATH.")
	ErrSessionLost        = errors.New("Session lost before first write")
	ErrPromptRequired     = errors.New("prompt is required")
	ErrInvalidProjectPath = errors.New("project path must be an existing directory")
	ErrShuttingDown       = errors.New("conductor is shutting down")
)

// EventType is the discriminator written as the "type" field of every event.
type EventType string

const (
	EventSessionID       EventType = "sessionId"
	EventStreamChunk     EventType = "streamChunk"
	EventMessageComplete EventType = "messageComplete"
	EventModelInfo       EventType = "modelInfo"
	EventUsageInfo       EventType = "usageInfo"
	EventToolUse         EventType = "toolUse"
	EventToolResult      EventType = "toolResult"
	EventTurnComplete    EventType = "turnComplete"
	EventProcessExited   EventType = "processExited"
	EventError           EventType = "error"
)

// Event is one item of an agent's event stream.
type Event interface {
	Type() EventType
	Agent() string
}

// SessionIDEvent reports the session ID announced by the child.
type SessionIDEvent struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`
}

// StreamChunkEvent carries the cumulative text of the current turn so far.
type StreamChunkEvent struct {
	AgentID string `json:"agent_id"`
	Text    string `json:"text"`
}

// MessageCompleteEvent carries the committed text of a finished turn.
type MessageCompleteEvent struct {
	AgentID string `json:"agent_id"`
	Text    string `json:"text"`
}

type ModelInfoEvent struct {
	AgentID string `json:"agent_id"`
	Model   string `json:"model"`
}

type UsageInfoEvent struct {
	AgentID      string  `json:"agent_id"`
	InputTokens  uint64  `json:"input_tokens"`
	OutputTokens uint64  `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ToolUseEvent is a tool invocation requested by the assistant. ToolInput is
// forwarded as decoded JSON and is nil when the child sent none.
type ToolUseEvent struct {
	AgentID   string `json:"agent_id"`
	ToolUseID string `json:"tool_use_id"`
	ToolName  string `json:"tool_name"`
	ToolInput any    `json:"tool_input"`
}

// ToolResultEvent is the outcome of a tool invocation. OutputPreview holds at
// most MaxPreviewChars characters.
type ToolResultEvent struct {
	AgentID       string `json:"agent_id"`
	ToolUseID     string `json:"tool_use_id"`
	OutputPreview string `json:"output_preview"`
	IsError       bool   `json:"is_error"`
}

// TurnCompleteEvent marks the end of one request/response cycle. The child is
// still alive and waiting for input.
type TurnCompleteEvent struct {
	AgentID string `json:"agent_id"`
}

// ProcessExitedEvent is published exactly once per started session.
type ProcessExitedEvent struct {
	AgentID  string `json:"agent_id"`
	ExitCode *int   `json:"exit_code"`
}

type ErrorEvent struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
}

func (e SessionIDEvent) Type() EventType       { return EventSessionID }
func (e StreamChunkEvent) Type() EventType     { return EventStreamChunk }
func (e MessageCompleteEvent) Type() EventType { return EventMessageComplete }
func (e ModelInfoEvent) Type() EventType       { return EventModelInfo }
func (e UsageInfoEvent) Type() EventType       { return EventUsageInfo }
func (e ToolUseEvent) Type() EventType         { return EventToolUse }
func (e ToolResultEvent) Type() EventType      { return EventToolResult }
func (e TurnCompleteEvent) Type() EventType    { return EventTurnComplete }
func (e ProcessExitedEvent) Type() EventType   { return EventProcessExited }
func (e ErrorEvent) Type() EventType           { return EventError }

func (e SessionIDEvent) Agent() string       { return e.AgentID }
func (e StreamChunkEvent) Agent() string     { return e.AgentID }
func (e MessageCompleteEvent) Agent() string { return e.AgentID }
func (e ModelInfoEvent) Agent() string       { return e.AgentID }
func (e UsageInfoEvent) Agent() string       { return e.AgentID }
func (e ToolUseEvent) Agent() string         { return e.AgentID }
func (e ToolResultEvent) Agent() string      { return e.AgentID }
func (e TurnCompleteEvent) Agent() string    { return e.AgentID }
func (e ProcessExitedEvent) Agent() string   { return e.AgentID }
func (e ErrorEvent) Agent() string           { return e.AgentID }

func (e SessionIDEvent) MarshalJSON() ([]byte, error) {
	type payload SessionIDEvent
	return marshalTagged(e.Type(), payload(e))
}

func (e StreamChunkEvent) MarshalJSON() ([]byte, error) {
	type payload StreamChunkEvent
	return marshalTagged(e.Type(), payload(e))
}

func (e MessageCompleteEvent) MarshalJSON() ([]byte, error) {
	type payload MessageCompleteEvent
	return marshalTagged(e.Type(), payload(e))
}

func (e ModelInfoEvent) MarshalJSON() ([]byte, error) {
	type payload ModelInfoEvent
	return marshalTagged(e.Type(), payload(e))
}

func (e UsageInfoEvent) MarshalJSON() ([]byte, error) {
	type payload UsageInfoEvent
	return marshalTagged(e.Type(), payload(e))
}

func (e ToolUseEvent) MarshalJSON() ([]byte, error) {
	type payload ToolUseEvent
	return marshalTagged(e.Type(), payload(e))
}

func (e ToolResultEvent) MarshalJSON() ([]byte, error) {
	type payload ToolResultEvent
	return marshalTagged(e.Type(), payload(e))
}

func (e TurnCompleteEvent) MarshalJSON() ([]byte, error) {
	type payload TurnCompleteEvent
	return marshalTagged(e.Type(), payload(e))
}

func (e ProcessExitedEvent) MarshalJSON() ([]byte, error) {
	type payload ProcessExitedEvent
	return marshalTagged(e.Type(), payload(e))
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type payload ErrorEvent
	return marshalTagged(e.Type(), payload(e))
}

// marshalTagged encodes payload as a flat JSON object with "type" as its first
// field.
func marshalTagged(kind EventType, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(string(kind))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 9)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Status is the lifecycle state of a registered session.
type Status int

const (
	StatusIdle Status = iota
	StatusThinking
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusThinking:
		return "thinking"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StartOptions are the inputs of the start command.
type StartOptions struct {
	AgentID     string `json:"agent_id,omitempty"`
	Prompt      string `json:"prompt"`
	ProjectPath string `json:"project_path,omitempty"`
	Model       string `json:"model,omitempty"`
}

// SendOptions are the inputs of the send command.
type SendOptions struct {
	AgentID string `json:"agent_id,omitempty"`
	Prompt  string `json:"prompt"`
}

// SessionInfo is a read-only snapshot of one registry entry.
type SessionInfo struct {
	AgentID string `json:"agent_id"`
	Status  Status `json:"status"`
	PID     int    `json:"pid"`
}

func resolveAgentID(agentID string) string {
	if agentID == "" {
		return DefaultAgentID
	}
	return agentID
}
