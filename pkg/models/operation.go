package models

import (
	"encoding/json"
	"time"
)

// OperationStatus is the lifecycle state of an Operation.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationPlanning  OperationStatus = "planning"
	OperationRunning   OperationStatus = "running"
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
	OperationCancelled OperationStatus = "cancelled"
)

// Terminal reports whether a status cannot transition further.
func (s OperationStatus) Terminal() bool {
	switch s {
	case OperationCompleted, OperationFailed, OperationCancelled:
		return true
	default:
		return false
	}
}

// Operation is one user turn driven end-to-end by the operation engine,
// possibly spanning multiple LLM calls and tool invocations.
//
// Invariant: for every operation that reaches a terminal state, exactly
// one of Result or Error is set.
type Operation struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	OperationType string          `json:"operation_type"`
	Request       string          `json:"request"`
	Status        OperationStatus `json:"status"`
	Result        string          `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     time.Time       `json:"started_at,omitempty"`
	CompletedAt   time.Time       `json:"completed_at,omitempty"`
}

// EventType discriminates the OperationEvent tagged union.
type EventType string

const (
	EventStarted       EventType = "started"
	EventStatusChanged EventType = "status_changed"
	EventStreaming     EventType = "streaming"
	EventToolExecuted  EventType = "tool_executed"
	EventCompleted     EventType = "completed"
	EventFailed        EventType = "failed"
)

// OperationEvent is one entry in an operation's append-only event log.
// Exactly one payload field is populated, selected by Type.
type OperationEvent struct {
	OperationID string    `json:"operation_id"`
	Type        EventType `json:"type"`
	Sequence    int64     `json:"sequence"`
	Time        time.Time `json:"time"`

	StatusChanged *StatusChangedPayload `json:"status_changed,omitempty"`
	Streaming     *StreamingPayload     `json:"streaming,omitempty"`
	ToolExecuted  *ToolExecutedPayload  `json:"tool_executed,omitempty"`
	Completed     *CompletedPayload     `json:"completed,omitempty"`
	Failed        *FailedPayload        `json:"failed,omitempty"`
}

// StatusChangedPayload records a lifecycle transition.
type StatusChangedPayload struct {
	Old OperationStatus `json:"old"`
	New OperationStatus `json:"new"`
}

// StreamingPayload carries one incremental chunk of assistant content.
type StreamingPayload struct {
	Content string `json:"content"`
}

// ToolExecutedPayload records one completed tool invocation.
type ToolExecutedPayload struct {
	ToolName string          `json:"tool_name"`
	ToolType string          `json:"tool_type,omitempty"`
	Summary  string          `json:"summary"`
	Success  bool            `json:"success"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// CompletedPayload carries the operation's final result.
type CompletedPayload struct {
	Result string `json:"result,omitempty"`
}

// FailedPayload carries a short, user-safe failure message. The full
// error detail goes to the audit log, not this payload.
type FailedPayload struct {
	Error string `json:"error"`
}
