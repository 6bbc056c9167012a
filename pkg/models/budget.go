package models

import "time"

// BudgetRecord is one LLM call's cost accounting entry. Recording is
// idempotent on OperationID: a duplicate record() call for the same
// operation/provider/model is a no-op rather than a second row.
type BudgetRecord struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	OperationID     string    `json:"operation_id,omitempty"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	ReasoningEffort string    `json:"reasoning_effort,omitempty"`
	TokensIn        int64     `json:"tokens_in"`
	TokensOut       int64     `json:"tokens_out"`
	CostUSD         float64   `json:"cost_usd"`
	FromCache       bool      `json:"from_cache"`
	Timestamp       time.Time `json:"timestamp"`
}

// AuditSeverity ranks an AuditEvent.
type AuditSeverity string

const (
	SeverityDebug AuditSeverity = "debug"
	SeverityInfo  AuditSeverity = "info"
	SeverityWarn  AuditSeverity = "warn"
	SeverityError AuditSeverity = "error"
)

// AuditEventType classifies an AuditEvent.
type AuditEventType string

const (
	AuditAuthSuccess      AuditEventType = "auth_success"
	AuditAuthFailure      AuditEventType = "auth_failure"
	AuditToolCall         AuditEventType = "tool_call"
	AuditToolError        AuditEventType = "tool_error"
	AuditSessionStart     AuditEventType = "session_start"
	AuditSessionEnd       AuditEventType = "session_end"
	AuditRateLimited      AuditEventType = "rate_limited"
	AuditRequestRejected  AuditEventType = "request_rejected"
	AuditSecurityError    AuditEventType = "security_error"
)

// AuditEvent is one append-only audit-log row. Every authentication
// decision, tool call, and request rejection MUST produce an entry.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	Source      string         `json:"source"`
	Severity    AuditSeverity  `json:"severity"`
	ProjectPath string         `json:"project_path,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	RemoteAddr  string         `json:"remote_addr,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}
