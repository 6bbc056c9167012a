// Package routing implements the Tiered Model Router (C7): a
// deterministic classifier that maps one task's shape to a cost tier,
// plus a Router that turns a chosen tier into a provider/model pair.
// It is grounded on original_source/backend/src/llm/router/types.rs for
// the tier taxonomy and stats bookkeeping, and on teacher
// internal/agent/routing/{router,heuristic}.go for the Router's
// candidate-selection/unhealthy-cooldown shape.
package routing

import (
	"sync"
	"time"
)

// Tier is a cost/capability class the router assigns to a task.
type Tier string

const (
	TierFast    Tier = "fast"
	TierVoice   Tier = "voice"
	TierCode    Tier = "code"
	TierAgentic Tier = "agentic"
)

// DisplayName returns a human-readable label for logging.
func (t Tier) DisplayName() string {
	switch t {
	case TierFast:
		return "Fast"
	case TierVoice:
		return "Voice"
	case TierCode:
		return "Code"
	case TierAgentic:
		return "Agentic"
	default:
		return string(t)
	}
}

// CostMultiplier is an approximate cost multiplier relative to Fast.
// Stats does not use it (Record estimates savings from fixed
// per-million-token rates), and the provider's own ComputeCost is
// authoritative once a response is in hand.
func (t Tier) CostMultiplier() float64 {
	switch t {
	case TierFast:
		return 1.0
	case TierVoice, TierCode:
		return 5.0
	case TierAgentic:
		return 7.0
	default:
		return 1.0
	}
}

// Task describes one unit of work awaiting a tier decision.
type Task struct {
	ToolName        string
	OperationKind   string
	EstimatedTokens int64
	FileCount       int
	IsUserFacing    bool
	IsLongRunning   bool
	// TierOverride, when set, always wins over classification (spec §4.3).
	TierOverride *Tier
}

// NewTask returns a Task defaulted to user-facing chat, mirroring
// original_source's RoutingTask::new.
func NewTask() Task {
	return Task{IsUserFacing: true}
}

// FromTool returns a Task for a background tool call.
func FromTool(name string) Task {
	return Task{ToolName: name, IsUserFacing: false}
}

// WithOperation marks the task with an operation kind, clearing
// IsUserFacing the way original_source's with_operation does.
func (t Task) WithOperation(kind string) Task {
	t.OperationKind = kind
	t.IsUserFacing = false
	return t
}

// WithFiles sets the file count, clearing IsUserFacing once count > 0.
func (t Task) WithFiles(count int) Task {
	t.FileCount = count
	if count > 0 {
		t.IsUserFacing = false
	}
	return t
}

// WithTier forces tier.
func (t Task) WithTier(tier Tier) Task {
	t.TierOverride = &tier
	return t
}

// Thresholds are the deterministic cutoffs the classifier applies,
// overridable per deployment (spec §4.3's code_file_threshold /
// code_token_threshold).
type Thresholds struct {
	CodeFileThreshold  int
	CodeTokenThreshold int64
}

// DefaultThresholds mirrors spec.md's illustrative numeric defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{CodeFileThreshold: 3, CodeTokenThreshold: 8000}
}

var codeOperationKinds = map[string]struct{}{
	"refactor_multi_file":    {},
	"architecture_review":    {},
	"code_gen":               {},
	"refactor":               {},
	"debug":                  {},
}

var agenticOperationKinds = map[string]struct{}{
	"migration":           {},
	"full_implementation": {},
}

var fastToolNames = map[string]struct{}{
	"list_files":      {},
	"grep":             {},
	"search_codebase":  {},
}

// Stats accumulates per-tier request counts and estimated savings
// against an all-Agentic baseline, ported from original_source's
// RoutingStats.
type Stats struct {
	mu               sync.Mutex
	FastRequests     uint64
	VoiceRequests    uint64
	CodeRequests     uint64
	AgenticRequests  uint64
	EstimatedSavings float64
}

// Record logs one routing decision and its estimated cost savings
// versus routing the same call to the Agentic tier.
func (s *Stats) Record(tier Tier, tokens int64) {
	if tokens <= 0 {
		tokens = 10_000
	}
	agenticCost := float64(tokens) / 1_000_000 * 4.0
	var actualCost float64
	s.mu.Lock()
	defer s.mu.Unlock()
	switch tier {
	case TierFast:
		s.FastRequests++
		actualCost = float64(tokens) / 1_000_000 * 0.25
	case TierVoice:
		s.VoiceRequests++
		actualCost = float64(tokens) / 1_000_000 * 1.25
	case TierCode:
		s.CodeRequests++
		actualCost = float64(tokens) / 1_000_000 * 1.25
	case TierAgentic:
		s.AgenticRequests++
		actualCost = agenticCost
	}
	s.EstimatedSavings += agenticCost - actualCost
}

// TotalRequests returns the sum of all per-tier counters.
func (s *Stats) TotalRequests() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FastRequests + s.VoiceRequests + s.CodeRequests + s.AgenticRequests
}

// SavingsPercentage returns estimated savings as a percentage of what
// an all-Agentic baseline would have cost.
func (s *Stats) SavingsPercentage() float64 {
	s.mu.Lock()
	total := s.FastRequests + s.VoiceRequests + s.CodeRequests + s.AgenticRequests
	savings := s.EstimatedSavings
	s.mu.Unlock()
	baseline := float64(total) * 0.04
	if baseline == 0 {
		return 0
	}
	return savings / baseline * 100
}

// Snapshot is a point-in-time, lock-free copy of Stats for reporting.
type Snapshot struct {
	FastRequests     uint64
	VoiceRequests    uint64
	CodeRequests     uint64
	AgenticRequests  uint64
	EstimatedSavings float64
	RecordedAt       time.Time
}

// Snapshot copies the current counters under lock.
func (s *Stats) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		FastRequests:     s.FastRequests,
		VoiceRequests:    s.VoiceRequests,
		CodeRequests:     s.CodeRequests,
		AgenticRequests:  s.AgenticRequests,
		EstimatedSavings: s.EstimatedSavings,
		RecordedAt:       now,
	}
}
