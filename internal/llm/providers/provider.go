// Package providers implements the LLM Provider Abstraction (C6): one
// adapter per backend, each translating between the router's internal
// Message/Tool shape and the wire format of its provider, and each
// responsible for computing its own tiered cost. It is grounded on the
// teacher's internal/agent/providers package for the adapter-per-backend
// shape and internal/usage for the cost-model shape, generalized from the
// teacher's streaming CompletionChunk channel to the spec's synchronous
// call_with_tools contract (§4.3): operations need one aggregated
// response per LLM call, not a token stream, to decide whether to loop.
package providers

import (
	"context"

	"github.com/getmira/mira-core/pkg/models"
)

// Message is one turn handed to a provider. Unlike models.Message (the
// store's append-only row), Message is a transient, in-memory shape built
// fresh for each call_with_tools invocation.
type Message struct {
	Role        models.Role
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolCallResult
}

// CallOptions configures one call_with_tools invocation.
type CallOptions struct {
	Model     string
	MaxTokens int
	// ReasoningEffort selects a reasoning-effort profile on providers that
	// support one (e.g. "low", "medium", "high", "xhigh" for the Agentic
	// tier). Providers that don't support tiered effort ignore it.
	ReasoningEffort string
}

// FinishReason mirrors the provider's stop reason for the loop driver.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Response is a provider's aggregated answer to one call_with_tools call.
type Response struct {
	Content      string
	ToolCalls    []models.ToolCall
	TokensIn     int64
	TokensOut    int64
	CachedTokens int64
	FinishReason FinishReason
	Cost         CostResult
}

// Model describes one model a provider can be asked to use.
type Model struct {
	ID             string
	Name           string
	ContextSize    int
	SupportsVision bool
	// ToolsUnsupported marks "reasoner"-style models that reject a tools
	// parameter outright; the router must force such calls onto a
	// tool-capable sibling when the task carries tools (spec §4.3).
	ToolsUnsupported bool
}

// Provider is one LLM backend adapter.
type Provider interface {
	Name() string
	Models() []Model
	SupportsTools() bool
	CallWithTools(ctx context.Context, messages []Message, tools []models.ToolDeclaration, opts CallOptions) (*Response, error)
}
