// Package operation implements the Operation Engine (C11): the
// component that drives one user turn end-to-end through the
// lifecycle pending -> planning -> running -> {completed|failed|
// cancelled}, running the sequential tool-calling loop against the
// Model Router and the Tool Router, and recording budget + event-log
// side effects along the way (spec §4.4).
//
// It is grounded on the teacher's internal/agent/loop.go +
// internal/agent/runtime.go for the preflight/loop/finalize shape —
// generalized from the teacher's provider-failover Runtime to the
// spec's simpler single-router contract (internal/llm/routing.Router
// already owns failover) — and on
// internal/store/operations.go for the lifecycle/event-log storage
// this engine drives.
package operation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getmira/mira-core/internal/agent"
	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/internal/budget"
	"github.com/getmira/mira-core/internal/contextbuilder"
	"github.com/getmira/mira-core/internal/llm/providers"
	"github.com/getmira/mira-core/internal/llm/routing"
	"github.com/getmira/mira-core/internal/llmcache"
	"github.com/getmira/mira-core/internal/store"
	"github.com/getmira/mira-core/internal/tools/policy"
	"github.com/getmira/mira-core/pkg/models"
)

// MaxIterations is the hard safety bound on the tool-calling loop
// (spec §4.4.1). When the cap is reached with tool calls still
// pending, the loop terminates and the accumulated text is returned —
// the operation still completes, it does not fail.
const MaxIterations = 10

// preflightCostEstimate is the conservative per-call cost assumed by
// the preflight budget check, before any provider has actually been
// called. A zero estimate would let a $0.00 daily cap silently admit
// the first call (0 + 0 is not > 0); spec §8 scenario 5 requires the
// cap to reject outright, so preflight must assume a call costs
// something.
const preflightCostEstimate = 0.0001

// Engine wires the Operation Engine's dependencies: the store (C1) for
// lifecycle/event persistence, the Model Router (C7) for LLM calls,
// the Budget Tracker (C8), the Tool Registry (C10) for routing tool
// calls, the LLM Cache (C9, optional), and the Context Builder (C12)
// for prompt assembly.
type Engine struct {
	Store   *store.Store
	Router  *routing.Router
	Budget  *budget.Tracker
	Tools   *agent.ToolRegistry
	Cache   *llmcache.Cache // nil disables caching; every method degrades to a miss
	Builder *contextbuilder.Builder
	Now     func() time.Time

	// MaxIterations overrides the package default; zero uses it.
	MaxIterations int
}

func (e *Engine) maxIterations() int {
	if e.MaxIterations > 0 {
		return e.MaxIterations
	}
	return MaxIterations
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Request scopes one operation run.
type Request struct {
	Operation  *models.Operation
	UserID     string
	ProjectID  string
	AccessMode models.ToolAccessMode
	ToolPolicy *policy.Policy
	Resolver   *policy.Resolver
	Task       routing.Task

	ProviderID      string
	ReasoningEffort string
}

// Start runs req.Operation to completion (or failure, or cancellation),
// synchronously, emitting the full Started/StatusChanged/Streaming/
// ToolExecuted/Completed/Failed event sequence through the store's
// event log. The returned error is nil iff the operation reached
// completed.
func (e *Engine) Start(ctx context.Context, req Request) (string, error) {
	op := req.Operation
	seq := new(int64)

	if err := e.emit(ctx, op.ID, seq, &models.OperationEvent{Type: models.EventStarted}); err != nil {
		return "", err
	}

	old, err := e.Store.UpdateOperationStatus(ctx, op.ID, models.OperationPlanning, nil)
	if err != nil {
		return "", err
	}
	if err := e.emit(ctx, op.ID, seq, &models.OperationEvent{
		Type:          models.EventStatusChanged,
		StatusChanged: &models.StatusChangedPayload{Old: old, New: models.OperationPlanning},
	}); err != nil {
		return "", err
	}

	result, runErr := e.runInner(ctx, req, seq)
	if runErr != nil {
		e.guardFailure(ctx, op.ID, seq, runErr)
		return "", runErr
	}

	done, err := e.Store.CompleteOperation(ctx, op.ID, result, sql.NullTime{Time: e.now(), Valid: true})
	if err != nil {
		return result, err
	}
	if done {
		if err := e.emit(ctx, op.ID, seq, &models.OperationEvent{
			Type:      models.EventCompleted,
			Completed: &models.CompletedPayload{Result: result},
		}); err != nil {
			return result, err
		}
	}
	return result, nil
}

// guardFailure is the outer error guard (spec §4.4): any error from
// runInner MUST produce a Failed event before it propagates, unless
// the operation is already terminal. Cancellation transitions the
// store row to cancelled rather than failed; every other error
// transitions to failed. Either way exactly one terminal event is
// emitted, and a second call on an already-terminal operation is a
// silent no-op (finalizeOperation's idempotency, surfaced here via the
// done return value).
func (e *Engine) guardFailure(ctx context.Context, opID string, seq *int64, runErr error) {
	msg := runErr.Error()
	completedAt := sql.NullTime{Time: e.now(), Valid: true}

	var done bool
	var err error
	if isCancellation(runErr) {
		done, err = e.Store.CancelOperation(ctx, opID, completedAt)
	} else {
		done, err = e.Store.FailOperation(ctx, opID, msg, completedAt)
	}
	if err != nil || !done {
		return
	}
	_ = e.emit(ctx, opID, seq, &models.OperationEvent{
		Type:   models.EventFailed,
		Failed: &models.FailedPayload{Error: msg},
	})
}

func isCancellation(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var appErr *apperr.Error
	return errors.As(err, &appErr) && appErr.Kind == apperr.Cancelled
}

// runInner implements spec §4.4.1's preflight/loop/finalize exactly.
// The planning->running transition is implicit (no event is emitted
// for it — only Started and one StatusChanged appear in the event log
// for the no-tool-calls path, per spec §8 scenario 1) once context is
// built and the loop begins.
func (e *Engine) runInner(ctx context.Context, req Request, seq *int64) (string, error) {
	op := req.Operation

	if err := e.Budget.CheckLimits(ctx, req.UserID, preflightCostEstimate, 0); err != nil {
		e.auditRejected(ctx, req, err)
		return "", err
	}

	built, err := e.Builder.Build(ctx, contextbuilder.Input{
		SessionID:  op.SessionID,
		ProjectID:  req.ProjectID,
		Query:      op.Request,
		AccessMode: req.AccessMode,
	})
	if err != nil {
		return "", err
	}

	messages := append([]providers.Message{}, built.Messages...)
	messages = append(messages, providers.Message{Role: models.RoleUser, Content: op.Request})
	if _, err := e.Store.AppendMessage(ctx, &models.Message{
		SessionID: op.SessionID, Role: models.RoleUser, Content: op.Request, CreatedAt: e.now(),
	}); err != nil {
		return "", err
	}

	tools := e.Tools.AsLLMTools()
	tools = agent.FilterByPolicy(req.Resolver, req.ToolPolicy, tools)
	toolDecls, err := declarationsFor(tools)
	if err != nil {
		return "", err
	}

	// planning -> running happens here, by entering the tool-calling
	// loop (spec §4.4): the stored row advances and StartedAt is set,
	// but no StatusChanged event fires for it — spec §8 scenario 1
	// expects exactly one StatusChanged event (pending->planning) in
	// the no-tool-calls path.
	if _, err := e.Store.UpdateOperationStatus(ctx, op.ID, models.OperationRunning, &sql.NullTime{Time: e.now(), Valid: true}); err != nil {
		return "", err
	}

	callOpts := providers.CallOptions{ReasoningEffort: req.ReasoningEffort}

	var finalText string
	var totalIn, totalOut int64
	var totalCost float64
	var lastDecision routing.Decision
	iter := 0
	hitIterationCap := false

	for {
		iter++
		if ctx.Err() != nil {
			return "", apperr.New(apperr.Cancelled, "operation cancelled")
		}
		if iter > e.maxIterations() {
			hitIterationCap = true
			break
		}

		resp, decision, fromCache, err := e.callWithCache(ctx, req, messages, toolDecls, callOpts)
		if err != nil {
			return "", err
		}
		if decision.Model != "" {
			lastDecision = decision
		}
		totalIn += resp.TokensIn
		totalOut += resp.TokensOut
		if !fromCache {
			totalCost += resp.Cost.USD
		}

		if resp.Content != "" {
			if err := e.emit(ctx, op.ID, seq, &models.OperationEvent{
				Type:      models.EventStreaming,
				Streaming: &models.StreamingPayload{Content: resp.Content},
			}); err != nil {
				return "", err
			}
			finalText += resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			break
		}

		messages = append(messages, providers.Message{
			Role: models.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls,
		})
		if _, err := e.Store.AppendMessage(ctx, &models.Message{
			SessionID: op.SessionID, Role: models.RoleAssistant, Content: resp.Content, CreatedAt: e.now(),
		}); err != nil {
			return "", err
		}

		for _, tc := range resp.ToolCalls {
			if ctx.Err() != nil {
				return "", apperr.New(apperr.Cancelled, "operation cancelled")
			}

			// spec §4.4.1 emits ToolExecuted with a success=true
			// placeholder before the call result is known; the
			// actual outcome is visible in the following ToolResult
			// message regardless of what this event reports.
			if err := e.emit(ctx, op.ID, seq, &models.OperationEvent{
				Type: models.EventToolExecuted,
				ToolExecuted: &models.ToolExecutedPayload{
					ToolName: tc.Name,
					ToolType: "builtin",
					Summary:  summarizeArgs(tc.Arguments),
					Success:  true,
				},
			}); err != nil {
				return "", err
			}

			result, _ := e.Tools.Execute(ctx, tc.Name, tc.Arguments)
			serialized := serializeToolResult(result)

			messages = append(messages, providers.Message{
				Role:        models.RoleTool,
				Content:     serialized,
				ToolResults: []models.ToolCallResult{{ToolCallID: tc.ID, Content: serialized, IsError: result.IsError}},
			})
			if _, err := e.Store.AppendMessage(ctx, &models.Message{
				SessionID: op.SessionID, Role: models.RoleTool, Content: serialized,
				ToolCallID: tc.ID, ToolName: tc.Name, CreatedAt: e.now(),
			}); err != nil {
				return "", err
			}
		}
	}

	providerID := req.ProviderID
	if providerID == "" {
		providerID = lastDecision.Provider
	}
	model := callOpts.Model
	if model == "" {
		model = lastDecision.Model
	}

	if hitIterationCap {
		_ = e.Store.AppendAudit(ctx, &models.AuditEvent{
			Timestamp: e.now(),
			EventType: models.AuditToolError,
			Source:    "operation_engine",
			Severity:  models.SeverityWarn,
			Details:   map[string]any{"operation_id": op.ID, "reason": "iteration_cap"},
		})
	}

	if err := e.Budget.RecordRequest(ctx, budget.Request{
		UserID: req.UserID, OperationID: op.ID, Provider: providerID, Model: model,
		ReasoningEffort: req.ReasoningEffort, TokensIn: totalIn, TokensOut: totalOut,
		CostUSD: totalCost, FromCache: false,
	}); err != nil {
		return "", err
	}

	return finalText, nil
}

// callWithCache consults the LLM Cache before routing to a provider
// (spec §4.5): a hit skips the call, is recorded with from_cache=true
// and cost=0, and is never charged against the budget preflight
// estimate (the estimate, being conservative, still holds).
func (e *Engine) callWithCache(ctx context.Context, req Request, messages []providers.Message, tools []models.ToolDeclaration, opts providers.CallOptions) (resp *providers.Response, decision routing.Decision, fromCache bool, err error) {
	fingerprint, fpErr := llmcache.Fingerprint(req.ProviderID, opts.Model, req.ReasoningEffort, messages, tools)
	if fpErr == nil && e.Cache != nil {
		if cached, ok := e.Cache.Get(fingerprint); ok {
			if err := e.Budget.RecordRequest(ctx, budget.Request{
				UserID: req.UserID, OperationID: req.Operation.ID, Provider: req.ProviderID, Model: opts.Model,
				ReasoningEffort: req.ReasoningEffort, TokensIn: cached.TokensIn, TokensOut: cached.TokensOut,
				CostUSD: 0, FromCache: true,
			}); err != nil {
				return nil, routing.Decision{}, false, err
			}
			return cached, routing.Decision{}, true, nil
		}
	}

	resp, decision, err = e.Router.CallWithTools(ctx, req.Task, messages, tools, opts)
	if err != nil {
		return nil, decision, false, err
	}
	if fpErr == nil && e.Cache != nil {
		e.Cache.Put(fingerprint, resp)
	}
	return resp, decision, false, nil
}

func (e *Engine) auditRejected(ctx context.Context, req Request, cause error) {
	_ = e.Store.AppendAudit(ctx, &models.AuditEvent{
		Timestamp: e.now(),
		EventType: models.AuditRequestRejected,
		Source:    "operation_engine",
		Severity:  models.SeverityWarn,
		Details:   map[string]any{"operation_id": req.Operation.ID, "user_id": req.UserID, "reason": cause.Error()},
	})
}

func (e *Engine) emit(ctx context.Context, opID string, seq *int64, ev *models.OperationEvent) error {
	ev.OperationID = opID
	ev.Sequence = atomic.AddInt64(seq, 1)
	ev.Time = e.now()
	return e.Store.AppendOperationEvent(ctx, ev)
}

func summarizeArgs(args json.RawMessage) string {
	s := string(args)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}

// serializeToolResult matches spec §4.4.2's route() contract: a
// successful ToolResult serializes to {"success":true,"content":...};
// an error result (including "tool not found", which ToolRegistry.
// Execute already returns as a recoverable error rather than a Go
// error) serializes to {"success":false,"error":...} so the model can
// self-correct instead of the operation aborting.
func serializeToolResult(result *agent.ToolResult) string {
	if result == nil {
		b, _ := json.Marshal(map[string]any{"success": false, "error": "tool returned no result"})
		return string(b)
	}
	if result.IsError {
		b, _ := json.Marshal(map[string]any{"success": false, "error": result.Content})
		return string(b)
	}
	payload := map[string]any{"success": true, "content": result.Content}
	if len(result.Artifacts) > 0 {
		payload["artifacts"] = result.Artifacts
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

// declarationsFor normalizes the registry's agent.Tool capability
// objects into the provider-neutral models.ToolDeclaration shape
// (spec §4.3): each Tool's JSON-schema Schema() is decoded straight
// into ToolParameterSchema, since both shapes already agree on
// {type, properties, required}.
func declarationsFor(tools []agent.Tool) ([]models.ToolDeclaration, error) {
	out := make([]models.ToolDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema models.ToolParameterSchema
		if err := json.Unmarshal(t.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("operation: decode schema for tool %q: %w", t.Name(), err)
		}
		out = append(out, models.ToolDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  schema,
		})
	}
	return out, nil
}
