// Package builderrors implements the build-error lookup tools spec §4's
// Tool Router requires: find_similar_fixes and record_error_fix. Both
// wrap internal/store's already-scaffolded build_error_fixes table.
package builderrors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/getmira/mira-core/internal/agent"
	"github.com/getmira/mira-core/internal/store"
)

// Toolset bundles the build-error tools.
type Toolset struct {
	Store *store.Store
}

// Tools returns both build-error tools ready for registration.
func (t Toolset) Tools() []agent.Tool {
	return []agent.Tool{
		&findSimilarFixesTool{store: t.Store},
		&recordErrorFixTool{store: t.Store},
	}
}

func errResult(format string, args ...any) *agent.ToolResult {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

func jsonResult(v any) *agent.ToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return errResult("failed to marshal result: %v", err)
	}
	return &agent.ToolResult{Content: string(b)}
}

type findSimilarFixesTool struct{ store *store.Store }

func (t *findSimilarFixesTool) Name() string { return "find_similar_fixes" }
func (t *findSimilarFixesTool) Description() string {
	return "Finds previously recorded fixes for a similar build or runtime error."
}
func (t *findSimilarFixesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"},
    "error_signature": {"type": "string", "description": "A normalized substring of the error to match against"},
    "limit": {"type": "integer"}
  },
  "required": ["project_id", "error_signature"]
}`)
}

func (t *findSimilarFixesTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID      string `json:"project_id"`
		ErrorSignature string `json:"error_signature"`
		Limit          int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.ErrorSignature) == "" {
		return errResult("error_signature is required"), nil
	}
	if input.Limit <= 0 {
		input.Limit = 10
	}

	fixes, err := t.store.FindSimilarFixes(ctx, input.ProjectID, input.ErrorSignature, input.Limit)
	if err != nil {
		return errResult("lookup failed: %v", err), nil
	}
	return jsonResult(map[string]any{"fixes": fixes}), nil
}

type recordErrorFixTool struct{ store *store.Store }

func (t *recordErrorFixTool) Name() string        { return "record_error_fix" }
func (t *recordErrorFixTool) Description() string { return "Records an error and the fix that resolved it, for future recall." }
func (t *recordErrorFixTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"},
    "error_signature": {"type": "string"},
    "error_text": {"type": "string"},
    "fix_description": {"type": "string"},
    "file_path": {"type": "string"}
  },
  "required": ["project_id", "error_signature", "fix_description"]
}`)
}

func (t *recordErrorFixTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID      string `json:"project_id"`
		ErrorSignature string `json:"error_signature"`
		ErrorText      string `json:"error_text"`
		FixDescription string `json:"fix_description"`
		FilePath       string `json:"file_path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.ErrorSignature) == "" || strings.TrimSpace(input.FixDescription) == "" {
		return errResult("error_signature and fix_description are required"), nil
	}

	fix := &store.BuildErrorFix{
		ID:             uuid.New().String(),
		ProjectID:      input.ProjectID,
		ErrorSignature: input.ErrorSignature,
		ErrorText:      input.ErrorText,
		FixDescription: input.FixDescription,
		FilePath:       input.FilePath,
	}
	if err := t.store.RecordErrorFix(ctx, fix); err != nil {
		return errResult("record failed: %v", err), nil
	}
	return jsonResult(map[string]any{"id": fix.ID}), nil
}
