// Package recalltools exposes the recall and index-management tools spec
// §4's Tool Router requires: recall (memory + code) and index status /
// re-index trigger. Both wrap components that already exist one layer
// down — internal/recall.Engine and internal/indexer.Indexer — rather
// than reimplementing retrieval or parsing here.
package recalltools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getmira/mira-core/internal/agent"
	"github.com/getmira/mira-core/internal/indexer"
	"github.com/getmira/mira-core/internal/recall"
	"github.com/getmira/mira-core/internal/store"
)

// Toolset bundles the recall/index tools.
type Toolset struct {
	Recall  *recall.Engine
	Indexer *indexer.Indexer
	Store   *store.Store
}

// Tools returns every recall/index tool ready for registration.
func (t Toolset) Tools() []agent.Tool {
	return []agent.Tool{
		&recallTool{recall: t.Recall},
		&indexStatusTool{store: t.Store},
		&reindexTool{indexer: t.Indexer},
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

type recallTool struct{ recall *recall.Engine }

func (t *recallTool) Name() string { return "recall" }
func (t *recallTool) Description() string {
	return "Retrieves relevant conversation memory and code context for a query."
}
func (t *recallTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string"},
    "project_id": {"type": "string"},
    "session_id": {"type": "string"},
    "project_root": {"type": "string"}
  },
  "required": ["query"]
}`)
}

func (t *recallTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query       string `json:"query"`
		ProjectID   string `json:"project_id"`
		SessionID   string `json:"session_id"`
		ProjectRoot string `json:"project_root"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return errResult("query is required"), nil
	}

	rc, err := t.recall.Recall(ctx, recall.Query{
		Text:        input.Query,
		ProjectID:   input.ProjectID,
		SessionID:   input.SessionID,
		ProjectRoot: input.ProjectRoot,
	})
	if err != nil {
		return errResult("recall failed: %v", err), nil
	}
	return jsonResult(rc)
}

type indexStatusTool struct{ store *store.Store }

func (t *indexStatusTool) Name() string        { return "index_status" }
func (t *indexStatusTool) Description() string { return "Reports indexed file/symbol counts for a project." }
func (t *indexStatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"}
  },
  "required": ["project_id"]
}`)
}

func (t *indexStatusTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	stats, err := t.store.CodebaseStats(ctx, input.ProjectID)
	if err != nil {
		return errResult("status lookup failed: %v", err), nil
	}
	return jsonResult(stats)
}

type reindexTool struct{ indexer *indexer.Indexer }

func (t *reindexTool) Name() string        { return "reindex_project" }
func (t *reindexTool) Description() string { return "Triggers a full re-index of a project's source tree." }
func (t *reindexTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"},
    "root": {"type": "string", "description": "Filesystem root of the project to walk"}
  },
  "required": ["project_id", "root"]
}`)
}

func (t *reindexTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID string `json:"project_id"`
		Root      string `json:"root"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.ProjectID) == "" || strings.TrimSpace(input.Root) == "" {
		return errResult("project_id and root are required"), nil
	}

	if err := t.indexer.IndexProject(ctx, input.ProjectID, input.Root); err != nil {
		return errResult("reindex failed: %v", err), nil
	}
	return jsonResult(map[string]any{"status": "reindexed", "project_id": input.ProjectID})
}
