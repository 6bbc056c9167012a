package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getmira/mira-core/internal/agent"
	"github.com/getmira/mira-core/internal/rag/index"
)

// FetchTool implements agent.Tool for retrieving one document's full content.
// It complements ListTool/UploadTool/DeleteTool (upload.go) to round out
// spec §4's "document list/search/fetch" tool triad — search is covered
// by SearchTool (search.go).
type FetchTool struct {
	manager *index.Manager
}

// NewFetchTool creates a document-fetch tool over manager.
func NewFetchTool(manager *index.Manager) *FetchTool {
	return &FetchTool{manager: manager}
}

func (t *FetchTool) Name() string        { return "document_fetch" }
func (t *FetchTool) Description() string { return "Retrieves one document's full content by id." }
func (t *FetchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "document_id": {"type": "string"}
  },
  "required": ["document_id"]
}`)
}

func (t *FetchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid params: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(input.DocumentID) == "" {
		return &agent.ToolResult{Content: "document_id is required", IsError: true}, nil
	}

	doc, err := t.manager.GetDocument(ctx, input.DocumentID)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("fetch failed: %v", err), IsError: true}, nil
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to marshal result: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(b)}, nil
}
