// Package codeintel exposes the code-intelligence tool set spec §4's Tool
// Router requires: find_function, find_class, semantic_code_search,
// find_imports, find_callers, find_tests_for_code, get_file_symbols,
// get_complexity_hotspots, get_codebase_stats. Each tool is a thin
// agent.Tool wrapper over an existing internal/store query or the Recall
// Engine, grounded on teacher internal/tools/memorysearch's
// Config-holding-struct-plus-Execute shape.
package codeintel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getmira/mira-core/internal/agent"
	"github.com/getmira/mira-core/internal/recall"
	"github.com/getmira/mira-core/internal/store"
	"github.com/getmira/mira-core/pkg/models"
)

// Toolset bundles every code-intel tool's shared dependency: the store
// for structural lookups and the Recall Engine for semantic search.
type Toolset struct {
	Store  *store.Store
	Recall *recall.Engine
}

// Tools returns every code-intel tool ready for registration.
func (t Toolset) Tools() []agent.Tool {
	return []agent.Tool{
		&findSymbolTool{store: t.Store, symbolType: models.SymbolFunction, toolName: "find_function", desc: "Finds a function or method by name or qualified name."},
		&findSymbolTool{store: t.Store, symbolType: models.SymbolClass, toolName: "find_class", desc: "Finds a class, struct, or interface by name or qualified name."},
		&semanticCodeSearchTool{recall: t.Recall},
		&findImportsTool{store: t.Store},
		&findCallersTool{store: t.Store},
		&findTestsForCodeTool{store: t.Store},
		&getFileSymbolsTool{store: t.Store},
		&getComplexityHotspotsTool{store: t.Store},
		&getCodebaseStatsTool{store: t.Store},
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

// findSymbolTool backs both find_function and find_class: same shape,
// filtered by SymbolType.
type findSymbolTool struct {
	store      *store.Store
	symbolType models.SymbolType
	toolName   string
	desc       string
}

func (t *findSymbolTool) Name() string        { return t.toolName }
func (t *findSymbolTool) Description() string { return t.desc }
func (t *findSymbolTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"},
    "name": {"type": "string", "description": "Symbol name or name pattern"},
    "qualified_name": {"type": "string", "description": "Exact qualified name, if known"},
    "limit": {"type": "integer"}
  },
  "required": ["project_id"]
}`)
}

func (t *findSymbolTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID     string `json:"project_id"`
		Name          string `json:"name"`
		QualifiedName string `json:"qualified_name"`
		Limit         int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.ProjectID) == "" {
		return errResult("project_id is required"), nil
	}
	if input.Limit <= 0 {
		input.Limit = 20
	}

	if input.QualifiedName != "" {
		sym, err := t.store.FindSymbolByQualifiedName(ctx, input.ProjectID, input.QualifiedName)
		if err != nil {
			return errResult("lookup failed: %v", err), nil
		}
		if sym == nil {
			return jsonResult(map[string]any{"matches": []any{}})
		}
		return jsonResult(map[string]any{"matches": []*models.CodeSymbol{sym}})
	}

	symbols, err := t.store.SearchSymbolsByName(ctx, input.ProjectID, input.Name, []models.SymbolType{t.symbolType}, input.Limit)
	if err != nil {
		return errResult("search failed: %v", err), nil
	}
	return jsonResult(map[string]any{"matches": symbols})
}

type semanticCodeSearchTool struct {
	recall *recall.Engine
}

func (t *semanticCodeSearchTool) Name() string        { return "semantic_code_search" }
func (t *semanticCodeSearchTool) Description() string { return "Semantic search over indexed source code by meaning, not just name." }
func (t *semanticCodeSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string"},
    "project_id": {"type": "string"},
    "limit": {"type": "integer"}
  },
  "required": ["query", "project_id"]
}`)
}

func (t *semanticCodeSearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query     string `json:"query"`
		ProjectID string `json:"project_id"`
		Limit     int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return errResult("query is required"), nil
	}
	if input.Limit <= 0 {
		input.Limit = 8
	}

	rc, err := t.recall.Recall(ctx, recall.Query{Text: input.Query, ProjectID: input.ProjectID, CodeLimit: input.Limit})
	if err != nil {
		return errResult("semantic search failed: %v", err), nil
	}
	return jsonResult(map[string]any{"matches": rc.Code})
}

type findImportsTool struct{ store *store.Store }

func (t *findImportsTool) Name() string        { return "find_imports" }
func (t *findImportsTool) Description() string { return "Lists the imports declared by a file." }
func (t *findImportsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"},
    "file_path": {"type": "string"}
  },
  "required": ["project_id", "file_path"]
}`)
}

func (t *findImportsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID string `json:"project_id"`
		FilePath  string `json:"file_path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	imports, err := t.store.ImportsByFile(ctx, input.ProjectID, input.FilePath)
	if err != nil {
		return errResult("lookup failed: %v", err), nil
	}
	return jsonResult(map[string]any{"imports": imports})
}

type findCallersTool struct{ store *store.Store }

func (t *findCallersTool) Name() string        { return "find_callers" }
func (t *findCallersTool) Description() string { return "Finds call sites that invoke a given symbol." }
func (t *findCallersTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "symbol_id": {"type": "string"}
  },
  "required": ["symbol_id"]
}`)
}

func (t *findCallersTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		SymbolID string `json:"symbol_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.SymbolID) == "" {
		return errResult("symbol_id is required"), nil
	}
	edges, err := t.store.CallersOf(ctx, input.SymbolID)
	if err != nil {
		return errResult("lookup failed: %v", err), nil
	}
	return jsonResult(map[string]any{"callers": edges})
}

// findTestsForCodeTool approximates "tests covering this symbol" by
// searching for symbols in test-shaped files whose name references the
// target — there is no coverage map in the data model, so this is a
// heuristic name-proximity search over the same symbol table.
type findTestsForCodeTool struct{ store *store.Store }

func (t *findTestsForCodeTool) Name() string { return "find_tests_for_code" }
func (t *findTestsForCodeTool) Description() string {
	return "Finds test symbols whose name references a given function or class name."
}
func (t *findTestsForCodeTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"},
    "symbol_name": {"type": "string"},
    "limit": {"type": "integer"}
  },
  "required": ["project_id", "symbol_name"]
}`)
}

func (t *findTestsForCodeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID  string `json:"project_id"`
		SymbolName string `json:"symbol_name"`
		Limit      int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if input.Limit <= 0 {
		input.Limit = 20
	}

	candidates, err := t.store.SearchSymbolsByName(ctx, input.ProjectID, input.SymbolName, nil, input.Limit*4)
	if err != nil {
		return errResult("search failed: %v", err), nil
	}

	var tests []*models.CodeSymbol
	for _, sym := range candidates {
		lowerPath := strings.ToLower(sym.FilePath)
		lowerName := strings.ToLower(sym.Name)
		if strings.Contains(lowerPath, "test") || strings.HasPrefix(lowerName, "test") {
			tests = append(tests, sym)
			if len(tests) >= input.Limit {
				break
			}
		}
	}
	return jsonResult(map[string]any{"tests": tests})
}

type getFileSymbolsTool struct{ store *store.Store }

func (t *getFileSymbolsTool) Name() string        { return "get_file_symbols" }
func (t *getFileSymbolsTool) Description() string { return "Lists every indexed symbol declared in a file." }
func (t *getFileSymbolsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"},
    "file_path": {"type": "string"}
  },
  "required": ["project_id", "file_path"]
}`)
}

func (t *getFileSymbolsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID string `json:"project_id"`
		FilePath  string `json:"file_path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	symbols, err := t.store.SymbolsByFile(ctx, input.ProjectID, input.FilePath)
	if err != nil {
		return errResult("lookup failed: %v", err), nil
	}
	return jsonResult(map[string]any{"symbols": symbols})
}

type getComplexityHotspotsTool struct{ store *store.Store }

func (t *getComplexityHotspotsTool) Name() string { return "get_complexity_hotspots" }
func (t *getComplexityHotspotsTool) Description() string {
	return "Ranks a project's symbols by size/complexity proxy, largest first."
}
func (t *getComplexityHotspotsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"},
    "limit": {"type": "integer"}
  },
  "required": ["project_id"]
}`)
}

func (t *getComplexityHotspotsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID string `json:"project_id"`
		Limit     int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if input.Limit <= 0 {
		input.Limit = 20
	}
	symbols, err := t.store.ComplexityHotspots(ctx, input.ProjectID, input.Limit)
	if err != nil {
		return errResult("lookup failed: %v", err), nil
	}
	return jsonResult(map[string]any{"hotspots": symbols})
}

type getCodebaseStatsTool struct{ store *store.Store }

func (t *getCodebaseStatsTool) Name() string        { return "get_codebase_stats" }
func (t *getCodebaseStatsTool) Description() string { return "Returns file, symbol, and test counts for a project." }
func (t *getCodebaseStatsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"}
  },
  "required": ["project_id"]
}`)
}

func (t *getCodebaseStatsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	stats, err := t.store.CodebaseStats(ctx, input.ProjectID)
	if err != nil {
		return errResult("lookup failed: %v", err), nil
	}
	return jsonResult(stats)
}
