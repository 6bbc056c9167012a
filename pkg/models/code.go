package models

import "time"

// SymbolType is the kind of a parsed code symbol.
type SymbolType string

const (
	SymbolFunction  SymbolType = "function"
	SymbolMethod    SymbolType = "method"
	SymbolClass     SymbolType = "class"
	SymbolStruct    SymbolType = "struct"
	SymbolInterface SymbolType = "interface"
	SymbolAlias     SymbolType = "type"
	SymbolEnum      SymbolType = "enum"
	SymbolImpl      SymbolType = "impl"
	SymbolModule    SymbolType = "module"
)

// CodeSymbol is one declaration extracted from a source file by the
// language-specific tree-sitter parser.
//
// Invariant: StartLine <= EndLine, and (ProjectID, FilePath, Name,
// StartLine) is unique — re-indexing a file replaces its prior symbol
// set inside a single transaction rather than appending duplicates.
type CodeSymbol struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	FilePath      string     `json:"file_path"`
	Name          string     `json:"name"`
	QualifiedName string     `json:"qualified_name"`
	SymbolType    SymbolType `json:"symbol_type"`
	Language      string     `json:"language"`
	StartLine     int        `json:"start_line"`
	EndLine       int        `json:"end_line"`
	Signature     string     `json:"signature,omitempty"`
	Visibility    string     `json:"visibility,omitempty"`
	Documentation string     `json:"documentation,omitempty"`
	IsTest        bool       `json:"is_test"`
	IsAsync       bool       `json:"is_async"`
	// Complexity is a cyclomatic-ish line-count proxy used to back the
	// get_complexity_hotspots tool.
	Complexity int       `json:"complexity"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Import is one import/use statement resolved (or not) during parsing.
//
// Unique per (ProjectID, FilePath, ImportPath).
type Import struct {
	ProjectID       string   `json:"project_id"`
	FilePath        string   `json:"file_path"`
	ImportPath      string   `json:"import_path"`
	ImportedSymbols []string `json:"imported_symbols,omitempty"`
	IsExternal      bool     `json:"is_external"`
}

// CallEdge is one call site discovered during parsing. CalleeSymbolID
// is empty when resolution fails — the edge is still stored, just
// unresolved.
type CallEdge struct {
	CallerSymbolID string `json:"caller_symbol_id"`
	CalleeName     string `json:"callee_name"`
	CalleeSymbolID string `json:"callee_symbol_id,omitempty"`
	CallLine       int    `json:"call_line"`
}

// RepositoryFile tracks the last-indexed content hash of one file under
// a project root. An unchanged ContentHash means the per-file pipeline
// skips parsing entirely.
type RepositoryFile struct {
	ProjectID    string    `json:"project_id"`
	FilePath     string    `json:"file_path"`
	ContentHash  string    `json:"content_hash"`
	Language     string    `json:"language"`
	LastIndexed  time.Time `json:"last_indexed"`
	SizeBytes    int64     `json:"size_bytes"`
}

// Module is a cartographer unit: files grouped by directory, with a
// generated purpose summary and a dependency edge list to other
// modules.
type Module struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Directory   string    `json:"directory"`
	Purpose     string    `json:"purpose"`
	// HeuristicPurpose is true when Purpose was generated by the
	// fallback formula rather than an LLM call.
	HeuristicPurpose bool     `json:"heuristic_purpose"`
	Exports          []string `json:"exports"`
	DependsOn        []string `json:"depends_on"`
	SymbolCount      int      `json:"symbol_count"`
	LineCount        int      `json:"line_count"`
}
