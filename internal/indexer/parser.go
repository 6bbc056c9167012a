// Package indexer implements the Source Indexer (C4): it walks a
// project tree, dispatches each file to a language-specific
// tree-sitter parser, and turns the result into CodeSymbols, Imports,
// and CallEdges plus chunk-level embeddings in the Vector Index.
package indexer

import (
	"strings"
	"sync"

	"github.com/getmira/mira-core/pkg/models"
)

// RawSymbol is a symbol as extracted directly off an AST, before a
// stable ID has been assigned.
type RawSymbol struct {
	Name          string
	QualifiedName string
	SymbolType    models.SymbolType
	Language      string
	StartLine     int
	EndLine       int
	Signature     string
	Visibility    string
	Documentation string
	IsTest        bool
	IsAsync       bool
}

// RawImport is an import/use statement as extracted off an AST.
type RawImport struct {
	ImportPath      string
	ImportedSymbols []string
	IsExternal      bool
}

// RawCall is a call site keyed by the caller's symbol name (not yet a
// stable ID — the pipeline resolves that once symbols are assigned
// IDs) and the callee's bare name.
type RawCall struct {
	CallerName string
	CalleeName string
	CallLine   int
}

// ParseResult is the language parser's raw output for one file.
type ParseResult struct {
	Symbols []RawSymbol
	Imports []RawImport
	Calls   []RawCall
}

// LanguageParser extracts symbols, imports, and calls from one
// language's source text. A parser MUST produce stable qualified names
// (method -> "Type.method") and set IsTest/IsAsync by the language's
// naming and syntax conventions.
type LanguageParser interface {
	Parse(source []byte) (*ParseResult, error)
	Language() string
	Extensions() []string
}

// Registry dispatches files to a LanguageParser by extension, mirroring
// the shape of internal/rag/parser.Registry but keyed only on
// extension since code dispatch has no MIME-type input.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]LanguageParser
}

// NewRegistry returns an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]LanguageParser)}
}

// Register adds a parser for all of its declared extensions.
func (r *Registry) Register(p LanguageParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(strings.TrimPrefix(ext, "."))] = p
	}
}

// Get returns the parser registered for an extension (without the
// leading dot), if any.
func (r *Registry) Get(ext string) (LanguageParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byExt[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return p, ok
}

// DefaultRegistry is pre-populated with the four supported languages.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewRustParser())
	r.Register(NewPythonParser())
	r.Register(NewTypeScriptParser())
	r.Register(NewJavaScriptParser())
	return r
}
