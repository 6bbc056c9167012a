package recall

import (
	"testing"

	"github.com/getmira/mira-core/pkg/models"
)

func makeModule(name, dir, purpose string, exports []string) *models.Module {
	return &models.Module{Name: name, Directory: dir, Purpose: purpose, Exports: exports, SymbolCount: 10, LineCount: 200}
}

func TestScoreModule_NameMatch(t *testing.T) {
	m := makeModule("search", "src/search", "", nil)
	if got := scoreModule(m, []string{"search"}); got != 4 {
		t.Fatalf("expected 4 (name 3 + path 1), got %v", got)
	}
}

func TestScoreModule_PurposeMatch(t *testing.T) {
	m := makeModule("db", "src/db", "Database operations and queries", nil)
	if got := scoreModule(m, []string{"database"}); got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}
}

func TestScoreModule_ExportMatch(t *testing.T) {
	m := makeModule("pool", "src/pool", "", []string{"DatabasePool", "ConnectionManager"})
	if got := scoreModule(m, []string{"database"}); got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}
}

func TestScoreModule_PathMatch(t *testing.T) {
	m := makeModule("mod", "crates/mira-server/src/db", "", nil)
	if got := scoreModule(m, []string{"mira"}); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
}

func TestScoreModule_MultipleSignals(t *testing.T) {
	m := makeModule("search", "src/search", "Code search and retrieval", []string{"hybrid_search", "keyword_search"})
	if got := scoreModule(m, []string{"search"}); got != 8 {
		t.Fatalf("expected 8, got %v", got)
	}
}

func TestScoreModule_MultipleTerms(t *testing.T) {
	m := makeModule("search", "src/search", "Keyword and semantic search", []string{"keyword_search"})
	if got := scoreModule(m, []string{"keyword", "search"}); got != 12 {
		t.Fatalf("expected 12, got %v", got)
	}
}

func TestScoreModule_NoMatch(t *testing.T) {
	m := makeModule("auth", "src/auth", "Authentication", []string{"login"})
	if got := scoreModule(m, []string{"database"}); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestScoreModule_CaseInsensitive(t *testing.T) {
	m := makeModule("Search", "src/Search", "CODE SEARCH", []string{"HybridSearch"})
	if got := scoreModule(m, []string{"search"}); got != 8 {
		t.Fatalf("expected 8, got %v", got)
	}
}

func TestPathInScope(t *testing.T) {
	dirs := []string{"src/search", "src/db"}
	if !pathInScope("src/search/keyword.go", dirs) {
		t.Fatal("expected match under src/search")
	}
	if !pathInScope("src/db/pool.go", dirs) {
		t.Fatal("expected match under src/db")
	}
	if pathInScope("src/auth/login.go", dirs) {
		t.Fatal("expected no match under src/auth")
	}
	if pathInScope("anything.go", nil) {
		t.Fatal("expected no match against empty scope")
	}
}

func TestScopeModules_TopThreeAboveThreshold(t *testing.T) {
	modules := []*models.Module{
		makeModule("search", "src/search", "Code search and retrieval", []string{"hybrid_search"}),
		makeModule("db", "src/db", "Database operations", nil),
		makeModule("auth", "src/auth", "Authentication", nil),
		makeModule("util", "src/util", "Miscellaneous helpers", nil),
	}
	dirs := scopeModules(modules, "search")
	if len(dirs) != 1 || dirs[0] != "src/search" {
		t.Fatalf("expected only src/search in scope, got %+v", dirs)
	}
}

func TestScopeModules_EmptyWhenNoModules(t *testing.T) {
	if dirs := scopeModules(nil, "search"); dirs != nil {
		t.Fatalf("expected nil, got %+v", dirs)
	}
}
