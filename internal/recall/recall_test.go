package recall

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/getmira/mira-core/internal/embedclient"
	"github.com/getmira/mira-core/internal/store"
	"github.com/getmira/mira-core/internal/vectorindex"
	"github.com/getmira/mira-core/pkg/models"
)

// keywordProvider embeds deterministically from the presence of a marker
// word, so tests can control which vector is "closest" to a query without
// a real embedding model.
type keywordProvider struct {
	marker string
}

func (p keywordProvider) Name() string      { return "keyword" }
func (p keywordProvider) Dimension() int    { return 2 }
func (p keywordProvider) MaxBatchSize() int { return 64 }

func (p keywordProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, p.marker) {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func (p keywordProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := p.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func newTestEngine(t *testing.T, marker string) *Engine {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	vec, err := vectorindex.Open(ctx, st.DB())
	if err != nil {
		t.Fatalf("vectorindex.Open: %v", err)
	}

	client := embedclient.New(keywordProvider{marker: marker}, embedclient.Config{MaxAttempts: 1})
	return New(st, vec, client)
}

func TestRecall_SemanticFindsConfirmedFactAndSkipsCandidate(t *testing.T) {
	e := newTestEngine(t, "retry")
	ctx := context.Background()

	confirmed := &models.MemoryFact{
		ID: "fact-confirmed", ProjectID: "proj-1", Content: "retry policy uses exponential backoff",
		FactType: models.FactDecision, Status: models.StatusConfirmed, Confidence: 0.9,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	candidate := &models.MemoryFact{
		ID: "fact-candidate", ProjectID: "proj-1", Content: "retry logic might use linear backoff",
		FactType: models.FactGeneral, Status: models.StatusCandidate, Confidence: 0.3,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	for _, f := range []*models.MemoryFact{confirmed, candidate} {
		if err := e.Store.UpsertMemoryFact(ctx, f); err != nil {
			t.Fatalf("UpsertMemoryFact: %v", err)
		}
		if err := e.IndexFact(ctx, f); err != nil {
			t.Fatalf("IndexFact: %v", err)
		}
	}

	rc, err := e.Recall(ctx, Query{Text: "what is our retry policy", ProjectID: "proj-1"})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(rc.Semantic) != 1 {
		t.Fatalf("expected exactly 1 confirmed fact, got %d: %+v", len(rc.Semantic), rc.Semantic)
	}
	if rc.Semantic[0].ID != "fact-confirmed" {
		t.Fatalf("expected confirmed fact to surface, got %q", rc.Semantic[0].ID)
	}
}

func TestRecall_FallsBackToKeywordWhenSemanticEmpty(t *testing.T) {
	e := newTestEngine(t, "nonexistent-marker")
	ctx := context.Background()

	fact := &models.MemoryFact{
		ID: "fact-1", ProjectID: "proj-1", Content: "the deployment pipeline uses blue-green releases",
		FactType: models.FactDecision, Status: models.StatusConfirmed, Confidence: 0.9,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := e.Store.UpsertMemoryFact(ctx, fact); err != nil {
		t.Fatalf("UpsertMemoryFact: %v", err)
	}
	// deliberately not calling e.IndexFact, so semantic search finds nothing

	rc, err := e.Recall(ctx, Query{Text: "deployment pipeline releases", ProjectID: "proj-1"})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(rc.Semantic) != 1 || rc.Semantic[0].ID != "fact-1" {
		t.Fatalf("expected keyword fallback to find fact-1, got %+v", rc.Semantic)
	}
}

func TestRecall_ExpandsCodeHitToFullSymbol(t *testing.T) {
	e := newTestEngine(t, "helper")
	ctx := context.Background()

	root := t.TempDir()
	path := filepath.Join(root, "util.go")
	content := "package util\n\nfunc helper() int {\n\treturn 1\n}\n\nfunc other() int {\n\treturn 2\n}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	now := time.Now()
	sym := &models.CodeSymbol{
		ID: "sym-1", ProjectID: "proj-1", FilePath: "util.go", Name: "helper", QualifiedName: "helper",
		SymbolType: models.SymbolFunction, Language: "go", StartLine: 3, EndLine: 5, AnalyzedAt: now,
	}
	if err := e.Store.InsertParseResult(ctx, []*models.CodeSymbol{sym}, nil, nil); err != nil {
		t.Fatalf("InsertParseResult: %v", err)
	}

	point := &models.VectorPoint{
		ID:     "chunk-1",
		Vector: []float32{1, 0},
		Payload: map[string]any{
			"project_id": "proj-1", "file_path": "util.go",
			"start_line": 3, "end_line": 5, "symbol_name": "helper",
		},
	}
	if err := e.Vectors.Upsert(ctx, models.CollectionCode, []*models.VectorPoint{point}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rc, err := e.Recall(ctx, Query{Text: "find the helper function", ProjectID: "proj-1", ProjectRoot: root})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(rc.Code) != 1 {
		t.Fatalf("expected 1 code hit, got %d", len(rc.Code))
	}
	if rc.Code[0].Content == "" {
		t.Fatal("expected expanded content, got empty")
	}
	if rc.Code[0].FilePath != "util.go" {
		t.Fatalf("unexpected file path %q", rc.Code[0].FilePath)
	}
}

func TestRecall_RecentMessagesIncludedInChronologicalOrder(t *testing.T) {
	e := newTestEngine(t, "x")
	ctx := context.Background()

	msgs := []string{"hello", "how do I configure retries", "sure, here is how"}
	for i, content := range msgs {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if _, err := e.Store.AppendMessage(ctx, &models.Message{
			SessionID: "sess-1", Role: role, Content: content, CreatedAt: time.Now(),
		}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	rc, err := e.Recall(ctx, Query{Text: "retries", ProjectID: "proj-1", SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(rc.Recent) != 3 {
		t.Fatalf("expected 3 recent messages, got %d", len(rc.Recent))
	}
	if rc.Recent[0].Content != "hello" {
		t.Fatalf("expected chronological order, got %+v", rc.Recent)
	}
}

func TestExpandQuery_PrependsLastUserMessageForShortQueries(t *testing.T) {
	recent := []*models.Message{
		{Role: models.RoleUser, Content: "how do retries work in the client"},
		{Role: models.RoleAssistant, Content: "they use exponential backoff"},
	}
	got := expandQuery("why", recent)
	if got != "how do retries work in the client why" {
		t.Fatalf("unexpected expansion: %q", got)
	}
}

func TestExpandQuery_LeavesLongQueriesUnchanged(t *testing.T) {
	got := expandQuery("how does the retry policy handle timeouts", nil)
	if got != "how does the retry policy handle timeouts" {
		t.Fatalf("expected unchanged query, got %q", got)
	}
}

func TestKeywordTokens_RequiresLengthAndEscapesWildcards(t *testing.T) {
	tokens := keywordTokens("the cat sat on a 100%_complete mat")
	for _, tok := range tokens {
		if len(tok) <= keywordMinTokenLen {
			t.Fatalf("token %q should have been filtered by length", tok)
		}
	}
	found := false
	for _, tok := range tokens {
		if tok == "100\\%_complete" || tok == "100\\%\\_complete" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected wildcard-escaped token, got %+v", tokens)
	}
}
