// Package recall implements the Recall Engine (C5): the read path that
// assembles a prompt's working context from recent conversation,
// confirmed semantic memory, and indexed code. It is grounded on the
// teacher's internal/rag/context/injector.go for the Engine/Context
// shape and on the original server's search/{tree,context,utils}.rs and
// hooks/recall.rs for the scoring, expansion, and fallback semantics.
package recall

import (
	"context"
	"sort"
	"strings"

	"github.com/getmira/mira-core/internal/embedclient"
	"github.com/getmira/mira-core/internal/store"
	"github.com/getmira/mira-core/internal/vectorindex"
	"github.com/getmira/mira-core/pkg/models"
)

// Thresholds and multipliers ported from hooks/recall.rs: stricter than a
// plain MCP search tool would use, since recalled context gets
// auto-injected into prompts rather than reviewed by a human first.
const (
	strongDistanceThreshold = 0.85
	weakDistanceThreshold   = 0.90
	overfetchMultiplier     = 5
	entityBoostFactor       = 1.15
	shortQueryWordThreshold = 3

	defaultRecentLimit = 20
	defaultCodeLimit   = 8
	defaultMemoryLimit = 8
	keywordMinTokens   = 2
	keywordMinTokenLen = 3
)

// Engine answers recall queries against the store's messages, confirmed
// memory facts, and indexed code. It holds no mutable state of its own —
// every call reads the store and vector index fresh, so concurrent Recall
// calls never contend with each other or with the indexer/operation
// engine writing in the background.
type Engine struct {
	Store    *store.Store
	Vectors  *vectorindex.Index
	Embedder *embedclient.Client
}

// New builds a Recall Engine over an already-open store and vector index.
func New(st *store.Store, vectors *vectorindex.Index, embedder *embedclient.Client) *Engine {
	return &Engine{Store: st, Vectors: vectors, Embedder: embedder}
}

// IndexFact embeds a memory fact's content and upserts it into the
// conversation collection so tier-1 semantic recall can find it later.
// Candidate (unconfirmed) facts are embedded too — Recall's
// resolveConfirmedFacts re-checks Injectable() at read time, so a fact
// that is later confirmed, retracted, or marked suspicious is reflected
// immediately without needing to re-embed it.
func (e *Engine) IndexFact(ctx context.Context, f *models.MemoryFact) error {
	vec, err := e.Embedder.Embed(ctx, f.Content)
	if err != nil {
		return err
	}
	point := &models.VectorPoint{
		ID:     "memory:" + f.ID,
		Vector: vec,
		Payload: map[string]any{
			"kind":       "memory_fact",
			"fact_id":    f.ID,
			"project_id": f.ProjectID,
		},
	}
	return e.Vectors.Upsert(ctx, models.CollectionConversation, []*models.VectorPoint{point})
}

// Query scopes a recall call. ProjectRoot, when set, lets code hits expand
// back to their full enclosing symbol by reading the file from disk.
type Query struct {
	Text        string
	ProjectID   string
	UserID      string
	TeamID      string
	GitBranch   string
	SessionID   string
	ProjectRoot string

	RecentLimit int
	CodeLimit   int
	MemoryLimit int

	// CoChangedFiles names files historically co-changed with the top
	// code hit; a hit whose file appears here is promoted one slot in
	// the final code ranking.
	CoChangedFiles []string
}

func (q *Query) setDefaults() {
	if q.RecentLimit <= 0 {
		q.RecentLimit = defaultRecentLimit
	}
	if q.CodeLimit <= 0 {
		q.CodeLimit = defaultCodeLimit
	}
	if q.MemoryLimit <= 0 {
		q.MemoryLimit = defaultMemoryLimit
	}
}

// CodeChunk is one code-search hit after context expansion.
type CodeChunk struct {
	FilePath  string
	StartLine int
	EndLine   int
	Header    string
	Content   string
	Score     float64
}

// RecallContext is the assembled answer to a recall query.
type RecallContext struct {
	Recent             []*models.Message
	Semantic           []*models.MemoryFact
	Code               []CodeChunk
	RelatedFiles       []string
	TokensUsedEstimate int
}

// Recall assembles a RecallContext for a query, per spec §4.2: tier 1
// semantic search over the vector index with confirmed-memory filtering,
// adaptive thresholding, entity/scope/co-change boosts, and code context
// expansion; falling back to tier 2 keyword search when semantic search
// finds nothing.
func (e *Engine) Recall(ctx context.Context, q Query) (*RecallContext, error) {
	q.setDefaults()

	var recent []*models.Message
	if q.SessionID != "" {
		var err error
		recent, err = e.Store.History(ctx, q.SessionID, q.RecentLimit)
		if err != nil {
			return nil, err
		}
	}

	expandedQuery := expandQuery(q.Text, recent)

	semantic, code, err := e.semanticRecall(ctx, q, expandedQuery)
	if err != nil {
		return nil, err
	}
	if len(semantic) == 0 {
		semantic, err = e.keywordRecall(ctx, q)
		if err != nil {
			return nil, err
		}
	}

	rc := &RecallContext{
		Recent:   recent,
		Semantic: semantic,
		Code:     code,
	}
	rc.RelatedFiles = relatedFiles(code)
	rc.TokensUsedEstimate = estimateTokens(rc)
	return rc, nil
}

// expandQuery prepends the last user message to queries too short to
// embed well on their own, per spec §4.2's query-expansion step.
func expandQuery(text string, recent []*models.Message) string {
	if len(strings.Fields(text)) >= shortQueryWordThreshold {
		return text
	}
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Role == models.RoleUser {
			return recent[i].Content + " " + text
		}
	}
	return text
}

type scoredFact struct {
	fact     *models.MemoryFact
	distance float64
	score    float64
}

type scoredCode struct {
	point    *models.VectorPoint
	distance float64
	score    float64
}

func (c scoredCode) location() (string, int64) {
	filePath, _ := c.point.Payload["file_path"].(string)
	return filePath, int64(intPayload(c.point.Payload["start_line"]))
}
func (c scoredCode) rankScore() float64 { return c.score }

// semanticRecall runs tier 1: embed the query, search the code and memory
// collections, keep only confirmed/non-suspicious facts, adaptively
// threshold each set, then apply the entity, module-scope, and co-change
// boosts to the code results before expanding them.
func (e *Engine) semanticRecall(ctx context.Context, q Query, queryText string) ([]*models.MemoryFact, []CodeChunk, error) {
	queryVec, err := e.Embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, nil, err
	}

	codeHits, err := e.Vectors.Search(ctx, queryVec, vectorindex.SearchOptions{
		Collection: models.CollectionCode,
		Filter:     vectorindex.Filter{"project_id": q.ProjectID},
		Limit:      q.CodeLimit * overfetchMultiplier,
	})
	if err != nil {
		return nil, nil, err
	}

	memFilter := vectorindex.Filter{"kind": "memory_fact", "project_id": q.ProjectID}
	memHits, err := e.Vectors.Search(ctx, queryVec, vectorindex.SearchOptions{
		Collection: models.CollectionConversation,
		Filter:     memFilter,
		Limit:      q.MemoryLimit * overfetchMultiplier,
	})
	if err != nil {
		return nil, nil, err
	}

	facts := e.resolveConfirmedFacts(ctx, memHits)
	facts = adaptiveThreshold(facts, func(f scoredFact) float64 { return f.distance })
	if len(facts) > q.MemoryLimit {
		facts = facts[:q.MemoryLimit]
	}
	out := make([]*models.MemoryFact, len(facts))
	for i, f := range facts {
		out[i] = f.fact
	}

	code := make([]scoredCode, 0, len(codeHits))
	for _, h := range codeHits {
		code = append(code, scoredCode{point: h.Point, distance: h.Distance, score: h.Score})
	}
	code = deduplicateByLocation(code)
	code = adaptiveThresholdCode(code)

	entityTokens := extractEntityTokens(q.Text)
	for i := range code {
		if text, _ := code[i].point.Payload["symbol_name"].(string); containsEntity(text, entityTokens) {
			code[i].score *= entityBoostFactor
		}
	}

	if modules, mErr := e.Store.ModulesByProject(ctx, q.ProjectID); mErr == nil {
		scopeDirs := scopeModules(modules, q.Text)
		if len(scopeDirs) > 0 {
			for i := range code {
				filePath, _ := code[i].point.Payload["file_path"].(string)
				if pathInScope(filePath, scopeDirs) {
					code[i].score *= scopeBoost
				}
			}
		}
	}

	sort.SliceStable(code, func(i, j int) bool { return code[i].score > code[j].score })
	code = promoteCoChanged(code, q.CoChangedFiles)

	if len(code) > q.CodeLimit {
		code = code[:q.CodeLimit]
	}

	chunks := make([]CodeChunk, 0, len(code))
	for _, c := range code {
		filePath, _ := c.point.Payload["file_path"].(string)
		startLine := intPayload(c.point.Payload["start_line"])
		endLine := intPayload(c.point.Payload["end_line"])

		symbolName, _ := c.point.Payload["symbol_name"].(string)
		content := e.expandCodeHit(ctx, q.ProjectID, q.ProjectRoot, filePath, symbolName, startLine, endLine)
		chunks = append(chunks, CodeChunk{
			FilePath:  filePath,
			StartLine: startLine,
			EndLine:   endLine,
			Header:    symbolHeader(symbolName),
			Content:   content,
			Score:     c.score,
		})
	}

	return out, chunks, nil
}

// resolveConfirmedFacts cross-checks each vector hit's fact_id against the
// store, keeping only facts that are still confirmed and non-suspicious —
// the memory-poisoning security boundary applies at read time, not just
// at embed time, since a fact's status can change after it was indexed.
func (e *Engine) resolveConfirmedFacts(ctx context.Context, hits []vectorindex.ScoredPoint) []scoredFact {
	out := make([]scoredFact, 0, len(hits))
	for _, h := range hits {
		factID, _ := h.Point.Payload["fact_id"].(string)
		if factID == "" {
			continue
		}
		fact, err := e.Store.GetMemoryFact(ctx, factID)
		if err != nil || fact == nil || !fact.Injectable() {
			continue
		}
		out = append(out, scoredFact{fact: fact, distance: h.Distance, score: h.Score})
	}
	return out
}

// adaptiveThreshold prefers distances under strongDistanceThreshold; if
// nothing clears that bar, it falls back to weakDistanceThreshold rather
// than returning nothing, per spec §4.2.
func adaptiveThreshold[T any](items []T, distanceOf func(T) float64) []T {
	var strong []T
	for _, it := range items {
		if distanceOf(it) < strongDistanceThreshold {
			strong = append(strong, it)
		}
	}
	if len(strong) > 0 {
		return strong
	}
	var weak []T
	for _, it := range items {
		if distanceOf(it) < weakDistanceThreshold {
			weak = append(weak, it)
		}
	}
	return weak
}

func adaptiveThresholdCode(items []scoredCode) []scoredCode {
	return adaptiveThreshold(items, func(c scoredCode) float64 { return c.distance })
}

// promoteCoChanged moves the first hit whose file matches CoChangedFiles
// up by one slot, if it isn't already at the front.
func promoteCoChanged(code []scoredCode, coChanged []string) []scoredCode {
	if len(coChanged) == 0 || len(code) < 2 {
		return code
	}
	set := make(map[string]bool, len(coChanged))
	for _, f := range coChanged {
		set[f] = true
	}
	for i := 1; i < len(code); i++ {
		filePath, _ := code[i].point.Payload["file_path"].(string)
		if set[filePath] {
			code[i-1], code[i] = code[i], code[i-1]
			break
		}
	}
	return code
}

// keywordRecall runs tier 2: the already-indexed LIKE-based fallback over
// confirmed facts, used when semantic search is unavailable or returns
// nothing.
func (e *Engine) keywordRecall(ctx context.Context, q Query) ([]*models.MemoryFact, error) {
	tokens := keywordTokens(q.Text)
	if len(tokens) < keywordMinTokens {
		return nil, nil
	}
	return e.Store.ConfirmedFactsLike(ctx, q.ProjectID, tokens, q.MemoryLimit)
}

func keywordTokens(query string) []string {
	var tokens []string
	for _, f := range strings.Fields(query) {
		if len(f) <= keywordMinTokenLen {
			continue
		}
		tokens = append(tokens, escapeLike(f))
	}
	return tokens
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func relatedFiles(code []CodeChunk) []string {
	seen := make(map[string]bool, len(code))
	var files []string
	for _, c := range code {
		if !seen[c.FilePath] {
			seen[c.FilePath] = true
			files = append(files, c.FilePath)
		}
	}
	return files
}

// estimateTokens gives a rough token budget accounting for what Recall
// assembled, using the common ~4-bytes-per-token approximation so the
// context builder (C12) can reason about remaining budget without
// re-tokenizing.
func estimateTokens(rc *RecallContext) int {
	var chars int
	for _, m := range rc.Recent {
		chars += len(m.Content)
	}
	for _, f := range rc.Semantic {
		chars += len(f.Content)
	}
	for _, c := range rc.Code {
		chars += len(c.Content) + len(c.Header)
	}
	return chars / 4
}

func intPayload(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func symbolHeader(symbolName string) string {
	if symbolName == "" {
		return ""
	}
	return symbolName
}
