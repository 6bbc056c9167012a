package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/getmira/mira-core/internal/embedclient"
	"github.com/getmira/mira-core/internal/store"
	"github.com/getmira/mira-core/internal/vectorindex"
	"github.com/getmira/mira-core/pkg/models"
)

// Indexer drives the per-file pipeline described in spec §4.1: hash
// compare, transactional delete+upsert, parse outside the transaction,
// insert the parse result, then chunk and embed.
type Indexer struct {
	Store    *store.Store
	Vectors  *vectorindex.Index
	Embedder *embedclient.Client
	Registry *Registry
	Log      *slog.Logger
}

// New builds an Indexer with the default four-language registry.
func New(st *store.Store, vectors *vectorindex.Index, embedder *embedclient.Client, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{Store: st, Vectors: vectors, Embedder: embedder, Registry: DefaultRegistry(), Log: log}
}

// IndexProject walks a project root and indexes every file the
// registry recognizes. A single file failing to parse is logged and
// skipped; the rest of the project continues, per spec §4.1's failure
// semantics.
func (ix *Indexer) IndexProject(ctx context.Context, projectID, root string) error {
	files, err := Walk(root, ix.Registry, func(path, reason string) {
		ix.Log.Warn("indexer: skipping file", "path", path, "reason", reason)
	})
	if err != nil {
		return fmt.Errorf("walk project: %w", err)
	}

	for _, wf := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ix.indexFile(ctx, projectID, root, wf); err != nil {
			ix.Log.Error("indexer: failed to index file", "path", wf.RelPath, "error", err)
			continue
		}
	}
	return nil
}

func (ix *Indexer) indexFile(ctx context.Context, projectID, root string, wf WalkFile) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic indexing %s: %v", wf.RelPath, r)
		}
	}()

	content, readErr := os.ReadFile(wf.AbsPath)
	if readErr != nil {
		return fmt.Errorf("read file: %w", readErr)
	}

	hash := sha256Hex(content)
	prevHash, err := ix.Store.FileHash(ctx, projectID, wf.RelPath)
	if err != nil {
		return fmt.Errorf("lookup file hash: %w", err)
	}
	if prevHash == hash {
		return nil
	}

	now := time.Now()
	if err := ix.Store.ReplaceFileSymbols(ctx, &models.RepositoryFile{
		ProjectID:   projectID,
		FilePath:    wf.RelPath,
		ContentHash: hash,
		Language:    wf.Language,
		LastIndexed: now,
		SizeBytes:   int64(len(content)),
	}); err != nil {
		return fmt.Errorf("replace file symbols: %w", err)
	}

	parser, ok := ix.Registry.Get(strings.TrimPrefix(filepath.Ext(wf.RelPath), "."))
	if !ok {
		return nil
	}
	parsed, parseErr := parser.Parse(content)
	if parseErr != nil {
		return fmt.Errorf("parse: %w", parseErr)
	}

	symbols, nameToID := ix.assignSymbolIDs(projectID, wf.RelPath, now, parsed.Symbols)
	imports := ix.buildImports(projectID, wf.RelPath, parsed.Imports)
	calls := ix.resolveCalls(ctx, projectID, nameToID, parsed.Calls)

	if err := ix.Store.InsertParseResult(ctx, symbols, imports, calls); err != nil {
		return fmt.Errorf("insert parse result: %w", err)
	}

	ix.embedChunks(ctx, projectID, wf.RelPath, content, symbols)
	return nil
}

func (ix *Indexer) assignSymbolIDs(projectID, filePath string, now time.Time, raw []RawSymbol) ([]*models.CodeSymbol, map[string]string) {
	symbols := make([]*models.CodeSymbol, 0, len(raw))
	nameToID := make(map[string]string, len(raw))
	for _, r := range raw {
		sym := &models.CodeSymbol{
			ID:            uuid.New().String(),
			ProjectID:     projectID,
			FilePath:      filePath,
			Name:          r.Name,
			QualifiedName: r.QualifiedName,
			SymbolType:    r.SymbolType,
			Language:      r.Language,
			StartLine:     r.StartLine,
			EndLine:       r.EndLine,
			Signature:     r.Signature,
			Visibility:    r.Visibility,
			Documentation: r.Documentation,
			IsTest:        r.IsTest,
			IsAsync:       r.IsAsync,
			Complexity:    r.EndLine - r.StartLine + 1,
			AnalyzedAt:    now,
		}
		symbols = append(symbols, sym)
		nameToID[r.QualifiedName] = sym.ID
		if _, exists := nameToID[r.Name]; !exists {
			nameToID[r.Name] = sym.ID
		}
	}
	return symbols, nameToID
}

func (ix *Indexer) buildImports(projectID, filePath string, raw []RawImport) []*models.Import {
	imports := make([]*models.Import, 0, len(raw))
	for _, r := range raw {
		imports = append(imports, &models.Import{
			ProjectID:       projectID,
			FilePath:        filePath,
			ImportPath:      r.ImportPath,
			ImportedSymbols: r.ImportedSymbols,
			IsExternal:      r.IsExternal,
		})
	}
	return imports
}

// resolveCalls maps each RawCall's caller name to a symbol ID assigned
// within this file (calls whose caller isn't a recognized top-level
// symbol — e.g. a closure — are dropped, matching the "only functions
// we track as symbols can be call-graph nodes" scope). The callee is
// resolved best-effort against the whole project by exact qualified
// name; unresolved callees are still stored; per spec §4.1 step 4.
func (ix *Indexer) resolveCalls(ctx context.Context, projectID string, nameToID map[string]string, raw []RawCall) []*models.CallEdge {
	calls := make([]*models.CallEdge, 0, len(raw))
	for _, r := range raw {
		callerID, ok := nameToID[r.CallerName]
		if !ok {
			continue
		}
		edge := &models.CallEdge{
			CallerSymbolID: callerID,
			CalleeName:     r.CalleeName,
			CallLine:       r.CallLine,
		}
		if calleeID, ok := nameToID[r.CalleeName]; ok {
			edge.CalleeSymbolID = calleeID
		} else if sym, err := ix.Store.FindSymbolByQualifiedName(ctx, projectID, r.CalleeName); err == nil && sym != nil {
			edge.CalleeSymbolID = sym.ID
		}
		calls = append(calls, edge)
	}
	return calls
}

func (ix *Indexer) embedChunks(ctx context.Context, projectID, filePath string, content []byte, symbols []*models.CodeSymbol) {
	lines := strings.Split(string(content), "\n")
	chunks := ChunkSymbols(filePath, lines, symbols)
	if len(chunks) == 0 {
		return
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := ix.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		ix.enqueuePending(ctx, projectID, filePath, chunks)
		return
	}

	points := make([]*models.VectorPoint, 0, len(chunks))
	for i, c := range chunks {
		if i >= len(vecs) || vecs[i] == nil {
			continue
		}
		points = append(points, &models.VectorPoint{
			ID:     chunkPointID(projectID, c.FilePath, c.StartLine),
			Vector: vecs[i],
			Payload: map[string]any{
				"project_id":  projectID,
				"file_path":   c.FilePath,
				"start_line":  c.StartLine,
				"end_line":    c.EndLine,
				"symbol_name": c.SymbolName,
			},
		})
	}
	if err := ix.Vectors.Upsert(ctx, models.CollectionCode, points); err != nil {
		ix.Log.Error("indexer: failed to upsert vector points", "file", filePath, "error", err)
	}
}

func (ix *Indexer) enqueuePending(ctx context.Context, projectID, filePath string, chunks []Chunk) {
	for _, c := range chunks {
		payload := fmt.Sprintf(`{"project_id":%q,"file_path":%q,"start_line":%d,"end_line":%d,"symbol_name":%q}`,
			projectID, c.FilePath, c.StartLine, c.EndLine, c.SymbolName)
		err := ix.Store.EnqueuePendingEmbedding(ctx, &store.PendingEmbedding{
			Collection: string(models.CollectionCode),
			PointID:    chunkPointID(projectID, c.FilePath, c.StartLine),
			Text:       c.Text,
			Payload:    payload,
			CreatedAt:  time.Now(),
		})
		if err != nil {
			ix.Log.Error("indexer: failed to enqueue pending embedding", "file", filePath, "error", err)
		}
	}
}

// chunkPointID derives a stable hash-based ID so re-indexing the same
// logical chunk upserts rather than duplicates, per the VectorPoint
// invariant in spec §3.
func chunkPointID(projectID, filePath string, startLine int) string {
	return sha256Hex([]byte(fmt.Sprintf("%s:%s:%d", projectID, filePath, startLine)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
