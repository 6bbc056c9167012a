package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/pkg/models"
)

// FileHash returns the stored content hash for (projectID, filePath),
// or "" if the file has never been indexed.
func (s *Store) FileHash(ctx context.Context, projectID, filePath string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM repository_files WHERE project_id = ? AND file_path = ?`,
		projectID, filePath).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "file hash", err)
	}
	return hash, nil
}

// FilesByProject returns every indexed file's bookkeeping row for a
// project, used by the module cartographer to group files by directory.
func (s *Store) FilesByProject(ctx context.Context, projectID string) ([]*models.RepositoryFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, file_path, content_hash, language, last_indexed, size_bytes
		FROM repository_files WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "files by project", err)
	}
	defer rows.Close()

	var out []*models.RepositoryFile
	for rows.Next() {
		f := &models.RepositoryFile{}
		if err := rows.Scan(&f.ProjectID, &f.FilePath, &f.ContentHash, &f.Language, &f.LastIndexed, &f.SizeBytes); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan repository file", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ReplaceFileSymbols atomically deletes the prior CodeSymbols/CallEdges
// for a file and upserts its RepositoryFile row, using BEGIN IMMEDIATE
// to avoid write skew between concurrent indexers on the same file
// (spec §5). Parsing happens OUTSIDE this transaction by design — the
// caller inserts the freshly parsed symbols/imports/calls in a second,
// short transaction via InsertParseResult.
func (s *Store) ReplaceFileSymbols(ctx context.Context, file *models.RepositoryFile) error {
	tx, err := s.beginImmediate(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "begin immediate", err)
	}
	defer tx.Rollback()

	symbolRows, err := tx.QueryContext(ctx, `SELECT id FROM code_symbols WHERE project_id = ? AND file_path = ?`, file.ProjectID, file.FilePath)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "select prior symbols", err)
	}
	var ids []string
	for symbolRows.Next() {
		var id string
		if err := symbolRows.Scan(&id); err != nil {
			symbolRows.Close()
			return apperr.Wrap(apperr.Internal, "scan prior symbol id", err)
		}
		ids = append(ids, id)
	}
	symbolRows.Close()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM call_edges WHERE caller_symbol_id = ?`, id); err != nil {
			return apperr.Wrap(apperr.Internal, "delete call edges", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM code_symbols WHERE project_id = ? AND file_path = ?`, file.ProjectID, file.FilePath); err != nil {
		return apperr.Wrap(apperr.Internal, "delete code symbols", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM imports WHERE project_id = ? AND file_path = ?`, file.ProjectID, file.FilePath); err != nil {
		return apperr.Wrap(apperr.Internal, "delete imports", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO repository_files (project_id, file_path, content_hash, language, last_indexed, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET content_hash = excluded.content_hash,
			language = excluded.language, last_indexed = excluded.last_indexed, size_bytes = excluded.size_bytes
	`, file.ProjectID, file.FilePath, file.ContentHash, file.Language, file.LastIndexed, file.SizeBytes); err != nil {
		return apperr.Wrap(apperr.Internal, "upsert repository file", err)
	}

	return tx.Commit()
}

// InsertParseResult inserts the freshly parsed symbols, imports, and
// call edges for one file in a single short transaction (spec §4.1
// step 4). Called after ReplaceFileSymbols has cleared the prior set.
func (s *Store) InsertParseResult(ctx context.Context, symbols []*models.CodeSymbol, imports []*models.Import, calls []*models.CallEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin insert parse result", err)
	}
	defer tx.Rollback()

	for _, sym := range symbols {
		if sym.StartLine > sym.EndLine {
			// Broken parser invariant: this must never reach storage.
			panic("code symbol start_line > end_line")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO code_symbols (id, project_id, file_path, name, qualified_name, symbol_type, language,
				start_line, end_line, signature, visibility, documentation, is_test, is_async, complexity, analyzed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sym.ID, sym.ProjectID, sym.FilePath, sym.Name, sym.QualifiedName, string(sym.SymbolType), sym.Language,
			sym.StartLine, sym.EndLine, nullableString(sym.Signature), nullableString(sym.Visibility),
			nullableString(sym.Documentation), sym.IsTest, sym.IsAsync, sym.Complexity, sym.AnalyzedAt); err != nil {
			return apperr.Wrap(apperr.Internal, "insert code symbol", err)
		}
	}
	for _, imp := range imports {
		symbolsJSON, _ := json.Marshal(imp.ImportedSymbols)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO imports (project_id, file_path, import_path, imported_symbols, is_external)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(project_id, file_path, import_path) DO NOTHING
		`, imp.ProjectID, imp.FilePath, imp.ImportPath, string(symbolsJSON), imp.IsExternal); err != nil {
			return apperr.Wrap(apperr.Internal, "insert import", err)
		}
	}
	for _, ce := range calls {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO call_edges (caller_symbol_id, callee_name, callee_symbol_id, call_line)
			VALUES (?, ?, ?, ?)
		`, ce.CallerSymbolID, ce.CalleeName, nullableString(ce.CalleeSymbolID), ce.CallLine); err != nil {
			return apperr.Wrap(apperr.Internal, "insert call edge", err)
		}
	}
	return tx.Commit()
}

// DeleteFileRows removes a file's symbols/imports/repository-file row
// entirely (used when a file is deleted from the project tree).
func (s *Store) DeleteFileRows(ctx context.Context, projectID, filePath string) error {
	tx, err := s.beginImmediate(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "begin immediate", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM code_symbols WHERE project_id = ? AND file_path = ?`,
		`DELETE FROM imports WHERE project_id = ? AND file_path = ?`,
		`DELETE FROM repository_files WHERE project_id = ? AND file_path = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, projectID, filePath); err != nil {
			return apperr.Wrap(apperr.Internal, "delete file rows", err)
		}
	}
	return tx.Commit()
}

// SymbolsByFile returns all symbols for one file ordered by start line.
func (s *Store) SymbolsByFile(ctx context.Context, projectID, filePath string) ([]*models.CodeSymbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, file_path, name, qualified_name, symbol_type, language, start_line, end_line,
			signature, visibility, documentation, is_test, is_async, complexity, analyzed_at
		FROM code_symbols WHERE project_id = ? AND file_path = ? ORDER BY start_line ASC
	`, projectID, filePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "symbols by file", err)
	}
	defer rows.Close()
	return scanCodeSymbols(rows)
}

// FindSymbolByQualifiedName resolves an exact qualified-name match
// within a project, the best-effort call-edge resolution strategy.
func (s *Store) FindSymbolByQualifiedName(ctx context.Context, projectID, qualifiedName string) (*models.CodeSymbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, file_path, name, qualified_name, symbol_type, language, start_line, end_line,
			signature, visibility, documentation, is_test, is_async, complexity, analyzed_at
		FROM code_symbols WHERE project_id = ? AND qualified_name = ? LIMIT 1
	`, projectID, qualifiedName)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "find symbol by qualified name", err)
	}
	defer rows.Close()
	syms, err := scanCodeSymbols(rows)
	if err != nil {
		return nil, err
	}
	if len(syms) == 0 {
		return nil, nil
	}
	return syms[0], nil
}

// SearchSymbolsByName does a case-sensitive substring match over
// symbol names, used by find_function/find_class tools.
func (s *Store) SearchSymbolsByName(ctx context.Context, projectID, namePattern string, symbolTypes []models.SymbolType, limit int) ([]*models.CodeSymbol, error) {
	query := `
		SELECT id, project_id, file_path, name, qualified_name, symbol_type, language, start_line, end_line,
			signature, visibility, documentation, is_test, is_async, complexity, analyzed_at
		FROM code_symbols WHERE project_id = ? AND name LIKE ?`
	args := []any{projectID, "%" + namePattern + "%"}
	if len(symbolTypes) > 0 {
		placeholders := make([]string, len(symbolTypes))
		for i, t := range symbolTypes {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += " AND symbol_type IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY name ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "search symbols by name", err)
	}
	defer rows.Close()
	return scanCodeSymbols(rows)
}

// ComplexityHotspots returns the N highest-complexity symbols in a
// project for the get_complexity_hotspots tool.
func (s *Store) ComplexityHotspots(ctx context.Context, projectID string, limit int) ([]*models.CodeSymbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, file_path, name, qualified_name, symbol_type, language, start_line, end_line,
			signature, visibility, documentation, is_test, is_async, complexity, analyzed_at
		FROM code_symbols WHERE project_id = ? ORDER BY complexity DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "complexity hotspots", err)
	}
	defer rows.Close()
	return scanCodeSymbols(rows)
}

// CallersOf returns resolved call edges pointing at calleeSymbolID.
func (s *Store) CallersOf(ctx context.Context, calleeSymbolID string) ([]*models.CallEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT caller_symbol_id, callee_name, callee_symbol_id, call_line
		FROM call_edges WHERE callee_symbol_id = ?
	`, calleeSymbolID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "callers of", err)
	}
	defer rows.Close()

	var out []*models.CallEdge
	for rows.Next() {
		ce := &models.CallEdge{}
		var calleeID sql.NullString
		if err := rows.Scan(&ce.CallerSymbolID, &ce.CalleeName, &calleeID, &ce.CallLine); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan call edge", err)
		}
		ce.CalleeSymbolID = calleeID.String
		out = append(out, ce)
	}
	return out, rows.Err()
}

// ImportsByFile returns the imports recorded for a file.
func (s *Store) ImportsByFile(ctx context.Context, projectID, filePath string) ([]*models.Import, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, file_path, import_path, imported_symbols, is_external
		FROM imports WHERE project_id = ? AND file_path = ?
	`, projectID, filePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "imports by file", err)
	}
	defer rows.Close()

	var out []*models.Import
	for rows.Next() {
		imp := &models.Import{}
		var symbolsJSON sql.NullString
		if err := rows.Scan(&imp.ProjectID, &imp.FilePath, &imp.ImportPath, &symbolsJSON, &imp.IsExternal); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan import", err)
		}
		if symbolsJSON.Valid {
			_ = json.Unmarshal([]byte(symbolsJSON.String), &imp.ImportedSymbols)
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

// CodebaseStats aggregates symbol/file counts for get_codebase_stats.
type CodebaseStats struct {
	FileCount   int
	SymbolCount int
	TestCount   int
}

func (s *Store) CodebaseStats(ctx context.Context, projectID string) (CodebaseStats, error) {
	var st CodebaseStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM repository_files WHERE project_id = ?`, projectID).Scan(&st.FileCount); err != nil {
		return st, apperr.Wrap(apperr.Internal, "codebase stats: file count", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_symbols WHERE project_id = ?`, projectID).Scan(&st.SymbolCount); err != nil {
		return st, apperr.Wrap(apperr.Internal, "codebase stats: symbol count", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_symbols WHERE project_id = ? AND is_test = 1`, projectID).Scan(&st.TestCount); err != nil {
		return st, apperr.Wrap(apperr.Internal, "codebase stats: test count", err)
	}
	return st, nil
}

func scanCodeSymbols(rows *sql.Rows) ([]*models.CodeSymbol, error) {
	var out []*models.CodeSymbol
	for rows.Next() {
		sym := &models.CodeSymbol{}
		var signature, visibility, documentation sql.NullString
		if err := rows.Scan(&sym.ID, &sym.ProjectID, &sym.FilePath, &sym.Name, &sym.QualifiedName, &sym.SymbolType,
			&sym.Language, &sym.StartLine, &sym.EndLine, &signature, &visibility, &documentation,
			&sym.IsTest, &sym.IsAsync, &sym.Complexity, &sym.AnalyzedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan code symbol", err)
		}
		sym.Signature = signature.String
		sym.Visibility = visibility.String
		sym.Documentation = documentation.String
		out = append(out, sym)
	}
	return out, rows.Err()
}

// UpsertModule stores one cartographer unit.
func (s *Store) UpsertModule(ctx context.Context, m *models.Module) error {
	exportsJSON, _ := json.Marshal(m.Exports)
	dependsJSON, _ := json.Marshal(m.DependsOn)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO modules (id, project_id, name, directory, purpose, heuristic_purpose, exports, depends_on, symbol_count, line_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET purpose = excluded.purpose, heuristic_purpose = excluded.heuristic_purpose,
			exports = excluded.exports, depends_on = excluded.depends_on,
			symbol_count = excluded.symbol_count, line_count = excluded.line_count
	`, m.ID, m.ProjectID, m.Name, m.Directory, m.Purpose, m.HeuristicPurpose, string(exportsJSON), string(dependsJSON), m.SymbolCount, m.LineCount)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "upsert module", err)
	}
	return nil
}

// ModulesByProject returns all cartographer units for a project.
func (s *Store) ModulesByProject(ctx context.Context, projectID string) ([]*models.Module, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, directory, purpose, heuristic_purpose, exports, depends_on, symbol_count, line_count
		FROM modules WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "modules by project", err)
	}
	defer rows.Close()

	var out []*models.Module
	for rows.Next() {
		m := &models.Module{}
		var exportsJSON, dependsJSON string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Directory, &m.Purpose, &m.HeuristicPurpose, &exportsJSON, &dependsJSON, &m.SymbolCount, &m.LineCount); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan module", err)
		}
		_ = json.Unmarshal([]byte(exportsJSON), &m.Exports)
		_ = json.Unmarshal([]byte(dependsJSON), &m.DependsOn)
		out = append(out, m)
	}
	return out, rows.Err()
}
