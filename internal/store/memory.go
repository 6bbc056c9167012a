package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/pkg/models"
)

// UpsertMemoryFact inserts a new fact, or replaces the existing row
// sharing (ProjectID, Key) when Key is set, per the spec's uniqueness
// invariant.
func (s *Store) UpsertMemoryFact(ctx context.Context, f *models.MemoryFact) error {
	if f.Key != "" {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO memory_facts (id, project_id, key, content, fact_type, category, confidence, status, suspicious, last_accessed_at, access_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (project_id, key) WHERE key IS NOT NULL AND key != ''
			DO UPDATE SET content = excluded.content, confidence = excluded.confidence,
				status = excluded.status, suspicious = excluded.suspicious, updated_at = excluded.updated_at
		`, f.ID, nullableString(f.ProjectID), f.Key, f.Content, string(f.FactType), nullableString(f.Category),
			f.Confidence, string(f.Status), f.Suspicious, nullableTime(f.LastAccessedAt), f.AccessCount, f.CreatedAt, f.UpdatedAt)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "upsert memory fact", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_facts (id, project_id, key, content, fact_type, category, confidence, status, suspicious, last_accessed_at, access_count, created_at, updated_at)
		VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, nullableString(f.ProjectID), f.Content, string(f.FactType), nullableString(f.Category),
		f.Confidence, string(f.Status), f.Suspicious, nullableTime(f.LastAccessedAt), f.AccessCount, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert memory fact", err)
	}
	return nil
}

// ConfirmedFactsLike returns confirmed, non-suspicious facts whose
// content matches a case-insensitive LIKE pattern, used by the keyword
// recall fallback (spec §4.2 tier 2). Tokens must already be validated
// (length > 3, at least two) and wildcard-escaped by the caller.
func (s *Store) ConfirmedFactsLike(ctx context.Context, projectID string, likeTokens []string, limit int) ([]*models.MemoryFact, error) {
	if len(likeTokens) == 0 {
		return nil, nil
	}
	var clauses []string
	args := []any{}
	for _, tok := range likeTokens {
		clauses = append(clauses, "content LIKE ? ESCAPE '\\'")
		args = append(args, "%"+tok+"%")
	}
	query := `
		SELECT id, project_id, key, content, fact_type, category, confidence, status, suspicious, last_accessed_at, access_count, created_at, updated_at
		FROM memory_facts
		WHERE status = 'confirmed' AND suspicious = 0 AND (project_id = ? OR project_id IS NULL) AND ` +
		strings.Join(clauses, " AND ") + `
		ORDER BY
			CASE fact_type WHEN 'decision' THEN 0 WHEN 'preference' THEN 1 ELSE 2 END,
			created_at DESC
		LIMIT ?
	`
	args = append([]any{projectID}, args...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "confirmed facts like", err)
	}
	defer rows.Close()
	return scanMemoryFacts(rows)
}

// GetMemoryFact fetches a single fact by id.
func (s *Store) GetMemoryFact(ctx context.Context, id string) (*models.MemoryFact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, key, content, fact_type, category, confidence, status, suspicious, last_accessed_at, access_count, created_at, updated_at
		FROM memory_facts WHERE id = ?
	`, id)
	f, err := scanMemoryFactRow(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "memory fact not found: "+id)
	}
	return f, err
}

// GetMemoryFactByKey fetches a single fact by (project_id, key), the
// lookup the context builder uses to resolve the base_persona /
// project_persona overlays (spec §4.4.3). Returns apperr.NotFound if
// absent — callers treat a missing persona as "no overlay", not an
// error.
func (s *Store) GetMemoryFactByKey(ctx context.Context, projectID, key string) (*models.MemoryFact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, key, content, fact_type, category, confidence, status, suspicious, last_accessed_at, access_count, created_at, updated_at
		FROM memory_facts WHERE key = ? AND (project_id = ? OR project_id IS NULL)
		ORDER BY project_id IS NULL ASC LIMIT 1
	`, key, nullableString(projectID))
	f, err := scanMemoryFactRow(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "memory fact not found: key="+key)
	}
	return f, err
}

// TouchMemoryFact bumps LastAccessedAt/AccessCount, feeding the
// working-modules / recently-touched-entity signal used by the context
// builder.
func (s *Store) TouchMemoryFact(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memory_facts SET last_accessed_at = ?, access_count = access_count + 1 WHERE id = ?`, at, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "touch memory fact", err)
	}
	return nil
}

func scanMemoryFacts(rows *sql.Rows) ([]*models.MemoryFact, error) {
	var out []*models.MemoryFact
	for rows.Next() {
		f, err := scanMemoryFactCols(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemoryFactCols(rows scanner) (*models.MemoryFact, error) {
	return scanMemoryFactRow(rows)
}

func scanMemoryFactRow(row scanner) (*models.MemoryFact, error) {
	f := &models.MemoryFact{}
	var projectID, key, category sql.NullString
	var lastAccessed sql.NullTime
	if err := row.Scan(&f.ID, &projectID, &key, &f.Content, &f.FactType, &category, &f.Confidence,
		&f.Status, &f.Suspicious, &lastAccessed, &f.AccessCount, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.Internal, "scan memory fact", err)
	}
	f.ProjectID = projectID.String
	f.Key = key.String
	f.Category = category.String
	f.LastAccessedAt = lastAccessed.Time
	return f, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
