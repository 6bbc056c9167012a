package store

import (
	"context"
	"time"

	"github.com/getmira/mira-core/internal/apperr"
)

// PendingEmbedding is a chunk that needs embedding once the embedding
// backend is reachable again.
type PendingEmbedding struct {
	ID         int64
	Collection string
	PointID    string
	Text       string
	Payload    string // JSON-encoded map[string]any
	CreatedAt  time.Time
}

// EnqueuePendingEmbedding records a chunk that could not be embedded
// immediately (spec §4.1 step 5: "When embedding is unavailable,
// enqueue a pending_embeddings row for a background worker").
func (s *Store) EnqueuePendingEmbedding(ctx context.Context, pe *PendingEmbedding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_embeddings (collection, point_id, text, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, pe.Collection, pe.PointID, pe.Text, pe.Payload, pe.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "enqueue pending embedding", err)
	}
	return nil
}

// PendingEmbeddings returns up to limit queued embeddings, oldest first.
func (s *Store) PendingEmbeddings(ctx context.Context, limit int) ([]*PendingEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection, point_id, text, payload, created_at
		FROM pending_embeddings ORDER BY id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list pending embeddings", err)
	}
	defer rows.Close()

	var out []*PendingEmbedding
	for rows.Next() {
		pe := &PendingEmbedding{}
		if err := rows.Scan(&pe.ID, &pe.Collection, &pe.PointID, &pe.Text, &pe.Payload, &pe.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan pending embedding", err)
		}
		out = append(out, pe)
	}
	return out, rows.Err()
}

// DeletePendingEmbedding removes a queued embedding once the background
// worker has successfully embedded and indexed it.
func (s *Store) DeletePendingEmbedding(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_embeddings WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete pending embedding", err)
	}
	return nil
}
