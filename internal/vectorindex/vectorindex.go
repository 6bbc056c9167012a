// Package vectorindex implements the dense-vector collection store (C2):
// one physical table holding points from every semantic domain (code,
// conversation, docs), distinguished by collection and searched with
// cosine distance plus arbitrary payload filters.
package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/pkg/models"
)

// Index stores and searches VectorPoints. It shares the SQLite file
// used by internal/store rather than opening a second connection pool,
// since sqlite only tolerates one writer at a time.
type Index struct {
	db *sql.DB
}

// Open wraps an already-open *sql.DB (normally the one backing
// internal/store.Store) and ensures the vector_points table exists.
func Open(ctx context.Context, db *sql.DB) (*Index, error) {
	idx := &Index{db: db}
	if err := idx.migrate(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate(ctx context.Context) error {
	_, err := idx.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vector_points (
			id         TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			vector     BLOB NOT NULL,
			payload    TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_vector_points_collection ON vector_points(collection);
	`)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "migrate vector_points", err)
	}
	return nil
}

// Upsert inserts or replaces a batch of points within one transaction.
func (idx *Index) Upsert(ctx context.Context, collection models.Collection, points []*models.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "begin upsert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vector_points (id, collection, vector, payload, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET collection = excluded.collection, vector = excluded.vector, payload = excluded.payload
	`)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "prepare upsert", err)
	}
	defer stmt.Close()

	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "marshal payload", err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, string(collection), encodeVector(p.Vector), string(payload)); err != nil {
			return apperr.Wrap(apperr.Internal, "upsert vector point", err)
		}
	}
	return tx.Commit()
}

// Filter narrows a Search to points whose payload matches every given
// key/value pair exactly (string/number/bool equality).
type Filter map[string]any

// SearchOptions controls a nearest-neighbour query.
type SearchOptions struct {
	Collection models.Collection
	Filter     Filter
	Limit      int
	// MaxDistance discards points with cosine distance above this
	// value. Zero means no threshold filtering.
	MaxDistance float64
}

// ScoredPoint is one search hit: the point plus its cosine distance
// and derived similarity score.
type ScoredPoint struct {
	Point    *models.VectorPoint
	Distance float64
	Score    float64
}

// Search runs a brute-force cosine-distance scan over a collection,
// applying the payload filter first. Distances are cosine in [0, 2];
// Score is 1 - clamp(distance, 0, 1), matching the recall engine's
// scoring convention.
func (idx *Index) Search(ctx context.Context, query []float32, opts SearchOptions) ([]ScoredPoint, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, vector, payload FROM vector_points WHERE collection = ?
	`, string(opts.Collection))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "search vector points", err)
	}
	defer rows.Close()

	var candidates []ScoredPoint
	for rows.Next() {
		var id string
		var vecBlob []byte
		var payloadJSON sql.NullString
		if err := rows.Scan(&id, &vecBlob, &payloadJSON); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan vector point", err)
		}

		var payload map[string]any
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &payload); err != nil {
				return nil, apperr.Wrap(apperr.Internal, "unmarshal payload", err)
			}
		}
		if !matchesFilter(payload, opts.Filter) {
			continue
		}

		vec := decodeVector(vecBlob)
		distance := cosineDistance(query, vec)
		if opts.MaxDistance > 0 && distance > opts.MaxDistance {
			continue
		}

		candidates = append(candidates, ScoredPoint{
			Point:    &models.VectorPoint{ID: id, Vector: vec, Payload: payload},
			Distance: distance,
			Score:    1 - clamp01(distance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate vector points", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Delete removes points by id, regardless of collection.
func (idx *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "begin delete", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM vector_points WHERE id = ?`)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "prepare delete", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return apperr.Wrap(apperr.Internal, fmt.Sprintf("delete vector point %s", id), err)
		}
	}
	return tx.Commit()
}

// Count returns the number of points in a collection.
func (idx *Index) Count(ctx context.Context, collection models.Collection) (int64, error) {
	var n int64
	err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_points WHERE collection = ?`, string(collection)).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "count vector points", err)
	}
	return n, nil
}

func matchesFilter(payload map[string]any, f Filter) bool {
	for k, want := range f {
		got, ok := payload[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// encodeVector packs []float32 as raw IEEE-754 bytes, little-endian
// per component. There is no CGO vec0 extension available in this
// build, so similarity search is a manual scan rather than an index
// lookup.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	data := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		v[i] = math.Float32frombits(bits)
	}
	return v
}

// cosineDistance returns 1 - cosineSimilarity, clamped into [0, 2] as
// the spec's numeric invariant requires. Mismatched or empty vectors
// are treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	sim := float64(dot) / (sqrt64(float64(normA)) * sqrt64(float64(normB)))
	dist := 1 - sim
	if dist < 0 {
		dist = 0
	}
	if dist > 2 {
		dist = 2
	}
	return dist
}

func sqrt64(x float64) float64 {
	return math.Sqrt(x)
}
