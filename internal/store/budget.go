package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/pkg/models"
)

// RecordBudget inserts a BudgetRecord. Idempotent on (operation_id,
// provider, model): a duplicate record for the same operation is
// ignored rather than double-counted, per spec §4.5.
func (s *Store) RecordBudget(ctx context.Context, rec *models.BudgetRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budget_records (id, user_id, operation_id, provider, model, reasoning_effort, tokens_in, tokens_out, cost_usd, from_cache, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(operation_id, provider, model) WHERE operation_id IS NOT NULL AND operation_id != '' DO NOTHING
	`, rec.ID, rec.UserID, nullableString(rec.OperationID), rec.Provider, rec.Model, nullableString(rec.ReasoningEffort),
		rec.TokensIn, rec.TokensOut, rec.CostUSD, rec.FromCache, rec.Timestamp)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "record budget", err)
	}
	return nil
}

// DailySpend sums cost_usd for a user across [dayStart, dayStart+24h).
func (s *Store) DailySpend(ctx context.Context, userID string, dayStart time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(cost_usd) FROM budget_records WHERE user_id = ? AND timestamp >= ? AND timestamp < ?
	`, userID, dayStart, dayStart.Add(24*time.Hour)).Scan(&total)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "daily spend", err)
	}
	return total.Float64, nil
}

// BudgetRecordsForOperation returns all budget rows for one operation,
// used to verify the "exactly one BudgetRecord per non-cache-hit LLM
// call" testable property.
func (s *Store) BudgetRecordsForOperation(ctx context.Context, operationID string) ([]*models.BudgetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, operation_id, provider, model, reasoning_effort, tokens_in, tokens_out, cost_usd, from_cache, timestamp
		FROM budget_records WHERE operation_id = ?
	`, operationID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "budget records for operation", err)
	}
	defer rows.Close()

	var out []*models.BudgetRecord
	for rows.Next() {
		rec := &models.BudgetRecord{}
		var opID, effort sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &opID, &rec.Provider, &rec.Model, &effort,
			&rec.TokensIn, &rec.TokensOut, &rec.CostUSD, &rec.FromCache, &rec.Timestamp); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan budget record", err)
		}
		rec.OperationID = opID.String
		rec.ReasoningEffort = effort.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
