// Package budget implements the Budget Tracker (C8): a before-the-call
// spend gate plus an idempotent cost ledger, grounded on teacher
// internal/usage.Tracker's usage-accumulation shape but restructured
// around spec §4.5's check_limits/record_request contract — limits are
// enforced BEFORE each LLM call, not audited after the fact.
package budget

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/pkg/models"
)

// store is the subset of internal/store.Store the tracker depends on,
// kept narrow so budget doesn't import the whole store package surface
// and so tests can supply an in-memory fake.
type store interface {
	RecordBudget(ctx context.Context, rec *models.BudgetRecord) error
	DailySpend(ctx context.Context, userID string, dayStart time.Time) (float64, error)
	BudgetRecordsForOperation(ctx context.Context, operationID string) ([]*models.BudgetRecord, error)
}

// Limits are the minimum enforcement spec §4.5 requires: a daily USD
// cap and a per-operation token cap. Zero means unlimited.
type Limits struct {
	DailyUSDCap       float64
	PerOperationTokens int64
}

// Tracker enforces Limits and records BudgetRecords.
type Tracker struct {
	store  store
	limits map[string]Limits // per-user override; "" is the default
	now    func() time.Time
}

// Config configures a Tracker.
type Config struct {
	DefaultLimits Limits
	PerUserLimits map[string]Limits
}

// New builds a Tracker backed by s.
func New(s store, cfg Config) *Tracker {
	limits := make(map[string]Limits, len(cfg.PerUserLimits)+1)
	limits[""] = cfg.DefaultLimits
	for user, l := range cfg.PerUserLimits {
		limits[user] = l
	}
	return &Tracker{store: s, limits: limits, now: time.Now}
}

// limitsFor returns the configured Limits for userID, falling back to
// the default entry.
func (t *Tracker) limitsFor(userID string) Limits {
	if l, ok := t.limits[userID]; ok {
		return l
	}
	return t.limits[""]
}

// CheckLimits reports whether userID may proceed with a call projected
// to cost intendedDeltaUSD and consume intendedTokens, per spec §4.5:
// checked BEFORE the LLM call is issued.
func (t *Tracker) CheckLimits(ctx context.Context, userID string, intendedDeltaUSD float64, intendedTokens int64) error {
	limits := t.limitsFor(userID)

	if limits.PerOperationTokens > 0 && intendedTokens > limits.PerOperationTokens {
		return apperr.New(apperr.Budget, "per-operation token cap exceeded")
	}

	if limits.DailyUSDCap > 0 {
		dayStart := startOfDay(t.now())
		spent, err := t.store.DailySpend(ctx, userID, dayStart)
		if err != nil {
			return err
		}
		if spent+intendedDeltaUSD > limits.DailyUSDCap {
			return apperr.New(apperr.Budget, "daily USD cap exceeded")
		}
	}
	return nil
}

// RecordRequest appends a BudgetRecord for one LLM call. Recording is
// idempotent on operationID: the store's unique constraint absorbs a
// duplicate call for the same (operation, provider, model) rather than
// double-counting it.
func (t *Tracker) RecordRequest(ctx context.Context, rec Request) error {
	return t.store.RecordBudget(ctx, &models.BudgetRecord{
		ID:              uuid.New().String(),
		UserID:          rec.UserID,
		OperationID:     rec.OperationID,
		Provider:        rec.Provider,
		Model:           rec.Model,
		ReasoningEffort: rec.ReasoningEffort,
		TokensIn:        rec.TokensIn,
		TokensOut:       rec.TokensOut,
		CostUSD:         rec.CostUSD,
		FromCache:       rec.FromCache,
		Timestamp:       t.now(),
	})
}

// Request is the caller-facing shape for RecordRequest, deliberately
// narrower than models.BudgetRecord (no ID/Timestamp — the tracker
// owns those).
type Request struct {
	UserID          string
	OperationID     string
	Provider        string
	Model           string
	ReasoningEffort string
	TokensIn        int64
	TokensOut       int64
	CostUSD         float64
	FromCache       bool
}

// RecordsForOperation returns every BudgetRecord logged against one
// operation, used to verify the "exactly one record per non-cache-hit
// call" invariant in tests and audits.
func (t *Tracker) RecordsForOperation(ctx context.Context, operationID string) ([]*models.BudgetRecord, error) {
	return t.store.BudgetRecordsForOperation(ctx, operationID)
}

func startOfDay(ts time.Time) time.Time {
	year, month, day := ts.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, ts.Location())
}
