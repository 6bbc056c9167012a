package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/pkg/models"
)

// CreateOperation inserts a new operation row in status=pending.
func (s *Store) CreateOperation(ctx context.Context, op *models.Operation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (id, session_id, operation_type, request, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, op.ID, op.SessionID, op.OperationType, op.Request, string(op.Status), op.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "create operation", err)
	}
	return nil
}

// GetOperation fetches an operation by id.
func (s *Store) GetOperation(ctx context.Context, id string) (*models.Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, operation_type, request, status, result, error, created_at, started_at, completed_at
		FROM operations WHERE id = ?
	`, id)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "operation not found: "+id)
	}
	return op, err
}

// UpdateOperationStatus performs a bare status transition, used for
// pending->planning. Returns the previous status.
func (s *Store) UpdateOperationStatus(ctx context.Context, id string, newStatus models.OperationStatus, startedAt *sql.NullTime) (models.OperationStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "begin status update", err)
	}
	defer tx.Rollback()

	var old string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM operations WHERE id = ?`, id).Scan(&old); err != nil {
		if err == sql.ErrNoRows {
			return "", apperr.New(apperr.NotFound, "operation not found: "+id)
		}
		return "", apperr.Wrap(apperr.Internal, "select status", err)
	}

	if startedAt != nil && startedAt.Valid {
		if _, err := tx.ExecContext(ctx, `UPDATE operations SET status = ?, started_at = ? WHERE id = ?`, string(newStatus), startedAt.Time, id); err != nil {
			return "", apperr.Wrap(apperr.Internal, "update status+started_at", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE operations SET status = ? WHERE id = ?`, string(newStatus), id); err != nil {
			return "", apperr.Wrap(apperr.Internal, "update status", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", apperr.Wrap(apperr.Internal, "commit status update", err)
	}
	return models.OperationStatus(old), nil
}

// CompleteOperation transitions an operation to completed, writing
// result and completed_at. A second call on an already-terminal
// operation is a no-op (reports done=false).
func (s *Store) CompleteOperation(ctx context.Context, id, result string, completedAt sql.NullTime) (done bool, err error) {
	return s.finalizeOperation(ctx, id, models.OperationCompleted, result, "", completedAt)
}

// FailOperation transitions an operation to failed, writing the error
// message and completed_at. A second call on an already-terminal
// operation is a no-op.
func (s *Store) FailOperation(ctx context.Context, id, errMsg string, completedAt sql.NullTime) (done bool, err error) {
	return s.finalizeOperation(ctx, id, models.OperationFailed, "", errMsg, completedAt)
}

// CancelOperation transitions an operation to cancelled. A second call
// on an already-terminal operation is a no-op.
func (s *Store) CancelOperation(ctx context.Context, id string, completedAt sql.NullTime) (done bool, err error) {
	return s.finalizeOperation(ctx, id, models.OperationCancelled, "", "", completedAt)
}

func (s *Store) finalizeOperation(ctx context.Context, id string, status models.OperationStatus, result, errMsg string, completedAt sql.NullTime) (bool, error) {
	tx, err := s.beginImmediate(ctx)
	if err != nil {
		return false, apperr.Wrap(apperr.Transient, "begin finalize", err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM operations WHERE id = ?`, id).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return false, apperr.New(apperr.NotFound, "operation not found: "+id)
		}
		return false, apperr.Wrap(apperr.Internal, "select current status", err)
	}
	if models.OperationStatus(current).Terminal() {
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE operations SET status = ?, result = ?, error = ?, completed_at = ? WHERE id = ?
	`, string(status), nullableString(result), nullableString(errMsg), completedAt, id); err != nil {
		return false, apperr.Wrap(apperr.Internal, "finalize operation", err)
	}
	if err := tx.Commit(); err != nil {
		return false, apperr.Wrap(apperr.Internal, "commit finalize", err)
	}
	return true, nil
}

// AppendOperationEvent stores one event in the append-only operation
// event log. Sequence must be assigned by the caller (internal/operation
// keeps a per-operation monotonic counter) to guarantee ordering even
// under concurrent writers across distinct operations.
func (s *Store) AppendOperationEvent(ctx context.Context, ev *models.OperationEvent) error {
	payload, err := marshalEventPayload(ev)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal event payload", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operation_events (operation_id, sequence, type, time, payload)
		VALUES (?, ?, ?, ?, ?)
	`, ev.OperationID, ev.Sequence, string(ev.Type), ev.Time, payload)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "append operation event", err)
	}
	return nil
}

// OperationEvents returns the full event log for an operation, in
// sequence order.
func (s *Store) OperationEvents(ctx context.Context, operationID string) ([]*models.OperationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operation_id, sequence, type, time, payload FROM operation_events
		WHERE operation_id = ? ORDER BY sequence ASC
	`, operationID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "operation events", err)
	}
	defer rows.Close()

	var out []*models.OperationEvent
	for rows.Next() {
		var payload sql.NullString
		ev := &models.OperationEvent{}
		if err := rows.Scan(&ev.OperationID, &ev.Sequence, &ev.Type, &ev.Time, &payload); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan operation event", err)
		}
		if payload.Valid {
			if err := unmarshalEventPayload(ev, []byte(payload.String)); err != nil {
				return nil, apperr.Wrap(apperr.Internal, "unmarshal event payload", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func marshalEventPayload(ev *models.OperationEvent) ([]byte, error) {
	switch ev.Type {
	case models.EventStatusChanged:
		return json.Marshal(ev.StatusChanged)
	case models.EventStreaming:
		return json.Marshal(ev.Streaming)
	case models.EventToolExecuted:
		return json.Marshal(ev.ToolExecuted)
	case models.EventCompleted:
		return json.Marshal(ev.Completed)
	case models.EventFailed:
		return json.Marshal(ev.Failed)
	default:
		return nil, nil
	}
}

func unmarshalEventPayload(ev *models.OperationEvent, data []byte) error {
	switch ev.Type {
	case models.EventStatusChanged:
		return json.Unmarshal(data, &ev.StatusChanged)
	case models.EventStreaming:
		return json.Unmarshal(data, &ev.Streaming)
	case models.EventToolExecuted:
		return json.Unmarshal(data, &ev.ToolExecuted)
	case models.EventCompleted:
		return json.Unmarshal(data, &ev.Completed)
	case models.EventFailed:
		return json.Unmarshal(data, &ev.Failed)
	default:
		return nil
	}
}

func scanOperation(row scanner) (*models.Operation, error) {
	op := &models.Operation{}
	var result, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	if err := row.Scan(&op.ID, &op.SessionID, &op.OperationType, &op.Request, &op.Status, &result, &errMsg, &op.CreatedAt, &startedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.Internal, "scan operation", err)
	}
	op.Result = result.String
	op.Error = errMsg.String
	op.StartedAt = startedAt.Time
	op.CompletedAt = completedAt.Time
	return op, nil
}
