package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/pkg/models"
)

// AppendAudit writes one append-only audit-log row. Every
// authentication decision, tool call, and request rejection MUST
// produce an entry (spec §6).
func (s *Store) AppendAudit(ctx context.Context, ev *models.AuditEvent) error {
	var details []byte
	if ev.Details != nil {
		var err error
		details, err = json.Marshal(ev.Details)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "marshal audit details", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (timestamp, event_type, source, severity, project_path, request_id, user_agent, remote_addr, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.Timestamp, string(ev.EventType), ev.Source, string(ev.Severity), nullableString(ev.ProjectPath),
		nullableString(ev.RequestID), nullableString(ev.UserAgent), nullableString(ev.RemoteAddr), nullableString(string(details)))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "append audit", err)
	}
	return nil
}

// RecentAuditEvents returns the most recent N audit rows, newest
// first, optionally filtered by event type.
func (s *Store) RecentAuditEvents(ctx context.Context, eventType models.AuditEventType, limit int) ([]*models.AuditEvent, error) {
	query := `SELECT timestamp, event_type, source, severity, project_path, request_id, user_agent, remote_addr, details FROM audit_events`
	args := []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "recent audit events", err)
	}
	defer rows.Close()

	var out []*models.AuditEvent
	for rows.Next() {
		ev := &models.AuditEvent{}
		var projectPath, requestID, userAgent, remoteAddr, details sql.NullString
		if err := rows.Scan(&ev.Timestamp, &ev.EventType, &ev.Source, &ev.Severity, &projectPath, &requestID, &userAgent, &remoteAddr, &details); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan audit event", err)
		}
		ev.ProjectPath = projectPath.String
		ev.RequestID = requestID.String
		ev.UserAgent = userAgent.String
		ev.RemoteAddr = remoteAddr.String
		if details.Valid && details.String != "" {
			_ = json.Unmarshal([]byte(details.String), &ev.Details)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// BuildErrorFix is one recorded error->fix pairing for the
// find_similar_fixes / record_error_fix tools.
type BuildErrorFix struct {
	ID             string
	ProjectID      string
	ErrorSignature string
	ErrorText      string
	FixDescription string
	FilePath       string
	CreatedAt      sql.NullTime
}

// RecordErrorFix stores one error/fix pairing.
func (s *Store) RecordErrorFix(ctx context.Context, f *BuildErrorFix) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO build_error_fixes (id, project_id, error_signature, error_text, fix_description, file_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, f.ID, f.ProjectID, f.ErrorSignature, f.ErrorText, f.FixDescription, nullableString(f.FilePath))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "record error fix", err)
	}
	return nil
}

// FindSimilarFixes does a substring match over stored error signatures.
func (s *Store) FindSimilarFixes(ctx context.Context, projectID, errorSignature string, limit int) ([]*BuildErrorFix, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, error_signature, error_text, fix_description, file_path, created_at
		FROM build_error_fixes WHERE project_id = ? AND error_signature LIKE ? ORDER BY created_at DESC LIMIT ?
	`, projectID, "%"+errorSignature+"%", limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "find similar fixes", err)
	}
	defer rows.Close()

	var out []*BuildErrorFix
	for rows.Next() {
		f := &BuildErrorFix{}
		var filePath sql.NullString
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.ErrorSignature, &f.ErrorText, &f.FixDescription, &filePath, &f.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan build error fix", err)
		}
		f.FilePath = filePath.String
		out = append(out, f)
	}
	return out, rows.Err()
}
