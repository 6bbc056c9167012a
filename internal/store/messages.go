package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/pkg/models"
)

// AppendMessage inserts a new append-only message row. Role=tool
// messages must carry a ToolCallID; callers (internal/operation) are
// responsible for matching it to a prior assistant tool-call.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) (int64, error) {
	if msg.Role == models.RoleTool && msg.ToolCallID == "" {
		return 0, apperr.New(apperr.Validation, "tool message must carry tool_call_id")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, tool_call_id, tool_name, embedded, summarized, provenance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.SessionID, string(msg.Role), msg.Content, nullableString(msg.ToolCallID), nullableString(msg.ToolName),
		msg.Embedded, msg.Summarized, nullableString(msg.Provenance), msg.CreatedAt)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "append message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "append message: last insert id", err)
	}
	return id, nil
}

// History returns up to limit most-recent messages for a session, in
// chronological order.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, tool_call_id, tool_name, embedded, summarized, provenance, created_at
		FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "history query", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// MessagesByRange returns the messages in [startID, endID] for a
// session, in chronological order, used by the multi-level summarizer
// to materialize the text of a range flagged by
// OldestUnsummarizedRange.
func (s *Store) MessagesByRange(ctx context.Context, sessionID string, startID, endID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, tool_call_id, tool_name, embedded, summarized, provenance, created_at
		FROM messages WHERE session_id = ? AND id BETWEEN ? AND ? ORDER BY id ASC
	`, sessionID, startID, endID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "messages by range", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UnsummarizedCount counts messages with summarized=0 for a project's
// sessions older than the given message id, used to trigger the level-1
// compaction sweep.
func (s *Store) UnsummarizedCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ? AND summarized = 0`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "unsummarized count", err)
	}
	return n, nil
}

// MarkSummarized flags [startID, endID] as summarized. Idempotent: a
// second call with the same range updates zero additional rows beyond
// what the first call already set.
func (s *Store) MarkSummarized(ctx context.Context, sessionID string, startID, endID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET summarized = 1 WHERE session_id = ? AND id BETWEEN ? AND ?`,
		sessionID, startID, endID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "mark summarized", err)
	}
	return nil
}

// OldestUnsummarizedRange returns the [start, end] message id range of
// the oldest contiguous unsummarized block, up to maxCount messages.
func (s *Store) OldestUnsummarizedRange(ctx context.Context, sessionID string, maxCount int) (start, end int64, ok bool, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM messages WHERE session_id = ? AND summarized = 0 ORDER BY id ASC LIMIT ?
	`, sessionID, maxCount)
	if err != nil {
		return 0, 0, false, apperr.Wrap(apperr.Internal, "oldest unsummarized range", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, 0, false, apperr.Wrap(apperr.Internal, "scan id", err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0, 0, false, rows.Err()
	}
	return ids[0], ids[len(ids)-1], true, rows.Err()
}

// InsertSummary stores a rolled-up digest.
func (s *Store) InsertSummary(ctx context.Context, sm *models.Summary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (id, project_id, level, text, message_range_start, message_range_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sm.ID, nullableString(sm.ProjectID), sm.Level, sm.Text, sm.MessageRangeStart, sm.MessageRangeEnd, sm.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert summary", err)
	}
	return nil
}

// SummariesByLevel returns summaries of a given level for a project,
// oldest first, used to detect when N lower-level summaries are ready
// to combine into the next level.
func (s *Store) SummariesByLevel(ctx context.Context, projectID string, level models.SummaryLevel) ([]*models.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, level, text, message_range_start, message_range_end, created_at
		FROM summaries WHERE project_id = ? AND level = ? ORDER BY created_at ASC
	`, projectID, level)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "summaries by level", err)
	}
	defer rows.Close()

	var out []*models.Summary
	for rows.Next() {
		sm := &models.Summary{}
		var pid sql.NullString
		if err := rows.Scan(&sm.ID, &pid, &sm.Level, &sm.Text, &sm.MessageRangeStart, &sm.MessageRangeEnd, &sm.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan summary", err)
		}
		sm.ProjectID = pid.String
		out = append(out, sm)
	}
	return out, rows.Err()
}

// DeleteSummaries removes constituent summaries after they have been
// combined into a higher level.
func (s *Store) DeleteSummaries(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM summaries WHERE id = ?`, id); err != nil {
			return apperr.Wrap(apperr.Internal, fmt.Sprintf("delete summary %s", id), err)
		}
	}
	return nil
}

func scanMessage(rows *sql.Rows) (*models.Message, error) {
	m := &models.Message{}
	var toolCallID, toolName, provenance sql.NullString
	if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &toolCallID, &toolName, &m.Embedded, &m.Summarized, &provenance, &m.CreatedAt); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "scan message", err)
	}
	m.ToolCallID = toolCallID.String
	m.ToolName = toolName.String
	m.Provenance = provenance.String
	return m, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
