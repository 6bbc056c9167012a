package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/pkg/models"
)

// CreateGoal inserts a new goal row.
func (s *Store) CreateGoal(ctx context.Context, g *models.Goal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, project_id, title, description, success_criteria, status, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, nullableString(g.ProjectID), g.Title, nullableString(g.Description),
		nullableString(g.SuccessCriteria), string(g.Status), string(g.Priority), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "create goal", err)
	}
	return nil
}

// GetGoal fetches a goal by id.
func (s *Store) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, description, success_criteria, status, priority, created_at, updated_at
		FROM goals WHERE id = ?
	`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "goal not found: "+id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "get goal", err)
	}
	return g, nil
}

// ListGoals returns goals for projectID, optionally filtered by status
// and excluding terminal goals (completed/abandoned) unless
// includeFinished is set.
func (s *Store) ListGoals(ctx context.Context, projectID string, status models.GoalStatus, includeFinished bool, limit int) ([]*models.Goal, error) {
	query := `
		SELECT id, project_id, title, description, success_criteria, status, priority, created_at, updated_at
		FROM goals WHERE (? = '' OR project_id = ?)
	`
	args := []any{projectID, projectID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	} else if !includeFinished {
		query += " AND status NOT IN (?, ?)"
		args = append(args, string(models.GoalCompleted), string(models.GoalAbandoned))
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list goals", err)
	}
	defer rows.Close()

	var out []*models.Goal
	for rows.Next() {
		g, err := scanGoalRow(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan goal", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpdateGoal applies a partial update: empty-string fields are left
// unchanged (callers pass the goal's current value for fields they don't
// want to modify).
func (s *Store) UpdateGoal(ctx context.Context, g *models.Goal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE goals SET title = ?, description = ?, success_criteria = ?, status = ?, priority = ?, updated_at = ?
		WHERE id = ?
	`, g.Title, nullableString(g.Description), nullableString(g.SuccessCriteria), string(g.Status), string(g.Priority), g.UpdatedAt, g.ID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update goal", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update goal: rows affected", err)
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, "goal not found: "+g.ID)
	}
	return nil
}

// DeleteGoal removes a goal and its tasks.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete goal: begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE goal_id = ?`, id); err != nil {
		return apperr.Wrap(apperr.Internal, "delete goal: tasks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id); err != nil {
		return apperr.Wrap(apperr.Internal, "delete goal: goal row", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Internal, "delete goal: commit", err)
	}
	return nil
}

// CreateTask adds a task under goalID.
func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	weight := t.Weight
	if weight <= 0 {
		weight = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, goal_id, title, description, weight, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.GoalID, t.Title, nullableString(t.Description), weight, string(t.Status), t.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "create task", err)
	}
	return nil
}

// TasksByGoal lists every task under a goal, oldest first.
func (s *Store) TasksByGoal(ctx context.Context, goalID string) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, goal_id, title, description, weight, status, created_at, completed_at
		FROM tasks WHERE goal_id = ? ORDER BY created_at ASC
	`, goalID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "tasks by goal", err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		task := &models.Task{}
		var description sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&task.ID, &task.GoalID, &task.Title, &description, &task.Weight, &task.Status, &task.CreatedAt, &completedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan task", err)
		}
		task.Description = description.String
		if completedAt.Valid {
			ct := completedAt.Time
			task.CompletedAt = &ct
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// CompleteTask marks a task completed and returns the goal's recomputed
// progress.
func (s *Store) CompleteTask(ctx context.Context, taskID string, completedAt time.Time) (models.GoalProgress, error) {
	var goalID string
	if err := s.db.QueryRowContext(ctx, `SELECT goal_id FROM tasks WHERE id = ?`, taskID).Scan(&goalID); err != nil {
		if err == sql.ErrNoRows {
			return models.GoalProgress{}, apperr.New(apperr.NotFound, "task not found: "+taskID)
		}
		return models.GoalProgress{}, apperr.Wrap(apperr.Internal, "complete task: lookup", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, completed_at = ? WHERE id = ?
	`, string(models.TaskCompleted), completedAt, taskID); err != nil {
		return models.GoalProgress{}, apperr.Wrap(apperr.Internal, "complete task", err)
	}

	return s.GoalProgress(ctx, goalID)
}

// GoalProgress computes a goal's weighted task-completion percentage.
func (s *Store) GoalProgress(ctx context.Context, goalID string) (models.GoalProgress, error) {
	tasks, err := s.TasksByGoal(ctx, goalID)
	if err != nil {
		return models.GoalProgress{}, err
	}

	var totalWeight, completedWeight, completed int
	for _, t := range tasks {
		totalWeight += t.Weight
		if t.Status == models.TaskCompleted {
			completedWeight += t.Weight
			completed++
		}
	}

	progress := models.GoalProgress{TasksCompleted: completed, TasksTotal: len(tasks)}
	if totalWeight > 0 {
		progress.ProgressPercent = completedWeight * 100 / totalWeight
	}
	return progress, nil
}

type goalRowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row *sql.Row) (*models.Goal, error) {
	return scanGoalRow(row)
}

func scanGoalRow(row goalRowScanner) (*models.Goal, error) {
	g := &models.Goal{}
	var projectID, description, successCriteria sql.NullString
	if err := row.Scan(&g.ID, &projectID, &g.Title, &description, &successCriteria, &g.Status, &g.Priority, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.ProjectID = projectID.String
	g.Description = description.String
	g.SuccessCriteria = successCriteria.String
	return g, nil
}
