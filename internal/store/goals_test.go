package store

import (
	"context"
	"testing"
	"time"

	"github.com/getmira/mira-core/internal/apperr"
	"github.com/getmira/mira-core/pkg/models"
)

func TestCreateAndGetGoal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	goal := &models.Goal{
		ID:        "goal-1",
		ProjectID: "proj-1",
		Title:     "Ship the recall layer",
		Status:    models.GoalActive,
		Priority:  models.GoalPriorityHigh,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	got, err := s.GetGoal(ctx, "goal-1")
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if got.Title != goal.Title || got.Status != models.GoalActive {
		t.Errorf("GetGoal() = %+v, want title=%q status=%q", got, goal.Title, models.GoalActive)
	}
}

func TestGetGoal_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetGoal(context.Background(), "nonexistent")
	if !apperr.Is(err, apperr.NotFound) {
		t.Errorf("GetGoal() error = %v, want apperr.NotFound", err)
	}
}

func TestListGoals_ExcludesFinishedByDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	active := &models.Goal{ID: "g-active", ProjectID: "p1", Title: "active", Status: models.GoalActive, Priority: models.GoalPriorityMedium, CreatedAt: now, UpdatedAt: now}
	done := &models.Goal{ID: "g-done", ProjectID: "p1", Title: "done", Status: models.GoalCompleted, Priority: models.GoalPriorityMedium, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateGoal(ctx, active); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if err := s.CreateGoal(ctx, done); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	goals, err := s.ListGoals(ctx, "p1", "", false, 10)
	if err != nil {
		t.Fatalf("ListGoals: %v", err)
	}
	if len(goals) != 1 || goals[0].ID != "g-active" {
		t.Errorf("ListGoals() = %v, want only g-active", goals)
	}

	all, err := s.ListGoals(ctx, "p1", "", true, 10)
	if err != nil {
		t.Fatalf("ListGoals(includeFinished): %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListGoals(includeFinished) len = %d, want 2", len(all))
	}
}

func TestUpdateGoal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	goal := &models.Goal{ID: "g1", Title: "orig", Status: models.GoalActive, Priority: models.GoalPriorityLow, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	goal.Title = "updated"
	goal.Status = models.GoalBlocked
	goal.UpdatedAt = now.Add(time.Minute)
	if err := s.UpdateGoal(ctx, goal); err != nil {
		t.Fatalf("UpdateGoal: %v", err)
	}

	got, err := s.GetGoal(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if got.Title != "updated" || got.Status != models.GoalBlocked {
		t.Errorf("GetGoal() after update = %+v", got)
	}
}

func TestTaskCompletionDrivesWeightedProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	goal := &models.Goal{ID: "g1", Title: "goal", Status: models.GoalActive, Priority: models.GoalPriorityMedium, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	tasks := []*models.Task{
		{ID: "t1", GoalID: "g1", Title: "small", Weight: 1, Status: models.TaskPending, CreatedAt: now},
		{ID: "t2", GoalID: "g1", Title: "big", Weight: 3, Status: models.TaskPending, CreatedAt: now},
	}
	for _, task := range tasks {
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	progress, err := s.CompleteTask(ctx, "t2", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if progress.ProgressPercent != 75 {
		t.Errorf("ProgressPercent = %d, want 75 (3 of 4 total weight)", progress.ProgressPercent)
	}
	if progress.TasksCompleted != 1 || progress.TasksTotal != 2 {
		t.Errorf("progress = %+v, want completed=1 total=2", progress)
	}
}

func TestDeleteGoalRemovesTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	goal := &models.Goal{ID: "g1", Title: "goal", Status: models.GoalActive, Priority: models.GoalPriorityMedium, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateGoal(ctx, goal); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if err := s.CreateTask(ctx, &models.Task{ID: "t1", GoalID: "g1", Title: "task", Weight: 1, Status: models.TaskPending, CreatedAt: now}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := s.DeleteGoal(ctx, "g1"); err != nil {
		t.Fatalf("DeleteGoal: %v", err)
	}
	if _, err := s.GetGoal(ctx, "g1"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("GetGoal() after delete = %v, want apperr.NotFound", err)
	}

	tasks, err := s.TasksByGoal(ctx, "g1")
	if err != nil {
		t.Fatalf("TasksByGoal: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("TasksByGoal() after delete = %v, want empty", tasks)
	}
}
