package models

import "time"

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalBlocked   GoalStatus = "blocked"
	GoalCompleted GoalStatus = "completed"
	GoalAbandoned GoalStatus = "abandoned"
)

// GoalPriority ranks goals for display ordering; it carries no scheduling
// semantics of its own.
type GoalPriority string

const (
	GoalPriorityLow    GoalPriority = "low"
	GoalPriorityMedium GoalPriority = "medium"
	GoalPriorityHigh   GoalPriority = "high"
)

// Goal is a long-lived, user-visible objective tracked across sessions,
// grounded on the original assistant's goal-tracking tool set (create_goal,
// list_goals, update_goal). ProgressPercent is derived from Task
// completion, not stored independently — see Store.GoalProgress.
type Goal struct {
	ID              string       `json:"id"`
	ProjectID       string       `json:"project_id,omitempty"`
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	SuccessCriteria string       `json:"success_criteria,omitempty"`
	Status          GoalStatus   `json:"status"`
	Priority        GoalPriority `json:"priority"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// TaskStatus is the lifecycle state of a Task (the original's "milestone").
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// Task is one concrete step toward a Goal. Weight lets a goal's progress
// be computed as a weighted-completion percentage rather than a flat
// completed/total ratio, per the original's weighted milestone model.
type Task struct {
	ID          string     `json:"id"`
	GoalID      string     `json:"goal_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Weight      int        `json:"weight"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// GoalProgress summarizes a goal's task completion.
type GoalProgress struct {
	ProgressPercent     int `json:"progress_percent"`
	TasksCompleted      int `json:"tasks_completed"`
	TasksTotal          int `json:"tasks_total"`
}
