// Package goals implements the goal/task CRUD tool set spec §4's Tool
// Router requires, grounded on the original assistant's goal-tracking
// tools (create_goal, list_goals, update_goal, add_milestone,
// complete_milestone): a Task here is the Go rendering of the original's
// "milestone" concept — a weighted step toward a Goal.
package goals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/getmira/mira-core/internal/agent"
	"github.com/getmira/mira-core/internal/store"
	"github.com/getmira/mira-core/pkg/models"
)

// Toolset bundles the goal/task tools for one store.
type Toolset struct {
	Store *store.Store
	Now   func() time.Time
}

func (t Toolset) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Tools returns every goal/task tool ready for registration.
func (t Toolset) Tools() []agent.Tool {
	return []agent.Tool{
		&createGoalTool{store: t.Store, now: t.now},
		&listGoalsTool{store: t.Store},
		&updateGoalTool{store: t.Store, now: t.now},
		&addTaskTool{store: t.Store, now: t.now},
		&completeTaskTool{store: t.Store, now: t.now},
	}
}

func errResult(format string, args ...any) *agent.ToolResult {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

func jsonResult(v any) *agent.ToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return errResult("failed to marshal result: %v", err)
	}
	return &agent.ToolResult{Content: string(b)}
}

type createGoalTool struct {
	store *store.Store
	now   func() time.Time
}

func (t *createGoalTool) Name() string        { return "create_goal" }
func (t *createGoalTool) Description() string { return "Creates a new long-lived goal." }
func (t *createGoalTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"},
    "title": {"type": "string"},
    "description": {"type": "string"},
    "success_criteria": {"type": "string"},
    "priority": {"type": "string", "enum": ["low", "medium", "high"]}
  },
  "required": ["title"]
}`)
}

func (t *createGoalTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID       string `json:"project_id"`
		Title           string `json:"title"`
		Description     string `json:"description"`
		SuccessCriteria string `json:"success_criteria"`
		Priority        string `json:"priority"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.Title) == "" {
		return errResult("title is required"), nil
	}
	priority := models.GoalPriority(input.Priority)
	if priority == "" {
		priority = models.GoalPriorityMedium
	}

	now := t.now()
	goal := &models.Goal{
		ID:              uuid.New().String(),
		ProjectID:       input.ProjectID,
		Title:           input.Title,
		Description:     input.Description,
		SuccessCriteria: input.SuccessCriteria,
		Status:          models.GoalActive,
		Priority:        priority,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := t.store.CreateGoal(ctx, goal); err != nil {
		return errResult("create goal failed: %v", err), nil
	}
	return jsonResult(map[string]any{"status": "created", "goal_id": goal.ID, "title": goal.Title, "priority": goal.Priority})
}

type listGoalsTool struct{ store *store.Store }

func (t *listGoalsTool) Name() string        { return "list_goals" }
func (t *listGoalsTool) Description() string { return "Lists goals, optionally filtered by status." }
func (t *listGoalsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "project_id": {"type": "string"},
    "status": {"type": "string"},
    "include_finished": {"type": "boolean"},
    "limit": {"type": "integer"}
  }
}`)
}

func (t *listGoalsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ProjectID       string `json:"project_id"`
		Status          string `json:"status"`
		IncludeFinished bool   `json:"include_finished"`
		Limit           int    `json:"limit"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return errResult("invalid params: %v", err), nil
		}
	}
	if input.Limit <= 0 {
		input.Limit = 10
	}

	goalList, err := t.store.ListGoals(ctx, input.ProjectID, models.GoalStatus(input.Status), input.IncludeFinished, input.Limit)
	if err != nil {
		return errResult("list goals failed: %v", err), nil
	}

	type goalSummary struct {
		*models.Goal
		models.GoalProgress
	}
	summaries := make([]goalSummary, 0, len(goalList))
	for _, g := range goalList {
		progress, err := t.store.GoalProgress(ctx, g.ID)
		if err != nil {
			return errResult("goal progress failed: %v", err), nil
		}
		summaries = append(summaries, goalSummary{Goal: g, GoalProgress: progress})
	}
	return jsonResult(map[string]any{"goals": summaries})
}

type updateGoalTool struct {
	store *store.Store
	now   func() time.Time
}

func (t *updateGoalTool) Name() string        { return "update_goal" }
func (t *updateGoalTool) Description() string { return "Updates a goal's fields." }
func (t *updateGoalTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "goal_id": {"type": "string"},
    "title": {"type": "string"},
    "description": {"type": "string"},
    "success_criteria": {"type": "string"},
    "status": {"type": "string", "enum": ["active", "blocked", "completed", "abandoned"]},
    "priority": {"type": "string", "enum": ["low", "medium", "high"]}
  },
  "required": ["goal_id"]
}`)
}

func (t *updateGoalTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		GoalID          string `json:"goal_id"`
		Title           string `json:"title"`
		Description     string `json:"description"`
		SuccessCriteria string `json:"success_criteria"`
		Status          string `json:"status"`
		Priority        string `json:"priority"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.GoalID) == "" {
		return errResult("goal_id is required"), nil
	}

	goal, err := t.store.GetGoal(ctx, input.GoalID)
	if err != nil {
		return errResult("goal lookup failed: %v", err), nil
	}
	if input.Title != "" {
		goal.Title = input.Title
	}
	if input.Description != "" {
		goal.Description = input.Description
	}
	if input.SuccessCriteria != "" {
		goal.SuccessCriteria = input.SuccessCriteria
	}
	if input.Status != "" {
		goal.Status = models.GoalStatus(input.Status)
	}
	if input.Priority != "" {
		goal.Priority = models.GoalPriority(input.Priority)
	}
	goal.UpdatedAt = t.now()

	if err := t.store.UpdateGoal(ctx, goal); err != nil {
		return errResult("update goal failed: %v", err), nil
	}
	return jsonResult(goal)
}

type addTaskTool struct {
	store *store.Store
	now   func() time.Time
}

func (t *addTaskTool) Name() string        { return "add_task" }
func (t *addTaskTool) Description() string { return "Adds a task (a concrete step) to an existing goal." }
func (t *addTaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "goal_id": {"type": "string"},
    "title": {"type": "string"},
    "description": {"type": "string"},
    "weight": {"type": "integer"}
  },
  "required": ["goal_id", "title"]
}`)
}

func (t *addTaskTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		GoalID      string `json:"goal_id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Weight      int    `json:"weight"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.GoalID) == "" || strings.TrimSpace(input.Title) == "" {
		return errResult("goal_id and title are required"), nil
	}

	task := &models.Task{
		ID:          uuid.New().String(),
		GoalID:      input.GoalID,
		Title:       input.Title,
		Description: input.Description,
		Weight:      input.Weight,
		Status:      models.TaskPending,
		CreatedAt:   t.now(),
	}
	if err := t.store.CreateTask(ctx, task); err != nil {
		return errResult("add task failed: %v", err), nil
	}
	return jsonResult(map[string]any{"status": "created", "task_id": task.ID})
}

type completeTaskTool struct {
	store *store.Store
	now   func() time.Time
}

func (t *completeTaskTool) Name() string        { return "complete_task" }
func (t *completeTaskTool) Description() string { return "Marks a task completed and returns the goal's updated progress." }
func (t *completeTaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "task_id": {"type": "string"}
  },
  "required": ["task_id"]
}`)
}

func (t *completeTaskTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult("invalid params: %v", err), nil
	}
	if strings.TrimSpace(input.TaskID) == "" {
		return errResult("task_id is required"), nil
	}

	progress, err := t.store.CompleteTask(ctx, input.TaskID, t.now())
	if err != nil {
		return errResult("complete task failed: %v", err), nil
	}
	return jsonResult(map[string]any{"status": "completed", "task_id": input.TaskID, "progress": progress})
}
