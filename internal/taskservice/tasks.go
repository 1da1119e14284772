package taskservice

import (
	"context"
	"net/http"
	"strconv"

	"taskdash/internal/core"
)

// Default paging of the executions call.
const (
	DefaultExecutionsPage  = 1
	DefaultExecutionsLimit = 10
)

// ListTasks fetches every task visible to the caller.
func (c *Client) ListTasks(ctx context.Context) ([]core.Task, error) {
	var tasks []core.Task
	err := c.do(ctx, call{
		op:     "fetch_tasks",
		method: http.MethodGet,
		path:   "/api/tasks",
		result: &tasks,
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, id string) (*core.Task, error) {
	var task core.Task
	err := c.do(ctx, call{
		op:         "fetch_task",
		method:     http.MethodGet,
		path:       "/api/tasks/{id}",
		pathParams: map[string]string{"id": id},
		result:     &task,
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ListExecutions fetches one page of a task's execution history.
func (c *Client) ListExecutions(ctx context.Context, id string, page, limit int) ([]core.Execution, error) {
	if page < 1 {
		page = DefaultExecutionsPage
	}
	if limit < 1 {
		limit = DefaultExecutionsLimit
	}
	var executions []core.Execution
	err := c.do(ctx, call{
		op:         "fetch_task_executions",
		method:     http.MethodGet,
		path:       "/api/tasks/{id}/executions",
		pathParams: map[string]string{"id": id},
		query: map[string]string{
			"page":  strconv.Itoa(page),
			"limit": strconv.Itoa(limit),
		},
		result: &executions,
	})
	if err != nil {
		return nil, err
	}
	return executions, nil
}

// CreateTask submits a new task.
func (c *Client) CreateTask(ctx context.Context, payload core.TaskPayload) (*core.Task, error) {
	var task core.Task
	err := c.do(ctx, call{
		op:     "create_task",
		method: http.MethodPost,
		path:   "/api/tasks",
		body:   payload,
		result: &task,
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask replaces an existing task's configuration.
func (c *Client) UpdateTask(ctx context.Context, id string, payload core.TaskPayload) (*core.Task, error) {
	var task core.Task
	err := c.do(ctx, call{
		op:         "update_task",
		method:     http.MethodPut,
		path:       "/api/tasks/{id}",
		pathParams: map[string]string{"id": id},
		body:       payload,
		result:     &task,
	})
	if err != nil {
		return nil, err
	}
	if task.ID == "" {
		task.ID = id
	}
	return &task, nil
}

// SetTaskStatus pauses or resumes a task.
func (c *Client) SetTaskStatus(ctx context.Context, id string, status core.TaskStatus) error {
	return c.do(ctx, call{
		op:         "update_task_status",
		method:     http.MethodPatch,
		path:       "/api/tasks/{id}/status",
		pathParams: map[string]string{"id": id},
		body:       map[string]core.TaskStatus{"status": status},
	})
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, call{
		op:         "delete_task",
		method:     http.MethodDelete,
		path:       "/api/tasks/{id}",
		pathParams: map[string]string{"id": id},
	})
}
