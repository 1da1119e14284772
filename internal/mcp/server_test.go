package mcp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdash/internal/chain"
	"taskdash/internal/core"
	"taskdash/internal/taskservice"
)

type fakeTasks struct {
	mu       sync.Mutex
	tasks    []core.Task
	statuses map[string]core.TaskStatus
	deleted  []string
	execArgs [2]int
}

func (f *fakeTasks) ListTasks(context.Context) ([]core.Task, error) {
	return f.tasks, nil
}

func (f *fakeTasks) GetTask(_ context.Context, id string) (*core.Task, error) {
	for _, t := range f.tasks {
		if t.ID == id {
			task := t
			return &task, nil
		}
	}
	return nil, &taskservice.APIError{Op: "fetch_task", StatusCode: http.StatusNotFound, Message: "Task not found"}
}

func (f *fakeTasks) ListExecutions(_ context.Context, _ string, page, limit int) ([]core.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execArgs = [2]int{page, limit}
	code := 503
	msg := "upstream timeout"
	return []core.Execution{{ID: "e1", Status: "FAILED", StatusCode: &code, Error: &msg, RetryCount: 2}}, nil
}

func (f *fakeTasks) SetTaskStatus(_ context.Context, id string, status core.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeTasks) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestServer() (*Server, *fakeTasks) {
	tasks := &fakeTasks{
		tasks: []core.Task{
			{ID: "t1", Name: "Ping API", Method: "GET", Endpoint: "https://api.example.com/ping",
				Status: core.TaskStatusActive, Priority: core.PriorityHigh, TaskType: core.TaskTypeRoot,
				CronExpression: "*/5 * * * *", ExecutionCount: 4, FailureCount: 1,
				Chains: core.ChainRules{{StatusCode: 200, NextTaskID: "t2"}, {StatusCode: 500, NextTaskID: "gone"}}},
			{ID: "t2", Name: "Notify Team", Method: "POST", Endpoint: "https://hooks.example.com/notify",
				Status: core.TaskStatusPaused, Priority: core.PriorityLow, TaskType: core.TaskTypeChained},
		},
		statuses: map[string]core.TaskStatus{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(tasks, logger, time.UTC, "service-token"), tasks
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestListTasksFilters(t *testing.T) {
	s, _ := newTestServer()

	res, err := s.handleListTasks(context.Background(), callRequest(map[string]any{"status": "paused"}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "Found 1 tasks")
	assert.Contains(t, text, "Notify Team (t2)")
	assert.NotContains(t, text, "Ping API")

	res, err = s.handleListTasks(context.Background(), callRequest(map[string]any{"search": "nothing-matches"}))
	require.NoError(t, err)
	assert.Equal(t, "No tasks found", resultText(t, res))
}

func TestGetTaskResolvesChainNames(t *testing.T) {
	s, _ := newTestServer()

	res, err := s.handleGetTask(context.Background(), callRequest(map[string]any{"task_id": "t1"}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "Success rate: 75% of 4 runs")
	assert.Contains(t, text, "200 -> Notify Team (t2)")
	assert.Contains(t, text, "500 -> "+core.UnknownTaskName+" (gone)")
}

func TestGetTaskNotFound(t *testing.T) {
	s, _ := newTestServer()

	res, err := s.handleGetTask(context.Background(), callRequest(map[string]any{"task_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Failed to fetch task: Task not found")
}

func TestTaskChain(t *testing.T) {
	s, _ := newTestServer()

	res, err := s.handleTaskChain(context.Background(), callRequest(map[string]any{"task_id": "t1"}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "--200--> Notify Team [PAUSED]")
	assert.Contains(t, text, "--500--> "+core.UnknownTaskName)
	assert.Contains(t, text, chain.PlaceholderDescription)

	res, err = s.handleTaskChain(context.Background(), callRequest(map[string]any{"task_id": "t2"}))
	require.NoError(t, err)
	assert.Equal(t, "Notify Team has no chain rules", resultText(t, res))
}

func TestListExecutions(t *testing.T) {
	s, tasks := newTestServer()

	res, err := s.handleListExecutions(context.Background(), callRequest(map[string]any{"task_id": "t1", "page": 2.0}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "FAILED  HTTP 503  retries 2")
	assert.Contains(t, text, "Error: upstream timeout")
	assert.Equal(t, [2]int{2, taskservice.DefaultExecutionsLimit}, tasks.execArgs)
}

func TestSetStatus(t *testing.T) {
	s, tasks := newTestServer()

	res, err := s.handleSetStatus(context.Background(), callRequest(map[string]any{"task_id": "t1", "status": "paused"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, core.TaskStatusPaused, tasks.statuses["t1"])

	res, err = s.handleSetStatus(context.Background(), callRequest(map[string]any{"task_id": "t1", "status": "ERROR"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestDeleteTask(t *testing.T) {
	s, tasks := newTestServer()

	res, err := s.handleDeleteTask(context.Background(), callRequest(map[string]any{"task_id": "t2"}))
	require.NoError(t, err)
	assert.Equal(t, "Task t2 deleted", resultText(t, res))
	assert.Equal(t, []string{"t2"}, tasks.deleted)
}

func TestCronPreview(t *testing.T) {
	s, _ := newTestServer()

	res, err := s.handleCronPreview(context.Background(), callRequest(map[string]any{"cron": "0 9 * * 1-5", "count": 3.0}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "  3. ")
	assert.NotContains(t, text, "  4. ")
	assert.Contains(t, text, "09:00:00")

	res, err = s.handleCronPreview(context.Background(), callRequest(map[string]any{"cron": "bogus"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestTruncateStringKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "ab...", truncateString("abcdefgh", 5))

	got := truncateString(strings.Repeat("é", 10), 5)
	assert.Equal(t, "éé...", got)
	assert.True(t, utf8.ValidString(got))

	got = truncateString("连接超时连接超时连接超时", 8)
	assert.Equal(t, "连接超时连...", got)
	assert.Equal(t, 8, utf8.RuneCountInString(got))
}
