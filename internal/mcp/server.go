package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"taskdash/internal/chain"
	"taskdash/internal/core"
	"taskdash/internal/filter"
	"taskdash/internal/taskservice"
)

const (
	serverName    = "taskdash"
	serverVersion = "1.0.0"
)

// TaskService is the part of the task service client the tools use.
type TaskService interface {
	ListTasks(ctx context.Context) ([]core.Task, error)
	GetTask(ctx context.Context, id string) (*core.Task, error)
	ListExecutions(ctx context.Context, id string, page, limit int) ([]core.Execution, error)
	SetTaskStatus(ctx context.Context, id string, status core.TaskStatus) error
	DeleteTask(ctx context.Context, id string) error
}

// Server exposes dashboard operations as MCP tools.
type Server struct {
	tasks        TaskService
	visualizer   *chain.Visualizer
	logger       *slog.Logger
	location     *time.Location
	serviceToken string
	mcp          *server.MCPServer
}

// NewServer creates the MCP server. serviceToken authenticates stdio sessions;
// HTTP sessions use the caller's own bearer token.
func NewServer(tasks TaskService, logger *slog.Logger, location *time.Location, serviceToken string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if location == nil {
		location = time.Local
	}
	s := &Server{
		tasks:        tasks,
		visualizer:   chain.NewVisualizer(tasks, logger),
		logger:       logger,
		location:     location,
		serviceToken: serviceToken,
		mcp: server.NewMCPServer(
			serverName,
			serverVersion,
			server.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

// ServeStdio runs the server on stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server starting on stdio")
	return server.ServeStdio(s.mcp, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return taskservice.WithToken(ctx, s.serviceToken)
	}))
}

// HTTPHandler returns the streamable HTTP transport of the server.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithHTTPContextFunc(
		func(ctx context.Context, r *http.Request) context.Context {
			auth := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(auth, "Bearer "); ok && strings.TrimSpace(token) != "" {
				return taskservice.WithToken(ctx, token)
			}
			return ctx
		},
	))
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List tasks of the task management service"),
		mcp.WithString("status",
			mcp.Description("Comma-separated statuses to keep: active, paused, error"),
		),
		mcp.WithString("priority",
			mcp.Description("Comma-separated priorities to keep: high, normal, low"),
		),
		mcp.WithString("search",
			mcp.Description("Case-insensitive match on name or endpoint"),
		),
		mcp.WithBoolean("has_chain",
			mcp.Description("Only tasks with chain rules"),
		),
	), s.handleListTasks)

	s.mcp.AddTool(mcp.NewTool("task_get",
		mcp.WithDescription("Show one task with its chain rules"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleGetTask)

	s.mcp.AddTool(mcp.NewTool("task_chain",
		mcp.WithDescription("Show the tasks a task triggers, by status code"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleTaskChain)

	s.mcp.AddTool(mcp.NewTool("task_executions",
		mcp.WithDescription("List the execution history of a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number, default 1"),
			mcp.Min(1),
		),
		mcp.WithNumber("limit",
			mcp.Description("Executions per page, default 10"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListExecutions)

	s.mcp.AddTool(mcp.NewTool("task_set_status",
		mcp.WithDescription("Pause or resume a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New status"),
			mcp.Enum("ACTIVE", "PAUSED"),
		),
	), s.handleSetStatus)

	s.mcp.AddTool(mcp.NewTool("task_delete",
		mcp.WithDescription("Delete a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleDeleteTask)

	s.mcp.AddTool(mcp.NewTool("cron_preview",
		mcp.WithDescription("Preview the next fire times of a cron expression"),
		mcp.WithString("cron",
			mcp.Required(),
			mcp.Description("Cron expression, five fields or six with leading seconds"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of fire times, default 5"),
			mcp.Min(1),
			mcp.Max(10),
		),
	), s.handleCronPreview)

	s.logger.Debug("mcp tools registered", "count", 7)
}

func (s *Server) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := url.Values{}
	q.Set("status", mcp.ParseString(request, "status", ""))
	q.Set("priority", mcp.ParseString(request, "priority", ""))
	q.Set("search", mcp.ParseString(request, "search", ""))
	if mcp.ParseBoolean(request, "has_chain", false) {
		q.Set("hasChain", "true")
	}
	criteria := filter.Parse(q)

	tasks, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return s.toolError("list tasks", err), nil
	}
	tasks = filter.Apply(tasks, criteria)
	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks:\n\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s %s (%s)\n", statusIcon(t.Status), t.Name, t.ID)
		fmt.Fprintf(&b, "  %s %s\n", t.Method, t.Endpoint)
		fmt.Fprintf(&b, "  Type: %s  Priority: %s\n", t.TaskType, t.Priority)
		if t.CronExpression != "" {
			fmt.Fprintf(&b, "  Cron: %s\n", t.CronExpression)
		}
		if len(t.Chains) > 0 {
			fmt.Fprintf(&b, "  Chain rules: %d\n", len(t.Chains))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return s.toolError("get task", err), nil
	}

	var catalog []core.CatalogEntry
	if all, err := s.tasks.ListTasks(ctx); err == nil {
		catalog = chain.Catalog(all)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task ID: %s\n", taskID)
	fmt.Fprintf(&b, "Name: %s\n", task.Name)
	if task.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", task.Description)
	}
	fmt.Fprintf(&b, "Status: %s\n", task.Status)
	fmt.Fprintf(&b, "Request: %s %s\n", task.Method, task.Endpoint)
	fmt.Fprintf(&b, "Type: %s\n", task.TaskType)
	fmt.Fprintf(&b, "Priority: %s\n", task.Priority)
	if task.CronExpression != "" {
		fmt.Fprintf(&b, "Cron: %s\n", task.CronExpression)
	}
	if rate, ok := task.SuccessRate(); ok {
		fmt.Fprintf(&b, "Success rate: %d%% of %d runs\n", rate, task.ExecutionCount)
	}
	fmt.Fprintf(&b, "Last run: %s\n", s.formatTime(task.LastExecutedAt))
	fmt.Fprintf(&b, "Next run: %s\n", s.formatTime(task.NextExecutionTime))
	if len(task.Chains) > 0 {
		b.WriteString("Chain rules:\n")
		for _, r := range chain.ResolveNames(task.Chains, catalog) {
			fmt.Fprintf(&b, "  %d -> %s (%s)\n", r.StatusCode, r.DisplayName, r.NextTaskID)
		}
		if catalog != nil && chain.HasLoop(catalog, taskID, task.Chains) {
			fmt.Fprintf(&b, "Warning: %s\n", chain.LoopWarning)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleTaskChain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	graph, err := s.visualizer.Build(ctx, taskID)
	if err != nil {
		return s.toolError("build chain", err), nil
	}
	if len(graph.Edges) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("%s has no chain rules", graph.Root.Name)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]\n", graph.Root.Name, graph.Root.Status)
	for _, e := range graph.Edges {
		n, _ := graph.Node(e.Target)
		fmt.Fprintf(&b, "  --%d--> %s [%s]", e.StatusCode, n.Name, n.Status)
		if n.Placeholder {
			fmt.Fprintf(&b, " (%s)", chain.PlaceholderDescription)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleListExecutions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	page := int(mcp.ParseFloat64(request, "page", 1))
	limit := int(mcp.ParseFloat64(request, "limit", taskservice.DefaultExecutionsLimit))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = taskservice.DefaultExecutionsLimit
	}

	executions, err := s.tasks.ListExecutions(ctx, taskID, page, limit)
	if err != nil {
		return s.toolError("list executions", err), nil
	}
	if len(executions) == 0 {
		return mcp.NewToolResultText("No executions found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Executions of %s (page %d):\n\n", taskID, page)
	for _, e := range executions {
		code := "-"
		if e.StatusCode != nil {
			code = fmt.Sprintf("%d", *e.StatusCode)
		}
		fmt.Fprintf(&b, "%s %s  HTTP %s  retries %d\n", s.formatTime(e.ExecutionTime), e.Status, code, e.RetryCount)
		if e.Error != nil && *e.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", truncateString(*e.Error, 120))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleSetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	status := core.TaskStatus(strings.ToUpper(mcp.ParseString(request, "status", "")))
	if status != core.TaskStatusActive && status != core.TaskStatusPaused {
		return mcp.NewToolResultError("status must be ACTIVE or PAUSED"), nil
	}
	if err := s.tasks.SetTaskStatus(ctx, taskID, status); err != nil {
		return s.toolError("set task status", err), nil
	}
	s.logger.Info("task status changed", "task_id", taskID, "status", status)
	return mcp.NewToolResultText(fmt.Sprintf("Task %s is now %s", taskID, status)), nil
}

func (s *Server) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		return s.toolError("delete task", err), nil
	}
	s.logger.Info("task deleted", "task_id", taskID)
	return mcp.NewToolResultText(fmt.Sprintf("Task %s deleted", taskID)), nil
}

func (s *Server) handleCronPreview(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr := mcp.ParseString(request, "cron", "")
	schedule, err := core.ParseCron(expr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid cron expression: %v", err)), nil
	}
	count := int(mcp.ParseFloat64(request, "count", 5))
	if count < 1 || count > 10 {
		count = 5
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cron expression: %s\n", expr)
	fmt.Fprintf(&b, "Time zone: %s\n\n", s.location)
	b.WriteString("Next fire times:\n")
	for i, t := range core.NextOccurrences(schedule, time.Now().In(s.location), count) {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, t.Format("2006-01-02 15:04:05"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) toolError(op string, err error) *mcp.CallToolResult {
	s.logger.Warn("mcp tool failed", "op", op, "err", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
}

func (s *Server) formatTime(ts core.Timestamp) string {
	if !ts.Valid() {
		return "-"
	}
	return ts.Time.In(s.location).Format("2006-01-02 15:04:05")
}

// truncateString shortens s to at most maxLen runes.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func statusIcon(status core.TaskStatus) string {
	switch status {
	case core.TaskStatusActive:
		return "▶️"
	case core.TaskStatusPaused:
		return "⏸️"
	case core.TaskStatusError:
		return "❌"
	default:
		return "❓"
	}
}
