package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"taskdash/internal/chain"
	"taskdash/internal/core"
	"taskdash/internal/filter"
	"taskdash/internal/taskservice"
)

const upcomingRuns = 5

var (
	filterStatuses   = []string{"ACTIVE", "PAUSED", "ERROR"}
	filterPriorities = []string{"HIGH", "NORMAL", "LOW"}
)

func (s *Server) handleTasksPage(w http.ResponseWriter, r *http.Request) {
	criteria := filter.Parse(r.URL.Query())
	data := tasksPage{
		Criteria:   criteria,
		Statuses:   filterStatuses,
		Priorities: filterPriorities,
	}

	tasks, err := s.tasks.ListTasks(r.Context())
	if err != nil {
		f := classify(err)
		if f.code == "auth_required" {
			s.renderServiceError(w, r, err)
			return
		}
		s.logFailure(r, f, err)
		data.Banner = f.message
		data.Page = filter.Paginate(nil, 1, filter.PerPage)
		s.renderPage(w, r, f.status, "tasks", data)
		return
	}

	matched := filter.Apply(tasks, criteria)
	data.Total = len(tasks)
	data.Page = filter.Paginate(matched, criteria.Page, filter.PerPage)
	s.renderPage(w, r, http.StatusOK, "tasks", data)
}

func (s *Server) handleTaskPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		s.renderServiceError(w, r, err)
		return
	}
	if task.ID == "" {
		task.ID = taskID
	}

	// The catalog only improves names and loop detection; the page still
	// renders from the stored rules when it is unavailable.
	var catalog []core.CatalogEntry
	if tasks, err := s.tasks.ListTasks(ctx); err == nil {
		catalog = chain.Catalog(tasks)
	} else {
		s.logger.Warn("load task catalog", "task_id", taskID, "err", err)
	}

	data := taskPage{
		Task:  task,
		Rules: chain.ResolveNames(task.Chains, catalog),
	}
	if catalog != nil && chain.HasLoop(catalog, task.ID, task.Chains) {
		data.LoopWarning = chain.LoopWarning
	}
	switch task.Status {
	case core.TaskStatusActive:
		data.CanToggle, data.ToggleTo = true, core.TaskStatusPaused
	case core.TaskStatusPaused:
		data.CanToggle, data.ToggleTo = true, core.TaskStatusActive
	}
	if task.TaskType != core.TaskTypeChained && task.CronExpression != "" {
		if schedule, err := core.ParseCron(task.CronExpression); err == nil {
			data.Upcoming = core.NextOccurrences(schedule, time.Now().In(s.location), upcomingRuns)
		}
	}
	s.renderPage(w, r, http.StatusOK, "task", data)
}

func (s *Server) handleChainPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	graph, err := s.visualizer.Build(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		s.renderServiceError(w, r, err)
		return
	}
	data := chainPage{Graph: graph}
	if len(graph.Edges) > 0 {
		if tasks, err := s.tasks.ListTasks(ctx); err == nil {
			var rules core.ChainRules
			for _, e := range graph.Edges {
				rules = append(rules, core.ChainRule{StatusCode: e.StatusCode, NextTaskID: e.Target})
			}
			if chain.HasLoop(chain.Catalog(tasks), graph.Root.ID, rules) {
				data.LoopWarning = chain.LoopWarning
			}
		}
	}
	s.renderPage(w, r, http.StatusOK, "chain", data)
}

func (s *Server) handleExecutionsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		s.renderServiceError(w, r, err)
		return
	}
	if task.ID == "" {
		task.ID = taskID
	}
	executions, err := s.tasks.ListExecutions(ctx, taskID, page, taskservice.DefaultExecutionsLimit)
	if err != nil {
		s.renderServiceError(w, r, err)
		return
	}
	s.renderPage(w, r, http.StatusOK, "executions", executionsPage{
		Task:       task,
		Executions: executions,
		PageNumber: page,
		HasNext:    len(executions) >= taskservice.DefaultExecutionsLimit,
	})
}

func (s *Server) handleStatusForm(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "The form could not be read.")
		return
	}
	status := core.TaskStatus(r.PostForm.Get("status"))
	if status != core.TaskStatusActive && status != core.TaskStatusPaused {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Status must be ACTIVE or PAUSED.")
		return
	}
	if err := s.tasks.SetTaskStatus(r.Context(), taskID, status); err != nil {
		s.renderServiceError(w, r, err)
		return
	}
	s.logger.Info("task status changed", "task_id", taskID, "status", status)
	s.notifyAsync("Task "+statusVerb(status), taskID)
	http.Redirect(w, r, "/tasks/"+taskID, http.StatusSeeOther)
}

func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.tasks.DeleteTask(r.Context(), taskID); err != nil {
		s.renderServiceError(w, r, err)
		return
	}
	s.logger.Info("task deleted", "task_id", taskID)
	s.notifyAsync("Task deleted", taskID)
	http.Redirect(w, r, "/tasks", http.StatusSeeOther)
}

func statusVerb(status core.TaskStatus) string {
	if status == core.TaskStatusPaused {
		return "paused"
	}
	return "resumed"
}
