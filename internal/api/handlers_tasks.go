package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"taskdash/internal/chain"
	"taskdash/internal/core"
	"taskdash/internal/filter"
	"taskdash/internal/form"
	"taskdash/internal/taskservice"
)

type statusRequest struct {
	Status core.TaskStatus `json:"status"`
}

type invalidInputResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListTasks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if criteria := filter.Parse(r.URL.Query()); criteria.Active() {
		tasks = filter.Apply(tasks, criteria)
	}
	if tasks == nil {
		tasks = []core.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleTaskCatalog lists the tasks a chain rule may point at.
func (s *Server) handleTaskCatalog(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListTasks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	exclude := strings.TrimSpace(r.URL.Query().Get("exclude"))
	entries := make([]core.CatalogEntry, 0, len(tasks))
	for _, entry := range chain.Catalog(tasks) {
		if exclude != "" && entry.ID == exclude {
			continue
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.decodePayload(w, r)
	if !ok {
		return
	}
	task, err := s.tasks.CreateTask(r.Context(), payload)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info("task created", "task_id", task.ID, "name", payload.Name)
	s.notifyAsync("Task created", payload.Name)
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	payload, ok := s.decodePayload(w, r)
	if !ok {
		return
	}
	for _, rule := range payload.Chains {
		if rule.NextTaskID == taskID {
			writeError(w, http.StatusBadRequest, "invalid_input", chain.ErrSelfReference.Error())
			return
		}
	}
	task, err := s.tasks.UpdateTask(r.Context(), taskID, payload)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info("task updated", "task_id", taskID, "name", payload.Name)
	s.notifyAsync("Task updated", payload.Name)
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.tasks.DeleteTask(r.Context(), taskID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info("task deleted", "task_id", taskID)
	s.notifyAsync("Task deleted", taskID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	status := core.TaskStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if status != core.TaskStatusActive && status != core.TaskStatusPaused {
		writeError(w, http.StatusBadRequest, "invalid_input", "status must be ACTIVE or PAUSED")
		return
	}
	if err := s.tasks.SetTaskStatus(r.Context(), taskID, status); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info("task status changed", "task_id", taskID, "status", status)
	s.notifyAsync("Task "+statusVerb(status), taskID)
	writeJSON(w, http.StatusOK, statusRequest{Status: status})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	page := parseIntDefault(r.URL.Query().Get("page"), 1)
	limit := parseIntDefault(r.URL.Query().Get("limit"), taskservice.DefaultExecutionsLimit)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = taskservice.DefaultExecutionsLimit
	}
	executions, err := s.tasks.ListExecutions(r.Context(), taskID, page, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if executions == nil {
		executions = []core.Execution{}
	}
	writeJSON(w, http.StatusOK, executions)
}

func (s *Server) handleTaskGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := s.visualizer.Build(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

// decodePayload reads a create or update body and checks it against the task
// form rules. The caller's payload is forwarded as sent apart from dropping
// blank headers and empty chains, defaulting and upper-casing the enum fields
// and clearing the schedule of chained tasks. It writes the error response itself and
// reports whether to proceed.
func (s *Server) decodePayload(w http.ResponseWriter, r *http.Request) (core.TaskPayload, bool) {
	var in core.TaskPayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return core.TaskPayload{}, false
	}

	values := form.FromTask(&core.Task{
		Name:               in.Name,
		Description:        in.Description,
		Endpoint:           in.Endpoint,
		Method:             in.Method,
		Headers:            in.Headers,
		Body:               in.Body,
		CronExpression:     in.CronExpression,
		Priority:           in.Priority,
		TaskType:           in.TaskType,
		MaxRetries:         in.MaxRetries,
		RetryDelay:         in.RetryDelay,
		ExponentialBackoff: in.ExponentialBackoff,
		WebhookURL:         in.WebhookURL,
	})
	if errs := form.Validate(values); len(errs) > 0 {
		var resp invalidInputResponse
		resp.Error.Code = "invalid_input"
		resp.Error.Message = "task is invalid"
		resp.Error.Fields = errs
		writeJSON(w, http.StatusBadRequest, resp)
		return core.TaskPayload{}, false
	}

	var rules core.ChainRules
	for _, rule := range in.Chains {
		var err error
		if rules, err = rules.Add(rule); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return core.TaskPayload{}, false
		}
	}

	payload := in
	payload.Method = strings.ToUpper(strings.TrimSpace(values.Method))
	payload.Priority = core.Priority(strings.ToUpper(strings.TrimSpace(values.Priority)))
	payload.TaskType = core.TaskType(strings.ToUpper(strings.TrimSpace(values.TaskType)))
	payload.Headers = form.Headers(values.Headers)
	payload.Chains = nil
	if len(rules) > 0 {
		payload.Chains = rules
	}
	if payload.TaskType == core.TaskTypeChained {
		payload.CronExpression = ""
	}
	return payload, true
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
