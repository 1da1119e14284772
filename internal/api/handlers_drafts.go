package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"taskdash/internal/chain"
	"taskdash/internal/core"
	"taskdash/internal/form"
)

const (
	actionAddHeader    = "add_header"
	actionRemoveHeader = "remove_header"
	actionAddChain     = "add_chain"
	actionRemoveChain  = "remove_chain"
	actionRetryCatalog = "retry_catalog"
	actionSubmit       = "submit"
)

// cronHint is shown next to a root task's schedule the local parser cannot
// read. It never blocks submission.
const cronHint = "This schedule cannot be previewed here. The task service checks it when the task is saved."

func (s *Server) handleNewTaskPage(w http.ResponseWriter, r *http.Request) {
	draft := &core.Draft{
		ID:     core.NewID(),
		Values: form.NewValues(),
	}
	s.startDraft(w, r, draft)
}

func (s *Server) handleEditTaskPage(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		s.renderServiceError(w, r, err)
		return
	}
	draft := &core.Draft{
		ID:     core.NewID(),
		TaskID: taskID,
		Values: form.FromTask(task),
		Chains: task.Chains,
	}
	s.startDraft(w, r, draft)
}

func (s *Server) startDraft(w http.ResponseWriter, r *http.Request, draft *core.Draft) {
	if err := s.drafts.InsertDraft(r.Context(), draft); err != nil {
		s.renderServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, "/drafts/"+draft.ID, http.StatusSeeOther)
}

func (s *Server) handleDraftPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	draft, err := s.drafts.GetDraft(ctx, chi.URLParam(r, "draftID"))
	if err != nil {
		s.renderServiceError(w, r, err)
		return
	}

	if !draft.CatalogLoaded {
		s.loadCatalog(ctx, draft)
		if err := s.drafts.UpdateDraft(ctx, draft); err != nil {
			s.renderServiceError(w, r, err)
			return
		}
	}
	s.renderDraft(w, r, http.StatusOK, draft, formState{})
}

func (s *Server) loadCatalog(ctx context.Context, draft *core.Draft) {
	if err := chain.NewEditor(draft).LoadCatalog(ctx, s.tasks); err != nil {
		s.logger.Warn("load task catalog", "draft_id", draft.ID, "err", err)
	}
}

// formState carries the per-request feedback of a draft page.
type formState struct {
	errors     form.Errors
	banner     string
	chainError string
	pending    pendingRule
}

func (s *Server) renderDraft(w http.ResponseWriter, r *http.Request, status int, draft *core.Draft, st formState) {
	editor := chain.NewEditor(draft)
	data := formPage{
		Draft:            draft,
		Values:           draft.Values,
		Errors:           st.errors,
		Banner:           st.banner,
		Rules:            chain.ResolveNames(draft.Chains, draft.Catalog),
		Candidates:       editor.Candidates(),
		NextTaskDisabled: editor.NextTaskDisabled(),
		CatalogError:     draft.CatalogError,
		ChainError:       st.chainError,
		Pending:          st.pending,
		StatusCodes:      core.CommonStatusCodes,
		Methods:          core.HTTPMethods,
		Priorities:       []core.Priority{core.PriorityHigh, core.PriorityNormal, core.PriorityLow},
	}
	if data.Errors == nil {
		data.Errors = form.Errors{}
	}
	if v := draft.Values; v.TaskType == string(core.TaskTypeRoot) && strings.TrimSpace(v.CronExpression) != "" {
		if _, err := core.ParseCron(v.CronExpression); err != nil {
			data.CronHint = cronHint
		}
	}
	if draft.CatalogError == "" && chain.HasLoop(draft.Catalog, draft.TaskID, draft.Chains) {
		data.LoopWarning = chain.LoopWarning
	}
	s.renderPage(w, r, status, "form", data)
}

func (s *Server) handleDraftAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	draft, err := s.drafts.GetDraft(ctx, chi.URLParam(r, "draftID"))
	if err != nil {
		s.renderServiceError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "The form could not be read.")
		return
	}
	draft.Values = valuesFromForm(r.PostForm)

	action, arg, _ := strings.Cut(r.PostForm.Get("action"), ":")
	if action == "" {
		action = actionSubmit
	}
	if action == actionSubmit {
		s.submitDraft(w, r, draft)
		return
	}

	var st formState
	editor := chain.NewEditor(draft)
	switch action {
	case actionAddHeader:
		draft.Values.Headers = append(draft.Values.Headers, core.HeaderRow{})
	case actionRemoveHeader:
		i, err := strconv.Atoi(arg)
		if err != nil || i < 0 || i >= len(draft.Values.Headers) {
			s.renderError(w, r, http.StatusBadRequest, "Bad request", "Unknown header row.")
			return
		}
		draft.Values.Headers = append(draft.Values.Headers[:i], draft.Values.Headers[i+1:]...)
	case actionAddChain:
		s.loadCatalog(ctx, draft)
		in := chain.AddInput{
			StatusCode:       r.PostForm.Get("chainStatusCode"),
			CustomStatusCode: r.PostForm.Get("chainCustomCode"),
			NextTaskID:       r.PostForm.Get("chainNextTask"),
		}
		if in.StatusCode == "custom" {
			in.UseCustom = true
			in.StatusCode = ""
		}
		if err := editor.Add(in); err != nil {
			st.chainError = err.Error()
			st.pending = pendingRule{
				StatusCode:       in.StatusCode,
				CustomStatusCode: in.CustomStatusCode,
				UseCustom:        in.UseCustom,
				NextTaskID:       in.NextTaskID,
			}
		}
	case actionRemoveChain:
		i, err := strconv.Atoi(arg)
		if err != nil || i < 0 || i >= len(draft.Chains) {
			s.renderError(w, r, http.StatusBadRequest, "Bad request", "Unknown chain rule.")
			return
		}
		editor.Remove(i)
	case actionRetryCatalog:
		if err := editor.RetryCatalog(ctx, s.tasks); err != nil {
			s.logger.Warn("reload task catalog", "draft_id", draft.ID, "err", err)
		}
	default:
		s.renderError(w, r, http.StatusBadRequest, "Bad request", "Unknown form action.")
		return
	}

	if err := s.drafts.UpdateDraft(ctx, draft); err != nil {
		s.renderServiceError(w, r, err)
		return
	}
	s.renderDraft(w, r, http.StatusOK, draft, st)
}

// submitDraft validates the form and, when it is valid, creates or updates the task.
func (s *Server) submitDraft(w http.ResponseWriter, r *http.Request, draft *core.Draft) {
	ctx := r.Context()
	if errs := form.Validate(draft.Values); len(errs) > 0 {
		s.saveDraft(ctx, draft)
		s.renderDraft(w, r, http.StatusUnprocessableEntity, draft, formState{errors: errs})
		return
	}
	payload, err := form.Serialize(draft.Values, draft.Chains)
	if err != nil {
		s.saveDraft(ctx, draft)
		s.renderDraft(w, r, http.StatusUnprocessableEntity, draft, formState{banner: err.Error()})
		return
	}

	var (
		task *core.Task
		verb string
	)
	if draft.Editing() {
		task, err = s.tasks.UpdateTask(ctx, draft.TaskID, payload)
		verb = "updated"
	} else {
		task, err = s.tasks.CreateTask(ctx, payload)
		verb = "created"
	}
	if err != nil {
		f := classify(err)
		s.logFailure(r, f, err)
		s.saveDraft(ctx, draft)
		if f.code == "auth_required" {
			s.redirectToLogin(w, r)
			return
		}
		s.renderDraft(w, r, f.status, draft, formState{banner: f.message})
		return
	}

	taskID := draft.TaskID
	if task != nil && task.ID != "" {
		taskID = task.ID
	}
	if err := s.drafts.DeleteDraft(ctx, draft.ID); err != nil {
		s.logger.Warn("delete draft", "draft_id", draft.ID, "err", err)
	}
	s.logger.Info("task "+verb, "task_id", taskID, "name", payload.Name)
	s.notifyAsync("Task "+verb, payload.Name)

	if taskID == "" {
		http.Redirect(w, r, "/tasks", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/tasks/"+taskID, http.StatusSeeOther)
}

func (s *Server) saveDraft(ctx context.Context, draft *core.Draft) {
	if err := s.drafts.UpdateDraft(ctx, draft); err != nil {
		s.logger.Warn("save draft", "draft_id", draft.ID, "err", err)
	}
}

// valuesFromForm reads the posted task form. Header keys and values pair up by position.
func valuesFromForm(f url.Values) core.FormValues {
	v := core.FormValues{
		Name:               f.Get("name"),
		Description:        f.Get("description"),
		Endpoint:           f.Get("endpoint"),
		Method:             f.Get("method"),
		CronExpression:     f.Get("cronExpression"),
		Priority:           f.Get("priority"),
		TaskType:           f.Get("taskType"),
		RequestBody:        f.Get("requestBody"),
		MaxRetries:         f.Get("maxRetries"),
		RetryDelay:         f.Get("retryDelay"),
		ExponentialBackoff: f.Get("exponentialBackoff") == "true",
		WebhookURL:         f.Get("webhookUrl"),
	}
	keys, values := f["header_key"], f["header_value"]
	v.Headers = make([]core.HeaderRow, 0, len(keys))
	for i, key := range keys {
		row := core.HeaderRow{Key: key}
		if i < len(values) {
			row.Value = values[i]
		}
		v.Headers = append(v.Headers, row)
	}
	return v
}
