package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdash/internal/core"
	"taskdash/internal/store"
	"taskdash/internal/taskservice"
)

const testToken = "secret-token"

// fakeTasks is an in-memory task service.
type fakeTasks struct {
	mu         sync.Mutex
	tasks      []core.Task
	listErr    error
	getErr     map[string]error
	createErr  error
	created    []core.TaskPayload
	updated    map[string]core.TaskPayload
	statuses   map[string]core.TaskStatus
	deleted    []string
	executions []core.Execution
	execCalls  [][2]int
}

func newFakeTasks(tasks ...core.Task) *fakeTasks {
	return &fakeTasks{
		tasks:    tasks,
		getErr:   map[string]error{},
		updated:  map[string]core.TaskPayload{},
		statuses: map[string]core.TaskStatus{},
	}
}

func (f *fakeTasks) ListTasks(context.Context) ([]core.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]core.Task(nil), f.tasks...), nil
}

func (f *fakeTasks) GetTask(_ context.Context, id string) (*core.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
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
	f.execCalls = append(f.execCalls, [2]int{page, limit})
	return f.executions, nil
}

func (f *fakeTasks) CreateTask(_ context.Context, payload core.TaskPayload) (*core.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, payload)
	return &core.Task{ID: "created-1", Name: payload.Name}, nil
}

func (f *fakeTasks) UpdateTask(_ context.Context, id string, payload core.TaskPayload) (*core.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[id] = payload
	return &core.Task{ID: id, Name: payload.Name}, nil
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

func (f *fakeTasks) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func sampleTasks() []core.Task {
	return []core.Task{
		{ID: "t1", Name: "Ping API", Endpoint: "https://api.example.com/ping", Method: "GET", Status: core.TaskStatusActive,
			Priority: core.PriorityHigh, TaskType: core.TaskTypeRoot, CronExpression: "0 * * * *",
			Chains: core.ChainRules{{StatusCode: 200, NextTaskID: "t2"}}},
		{ID: "t2", Name: "Notify Team", Endpoint: "https://hooks.example.com/notify", Method: "POST", Status: core.TaskStatusPaused,
			Priority: core.PriorityNormal, TaskType: core.TaskTypeChained},
		{ID: "t3", Name: "Cleanup", Endpoint: "https://api.example.com/cleanup", Method: "DELETE", Status: core.TaskStatusError,
			Priority: core.PriorityLow, TaskType: core.TaskTypeRoot, CronExpression: "0 0 * * *"},
	}
}

type testEnv struct {
	server *Server
	tasks  *fakeTasks
	drafts *store.Store
}

func newTestEnv(t *testing.T, tasks *fakeTasks, loginURL string) *testEnv {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv, err := NewServer(Options{
		Tasks:    tasks,
		Drafts:   st,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Location: time.UTC,
		LoginURL: loginURL,
	})
	require.NoError(t, err)
	return &testEnv{server: srv, tasks: tasks, drafts: st}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: testToken})
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	return e.do(t, http.MethodGet, target, nil, "")
}

func (e *testEnv) postForm(t *testing.T, target string, form url.Values) *httptest.ResponseRecorder {
	return e.do(t, http.MethodPost, target, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (e *testEnv) sendJSON(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	return e.do(t, method, target, strings.NewReader(body), "application/json")
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code, payload.Error.Message
}

func TestPagesRedirectToLoginWithoutToken(t *testing.T) {
	env := newTestEnv(t, newFakeTasks(sampleTasks()...), "https://login.example.com/signin")

	req := httptest.NewRequest(http.MethodGet, "/tasks?search=ping", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "login.example.com", loc.Host)
	assert.Equal(t, "/tasks?search=ping", loc.Query().Get("next"))
}

func TestPagesWithoutLoginURLRenderUnauthorized(t *testing.T) {
	env := newTestEnv(t, newFakeTasks(), "")

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in required")
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t, newFakeTasks(), "")

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	code, _ := decodeError(t, rec)
	assert.Equal(t, "auth_required", code)
}

func TestBearerHeaderAuthenticates(t *testing.T) {
	env := newTestEnv(t, newFakeTasks(sampleTasks()...), "")

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, newFakeTasks(), "")

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTasksPageFilters(t *testing.T) {
	env := newTestEnv(t, newFakeTasks(sampleTasks()...), "")

	rec := env.get(t, "/tasks?status=paused,error")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Notify Team")
	assert.Contains(t, body, "Cleanup")
	assert.NotContains(t, body, "Ping API")
	assert.Contains(t, body, "Showing 2 of 3 tasks")
}

func TestTasksPagePaginates(t *testing.T) {
	var tasks []core.Task
	for _, name := range []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf"} {
		tasks = append(tasks, core.Task{ID: name, Name: name, Status: core.TaskStatusActive})
	}
	env := newTestEnv(t, newFakeTasks(tasks...), "")

	rec := env.get(t, "/tasks?page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "foxtrot")
	assert.Contains(t, body, "golf")
	assert.NotContains(t, body, ">alpha<")
	assert.Contains(t, body, "Page 2 of 2")
	assert.Contains(t, body, `href="/tasks"`)
}

func TestTasksPageShowsBannerWhenServiceDown(t *testing.T) {
	tasks := newFakeTasks()
	tasks.listErr = taskservice.ErrUnavailable
	env := newTestEnv(t, tasks, "")

	rec := env.get(t, "/tasks")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), unavailableMessage)
}

func TestTaskPage(t *testing.T) {
	env := newTestEnv(t, newFakeTasks(sampleTasks()...), "")

	rec := env.get(t, "/tasks/t1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Ping API")
	assert.Contains(t, body, "Notify Team")
}

func TestTaskPageNotFound(t *testing.T) {
	env := newTestEnv(t, newFakeTasks(sampleTasks()...), "")

	rec := env.get(t, "/tasks/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not found")
}

func TestTaskPageUpstreamAuthRedirects(t *testing.T) {
	tasks := newFakeTasks(sampleTasks()...)
	tasks.getErr["t1"] = &taskservice.APIError{Op: "fetch_task", StatusCode: http.StatusUnauthorized, Message: "expired"}
	env := newTestEnv(t, tasks, "/login")

	rec := env.get(t, "/tasks/t1")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/login?next="))
}

func TestChainPage(t *testing.T) {
	tasks := newFakeTasks(sampleTasks()...)
	tasks.tasks[0].Chains = append(tasks.tasks[0].Chains, core.ChainRule{StatusCode: 500, NextTaskID: "gone"})
	env := newTestEnv(t, tasks, "")

	rec := env.get(t, "/tasks/t1/chain")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, "Notify Team")
	assert.Contains(t, body, "Status: 200")
	assert.Contains(t, body, core.UnknownTaskName)
}

func TestExecutionsPage(t *testing.T) {
	tasks := newFakeTasks(sampleTasks()...)
	env := newTestEnv(t, tasks, "")

	rec := env.get(t, "/tasks/t1/executions?page=3")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, tasks.execCalls, 1)
	assert.Equal(t, [2]int{3, taskservice.DefaultExecutionsLimit}, tasks.execCalls[0])
}

func TestStatusForm(t *testing.T) {
	tasks := newFakeTasks(sampleTasks()...)
	env := newTestEnv(t, tasks, "")

	rec := env.postForm(t, "/tasks/t1/status", url.Values{"status": {"PAUSED"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/tasks/t1", rec.Header().Get("Location"))
	assert.Equal(t, core.TaskStatusPaused, tasks.statuses["t1"])

	rec = env.postForm(t, "/tasks/t1/status", url.Values{"status": {"ERROR"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteForm(t *testing.T) {
	tasks := newFakeTasks(sampleTasks()...)
	env := newTestEnv(t, tasks, "")

	rec := env.postForm(t, "/tasks/t3/delete", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/tasks", rec.Header().Get("Location"))
	assert.Equal(t, []string{"t3"}, tasks.deleted)
}
