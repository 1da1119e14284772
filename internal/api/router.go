package api

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taskdash/internal/chain"
	"taskdash/internal/core"
	"taskdash/internal/metrics"
	"taskdash/internal/notify"
	"taskdash/web"
)

// TaskService is the subset of the task service client the handlers use.
type TaskService interface {
	ListTasks(ctx context.Context) ([]core.Task, error)
	GetTask(ctx context.Context, id string) (*core.Task, error)
	ListExecutions(ctx context.Context, id string, page, limit int) ([]core.Execution, error)
	CreateTask(ctx context.Context, payload core.TaskPayload) (*core.Task, error)
	UpdateTask(ctx context.Context, id string, payload core.TaskPayload) (*core.Task, error)
	SetTaskStatus(ctx context.Context, id string, status core.TaskStatus) error
	DeleteTask(ctx context.Context, id string) error
}

// DraftStore persists task editing sessions.
type DraftStore interface {
	InsertDraft(ctx context.Context, draft *core.Draft) error
	GetDraft(ctx context.Context, id string) (*core.Draft, error)
	UpdateDraft(ctx context.Context, draft *core.Draft) error
	DeleteDraft(ctx context.Context, id string) error
}

// Options configures the HTTP server.
type Options struct {
	Addr       string
	Tasks      TaskService
	Drafts     DraftStore
	MCP        http.Handler
	Metrics    *metrics.Metrics
	Notifier   notify.Notifier
	Logger     *slog.Logger
	Location   *time.Location
	CookieName string
	LoginURL   string
}

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	tasks      TaskService
	drafts     DraftStore
	visualizer *chain.Visualizer
	pages      *renderer
	mcp        http.Handler
	metrics    *metrics.Metrics
	notifier   notify.Notifier
	logger     *slog.Logger
	location   *time.Location
	cookieName string
	loginURL   string
}

// NewServer constructs the dashboard HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.Tasks == nil {
		return nil, errors.New("task service is required")
	}
	if opts.Drafts == nil {
		return nil, errors.New("draft store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.CookieName == "" {
		opts.CookieName = "auth_token"
	}

	pages, err := newRenderer(web.Templates(), opts.Location)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:     router,
		tasks:      opts.Tasks,
		drafts:     opts.Drafts,
		visualizer: chain.NewVisualizer(opts.Tasks, opts.Logger),
		pages:      pages,
		mcp:        opts.MCP,
		metrics:    opts.Metrics,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		location:   opts.Location,
		cookieName: opts.CookieName,
		loginURL:   opts.LoginURL,
	}
	router.Use(s.instrument)
	router.Use(s.withToken)
	s.registerRoutes(web.Files())

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(staticFS fs.FS) {
	fileServer := http.StripPrefix("/assets/", http.FileServer(http.FS(staticFS)))
	s.router.Handle("/assets/*", fileServer)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
	if s.mcp != nil {
		s.router.With(s.requireAPIToken).Handle("/mcp", s.mcp)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(s.requirePageToken)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/tasks", http.StatusFound)
		})
		r.Get("/tasks", s.handleTasksPage)
		r.Get("/tasks/new", s.handleNewTaskPage)
		r.Route("/tasks/{taskID}", func(r chi.Router) {
			r.Get("/", s.handleTaskPage)
			r.Get("/edit", s.handleEditTaskPage)
			r.Get("/chain", s.handleChainPage)
			r.Get("/executions", s.handleExecutionsPage)
			r.Post("/status", s.handleStatusForm)
			r.Post("/delete", s.handleDeleteForm)
		})
		r.Get("/drafts/{draftID}", s.handleDraftPage)
		r.Post("/drafts/{draftID}", s.handleDraftAction)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIToken)

		r.Post("/cron/preview", s.handleCronPreview)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Get("/list", s.handleTaskCatalog)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Put("/", s.handleUpdateTask)
				r.Delete("/", s.handleDeleteTask)
				r.Patch("/status", s.handleSetTaskStatus)
				r.Get("/executions", s.handleListExecutions)
				r.Get("/graph", s.handleTaskGraph)
			})
		})
	})
}

// notifyAsync delivers a change notification without holding up the request.
func (s *Server) notifyAsync(title, body string) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Send(ctx, title, body); err != nil {
			s.logger.Warn("send notification", "title", title, "err", err)
		}
	}()
}
