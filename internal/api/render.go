package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"taskdash/internal/chain"
	"taskdash/internal/core"
	"taskdash/internal/filter"
)

var pageNames = []string{"tasks", "task", "form", "chain", "executions", "error"}

// renderer holds one parsed template set per page, each combined with the layout.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer(fsys fs.FS, location *time.Location) (*renderer, error) {
	funcs := templateFuncs(location)
	r := &renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(fsys, "layout.html", name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

func (r *renderer) render(w http.ResponseWriter, status int, page string, data any) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func templateFuncs(location *time.Location) template.FuncMap {
	fmtClock := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.In(location).Format("2006-01-02 15:04:05 MST")
	}
	return template.FuncMap{
		"lower": strings.ToLower,
		"title": func(s string) string {
			if s == "" {
				return s
			}
			lower := strings.ToLower(s)
			return strings.ToUpper(lower[:1]) + lower[1:]
		},
		"add":      func(a, b int) int { return a + b },
		"sub":      func(a, b int) int { return a - b },
		"add2":     func(a, b float64) float64 { return a + b },
		"sub2":     func(a, b float64) float64 { return a - b },
		"fmtClock": fmtClock,
		"fmtTime": func(ts core.Timestamp) string {
			if !ts.Valid() {
				return "-"
			}
			return fmtClock(ts.Time)
		},
		"successRate": func(v any) string {
			var t core.Task
			switch task := v.(type) {
			case core.Task:
				t = task
			case *core.Task:
				t = *task
			}
			rate, ok := t.SuccessRate()
			if !ok {
				return "N/A"
			}
			return fmt.Sprintf("%d%%", rate)
		},
		"prettyJSON": func(raw json.RawMessage) string {
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return string(raw)
			}
			return buf.String()
		},
		"deref": func(v any) any {
			switch p := v.(type) {
			case *int:
				if p != nil {
					return *p
				}
			case *string:
				if p != nil {
					return *p
				}
			case *bool:
				if p != nil {
					return *p
				}
			}
			return ""
		},
		"pageURL": func(c filter.Criteria, page int) template.URL {
			q := c.Query(page)
			if q == "" {
				return template.URL("/tasks")
			}
			return template.URL("/tasks?" + q)
		},
		"node": func(g *chain.Graph, id string) chain.Node {
			n, _ := g.Node(id)
			return n
		},
	}
}

type errorPage struct {
	Title    string
	Message  string
	LoginURL string
}

type tasksPage struct {
	Criteria   filter.Criteria
	Page       filter.Page
	Total      int
	Banner     string
	Statuses   []string
	Priorities []string
}

type taskPage struct {
	Task        *core.Task
	Rules       []chain.ResolvedRule
	LoopWarning string
	Upcoming    []time.Time
	CanToggle   bool
	ToggleTo    core.TaskStatus
	Banner      string
}

type chainPage struct {
	Graph       *chain.Graph
	LoopWarning string
}

type executionsPage struct {
	Task       *core.Task
	Executions []core.Execution
	PageNumber int
	HasNext    bool
}

// pendingRule keeps the add-rule controls as typed when the add fails.
type pendingRule struct {
	StatusCode       string
	CustomStatusCode string
	UseCustom        bool
	NextTaskID       string
}

type formPage struct {
	Draft            *core.Draft
	Values           core.FormValues
	Errors           map[string]string
	CronHint         string
	Banner           string
	Rules            []chain.ResolvedRule
	LoopWarning      string
	Candidates       []core.CatalogEntry
	NextTaskDisabled bool
	CatalogError     string
	ChainError       string
	Pending          pendingRule
	StatusCodes      []core.StatusCodeOption
	Methods          []string
	Priorities       []core.Priority
}
