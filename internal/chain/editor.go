package chain

import (
	"context"
	"errors"
	"strings"

	"taskdash/internal/core"
)

// CatalogLoadError is shown while the candidate catalog is unavailable.
const CatalogLoadError = "Failed to load available tasks. Please try again."

var (
	ErrCustomStatusCodeRequired = errors.New("Please enter a status code")
	ErrSelfReference            = errors.New("A task cannot chain to itself")
	ErrCatalogUnavailable       = errors.New("Available tasks are not loaded. Please retry loading them.")
)

// TaskLister lists the tasks a chain rule may point to.
type TaskLister interface {
	ListTasks(ctx context.Context) ([]core.Task, error)
}

// AddInput is the raw content of the "add rule" controls.
type AddInput struct {
	StatusCode       string
	CustomStatusCode string
	UseCustom        bool
	NextTaskID       string
}

// Editor applies chain editor actions to an editing session.
type Editor struct {
	draft *core.Draft
}

// NewEditor returns an editor operating on d.
func NewEditor(d *core.Draft) *Editor {
	return &Editor{draft: d}
}

// Rules returns the configured rules.
func (e *Editor) Rules() core.ChainRules {
	return e.draft.Chains
}

// LoadCatalog fetches the candidate tasks once per session. Later calls are
// no-ops, including after a failed load; use RetryCatalog to try again.
func (e *Editor) LoadCatalog(ctx context.Context, lister TaskLister) error {
	if e.draft.CatalogLoaded {
		return nil
	}
	return e.fetchCatalog(ctx, lister)
}

// RetryCatalog discards any previous result and fetches the catalog again.
func (e *Editor) RetryCatalog(ctx context.Context, lister TaskLister) error {
	e.draft.CatalogLoaded = false
	e.draft.CatalogError = ""
	e.draft.Catalog = nil
	return e.fetchCatalog(ctx, lister)
}

func (e *Editor) fetchCatalog(ctx context.Context, lister TaskLister) error {
	tasks, err := lister.ListTasks(ctx)
	e.draft.CatalogLoaded = true
	if err != nil {
		e.draft.Catalog = nil
		e.draft.CatalogError = CatalogLoadError
		return err
	}
	e.draft.CatalogError = ""
	e.draft.Catalog = Catalog(tasks)
	return nil
}

// NextTaskDisabled reports whether the next-task selector must be disabled.
func (e *Editor) NextTaskDisabled() bool {
	return !e.draft.CatalogLoaded || e.draft.CatalogError != ""
}

// Candidates returns the catalog without the task being edited.
func (e *Editor) Candidates() []core.CatalogEntry {
	out := make([]core.CatalogEntry, 0, len(e.draft.Catalog))
	for _, entry := range e.draft.Catalog {
		if e.draft.TaskID != "" && entry.ID == e.draft.TaskID {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Add validates the input and appends a rule. On error the rule set is unchanged.
// Rules can only be added while the catalog is loaded.
func (e *Editor) Add(in AddInput) error {
	if e.NextTaskDisabled() {
		return ErrCatalogUnavailable
	}
	var (
		code int
		err  error
	)
	if in.UseCustom {
		if strings.TrimSpace(in.CustomStatusCode) == "" {
			return ErrCustomStatusCodeRequired
		}
		code, err = core.ParseStatusCode(in.CustomStatusCode)
	} else {
		code, err = core.ParseStatusCode(in.StatusCode)
	}
	if err != nil {
		return err
	}

	next := strings.TrimSpace(in.NextTaskID)
	if next == "" {
		return core.ErrNextTaskRequired
	}
	if e.draft.TaskID != "" && next == e.draft.TaskID {
		return ErrSelfReference
	}

	rules, err := e.draft.Chains.Add(core.ChainRule{
		StatusCode:   code,
		NextTaskID:   next,
		NextTaskName: e.catalogName(next),
	})
	if err != nil {
		return err
	}
	e.draft.Chains = rules
	return nil
}

// Remove deletes the rule at position i.
func (e *Editor) Remove(i int) {
	e.draft.Chains = e.draft.Chains.Remove(i)
}

func (e *Editor) catalogName(id string) string {
	for _, entry := range e.draft.Catalog {
		if entry.ID == id {
			return entry.Name
		}
	}
	return core.UnknownTaskName
}

// Catalog converts a task listing into chain editor candidates.
func Catalog(tasks []core.Task) []core.CatalogEntry {
	out := make([]core.CatalogEntry, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, core.CatalogEntry{
			ID:     t.ID,
			Name:   t.Name,
			Status: t.Status,
			Chains: t.Chains,
		})
	}
	return out
}

// ResolvedRule is a chain rule with the target name to display.
type ResolvedRule struct {
	core.ChainRule
	DisplayName string
	Stale       bool
	Missing     bool
}

// ResolveNames picks a display name for every rule: the catalog's current name
// first, then the name stored on the rule, then UnknownTaskName.
func ResolveNames(rules core.ChainRules, catalog []core.CatalogEntry) []ResolvedRule {
	names := make(map[string]string, len(catalog))
	for _, entry := range catalog {
		names[entry.ID] = entry.Name
	}
	out := make([]ResolvedRule, 0, len(rules))
	for _, rule := range rules {
		resolved := ResolvedRule{ChainRule: rule}
		if name, ok := names[rule.NextTaskID]; ok {
			resolved.DisplayName = name
			resolved.Stale = rule.NextTaskName != "" && rule.NextTaskName != name
		} else if rule.NextTaskName != "" && rule.NextTaskName != core.UnknownTaskName {
			resolved.DisplayName = rule.NextTaskName
			resolved.Missing = true
		} else {
			resolved.DisplayName = core.UnknownTaskName
			resolved.Missing = true
		}
		out = append(out, resolved)
	}
	return out
}
