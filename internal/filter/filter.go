// Package filter narrows and pages the task list.
package filter

import (
	"net/url"
	"strconv"
	"strings"

	"taskdash/internal/core"
)

// PerPage is the number of tasks shown per list page.
const PerPage = 5

// Criteria is the task list filter as carried in the query string.
type Criteria struct {
	Search     string
	Statuses   []string
	Priorities []string
	HasChain   bool
	Page       int
}

// Parse reads criteria from query parameters. Unknown values are kept and
// simply match nothing.
func Parse(q url.Values) Criteria {
	c := Criteria{
		Search:     strings.TrimSpace(q.Get("search")),
		Statuses:   splitList(q.Get("status")),
		Priorities: splitList(q.Get("priority")),
		HasChain:   q.Get("hasChain") == "true",
		Page:       1,
	}
	if p, err := strconv.Atoi(q.Get("page")); err == nil {
		c.Page = p
	}
	return c
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Active reports whether any filter narrows the list.
func (c Criteria) Active() bool {
	return c.Search != "" || len(c.Statuses) > 0 || len(c.Priorities) > 0 || c.HasChain
}

// HasStatus reports whether the status checkbox is ticked.
func (c Criteria) HasStatus(s string) bool {
	return contains(c.Statuses, strings.ToLower(s))
}

// HasPriority reports whether the priority checkbox is ticked.
func (c Criteria) HasPriority(p string) bool {
	return contains(c.Priorities, strings.ToLower(p))
}

// Query encodes the criteria for page links, with page replaced.
func (c Criteria) Query(page int) string {
	q := url.Values{}
	if c.Search != "" {
		q.Set("search", c.Search)
	}
	if len(c.Statuses) > 0 {
		q.Set("status", strings.Join(c.Statuses, ","))
	}
	if len(c.Priorities) > 0 {
		q.Set("priority", strings.Join(c.Priorities, ","))
	}
	if c.HasChain {
		q.Set("hasChain", "true")
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	return q.Encode()
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Match reports whether the task passes every filter.
func (c Criteria) Match(t core.Task) bool {
	if c.Search != "" {
		needle := strings.ToLower(c.Search)
		if !strings.Contains(strings.ToLower(t.Name), needle) &&
			!strings.Contains(strings.ToLower(t.Endpoint), needle) {
			return false
		}
	}
	if len(c.Statuses) > 0 && !c.HasStatus(string(t.Status)) {
		return false
	}
	if len(c.Priorities) > 0 && !c.HasPriority(string(t.Priority)) {
		return false
	}
	if c.HasChain && len(t.Chains) == 0 {
		return false
	}
	return true
}

// Apply returns the matching tasks in their original order.
func Apply(tasks []core.Task, c Criteria) []core.Task {
	out := make([]core.Task, 0, len(tasks))
	for _, t := range tasks {
		if c.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Page is one slice of a filtered list.
type Page struct {
	Tasks      []core.Task
	Number     int
	TotalPages int
	Total      int
}

// HasPrev reports whether a previous page exists.
func (p Page) HasPrev() bool { return p.Number > 1 }

// HasNext reports whether a next page exists.
func (p Page) HasNext() bool { return p.Number < p.TotalPages }

// Paginate returns page number n of tasks, clamped into [1, TotalPages].
// TotalPages is at least 1.
func Paginate(tasks []core.Task, n, perPage int) Page {
	if perPage < 1 {
		perPage = PerPage
	}
	total := (len(tasks) + perPage - 1) / perPage
	if total < 1 {
		total = 1
	}
	if n < 1 {
		n = 1
	}
	if n > total {
		n = total
	}
	start := (n - 1) * perPage
	end := start + perPage
	if end > len(tasks) {
		end = len(tasks)
	}
	return Page{
		Tasks:      tasks[start:end],
		Number:     n,
		TotalPages: total,
		Total:      len(tasks),
	}
}
