package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdash/internal/core"
)

type fakeLister struct {
	tasks []core.Task
	err   error
	calls int
}

func (f *fakeLister) ListTasks(context.Context) ([]core.Task, error) {
	f.calls++
	return f.tasks, f.err
}

func catalogTasks() []core.Task {
	return []core.Task{
		{ID: "t1", Name: "Current", Status: core.TaskStatusActive},
		{ID: "t2", Name: "Notify", Status: core.TaskStatusActive},
		{ID: "t3", Name: "Cleanup", Status: core.TaskStatusPaused},
	}
}

func TestLoadCatalogOncePerSession(t *testing.T) {
	lister := &fakeLister{tasks: catalogTasks()}
	editor := NewEditor(&core.Draft{TaskID: "t1"})

	assert.True(t, editor.NextTaskDisabled())
	require.NoError(t, editor.LoadCatalog(context.Background(), lister))
	require.NoError(t, editor.LoadCatalog(context.Background(), lister))

	assert.Equal(t, 1, lister.calls)
	assert.False(t, editor.NextTaskDisabled())

	var ids []string
	for _, c := range editor.Candidates() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"t2", "t3"}, ids)
}

func TestLoadCatalogFailureDisablesSelector(t *testing.T) {
	lister := &fakeLister{err: errors.New("boom")}
	draft := &core.Draft{}
	editor := NewEditor(draft)

	assert.Error(t, editor.LoadCatalog(context.Background(), lister))
	assert.Equal(t, CatalogLoadError, draft.CatalogError)
	assert.True(t, editor.NextTaskDisabled())

	assert.NoError(t, editor.LoadCatalog(context.Background(), lister))
	assert.Equal(t, 1, lister.calls)

	lister.err = nil
	lister.tasks = catalogTasks()
	require.NoError(t, editor.RetryCatalog(context.Background(), lister))
	assert.Empty(t, draft.CatalogError)
	assert.False(t, editor.NextTaskDisabled())
	assert.Len(t, editor.Candidates(), 3)
}

func loadedEditor(t *testing.T, draft *core.Draft) *Editor {
	t.Helper()
	editor := NewEditor(draft)
	require.NoError(t, editor.LoadCatalog(context.Background(), &fakeLister{tasks: catalogTasks()}))
	return editor
}

func TestAddRule(t *testing.T) {
	editor := loadedEditor(t, &core.Draft{TaskID: "t1"})

	require.NoError(t, editor.Add(AddInput{StatusCode: "200", NextTaskID: "t2"}))
	require.NoError(t, editor.Add(AddInput{UseCustom: true, CustomStatusCode: "418", NextTaskID: "ghost"}))

	rules := editor.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, core.ChainRule{StatusCode: 200, NextTaskID: "t2", NextTaskName: "Notify"}, rules[0])
	assert.Equal(t, core.UnknownTaskName, rules[1].NextTaskName)
}

func TestAddRuleValidation(t *testing.T) {
	tests := []struct {
		name  string
		input AddInput
		want  string
	}{
		{name: "no code selected", input: AddInput{NextTaskID: "t2"}, want: "Please select a status code"},
		{name: "custom left blank", input: AddInput{UseCustom: true, NextTaskID: "t2"}, want: "Please enter a status code"},
		{name: "custom out of range", input: AddInput{UseCustom: true, CustomStatusCode: "700", NextTaskID: "t2"}, want: "Status code must be a number between 100 and 599"},
		{name: "no next task", input: AddInput{StatusCode: "200"}, want: "Please select a next task"},
		{name: "self reference", input: AddInput{StatusCode: "200", NextTaskID: "t1"}, want: "A task cannot chain to itself"},
		{name: "duplicate", input: AddInput{StatusCode: "500", NextTaskID: "t3"}, want: "Status code 500 is already configured in the chain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := &core.Draft{
				TaskID: "t1",
				Chains: core.ChainRules{{StatusCode: 500, NextTaskID: "t2", NextTaskName: "Notify"}},
			}
			editor := loadedEditor(t, draft)

			err := editor.Add(tt.input)
			assert.EqualError(t, err, tt.want)
			assert.Len(t, draft.Chains, 1)
		})
	}
}

func TestAddRuleRequiresCatalog(t *testing.T) {
	draft := &core.Draft{TaskID: "t1"}
	editor := NewEditor(draft)

	assert.ErrorIs(t, editor.Add(AddInput{StatusCode: "200", NextTaskID: "t2"}), ErrCatalogUnavailable)
	assert.Empty(t, draft.Chains)

	assert.Error(t, editor.LoadCatalog(context.Background(), &fakeLister{err: errors.New("boom")}))
	assert.ErrorIs(t, editor.Add(AddInput{StatusCode: "200", NextTaskID: "t2"}), ErrCatalogUnavailable)
	assert.Empty(t, draft.Chains)
}

func TestRemoveRule(t *testing.T) {
	draft := &core.Draft{Chains: core.ChainRules{
		{StatusCode: 200, NextTaskID: "a"},
		{StatusCode: 404, NextTaskID: "b"},
		{StatusCode: 500, NextTaskID: "c"},
	}}
	editor := NewEditor(draft)

	editor.Remove(1)
	editor.Remove(9)

	require.Len(t, draft.Chains, 2)
	assert.Equal(t, 200, draft.Chains[0].StatusCode)
	assert.Equal(t, 500, draft.Chains[1].StatusCode)
}

func TestResolveNames(t *testing.T) {
	rules := core.ChainRules{
		{StatusCode: 200, NextTaskID: "t2", NextTaskName: "Old name"},
		{StatusCode: 404, NextTaskID: "gone", NextTaskName: "Archived"},
		{StatusCode: 500, NextTaskID: "gone2"},
	}
	resolved := ResolveNames(rules, Catalog(catalogTasks()))

	require.Len(t, resolved, 3)
	assert.Equal(t, "Notify", resolved[0].DisplayName)
	assert.True(t, resolved[0].Stale)
	assert.Equal(t, "Archived", resolved[1].DisplayName)
	assert.True(t, resolved[1].Missing)
	assert.Equal(t, core.UnknownTaskName, resolved[2].DisplayName)
}
