package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"taskdash/internal/core"
)

func TestHasLoop(t *testing.T) {
	catalog := []core.CatalogEntry{
		{ID: "A"},
		{ID: "B", Chains: core.ChainRules{{StatusCode: 200, NextTaskID: "C"}}},
		{ID: "C", Chains: core.ChainRules{{StatusCode: 500, NextTaskID: "A"}}},
		{ID: "D", Chains: core.ChainRules{{StatusCode: 200, NextTaskID: "E"}}},
		{ID: "E", Chains: core.ChainRules{{StatusCode: 200, NextTaskID: "D"}}},
	}

	tests := []struct {
		name   string
		taskID string
		rules  core.ChainRules
		want   bool
	}{
		{name: "no rules", taskID: "A", want: false},
		{name: "reaches another loop", taskID: "A", rules: core.ChainRules{{StatusCode: 200, NextTaskID: "D"}}, want: true},
		{name: "back to start", taskID: "A", rules: core.ChainRules{{StatusCode: 200, NextTaskID: "B"}}, want: true},
		{name: "self", taskID: "A", rules: core.ChainRules{{StatusCode: 200, NextTaskID: "A"}}, want: true},
		{name: "chain to leaf", taskID: "B", rules: core.ChainRules{{StatusCode: 200, NextTaskID: "A"}}, want: false},
		{name: "unknown target", taskID: "A", rules: core.ChainRules{{StatusCode: 200, NextTaskID: "ghost"}}, want: false},
		{name: "new task", rules: core.ChainRules{{StatusCode: 200, NextTaskID: "B"}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasLoop(catalog, tt.taskID, tt.rules))
		})
	}
}
