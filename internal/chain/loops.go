package chain

import (
	"github.com/gammazero/toposort"

	"taskdash/internal/core"
)

// LoopWarning is shown when chain rules reachable from a task form a cycle.
const LoopWarning = "Chain rules reachable from this task form a loop; its executions may repeat indefinitely."

// pendingKey stands in for a task that has no id yet.
const pendingKey = "\x00pending"

// HasLoop reports whether the chain graph reachable from taskID contains a
// cycle, with taskID's own rules replaced by rules. An empty taskID denotes a
// task that is not created yet.
func HasLoop(catalog []core.CatalogEntry, taskID string, rules core.ChainRules) bool {
	start := taskID
	if start == "" {
		start = pendingKey
	}

	next := make(map[string][]string, len(catalog)+1)
	for _, entry := range catalog {
		next[entry.ID] = entry.Chains.NextTaskIDs()
	}
	next[start] = rules.NextTaskIDs()

	var edges []toposort.Edge
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		targets := next[id]
		if len(targets) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, target := range targets {
			if target == id {
				return true
			}
			edges = append(edges, toposort.Edge{id, target})
			if !visited[target] {
				visited[target] = true
				queue = append(queue, target)
			}
		}
	}

	_, err := toposort.Toposort(edges)
	return err != nil
}
