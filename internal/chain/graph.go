package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"taskdash/internal/core"
)

// Placeholder content for related tasks that could not be fetched.
const PlaceholderDescription = "Could not load task details"

// Layout of the chain diagram.
const (
	RootX        = 250.0
	RootY        = 100.0
	ChildCenterX = 250.0
	ChildCenterY = 350.0
	ChildRadius  = 250.0
	NodeWidth    = 180.0
	NodeHeight   = 60.0
	viewPadding  = 20.0
)

// maxFetchConcurrency bounds the parallel lookups of related tasks.
const maxFetchConcurrency = 8

// TaskFetcher fetches single tasks.
type TaskFetcher interface {
	GetTask(ctx context.Context, id string) (*core.Task, error)
}

// Node is one task in the chain diagram.
type Node struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Status      core.TaskStatus `json:"status"`
	Root        bool            `json:"root,omitempty"`
	Placeholder bool            `json:"placeholder,omitempty"`
	X           float64         `json:"x"`
	Y           float64         `json:"y"`
}

// Edge connects the root to the task run for StatusCode.
type Edge struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	StatusCode int    `json:"statusCode"`
	Label      string `json:"label"`
}

// ViewBox is the diagram's drawing area.
type ViewBox struct {
	MinX   float64 `json:"minX"`
	MinY   float64 `json:"minY"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (v ViewBox) String() string {
	return fmt.Sprintf("%g %g %g %g", v.MinX, v.MinY, v.Width, v.Height)
}

// Graph is the one-hop chain diagram of a task.
type Graph struct {
	Root     Node    `json:"root"`
	Children []Node  `json:"children"`
	Edges    []Edge  `json:"edges"`
	ViewBox  ViewBox `json:"viewBox"`
}

// Nodes returns the root followed by its children.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.Children)+1)
	out = append(out, g.Root)
	return append(out, g.Children...)
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	if g.Root.ID == id {
		return g.Root, true
	}
	for _, n := range g.Children {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Visualizer builds chain diagrams from the task service.
type Visualizer struct {
	tasks  TaskFetcher
	logger *slog.Logger
}

// NewVisualizer returns a visualizer fetching tasks through tasks.
func NewVisualizer(tasks TaskFetcher, logger *slog.Logger) *Visualizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Visualizer{tasks: tasks, logger: logger}
}

// Build fetches the task and every distinct next task of its chain rules and
// lays them out. Only a failure to fetch the root task is an error; related
// tasks that cannot be fetched become placeholder nodes.
func (v *Visualizer) Build(ctx context.Context, taskID string) (*Graph, error) {
	root, err := v.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if root.ID == "" {
		root.ID = taskID
	}

	var related []string
	for _, id := range root.Chains.NextTaskIDs() {
		if id != root.ID {
			related = append(related, id)
		}
	}

	fetched := make([]Node, len(related))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetchConcurrency)
	for i, id := range related {
		g.Go(func() error {
			fetched[i] = v.relatedNode(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	graph := &Graph{
		Root: Node{
			ID:          root.ID,
			Name:        root.Name,
			Description: root.Description,
			Status:      root.Status,
			Root:        true,
			X:           RootX,
			Y:           RootY,
		},
		Children: fetched,
	}
	for _, rule := range root.Chains {
		graph.Edges = append(graph.Edges, Edge{
			ID:         fmt.Sprintf("%s-%d-%s", root.ID, rule.StatusCode, rule.NextTaskID),
			Source:     root.ID,
			Target:     rule.NextTaskID,
			StatusCode: rule.StatusCode,
			Label:      fmt.Sprintf("Status: %d", rule.StatusCode),
		})
	}
	layout(graph)
	return graph, nil
}

func (v *Visualizer) relatedNode(ctx context.Context, id string) Node {
	task, err := v.tasks.GetTask(ctx, id)
	if err != nil {
		v.logger.Warn("chain: related task unavailable", "task_id", id, "error", err)
		return Node{
			ID:          id,
			Name:        core.UnknownTaskName,
			Description: PlaceholderDescription,
			Status:      core.TaskStatusUnknown,
			Placeholder: true,
		}
	}
	return Node{
		ID:          id,
		Name:        task.Name,
		Description: task.Description,
		Status:      task.Status,
	}
}

// layout places the children on a circle below the root and sizes the view box.
func layout(g *Graph) {
	n := len(g.Children)
	for i := range g.Children {
		angle := float64(i) * 2 * math.Pi / float64(n)
		g.Children[i].X = round2(ChildCenterX + ChildRadius*math.Cos(angle))
		g.Children[i].Y = round2(ChildCenterY + ChildRadius*math.Sin(angle))
	}

	minX, minY := g.Root.X, g.Root.Y
	maxX, maxY := g.Root.X, g.Root.Y
	for _, c := range g.Children {
		minX, maxX = math.Min(minX, c.X), math.Max(maxX, c.X)
		minY, maxY = math.Min(minY, c.Y), math.Max(maxY, c.Y)
	}
	g.ViewBox = ViewBox{
		MinX:   minX - NodeWidth/2 - viewPadding,
		MinY:   minY - NodeHeight/2 - viewPadding,
		Width:  maxX - minX + NodeWidth + 2*viewPadding,
		Height: maxY - minY + NodeHeight + 2*viewPadding,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Segment is a drawable edge with its label anchor.
type Segment struct {
	Edge
	X1, Y1, X2, Y2 float64
	LabelX, LabelY float64
	SelfLoop       bool
}

// Segments resolves every edge to coordinates. Labels of parallel edges are
// staggered along the line.
func (g *Graph) Segments() []Segment {
	seen := make(map[string]int)
	out := make([]Segment, 0, len(g.Edges))
	for _, e := range g.Edges {
		src, ok := g.Node(e.Source)
		if !ok {
			continue
		}
		dst, ok := g.Node(e.Target)
		if !ok {
			continue
		}
		k := seen[e.Target]
		seen[e.Target]++
		seg := Segment{Edge: e, X1: src.X, Y1: src.Y, X2: dst.X, Y2: dst.Y}
		if e.Source == e.Target {
			seg.SelfLoop = true
			seg.LabelX = src.X + NodeWidth/2 + 10
			seg.LabelY = src.Y - NodeHeight/2 + float64(k)*14
		} else {
			t := 0.5 + 0.1*float64(k)
			seg.LabelX = round2(src.X + (dst.X-src.X)*t)
			seg.LabelY = round2(src.Y + (dst.Y-src.Y)*t)
		}
		out = append(out, seg)
	}
	return out
}
