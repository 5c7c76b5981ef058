// Package workflow is a small staged-workflow engine. Stages are registered
// as named nodes over a caller-defined state type and connected by fixed
// edges; a compiled graph walks the edges from the entry node to End,
// mutating the state in place.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// End is the terminal pseudo-node.
const End = "__end__"

// DefaultMaxSteps bounds a single invocation.
const DefaultMaxSteps = 64

// Build errors.
var (
	ErrDuplicateNode = errors.New("workflow: duplicate node")
	ErrUnknownNode   = errors.New("workflow: unknown node")
	ErrDuplicateEdge = errors.New("workflow: node already has an outgoing edge")
	ErrNoEntry       = errors.New("workflow: entry node not set")
	ErrUnreachable   = errors.New("workflow: node is not reachable from entry")
	ErrNoTerminal    = errors.New("workflow: graph never reaches end")
	ErrStepLimit     = errors.New("workflow: step limit exceeded")
)

// NodeFunc is a stage. It mutates state and returns an error only when the
// stage itself cannot run; domain failures belong in the state.
type NodeFunc[S any] func(ctx context.Context, state *S) error

// ══════════════════════════════════════════════════════════════════════════════
// GRAPH BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// Graph collects nodes and edges before compilation. The first build error
// is kept and reported by Compile.
type Graph[S any] struct {
	nodes map[string]NodeFunc[S]
	order []string
	edges map[string]string
	entry string
	err   error
}

// New creates an empty graph.
func New[S any]() *Graph[S] {
	return &Graph[S]{
		nodes: make(map[string]NodeFunc[S]),
		edges: make(map[string]string),
	}
}

// AddNode registers a stage under name.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	if g.err != nil {
		return g
	}
	if name == "" || name == End || fn == nil {
		g.err = fmt.Errorf("workflow: invalid node %q", name)
		return g
	}
	if _, ok := g.nodes[name]; ok {
		g.err = fmt.Errorf("%w: %s", ErrDuplicateNode, name)
		return g
	}
	g.nodes[name] = fn
	g.order = append(g.order, name)
	return g
}

// AddEdge connects from to to. Each node has at most one outgoing edge.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	if g.err != nil {
		return g
	}
	if _, ok := g.edges[from]; ok {
		g.err = fmt.Errorf("%w: %s", ErrDuplicateEdge, from)
		return g
	}
	g.edges[from] = to
	return g
}

// SetEntry sets the first node.
func (g *Graph[S]) SetEntry(name string) *Graph[S] {
	if g.err == nil {
		g.entry = name
	}
	return g
}

// Option configures a compiled Runnable.
type Option func(*options)

type options struct {
	maxSteps int
	logger   *slog.Logger
}

// WithMaxSteps overrides DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithLogger sets the logger used for step tracing.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Compile validates the graph: every edge names a known node, every node is
// reachable from the entry and the walk from the entry ends at End.
func (g *Graph[S]) Compile(opts ...Option) (*Runnable[S], error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.entry == "" {
		return nil, ErrNoEntry
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("%w: entry %s", ErrUnknownNode, g.entry)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, from)
		}
		if _, ok := g.nodes[to]; !ok && to != End {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, to)
		}
	}

	path := make([]string, 0, len(g.nodes))
	seen := make(map[string]bool, len(g.nodes))
	for cur := g.entry; cur != End; {
		if seen[cur] {
			return nil, fmt.Errorf("%w: cycle at %s", ErrNoTerminal, cur)
		}
		seen[cur] = true
		path = append(path, cur)
		next, ok := g.edges[cur]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no outgoing edge", ErrNoTerminal, cur)
		}
		cur = next
	}
	for _, name := range g.order {
		if !seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrUnreachable, name)
		}
	}

	o := options{maxSteps: DefaultMaxSteps, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	nodes := make(map[string]NodeFunc[S], len(g.nodes))
	for k, v := range g.nodes {
		nodes[k] = v
	}
	return &Runnable[S]{nodes: nodes, path: path, opts: o}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNNABLE
// ══════════════════════════════════════════════════════════════════════════════

// Runnable is an immutable compiled graph, safe for concurrent Invoke calls
// on distinct states.
type Runnable[S any] struct {
	nodes map[string]NodeFunc[S]
	path  []string
	opts  options
}

// Steps returns the node names in execution order.
func (r *Runnable[S]) Steps() []string {
	return append([]string(nil), r.path...)
}

// Invoke runs every stage against state. A failing or panicking stage stops
// the walk and is reported as shared.ErrWorkflowFailed naming the stage.
func (r *Runnable[S]) Invoke(ctx context.Context, state *S) error {
	if state == nil {
		return shared.NewDomainError("workflow", "Invoke", shared.ErrWorkflowFailed, "nil state")
	}
	if len(r.path) > r.opts.maxSteps {
		return shared.WrapError("workflow", "Invoke", shared.ErrWorkflowFailed, "graph too long", ErrStepLimit)
	}
	for _, step := range r.path {
		if err := ctx.Err(); err != nil {
			return shared.WrapError("workflow", step, shared.ErrWorkflowFailed, "cancelled", err)
		}
		r.opts.logger.Debug("workflow step", "step", step)
		if err := r.run(ctx, step, state); err != nil {
			return shared.WrapError("workflow", step, shared.ErrWorkflowFailed, "step failed", err)
		}
	}
	return nil
}

func (r *Runnable[S]) run(ctx context.Context, step string, state *S) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.logger.Error("workflow step panicked",
				"step", step, "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.nodes[step](ctx, state)
}
