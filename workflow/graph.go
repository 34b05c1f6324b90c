// Package workflow implements the state-driven graph engine: an explicit
// finite-state machine over named nodes, where each node transforms the
// case state and returns a typed routing decision for the next transition.
//
// The engine executes single-threaded per case. Multiple cases run
// concurrently as independent Run calls, each with exclusive ownership of its
// own state value; no locking is needed at that level.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/triagemesh/triagemesh/logging"
)

// NodeID identifies a node in the graph. Callers declare their own constants;
// the zero value is reserved for "no node".
type NodeID int

// Next is the routing decision returned by a node handler: either continue
// to a specific node or terminate the workflow. A typed decision replaces
// stringly-typed edge names so routing mistakes fail at registration or
// execution time with a precise error.
type Next struct {
	node     NodeID
	terminal bool
}

// Continue routes execution to the given node.
func Continue(id NodeID) Next { return Next{node: id} }

// Terminate ends the workflow; the final state holds the terminal payload.
func Terminate() Next { return Next{terminal: true} }

// Terminal reports whether the decision ends the workflow.
func (n Next) Terminal() bool { return n.terminal }

// Node returns the successor node of a non-terminal decision.
func (n Next) Node() NodeID { return n.node }

// Handler executes one node: it mutates the state it exclusively owns and
// returns the routing decision. Handlers performing remote invocations or
// model calls block until the call resolves and must respect ctx.
type Handler[S any] func(ctx context.Context, state S) (Next, error)

type nodeEntry[S any] struct {
	name    string
	handler Handler[S]
}

// Options configures a Graph.
type Options struct {
	// MaxSteps guards against routing cycles; a run exceeding it fails.
	MaxSteps int
	// Logger receives node transition logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Graph is the workflow state machine: a table mapping node identifiers to
// handlers, plus an entry node. It is immutable after construction and safe
// to share across concurrent Run calls.
type Graph[S any] struct {
	nodes    map[NodeID]nodeEntry[S]
	entry    NodeID
	hasEntry bool
	maxSteps int
	logger   logging.Logger
}

// New creates an empty graph.
func New[S any](optFns ...func(o *Options)) *Graph[S] {
	opts := Options{
		MaxSteps: 25,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Graph[S]{
		nodes:    make(map[NodeID]nodeEntry[S]),
		maxSteps: opts.MaxSteps,
		logger:   opts.Logger,
	}
}

// AddNode registers a handler under a node identifier. The name is used in
// logs and error messages only; routing is by identifier.
func (g *Graph[S]) AddNode(id NodeID, name string, h Handler[S]) error {
	if _, ok := g.nodes[id]; ok {
		return fmt.Errorf("node %q already registered", name)
	}
	if h == nil {
		return fmt.Errorf("node %q has nil handler", name)
	}
	g.nodes[id] = nodeEntry[S]{name: name, handler: h}
	return nil
}

// SetEntry declares the initial node.
func (g *Graph[S]) SetEntry(id NodeID) {
	g.entry = id
	g.hasEntry = true
}

// NodeName returns the registered name for a node identifier.
func (g *Graph[S]) NodeName(id NodeID) string {
	if e, ok := g.nodes[id]; ok {
		return e.name
	}
	return fmt.Sprintf("node(%d)", id)
}

// Run executes the graph against the given state until a handler terminates
// or fails. Node execution is strictly sequential along the resolved path;
// the first error aborts the run with node attribution and no partial
// terminal result is synthesized.
func (g *Graph[S]) Run(ctx context.Context, state S) error {
	if !g.hasEntry {
		return fmt.Errorf("workflow graph has no entry node")
	}
	current := g.entry
	for step := 0; step < g.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, ok := g.nodes[current]
		if !ok {
			return fmt.Errorf("workflow routed to unregistered node %d", current)
		}

		start := time.Now()
		next, err := entry.handler(ctx, state)
		if err != nil {
			g.logger.Error("node %s failed after %s: %v", entry.name, time.Since(start), err)
			return fmt.Errorf("node %s: %w", entry.name, err)
		}
		g.logger.Debug("node %s completed in %s", entry.name, time.Since(start))

		if next.Terminal() {
			return nil
		}
		current = next.Node()
	}
	return fmt.Errorf("workflow exceeded %d steps without reaching a terminal node", g.maxSteps)
}
