package graph

import (
	"context"

	"github.com/chainkit/chainkit/stream"
	"github.com/chainkit/chainkit/unit"
)

// Node is the execution step in a graph. It reads its inputs from
// shared state and writes its result back.
type Node interface {
	Name() string
	Run(ctx context.Context, state *State) (any, error)
}

// NodeFunc adapts a function to the Node interface.
func NodeFunc(name string, fn func(ctx context.Context, state *State) (any, error)) Node {
	return &funcNode{name: name, fn: fn}
}

type funcNode struct {
	name string
	fn   func(ctx context.Context, state *State) (any, error)
}

func (n *funcNode) Name() string { return n.name }

func (n *funcNode) Run(ctx context.Context, state *State) (any, error) {
	return n.fn(ctx, state)
}

// NodeConfig configures a unit-backed node.
type NodeConfig[I, O any] struct {
	// Name is the unique node identifier in the graph.
	Name string
	// Unit is the unit to invoke.
	Unit unit.Unit[I, O]
	// Extract reads the node's input from state.
	Extract func(state *State) (I, error)
	// Output is the port where the result is written.
	Output Port[O]
}

// FromUnit bridges a unit into a graph Node. The unit's own middleware
// stack still applies; the node only adds state plumbing.
func FromUnit[I, O any](cfg NodeConfig[I, O]) Node {
	return &unitNode[I, O]{cfg: cfg}
}

type unitNode[I, O any] struct {
	cfg NodeConfig[I, O]
}

func (n *unitNode[I, O]) Name() string { return n.cfg.Name }

func (n *unitNode[I, O]) Run(ctx context.Context, state *State) (any, error) {
	input, err := n.cfg.Extract(state)
	if err != nil {
		return nil, err
	}

	output, err := n.cfg.Unit.Invoke(ctx, input)
	if err != nil {
		return nil, err
	}

	Write(state, n.cfg.Output, output)
	return output, nil
}

// StreamerNode is a Node whose computation can yield its result
// incrementally. Each chunk is written to the node's output port before
// it is returned, so state readers always see the latest chunk.
type StreamerNode interface {
	Node
	RunStream(ctx context.Context, state *State) (stream.Iterator[any], error)
}

func (n *unitNode[I, O]) RunStream(ctx context.Context, state *State) (stream.Iterator[any], error) {
	input, err := n.cfg.Extract(state)
	if err != nil {
		return nil, err
	}

	inner, err := unit.Stream(ctx, n.cfg.Unit, input)
	if err != nil {
		return nil, err
	}

	return stream.FromFunc(func(ctx context.Context) (any, bool, error) {
		chunk, ok, err := inner.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		Write(state, n.cfg.Output, chunk)
		return chunk, true, nil
	}, inner.Close), nil
}

// InputPort builds an Extract that reads a single port.
func InputPort[T any](port Port[T]) func(state *State) (T, error) {
	return func(state *State) (T, error) {
		return Read(state, port)
	}
}
