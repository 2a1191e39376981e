package graph

import (
	"context"

	"github.com/chainkit/chainkit/errors"
	"github.com/chainkit/chainkit/stream"
	"github.com/chainkit/chainkit/unit"
)

// UnitConfig configures how a graph maps onto the unit contract.
type UnitConfig[I, O any] struct {
	// Name is the resulting unit's name; the graph name when empty.
	Name string
	// InputFn writes the input into state before execution.
	InputFn func(input I, state *State)
	// OutputFn reads the output from state after execution.
	OutputFn func(state *State) (O, error)
	// StreamNode names the terminal node whose output is streamed.
	// When empty, Stream yields the whole Invoke result as one chunk.
	StreamNode string
}

// AsUnit wraps a graph execution as a unit, so whole pipelines compose
// into larger pipelines and take middleware like any other unit. Each
// invocation runs on a fresh state.
func AsUnit[I, O any](engine *Engine, g *Graph, cfg UnitConfig[I, O]) unit.Unit[I, O] {
	name := cfg.Name
	if name == "" {
		name = g.Name
	}
	return &graphUnit[I, O]{name: name, engine: engine, graph: g, cfg: cfg}
}

type graphUnit[I, O any] struct {
	name   string
	engine *Engine
	graph  *Graph
	cfg    UnitConfig[I, O]
}

func (u *graphUnit[I, O]) Name() string { return u.name }

func (u *graphUnit[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	var zero O
	state := NewState()
	u.cfg.InputFn(input, state)

	if _, err := u.engine.Run(ctx, u.graph, state); err != nil {
		return zero, err
	}

	return u.cfg.OutputFn(state)
}

// Stream runs every node upstream of the terminal node to completion,
// then streams the terminal node itself. Each chunk lands on the
// terminal node's output port before OutputFn projects it, so chunks
// carry the unit's output type.
func (u *graphUnit[I, O]) Stream(ctx context.Context, input I) (stream.Iterator[O], error) {
	if u.cfg.StreamNode == "" {
		out, err := u.Invoke(ctx, input)
		if err != nil {
			return nil, err
		}
		return stream.Single(out), nil
	}

	terminal, ok := u.graph.Nodes[u.cfg.StreamNode]
	if !ok {
		return nil, errors.NewComposition(u.graph.Name, "stream node not in graph", u.cfg.StreamNode)
	}

	state := NewState()
	u.cfg.InputFn(input, state)

	upstream := func(name string, _ *State) bool {
		return name != u.cfg.StreamNode
	}
	if _, err := u.engine.RunFiltered(ctx, u.graph, state, upstream); err != nil {
		return nil, err
	}

	sn, streams := terminal.(StreamerNode)
	if !streams {
		if _, err := terminal.Run(ctx, state); err != nil {
			return nil, errors.AtStage(err, u.graph.Name, terminal.Name())
		}
		out, err := u.cfg.OutputFn(state)
		if err != nil {
			return nil, err
		}
		return stream.Single(out), nil
	}

	inner, err := sn.RunStream(ctx, state)
	if err != nil {
		return nil, errors.AtStage(err, u.graph.Name, terminal.Name())
	}

	return stream.FromFunc(func(ctx context.Context) (O, bool, error) {
		var zero O
		_, more, err := inner.Next(ctx)
		if err != nil {
			return zero, false, errors.AtStage(err, u.graph.Name, terminal.Name())
		}
		if !more {
			return zero, false, nil
		}
		out, err := u.cfg.OutputFn(state)
		if err != nil {
			return zero, false, err
		}
		return out, true, nil
	}, inner.Close), nil
}
