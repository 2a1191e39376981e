package graph

import (
	"context"

	"github.com/chainkit/chainkit/stream"
	"github.com/chainkit/chainkit/unit"
)

// Pipe composes two units sequentially: the output of first feeds the
// input of second. The result is itself a unit, so longer chains nest:
//
//	chain := graph.Pipe(graph.Pipe(format, model), parse)
//
// A pipe streams through its last stage: Stream materializes the first
// unit's output, then streams the second. When the second unit is a
// natural streamer its chunks flow through incrementally; otherwise the
// pipe degrades to a single final chunk.
func Pipe[A, B, C any](first unit.Unit[A, B], second unit.Unit[B, C]) unit.Unit[A, C] {
	return &pipeUnit[A, B, C]{
		name:   first.Name() + ">" + second.Name(),
		first:  first,
		second: second,
	}
}

type pipeUnit[A, B, C any] struct {
	name   string
	first  unit.Unit[A, B]
	second unit.Unit[B, C]
}

func (p *pipeUnit[A, B, C]) Name() string { return p.name }

func (p *pipeUnit[A, B, C]) Invoke(ctx context.Context, input A) (C, error) {
	mid, err := p.first.Invoke(ctx, input)
	if err != nil {
		var zero C
		return zero, err
	}
	return p.second.Invoke(ctx, mid)
}

func (p *pipeUnit[A, B, C]) Stream(ctx context.Context, input A) (stream.Iterator[C], error) {
	mid, err := p.first.Invoke(ctx, input)
	if err != nil {
		return nil, err
	}
	return unit.Stream(ctx, p.second, mid)
}
