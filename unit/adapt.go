package unit

import (
	"context"

	"github.com/chainkit/chainkit/stream"
)

// Adapt wraps a Unit with input/output type transformation. This bridges
// a unit with types [BI, BO] to a composition point expecting [I, O],
// and is where type compatibility between adjacent pipeline stages is
// established explicitly instead of discovered at runtime.
//
// mapIn converts the outer input to the inner input.
// mapOut converts the inner output to the outer output.
func Adapt[I, O, BI, BO any](
	inner Unit[BI, BO],
	name string,
	mapIn func(ctx context.Context, input I) (BI, error),
	mapOut func(output BO) (O, error),
) Unit[I, O] {
	return &adaptedUnit[I, O, BI, BO]{
		inner:  inner,
		name:   name,
		mapIn:  mapIn,
		mapOut: mapOut,
	}
}

type adaptedUnit[I, O, BI, BO any] struct {
	inner  Unit[BI, BO]
	name   string
	mapIn  func(ctx context.Context, input I) (BI, error)
	mapOut func(output BO) (O, error)
}

func (a *adaptedUnit[I, O, BI, BO]) Name() string { return a.name }

func (a *adaptedUnit[I, O, BI, BO]) Invoke(ctx context.Context, input I) (O, error) {
	var zero O

	innerInput, err := a.mapIn(ctx, input)
	if err != nil {
		return zero, err
	}

	innerOutput, err := a.inner.Invoke(ctx, innerInput)
	if err != nil {
		return zero, err
	}

	return a.mapOut(innerOutput)
}

// Stream maps each chunk of the inner unit's stream through mapOut.
func (a *adaptedUnit[I, O, BI, BO]) Stream(ctx context.Context, input I) (stream.Iterator[O], error) {
	innerInput, err := a.mapIn(ctx, input)
	if err != nil {
		return nil, err
	}

	it, err := Stream(ctx, a.inner, innerInput)
	if err != nil {
		return nil, err
	}

	return stream.Map(it, a.mapOut), nil
}
