package graph

import (
	"context"
	"sync"
	"time"

	"github.com/chainkit/chainkit/callback"
	"github.com/chainkit/chainkit/errors"
	"github.com/chainkit/chainkit/logger"
)

// Engine executes a graph in dependency order. Nodes within a level run
// concurrently; a failed node halts every level after its own.
type Engine struct {
	// MaxConcurrency limits concurrent nodes per level (0 = unlimited).
	MaxConcurrency int
	// Bus receives node lifecycle events; nil disables them.
	Bus *callback.Bus
	// Log receives node execution logs; nil uses the global logger.
	Log *logger.Logger
}

// NodeFilter returns true if a node should execute in this cycle.
type NodeFilter func(nodeName string, state *State) bool

// Run executes all nodes in dependency order, one-shot.
func (e *Engine) Run(ctx context.Context, g *Graph, state *State) (*Result, error) {
	return e.run(ctx, g, state, nil)
}

// RunFiltered executes only nodes that pass the filter; the rest are
// marked skipped. Used by streaming sessions that cycle over a graph.
func (e *Engine) RunFiltered(ctx context.Context, g *Graph, state *State, filter NodeFilter) (*Result, error) {
	return e.run(ctx, g, state, filter)
}

func (e *Engine) run(ctx context.Context, g *Graph, state *State, filter NodeFilter) (*Result, error) {
	start := time.Now()

	levels, err := BuildLevels(g)
	if err != nil {
		return nil, err
	}

	ctx, err = e.descend(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Graph:       g.Name,
		NodeResults: make(map[string]NodeResult),
	}

	for levelIdx, level := range levels {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, errors.Canceled(g.Name, err)
		}

		var toRun []string
		for _, name := range level {
			if filter != nil && !filter(name, state) {
				result.NodeResults[name] = NodeResult{Name: name, Status: StatusSkipped}
				continue
			}
			toRun = append(toRun, name)
		}
		if len(toRun) == 0 {
			continue
		}

		e.runLevel(ctx, g, state, toRun, result)

		if firstErr := result.firstError(toRun); firstErr != nil {
			e.skipRemaining(levels[levelIdx+1:], result)
			result.Duration = time.Since(start)
			return result, firstErr
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// descend enters one pipeline nesting level on the context's run,
// enforcing the run's depth budget.
func (e *Engine) descend(ctx context.Context) (context.Context, error) {
	ctx, run := callback.EnsureRun(ctx)
	child, err := run.Descend()
	if err != nil {
		return ctx, err
	}
	return callback.WithRun(ctx, child), nil
}

func (e *Engine) runLevel(ctx context.Context, g *Graph, state *State, names []string, result *Result) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.concurrency(len(names)))

	for _, name := range names {
		wg.Add(1)
		go func(nodeName string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// A slot freed after cancellation must not start new work.
			if err := ctx.Err(); err != nil {
				mu.Lock()
				result.NodeResults[nodeName] = NodeResult{
					Name:   nodeName,
					Status: StatusFailed,
					Error:  errors.Canceled(nodeName, err),
				}
				mu.Unlock()
				return
			}

			nr := e.runNode(ctx, g, g.Nodes[nodeName], state)
			mu.Lock()
			result.NodeResults[nodeName] = nr
			mu.Unlock()
		}(name)
	}

	wg.Wait()
}

func (e *Engine) runNode(ctx context.Context, g *Graph, node Node, state *State) NodeResult {
	log := e.log().WithContext(ctx)

	e.emit(ctx, callback.Event{
		Type:  callback.UnitStart,
		Unit:  node.Name(),
		Graph: g.Name,
		Node:  node.Name(),
	})

	start := time.Now()
	output, err := node.Run(ctx, state)
	duration := time.Since(start)

	if err != nil {
		err = errors.AtStage(err, g.Name, node.Name())
		e.emit(ctx, callback.Event{
			Type:  callback.UnitError,
			Unit:  node.Name(),
			Graph: g.Name,
			Node:  node.Name(),
			Err:   err,
		})
		log.Error("node failed", map[string]interface{}{
			logger.FieldGraph:    g.Name,
			logger.FieldNode:     node.Name(),
			logger.FieldDuration: duration.String(),
			logger.FieldError:    err.Error(),
		})
		return NodeResult{
			Name:     node.Name(),
			Status:   StatusFailed,
			Duration: duration,
			Error:    err,
		}
	}

	e.emit(ctx, callback.Event{
		Type:   callback.UnitEnd,
		Unit:   node.Name(),
		Graph:  g.Name,
		Node:   node.Name(),
		Output: output,
	})
	log.Debug("node completed", map[string]interface{}{
		logger.FieldGraph:    g.Name,
		logger.FieldNode:     node.Name(),
		logger.FieldDuration: duration.String(),
	})

	return NodeResult{
		Name:     node.Name(),
		Status:   StatusCompleted,
		Duration: duration,
		Output:   output,
	}
}

func (e *Engine) skipRemaining(levels [][]string, result *Result) {
	for _, level := range levels {
		for _, name := range level {
			result.NodeResults[name] = NodeResult{Name: name, Status: StatusSkipped}
		}
	}
}

func (e *Engine) emit(ctx context.Context, event callback.Event) {
	if e.Bus != nil {
		e.Bus.Emit(ctx, event)
	}
}

func (e *Engine) log() *logger.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logger.GetGlobalLogger()
}

func (e *Engine) concurrency(levelSize int) int {
	if e.MaxConcurrency <= 0 || e.MaxConcurrency > levelSize {
		return levelSize
	}
	return e.MaxConcurrency
}
