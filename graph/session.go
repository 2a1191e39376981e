package graph

import (
	"context"
	"sync"
	"time"

	"github.com/chainkit/chainkit/errors"
)

// ConditionFunc evaluates whether a node should run based on state.
type ConditionFunc func(state *State) bool

// Session binds a streaming pipeline to per-session state and schedule
// bookkeeping. Streaming pipelines re-execute their graph as input
// accumulates; the session decides per cycle which nodes are due and
// drives the engine with the rest skipped. State survives across
// cycles, so nodes see everything earlier cycles produced.
type Session struct {
	// ID is the session identifier.
	ID string
	// State is shared across execution cycles.
	State *State

	engine     *Engine
	graph      *Graph
	defs       map[string]NodeDef
	conditions map[string]ConditionFunc

	mu     sync.Mutex
	clocks map[string]*nodeClock
}

// nodeClock tracks one scheduled node's cadence within a session.
type nodeClock struct {
	firstSeen time.Time
	lastRun   time.Time
}

// NewSession creates a session running def's pipeline on the given
// engine and resolved graph. Conditions maps the definition's named
// condition keys to their implementations; unknown keys never gate.
func NewSession(id string, engine *Engine, g *Graph, def *PipelineDef, conditions map[string]ConditionFunc) *Session {
	defs := make(map[string]NodeDef, len(def.Nodes))
	for _, nd := range def.Nodes {
		defs[nd.Component] = nd
	}
	return &Session{
		ID:         id,
		State:      NewState(),
		engine:     engine,
		graph:      g,
		defs:       defs,
		conditions: conditions,
		clocks:     make(map[string]*nodeClock),
	}
}

// Cycle executes one pass of the pipeline: nodes whose schedule and
// condition are due run in dependency order, the rest are skipped and
// retried on a later cycle.
func (s *Session) Cycle(ctx context.Context) (*Result, error) {
	return s.engine.RunFiltered(ctx, s.graph, s.State, s.ready)
}

// Run cycles the pipeline on the given cadence until the context ends
// or a cycle fails. Cancellation is the clean way out; it surfaces as a
// CANCELED error.
func (s *Session) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		if _, err := s.Cycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Canceled("session "+s.ID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ready reports whether a node is due this cycle. A node with no
// definition entry or no schedule runs every cycle its condition holds;
// a scheduled node waits out its min_buffer once, then its interval
// between runs.
func (s *Session) ready(name string, state *State) bool {
	nd, ok := s.defs[name]
	if !ok {
		return true
	}

	if nd.Condition != "" {
		if cond, exists := s.conditions[nd.Condition]; exists && !cond(state) {
			return false
		}
	}

	if nd.Schedule == nil {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	clk := s.clocks[name]
	if clk == nil {
		clk = &nodeClock{firstSeen: now}
		s.clocks[name] = clk
	}

	if nd.Schedule.MinBuffer > 0 && now.Sub(clk.firstSeen) < nd.Schedule.MinBuffer {
		return false
	}
	if nd.Schedule.Interval > 0 && !clk.lastRun.IsZero() && now.Sub(clk.lastRun) < nd.Schedule.Interval {
		return false
	}

	clk.lastRun = now
	return true
}
