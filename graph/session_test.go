package graph

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chainkit/chainkit/errors"
)

func countingNode(name string, count *atomic.Int64) Node {
	return NodeFunc(name, func(ctx context.Context, state *State) (any, error) {
		return count.Add(1), nil
	})
}

func TestSession_CycleHonorsInterval(t *testing.T) {
	var ingests, summaries atomic.Int64
	g := buildGraph(t,
		[]Node{countingNode("ingest", &ingests), countingNode("summarize", &summaries)},
		[]Edge{{From: "ingest", To: "summarize"}},
	)
	def := &PipelineDef{Name: "p", Mode: "streaming", Nodes: []NodeDef{
		{Component: "ingest"},
		{Component: "summarize", DependsOn: []string{"ingest"}, Schedule: &ScheduleConfig{Interval: time.Hour}},
	}}

	s := NewSession("s1", &Engine{}, g, def, nil)

	result, err := s.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if result.NodeResults["summarize"].Status != StatusCompleted {
		t.Fatal("first cycle should run the scheduled node")
	}

	result, err = s.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if result.NodeResults["summarize"].Status != StatusSkipped {
		t.Error("second cycle within the interval should skip the scheduled node")
	}
	if ingests.Load() != 2 || summaries.Load() != 1 {
		t.Errorf("ingest/summarize runs = %d/%d, want 2/1", ingests.Load(), summaries.Load())
	}
}

func TestSession_CycleHonorsMinBuffer(t *testing.T) {
	var runs atomic.Int64
	g := buildGraph(t, []Node{countingNode("summarize", &runs)}, nil)
	def := &PipelineDef{Name: "p", Mode: "streaming", Nodes: []NodeDef{
		{Component: "summarize", Schedule: &ScheduleConfig{MinBuffer: time.Hour}},
	}}

	s := NewSession("s1", &Engine{}, g, def, nil)
	for range 2 {
		if _, err := s.Cycle(context.Background()); err != nil {
			t.Fatalf("Cycle() error = %v", err)
		}
	}
	if runs.Load() != 0 {
		t.Errorf("runs = %d, want 0 while the buffer period holds", runs.Load())
	}
}

func TestSession_CycleHonorsCondition(t *testing.T) {
	var runs atomic.Int64
	g := buildGraph(t, []Node{countingNode("summarize", &runs)}, nil)
	def := &PipelineDef{Name: "p", Mode: "streaming", Nodes: []NodeDef{
		{Component: "summarize", Condition: "has_data"},
	}}
	conditions := map[string]ConditionFunc{
		"has_data": func(state *State) bool {
			_, ok := state.Get("data")
			return ok
		},
	}

	s := NewSession("s1", &Engine{}, g, def, conditions)

	if _, err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if runs.Load() != 0 {
		t.Fatal("node ran before its condition held")
	}

	s.State.Set("data", "chunk")
	if _, err := s.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle() error = %v", err)
	}
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1 once the condition holds", runs.Load())
	}
}

func TestSession_StatePersistsAcrossCycles(t *testing.T) {
	counter := Port[int]{Key: "count"}
	g := buildGraph(t, []Node{NodeFunc("accumulate", func(ctx context.Context, state *State) (any, error) {
		n, _ := Read(state, counter)
		Write(state, counter, n+1)
		return n + 1, nil
	})}, nil)
	def := &PipelineDef{Name: "p", Mode: "streaming", Nodes: []NodeDef{{Component: "accumulate"}}}

	s := NewSession("s1", &Engine{}, g, def, nil)
	for range 3 {
		if _, err := s.Cycle(context.Background()); err != nil {
			t.Fatalf("Cycle() error = %v", err)
		}
	}
	if got, err := Read(s.State, counter); err != nil || got != 3 {
		t.Errorf("count = %d, %v; want 3", got, err)
	}
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	var runs atomic.Int64
	g := buildGraph(t, []Node{countingNode("ingest", &runs)}, nil)
	def := &PipelineDef{Name: "p", Mode: "streaming", Nodes: []NodeDef{{Component: "ingest"}}}

	s := NewSession("s1", &Engine{}, g, def, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.IsCanceled(err) {
			t.Errorf("Run() error = %v, want cancellation", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
	if runs.Load() == 0 {
		t.Error("expected at least one cycle before cancel")
	}
}
