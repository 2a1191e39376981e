package graph

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/chainkit/chainkit/callback"
	"github.com/chainkit/chainkit/errors"
	"github.com/chainkit/chainkit/stream"
	"github.com/chainkit/chainkit/unit"
)

// --- test helpers ---

func newTestNode(name string, fn func(ctx context.Context, state *State) (any, error)) Node {
	if fn == nil {
		fn = func(ctx context.Context, state *State) (any, error) { return name, nil }
	}
	return NodeFunc(name, fn)
}

func buildGraph(t *testing.T, nodes []Node, edges []Edge) *Graph {
	t.Helper()
	g := New("test")
	for _, n := range nodes {
		if err := g.Add(n); err != nil {
			t.Fatalf("Add(%s) error = %v", n.Name(), err)
		}
	}
	for _, e := range edges {
		g.Connect(e.From, e.To)
	}
	return g
}

// --- State tests ---

func TestState_GetSet(t *testing.T) {
	s := NewState()
	s.Set("key", "value")
	v, ok := s.Get("key")
	if !ok || v != "value" {
		t.Fatalf("expected 'value', got %v (ok=%v)", v, ok)
	}
}

func TestState_Missing(t *testing.T) {
	s := NewState()
	if _, ok := s.Get("missing"); ok {
		t.Fatal("expected missing key")
	}
}

func TestPort_ReadWrite(t *testing.T) {
	s := NewState()
	port := Port[int]{Key: "count"}
	Write(s, port, 42)

	val, err := Read(s, port)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Fatalf("expected 42, got %d", val)
	}
}

func TestPort_MissingKey(t *testing.T) {
	s := NewState()
	_, err := Read(s, Port[int]{Key: "missing"})
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	ue, ok := errors.AsUnitError(err)
	if !ok || ue.Code != errors.ErrCodeInvalidInput {
		t.Errorf("error = %v, want INVALID_INPUT", err)
	}
}

func TestPort_TypeMismatch(t *testing.T) {
	s := NewState()
	s.Set("key", "not-an-int")
	if _, err := Read(s, Port[int]{Key: "key"}); err == nil {
		t.Fatal("expected error for type mismatch")
	}
}

// --- BuildLevels tests ---

func TestBuildLevels_Linear(t *testing.T) {
	g := buildGraph(t,
		[]Node{newTestNode("a", nil), newTestNode("b", nil), newTestNode("c", nil)},
		[]Edge{{From: "a", To: "b"}, {From: "b", To: "c"}},
	)

	levels, err := BuildLevels(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}
	for i, want := range []string{"a", "b", "c"} {
		if len(levels[i]) != 1 || levels[i][0] != want {
			t.Errorf("level %d = %v, want [%s]", i, levels[i], want)
		}
	}
}

func TestBuildLevels_Diamond(t *testing.T) {
	g := buildGraph(t,
		[]Node{newTestNode("a", nil), newTestNode("b", nil), newTestNode("c", nil), newTestNode("d", nil)},
		[]Edge{{From: "a", To: "b"}, {From: "a", To: "c"}, {From: "b", To: "d"}, {From: "c", To: "d"}},
	)

	levels, err := BuildLevels(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}
	if len(levels[1]) != 2 {
		t.Errorf("middle level = %v, want two nodes", levels[1])
	}
}

func TestBuildLevels_DeterministicOrder(t *testing.T) {
	// Parallel nodes keep insertion order within their level.
	g := buildGraph(t,
		[]Node{newTestNode("z", nil), newTestNode("m", nil), newTestNode("a", nil)},
		nil,
	)

	for range 5 {
		levels, err := BuildLevels(g)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(levels) != 1 {
			t.Fatalf("expected 1 level, got %d", len(levels))
		}
		want := []string{"z", "m", "a"}
		for i, name := range want {
			if levels[0][i] != name {
				t.Fatalf("level order = %v, want %v", levels[0], want)
			}
		}
	}
}

func TestBuildLevels_Cycle(t *testing.T) {
	g := buildGraph(t,
		[]Node{newTestNode("a", nil), newTestNode("b", nil)},
		[]Edge{{From: "a", To: "b"}, {From: "b", To: "a"}},
	)

	_, err := BuildLevels(g)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	var ce *errors.CompositionError
	if !stderrors.As(err, &ce) {
		t.Fatalf("error = %v, want CompositionError", err)
	}
	if len(ce.Nodes) != 2 {
		t.Errorf("Nodes = %v, want both cycle members", ce.Nodes)
	}
}

func TestBuildLevels_UnknownEdgeNode(t *testing.T) {
	g := buildGraph(t, []Node{newTestNode("a", nil)}, []Edge{{From: "a", To: "ghost"}})

	_, err := BuildLevels(g)
	var ce *errors.CompositionError
	if !stderrors.As(err, &ce) {
		t.Fatalf("error = %v, want CompositionError", err)
	}
}

func TestGraph_DuplicateNode(t *testing.T) {
	g := New("test")
	if err := g.Add(newTestNode("a", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.Add(newTestNode("a", nil))
	var ce *errors.CompositionError
	if !stderrors.As(err, &ce) {
		t.Fatalf("error = %v, want CompositionError", err)
	}
}

// --- Engine tests ---

func TestEngine_RunLinear(t *testing.T) {
	out := Port[string]{Key: "out"}
	g := buildGraph(t,
		[]Node{
			newTestNode("produce", func(ctx context.Context, s *State) (any, error) {
				Write(s, out, "hello")
				return "hello", nil
			}),
			newTestNode("consume", func(ctx context.Context, s *State) (any, error) {
				v, err := Read(s, out)
				if err != nil {
					return nil, err
				}
				return v + "!", nil
			}),
		},
		[]Edge{{From: "produce", To: "consume"}},
	)

	engine := &Engine{}
	result, err := engine.Run(context.Background(), g, NewState())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.NodeResults["consume"].Output != "hello!" {
		t.Errorf("consume output = %v, want hello!", result.NodeResults["consume"].Output)
	}
	for _, name := range []string{"produce", "consume"} {
		if result.NodeResults[name].Status != StatusCompleted {
			t.Errorf("%s status = %s, want completed", name, result.NodeResults[name].Status)
		}
	}
}

func TestEngine_ParallelLevel(t *testing.T) {
	var running, peak atomic.Int32
	slowNode := func(name string) Node {
		return newTestNode(name, func(ctx context.Context, s *State) (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return name, nil
		})
	}

	g := buildGraph(t, []Node{slowNode("a"), slowNode("b"), slowNode("c"), slowNode("d")}, nil)

	engine := &Engine{}
	if _, err := engine.Run(context.Background(), g, NewState()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak.Load() < 2 {
		t.Errorf("peak parallelism = %d, want at least 2", peak.Load())
	}
}

func TestEngine_ConcurrencyCap(t *testing.T) {
	var running, peak atomic.Int32
	node := func(name string) Node {
		return newTestNode(name, func(ctx context.Context, s *State) (any, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil, nil
		})
	}

	var nodes []Node
	for i := range 8 {
		nodes = append(nodes, node(fmt.Sprintf("n%d", i)))
	}
	g := buildGraph(t, nodes, nil)

	engine := &Engine{MaxConcurrency: 2}
	if _, err := engine.Run(context.Background(), g, NewState()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak parallelism = %d, want at most 2", peak.Load())
	}
}

func TestEngine_FailureHaltsDownstream(t *testing.T) {
	downstream := false
	g := buildGraph(t,
		[]Node{
			newTestNode("broken", func(ctx context.Context, s *State) (any, error) {
				return nil, errors.Failed("broken", errBoom)
			}),
			newTestNode("after", func(ctx context.Context, s *State) (any, error) {
				downstream = true
				return nil, nil
			}),
		},
		[]Edge{{From: "broken", To: "after"}},
	)

	engine := &Engine{}
	result, err := engine.Run(context.Background(), g, NewState())
	if err == nil {
		t.Fatal("Run() want error, got nil")
	}
	if downstream {
		t.Error("downstream node ran after upstream failure")
	}
	if result.NodeResults["after"].Status != StatusSkipped {
		t.Errorf("after status = %s, want skipped", result.NodeResults["after"].Status)
	}

	var se *errors.StageError
	if !stderrors.As(err, &se) {
		t.Fatalf("error = %v, want StageError", err)
	}
	if se.Graph != "test" || se.Node != "broken" {
		t.Errorf("stage = %s/%s, want test/broken", se.Graph, se.Node)
	}
	if !stderrors.Is(err, errBoom) {
		t.Error("stage error lost the cause")
	}
}

func TestEngine_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := buildGraph(t,
		[]Node{
			newTestNode("first", func(ctx context.Context, s *State) (any, error) {
				cancel()
				return nil, nil
			}),
			newTestNode("second", func(ctx context.Context, s *State) (any, error) {
				t.Error("second ran after cancellation")
				return nil, nil
			}),
		},
		[]Edge{{From: "first", To: "second"}},
	)

	engine := &Engine{}
	_, err := engine.Run(ctx, g, NewState())
	if err == nil {
		t.Fatal("Run() want error, got nil")
	}
	if !errors.IsCanceled(err) {
		t.Errorf("error = %v, want cancellation", err)
	}
}

func TestEngine_DepthLimit(t *testing.T) {
	g := buildGraph(t, []Node{newTestNode("a", nil)}, nil)
	engine := &Engine{}

	run := callback.NewRun(callback.WithMaxDepth(1))
	ctx := callback.WithRun(context.Background(), run)

	// First nesting level is allowed.
	if _, err := engine.Run(ctx, g, NewState()); err != nil {
		t.Fatalf("Run() at depth 1 error = %v", err)
	}

	// A pipeline inside a pipeline exceeds MaxDepth=1.
	inner := AsUnit(engine, g, UnitConfig[string, string]{
		InputFn:  func(in string, s *State) {},
		OutputFn: func(s *State) (string, error) { return "", nil },
	})
	outer := buildGraph(t, []Node{FromUnit(NodeConfig[string, string]{
		Name: "nested",
		Unit: inner,
		Extract: func(s *State) (string, error) {
			return "", nil
		},
		Output: Port[string]{Key: "nested_out"},
	})}, nil)

	_, err := engine.Run(ctx, outer, NewState())
	if err == nil {
		t.Fatal("nested Run() want depth error, got nil")
	}
	ue, ok := errors.AsUnitError(err)
	if !ok || ue.Code != errors.ErrCodeLimitExceeded {
		t.Errorf("error = %v, want LIMIT_EXCEEDED", err)
	}
}

func TestEngine_EmitsNodeEvents(t *testing.T) {
	collect := callback.NewCollectHandler()
	bus := callback.NewBus([]callback.Handler{collect})

	g := buildGraph(t, []Node{newTestNode("a", nil)}, nil)
	engine := &Engine{Bus: bus}

	if _, err := engine.Run(context.Background(), g, NewState()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	events := collect.All()
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Type != callback.UnitStart || events[1].Type != callback.UnitEnd {
		t.Errorf("event types = %v, %v", events[0].Type, events[1].Type)
	}
	if events[0].Graph != "test" || events[0].Node != "a" {
		t.Errorf("event position = %s/%s, want test/a", events[0].Graph, events[0].Node)
	}
}

func TestEngine_RunFiltered(t *testing.T) {
	ran := map[string]bool{}
	g := buildGraph(t,
		[]Node{
			newTestNode("keep", func(ctx context.Context, s *State) (any, error) {
				ran["keep"] = true
				return nil, nil
			}),
			newTestNode("skip", func(ctx context.Context, s *State) (any, error) {
				ran["skip"] = true
				return nil, nil
			}),
		},
		nil,
	)

	engine := &Engine{}
	result, err := engine.RunFiltered(context.Background(), g, NewState(), func(name string, s *State) bool {
		return name == "keep"
	})
	if err != nil {
		t.Fatalf("RunFiltered() error = %v", err)
	}
	if !ran["keep"] || ran["skip"] {
		t.Errorf("ran = %v, want only keep", ran)
	}
	if result.NodeResults["skip"].Status != StatusSkipped {
		t.Errorf("skip status = %s, want skipped", result.NodeResults["skip"].Status)
	}
}

// --- FromUnit / AsUnit tests ---

func TestFromUnit_StatePlumbing(t *testing.T) {
	in := Port[int]{Key: "in"}
	out := Port[int]{Key: "out"}

	double := unit.Func("double", func(ctx context.Context, n int) (int, error) {
		return n * 2, nil
	})
	node := FromUnit(NodeConfig[int, int]{
		Name:    "double",
		Unit:    double,
		Extract: InputPort(in),
		Output:  out,
	})

	state := NewState()
	Write(state, in, 21)

	if _, err := node.Run(context.Background(), state); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got, err := Read(state, out)
	if err != nil || got != 42 {
		t.Errorf("out = %d, %v; want 42", got, err)
	}
}

func TestAsUnit_RoundTrip(t *testing.T) {
	in := Port[int]{Key: "in"}
	out := Port[int]{Key: "out"}

	g := New("square")
	err := g.Add(FromUnit(NodeConfig[int, int]{
		Name: "square",
		Unit: unit.Func("square", func(ctx context.Context, n int) (int, error) {
			return n * n, nil
		}),
		Extract: InputPort(in),
		Output:  out,
	}))
	if err != nil {
		t.Fatal(err)
	}

	u := AsUnit(&Engine{}, g, UnitConfig[int, int]{
		InputFn:  func(n int, s *State) { Write(s, in, n) },
		OutputFn: func(s *State) (int, error) { return Read(s, out) },
	})

	if u.Name() != "square" {
		t.Errorf("Name() = %q, want square", u.Name())
	}
	got, err := u.Invoke(context.Background(), 7)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != 49 {
		t.Errorf("Invoke() = %d, want 49", got)
	}

	// Fresh state per invocation.
	got, err = u.Invoke(context.Background(), 3)
	if err != nil || got != 9 {
		t.Errorf("second Invoke() = %d, %v; want 9", got, err)
	}
}

func TestAsUnit_StreamsTerminalNode(t *testing.T) {
	promptPort := Port[string]{Key: "prompt"}
	textPort := Port[string]{Key: "text"}

	g := New("chat")
	if err := g.Add(FromUnit(NodeConfig[string, string]{
		Name: "format",
		Unit: unit.Func("format", func(ctx context.Context, topic string) (string, error) {
			return "say " + topic, nil
		}),
		Extract: InputPort(promptPort),
		Output:  promptPort,
	})); err != nil {
		t.Fatal(err)
	}
	if err := g.Add(FromUnit(NodeConfig[string, string]{
		Name: "generate",
		Unit: unit.StreamFunc("generate",
			func(ctx context.Context, prompt string) (string, error) {
				return "Hello", nil
			},
			func(ctx context.Context, prompt string) (stream.Iterator[string], error) {
				return stream.FromSlice([]string{"Hel", "lo"}), nil
			},
		),
		Extract: InputPort(promptPort),
		Output:  textPort,
	})); err != nil {
		t.Fatal(err)
	}
	g.Connect("format", "generate")

	u := AsUnit(&Engine{}, g, UnitConfig[string, string]{
		InputFn:    func(topic string, s *State) { Write(s, promptPort, topic) },
		OutputFn:   func(s *State) (string, error) { return Read(s, textPort) },
		StreamNode: "generate",
	})

	it, err := unit.Stream(context.Background(), u, "hi")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	got, err := stream.Collect(context.Background(), it)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Hel", "lo"}, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestAsUnit_StreamWithoutStreamNode(t *testing.T) {
	in := Port[int]{Key: "in"}
	out := Port[int]{Key: "out"}

	g := New("square")
	if err := g.Add(FromUnit(NodeConfig[int, int]{
		Name: "square",
		Unit: unit.Func("square", func(ctx context.Context, n int) (int, error) {
			return n * n, nil
		}),
		Extract: InputPort(in),
		Output:  out,
	})); err != nil {
		t.Fatal(err)
	}

	u := AsUnit(&Engine{}, g, UnitConfig[int, int]{
		InputFn:  func(n int, s *State) { Write(s, in, n) },
		OutputFn: func(s *State) (int, error) { return Read(s, out) },
	})

	it, err := unit.Stream(context.Background(), u, 6)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	got, err := stream.Collect(context.Background(), it)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got) != 1 || got[0] != 36 {
		t.Errorf("chunks = %v, want [36]", got)
	}
}

func TestAsUnit_StreamUnknownNode(t *testing.T) {
	in := Port[int]{Key: "in"}

	g := New("g")
	if err := g.Add(newTestNode("a", nil)); err != nil {
		t.Fatal(err)
	}

	u := AsUnit(&Engine{}, g, UnitConfig[int, int]{
		InputFn:    func(n int, s *State) { Write(s, in, n) },
		OutputFn:   func(s *State) (int, error) { return Read(s, in) },
		StreamNode: "missing",
	})

	_, err := unit.Stream(context.Background(), u, 1)
	var ce *errors.CompositionError
	if !stderrors.As(err, &ce) {
		t.Fatalf("Stream() error = %v, want CompositionError", err)
	}
}

var errBoom = stderrors.New("boom")
