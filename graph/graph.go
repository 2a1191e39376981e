package graph

import (
	"sort"

	"github.com/chainkit/chainkit/errors"
)

// Graph declares named nodes and edges (dependency relationships).
type Graph struct {
	// Name identifies the graph in errors and events.
	Name  string
	Nodes map[string]Node
	Edges []Edge

	// order records node insertion order; ties within a level resolve
	// by it so execution and fan-in are deterministic.
	order []string
}

// Edge represents a dependency: To depends on From.
type Edge struct {
	From string
	To   string
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		Name:  name,
		Nodes: make(map[string]Node),
	}
}

// Add registers a node. A duplicate name is a composition error.
func (g *Graph) Add(node Node) error {
	name := node.Name()
	if _, exists := g.Nodes[name]; exists {
		return errors.NewComposition(g.Name, "duplicate node name", name)
	}
	g.Nodes[name] = node
	g.order = append(g.order, name)
	return nil
}

// Connect declares that "to" depends on "from".
func (g *Graph) Connect(from, to string) {
	g.Edges = append(g.Edges, Edge{From: from, To: to})
}

// Validate checks the graph for unknown references and cycles.
func (g *Graph) Validate() error {
	_, err := BuildLevels(g)
	return err
}

// BuildLevels groups nodes by dependency level using Kahn's algorithm.
// Nodes within the same level have no mutual dependencies and can
// execute in parallel; within a level, insertion order is preserved.
// Returns a composition error for unknown edge references or cycles.
func BuildLevels(g *Graph) ([][]string, error) {
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)

	for name := range g.Nodes {
		inDegree[name] = 0
	}

	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.From]; !ok {
			return nil, errors.NewComposition(g.Name, "edge references unknown node", e.From)
		}
		if _, ok := g.Nodes[e.To]; !ok {
			return nil, errors.NewComposition(g.Name, "edge references unknown node", e.To)
		}
		inDegree[e.To]++
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	rank := make(map[string]int, len(g.order))
	for i, name := range g.order {
		rank[name] = i
	}

	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sortByRank(queue, rank)

	var levels [][]string
	visited := 0

	for len(queue) > 0 {
		levels = append(levels, queue)
		visited += len(queue)

		var next []string
		for _, name := range queue {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sortByRank(next, rank)
		queue = next
	}

	if visited != len(g.Nodes) {
		remaining := make([]string, 0, len(g.Nodes)-visited)
		for name, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, name)
			}
		}
		sort.Strings(remaining)
		return nil, errors.NewComposition(g.Name, "cycle detected", remaining...)
	}

	return levels, nil
}

func sortByRank(names []string, rank map[string]int) {
	sort.Slice(names, func(i, j int) bool {
		ri, iOK := rank[names[i]]
		rj, jOK := rank[names[j]]
		if iOK && jOK {
			return ri < rj
		}
		return names[i] < names[j]
	})
}
