package graph

import (
	"fmt"

	"github.com/stackwave/stackctl/pkg/errors"
)

// Graph is a dependency graph over resource declarations. Insertion order
// is preserved and used to break ties, so a template always linearizes the
// same way.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(node *Node) error {
	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("node %s already exists", node.ID)
	}
	g.nodes[node.ID] = node
	g.order = append(g.order, node.ID)
	return nil
}

// GetNode returns a node by ID, or nil.
func (g *Graph) GetNode(id string) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// AddEdge adds a dependency edge from dependent to dependency.
func (g *Graph) AddEdge(dependentID, dependencyID string) error {
	dependent := g.GetNode(dependentID)
	if dependent == nil {
		return fmt.Errorf("dependent node %s not found", dependentID)
	}
	dependency := g.GetNode(dependencyID)
	if dependency == nil {
		return fmt.Errorf("dependency node %s not found", dependencyID)
	}
	dependent.AddDependency(dependencyID)
	dependency.AddDependent(dependentID)
	return nil
}

// TopologicalSort returns nodes in dependency order (dependencies first)
// using Kahn's algorithm. Ties are broken by insertion order. A cycle
// fails with a CycleError naming one concrete cycle.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for id, node := range g.nodes {
		inDegree[id] = len(node.DependsOn)
	}

	var result []*Node
	done := make(map[string]bool, len(g.nodes))

	for len(result) < len(g.nodes) {
		next := ""
		for _, id := range g.order {
			if !done[id] && inDegree[id] == 0 {
				next = id
				break
			}
		}
		if next == "" {
			// Remaining nodes all participate in or depend on a cycle.
			return nil, errors.CycleError(g.findCycle())
		}

		done[next] = true
		node := g.nodes[next]
		result = append(result, node)
		for _, dependentID := range node.DependedOnBy {
			inDegree[dependentID]--
		}
	}

	return result, nil
}

// ReverseTopologicalSort returns nodes in reverse order (dependents first).
func (g *Graph) ReverseTopologicalSort() ([]*Node, error) {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	return sorted, nil
}

// findCycle locates one concrete cycle by depth-first search. Called only
// when a topological sort has already failed, so a cycle must exist.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, depID := range g.nodes[id].DependsOn {
			switch color[depID] {
			case white:
				if visit(depID) {
					return true
				}
			case gray:
				// Slice the current path from the first occurrence of depID.
				for i, onPath := range stack {
					if onPath == depID {
						cycle = append(cycle, stack[i:]...)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && visit(id) {
			break
		}
	}
	return cycle
}

// GetReadyNodes returns all nodes whose dependencies are completed, in
// insertion order.
func (g *Graph) GetReadyNodes() []*Node {
	var ready []*Node
	for _, id := range g.order {
		if node := g.nodes[id]; node.IsReady(g) {
			ready = append(ready, node)
		}
	}
	return ready
}

// AllCompleted returns true if every node is completed or skipped.
func (g *Graph) AllCompleted() bool {
	for _, node := range g.nodes {
		if node.State != NodeStateCompleted && node.State != NodeStateSkipped {
			return false
		}
	}
	return true
}

// HasFailed returns true if any node has failed.
func (g *Graph) HasFailed() bool {
	for _, node := range g.nodes {
		if node.State == NodeStateFailed {
			return true
		}
	}
	return false
}
