// Package graph provides dependency graph construction and traversal for
// stack deployments.
package graph

// OutputsNodeID is the synthetic terminal node representing stack outputs.
// The ":" keeps it out of the logical-name namespace (logical names are
// alphanumeric).
const OutputsNodeID = "stack:outputs"

// NodeState tracks the execution state of a node.
type NodeState string

const (
	NodeStatePending    NodeState = "pending"
	NodeStateRunning    NodeState = "running"
	NodeStateCompleted  NodeState = "completed"
	NodeStateFailed     NodeState = "failed"
	NodeStateSkipped    NodeState = "skipped"
	NodeStateRolledBack NodeState = "rolled-back"
)

// Node represents a resource declaration in the dependency graph. The
// synthetic outputs node has an empty Kind.
type Node struct {
	// ID is the resource's logical name, or OutputsNodeID.
	ID string

	// Kind is the resource kind handled by a provider.
	Kind string

	// DependsOn holds IDs of nodes this node depends on.
	DependsOn []string

	// DependedOnBy holds IDs of nodes that depend on this node.
	DependedOnBy []string

	// State tracking during execution.
	State NodeState
}

// NewNode creates a new graph node in the pending state.
func NewNode(id, kind string) *Node {
	return &Node{
		ID:           id,
		Kind:         kind,
		DependsOn:    []string{},
		DependedOnBy: []string{},
		State:        NodeStatePending,
	}
}

// IsSynthetic reports whether this is the outputs terminal node.
func (n *Node) IsSynthetic() bool {
	return n.ID == OutputsNodeID
}

// AddDependency adds a dependency edge target to this node.
func (n *Node) AddDependency(nodeID string) {
	for _, dep := range n.DependsOn {
		if dep == nodeID {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, nodeID)
}

// AddDependent records a node that depends on this one.
func (n *Node) AddDependent(nodeID string) {
	for _, dep := range n.DependedOnBy {
		if dep == nodeID {
			return
		}
	}
	n.DependedOnBy = append(n.DependedOnBy, nodeID)
}

// IsReady returns true if the node is pending and all dependencies are
// completed.
func (n *Node) IsReady(g *Graph) bool {
	if n.State != NodeStatePending {
		return false
	}
	for _, depID := range n.DependsOn {
		dep := g.GetNode(depID)
		if dep == nil || dep.State != NodeStateCompleted {
			return false
		}
	}
	return true
}
