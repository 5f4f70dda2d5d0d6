// Package graph provides cycle detection, topological ordering and structural
// validation for workflow graphs.
package graph

import (
	"strings"

	"github.com/loomworks/loom/pkg/models"
)

// Result is the outcome of analyzing a workflow graph. Order is a total
// order consistent with every edge outside a detected cycle: for each edge
// (u -> v), u precedes v. Valid is true iff no cycles were found.
type Result struct {
	Order  []string `json:"order"`
	Cycles []string `json:"cycles"`
	Valid  bool     `json:"valid"`
}

type analyzer struct {
	adjacency map[string][]string
	visiting  map[string]bool
	visited   map[string]bool
	postOrder []string
	cycles    []string
}

// Analyze computes an execution order for the graph using a depth-first
// traversal with three-color marking. Traversal starts at startNodeID when
// given, otherwise at every node with no incoming edges; any node still
// unvisited afterwards (disconnected islands) is visited last, so every node
// receives a position in the order. Deterministic for a fixed input ordering
// of nodes and connections.
func Analyze(nodes []*models.WorkflowNode, connections []*models.Connection, startNodeID string) Result {
	a := &analyzer{
		adjacency: make(map[string][]string, len(nodes)),
		visiting:  make(map[string]bool),
		visited:   make(map[string]bool),
	}

	nodeSet := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		nodeSet[node.ID] = true
		a.adjacency[node.ID] = nil
	}

	hasIncoming := make(map[string]bool)

	for _, conn := range connections {
		a.adjacency[conn.SourceNodeID] = append(a.adjacency[conn.SourceNodeID], conn.TargetNodeID)
		hasIncoming[conn.TargetNodeID] = true
	}

	if startNodeID != "" && nodeSet[startNodeID] {
		a.visit(startNodeID, nil)
	} else {
		for _, node := range nodes {
			if !hasIncoming[node.ID] && !a.visited[node.ID] {
				a.visit(node.ID, nil)
			}
		}
	}

	// Disconnected nodes still get a position, trailing their own dependencies.
	for _, node := range nodes {
		if !a.visited[node.ID] {
			a.visit(node.ID, nil)
		}
	}

	// Reverse post-order puts dependencies first.
	order := make([]string, 0, len(a.postOrder))
	for i := len(a.postOrder) - 1; i >= 0; i-- {
		order = append(order, a.postOrder[i])
	}

	return Result{
		Order:  order,
		Cycles: a.cycles,
		Valid:  len(a.cycles) == 0,
	}
}

func (a *analyzer) visit(nodeID string, path []string) {
	if a.visiting[nodeID] {
		// Back edge: record the cycle from the node's first occurrence on
		// the path through the current node, inclusive.
		start := 0
		for i, id := range path {
			if id == nodeID {
				start = i

				break
			}
		}

		cycle := append(append([]string{}, path[start:]...), nodeID)
		a.cycles = append(a.cycles, strings.Join(cycle, " -> "))

		return
	}

	if a.visited[nodeID] {
		return
	}

	a.visiting[nodeID] = true

	for _, neighbor := range a.adjacency[nodeID] {
		a.visit(neighbor, append(path, nodeID))
	}

	delete(a.visiting, nodeID)
	a.visited[nodeID] = true
	a.postOrder = append(a.postOrder, nodeID)
}
