package graph

import (
	"fmt"
	"strings"

	"github.com/loomworks/loom/pkg/models"
)

// ValidateWorkflow runs the structural pre-flight checks the orchestrator
// requires before a run: at least one START node, no cycles, no orphaned
// non-START nodes, and no connection endpoint that fails to resolve to a
// node in the graph. It executes nothing.
func ValidateWorkflow(nodes []*models.WorkflowNode, connections []*models.Connection) []string {
	var errs []string

	hasStart := false

	for _, node := range nodes {
		if node.IsStart() {
			hasStart = true

			break
		}
	}

	if !hasStart {
		errs = append(errs, "workflow must have at least one START node")
	}

	result := Analyze(nodes, connections, "")
	if !result.Valid {
		errs = append(errs, fmt.Sprintf("cycles detected: %s", strings.Join(result.Cycles, "; ")))
	}

	connected := make(map[string]bool)
	for _, conn := range connections {
		connected[conn.SourceNodeID] = true
		connected[conn.TargetNodeID] = true
	}

	var orphaned []string

	for _, node := range nodes {
		if !node.IsStart() && !connected[node.ID] {
			orphaned = append(orphaned, node.Name)
		}
	}

	if len(orphaned) > 0 {
		errs = append(errs, fmt.Sprintf("orphaned nodes found: %s", strings.Join(orphaned, ", ")))
	}

	nodeSet := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		nodeSet[node.ID] = true
	}

	for _, conn := range connections {
		if !nodeSet[conn.SourceNodeID] {
			errs = append(errs, fmt.Sprintf("invalid connection %s: source node %s not found", conn.ID, conn.SourceNodeID))
		}

		if !nodeSet[conn.TargetNodeID] {
			errs = append(errs, fmt.Sprintf("invalid connection %s: target node %s not found", conn.ID, conn.TargetNodeID))
		}
	}

	return errs
}
