package compiler

import (
	"fmt"

	"github.com/weftlabs/weft/common/models"
)

// EdgeLabelBody marks an edge from a loop or parallel controller into its
// iteration body. Body edges do not participate in the main scheduling walk.
const EdgeLabelBody = "body"

// PlanNode is a definition node with its resolved wiring.
type PlanNode struct {
	Node     models.Node
	Inbound  []models.Edge
	Outbound []models.Edge
	// Controller is the id of the loop/parallel node owning this node's
	// body set, empty for top-level nodes.
	Controller string
}

// ExecutionPlan is the validated, topologically ordered form of a workflow
// definition. Plans are immutable after Compile and safe to share between
// runs of the same definition version.
type ExecutionPlan struct {
	Nodes     map[string]*PlanNode
	Order     []string // top-level walk order; body nodes excluded
	InputID   string
	OutputIDs []string
	BodySets  map[string][]string // controller id -> body ids in body order
}

// Compile validates a workflow definition and produces its execution plan.
// Rejected: unknown edge endpoints, cycles, zero or multiple input nodes,
// body references to missing nodes, nodes claimed by more than one
// controller, and edges that cross a body-set boundary.
func Compile(def *models.WorkflowDefinition) (*ExecutionPlan, error) {
	if len(def.Nodes) == 0 {
		return nil, fmt.Errorf("workflow has no nodes")
	}

	plan := &ExecutionPlan{
		Nodes:    make(map[string]*PlanNode, len(def.Nodes)),
		BodySets: make(map[string][]string),
	}

	// 1. Index nodes and reject duplicate ids
	for _, node := range def.Nodes {
		if _, exists := plan.Nodes[node.ID]; exists {
			return nil, fmt.Errorf("duplicate node id: %s", node.ID)
		}
		plan.Nodes[node.ID] = &PlanNode{Node: node}
	}

	// 2. Wire edges and reject unknown endpoints
	for _, edge := range def.Edges {
		source, exists := plan.Nodes[edge.Source]
		if !exists {
			return nil, fmt.Errorf("edge references non-existent node: %s", edge.Source)
		}
		target, exists := plan.Nodes[edge.Target]
		if !exists {
			return nil, fmt.Errorf("edge references non-existent node: %s", edge.Target)
		}

		source.Outbound = append(source.Outbound, edge)
		target.Inbound = append(target.Inbound, edge)
	}

	// 3. Exactly one input node; its output seeds the run's step results
	input, ok := def.InputNode()
	if !ok {
		return nil, fmt.Errorf("workflow must have exactly one input node")
	}
	plan.InputID = input.ID

	for _, node := range def.Nodes {
		if node.Type == models.NodeTypeOutput {
			plan.OutputIDs = append(plan.OutputIDs, node.ID)
		}
	}

	// 4. Resolve body sets for loop and parallel controllers
	if err := resolveBodySets(def, plan); err != nil {
		return nil, err
	}

	// 5. Cycle check over the full edge set
	if err := checkAcyclic(plan); err != nil {
		return nil, err
	}

	// 6. Deterministic topological order of the top-level graph
	order, err := topoOrder(def, plan, "")
	if err != nil {
		return nil, err
	}
	plan.Order = order

	// Body sets execute in their own subgraph order
	for controllerID := range plan.BodySets {
		bodyOrder, err := topoOrder(def, plan, controllerID)
		if err != nil {
			return nil, err
		}
		plan.BodySets[controllerID] = bodyOrder
	}

	return plan, nil
}

// resolveBodySets collects each controller's body node ids from its data
// ("bodyNodes") and from outgoing edges labeled "body", then validates
// membership.
func resolveBodySets(def *models.WorkflowDefinition, plan *ExecutionPlan) error {
	for _, node := range def.Nodes {
		if node.Type != models.NodeTypeLoop && node.Type != models.NodeTypeParallel {
			continue
		}

		seen := make(map[string]bool)
		var members []string

		if declared, ok := node.Data["bodyNodes"].([]interface{}); ok {
			for _, item := range declared {
				id, ok := item.(string)
				if !ok {
					return fmt.Errorf("node %s: bodyNodes entries must be strings", node.ID)
				}
				if !seen[id] {
					seen[id] = true
					members = append(members, id)
				}
			}
		}

		for _, edge := range plan.Nodes[node.ID].Outbound {
			if edge.Label == EdgeLabelBody && !seen[edge.Target] {
				seen[edge.Target] = true
				members = append(members, edge.Target)
			}
		}

		if len(members) == 0 {
			return fmt.Errorf("node %s: %s controller has no body nodes", node.ID, node.Type)
		}

		for _, id := range members {
			member, exists := plan.Nodes[id]
			if !exists {
				return fmt.Errorf("node %s: body references non-existent node: %s", node.ID, id)
			}
			if id == node.ID {
				return fmt.Errorf("node %s: controller cannot be its own body node", node.ID)
			}
			if id == plan.InputID {
				return fmt.Errorf("node %s: input node cannot be a body node", node.ID)
			}
			if member.Node.Type == models.NodeTypeApproval {
				return fmt.Errorf("node %s: approval node %s cannot be a body node", node.ID, id)
			}
			if member.Controller != "" {
				return fmt.Errorf("node %s already belongs to controller %s", id, member.Controller)
			}
			member.Controller = node.ID
		}

		plan.BodySets[node.ID] = members
	}

	// Edges may not cross a body-set boundary except the controller's own
	// body edge
	for _, edge := range def.Edges {
		sourceCtl := plan.Nodes[edge.Source].Controller
		targetCtl := plan.Nodes[edge.Target].Controller
		if sourceCtl == targetCtl {
			continue
		}
		if edge.Source == targetCtl || edge.Target == sourceCtl {
			// controller <-> own body member
			continue
		}
		return fmt.Errorf("edge %s -> %s crosses a body-set boundary", edge.Source, edge.Target)
	}

	return nil
}

// checkAcyclic rejects cycles anywhere in the graph with a DFS.
func checkAcyclic(plan *ExecutionPlan) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, edge := range plan.Nodes[id].Outbound {
			if !visited[edge.Target] {
				if visit(edge.Target) {
					return true
				}
			} else if recStack[edge.Target] {
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for id := range plan.Nodes {
		if !visited[id] {
			if visit(id) {
				return fmt.Errorf("workflow graph contains a cycle")
			}
		}
	}
	return nil
}

// topoOrder computes a deterministic topological order of the nodes owned by
// controller ("" for the top-level graph). Determinism comes from walking
// nodes and edges in definition order with a FIFO ready queue.
func topoOrder(def *models.WorkflowDefinition, plan *ExecutionPlan, controller string) ([]string, error) {
	owned := func(id string) bool {
		return plan.Nodes[id].Controller == controller
	}
	// controller-internal edges only: both endpoints in scope, body edges
	// excluded from the top-level walk
	counts := func(edge models.Edge) bool {
		if !owned(edge.Source) || !owned(edge.Target) {
			return false
		}
		return edge.Label != EdgeLabelBody
	}

	indegree := make(map[string]int)
	total := 0
	for _, node := range def.Nodes {
		if owned(node.ID) {
			indegree[node.ID] = 0
			total++
		}
	}
	for _, edge := range def.Edges {
		if counts(edge) {
			indegree[edge.Target]++
		}
	}

	var queue []string
	for _, node := range def.Nodes {
		if owned(node.ID) && indegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	order := make([]string, 0, total)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, edge := range plan.Nodes[id].Outbound {
			if !counts(edge) {
				continue
			}
			indegree[edge.Target]--
			if indegree[edge.Target] == 0 {
				queue = append(queue, edge.Target)
			}
		}
	}

	if len(order) != total {
		return nil, fmt.Errorf("workflow graph contains a cycle")
	}
	return order, nil
}
