package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/flow"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/rs/zerolog/log"
)

// Orchestrator walks a validated flow depth-first from its trigger
type Orchestrator struct {
	trigger    *TriggerExecutor
	classifier *ClassifierExecutor
	action     *ActionExecutor
}

func NewOrchestrator(trigger *TriggerExecutor, classifier *ClassifierExecutor, action *ActionExecutor) *Orchestrator {
	return &Orchestrator{trigger: trigger, classifier: classifier, action: action}
}

// Run executes the flow against execCtx. A returned error is fatal for the
// run; execCtx keeps everything collected before it occurred.
func (o *Orchestrator) Run(ctx context.Context, vf *flow.ValidatedFlow, execCtx *types.ExecutionContext) error {
	return o.visit(ctx, vf, execCtx, vf.Trigger.Id, map[string]bool{})
}

// graph is the read view of a flow used during traversal
type graph interface {
	Node(id string) (types.Node, bool)
	Outgoing(id string) []types.Edge
}

func (o *Orchestrator) visit(ctx context.Context, g graph, execCtx *types.ExecutionContext, nodeId string, path map[string]bool) error {
	if path[nodeId] {
		return &types.OrchestrationError{NodeId: nodeId, Reason: "node revisited on the current path"}
	}
	node, ok := g.Node(nodeId)
	if !ok {
		return &types.OrchestrationError{NodeId: nodeId, Reason: "node does not exist"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// An action reached again through a second branch has already acted on
	// the batch, and everything below it was walked the first time.
	if node.Type == types.NodeTypeAction && slices.Contains(execCtx.Visited, nodeId) {
		log.Debug().Str("node_id", nodeId).Msg("action already executed in this run")
		return nil
	}

	if err := o.execute(ctx, node, execCtx); err != nil {
		return err
	}
	execCtx.Visited = append(execCtx.Visited, nodeId)

	if err := ctx.Err(); err != nil {
		return err
	}

	path[nodeId] = true
	defer delete(path, nodeId)

	for _, edge := range g.Outgoing(nodeId) {
		if !edgeAllowed(edge, execCtx) {
			log.Debug().Str("edge_id", edge.Id).Str("condition", edge.Condition).Msg("edge condition not met")
			continue
		}
		if err := o.visit(ctx, g, execCtx, edge.Target, path); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, node types.Node, execCtx *types.ExecutionContext) error {
	switch cfg := node.Config.(type) {
	case *types.TriggerConfig:
		items, err := o.trigger.Run(ctx, execCtx.UserId, cfg)
		if err != nil {
			return fmt.Errorf("trigger %s: %w", node.Id, err)
		}
		execCtx.Items = items

	case *types.ClassifierConfig:
		out, err := o.classifier.Run(ctx, execCtx.UserId, node.Id, execCtx.Items, cfg)
		if out != nil {
			for id, r := range out.Results {
				execCtx.Classifications[id] = r
			}
			execCtx.ClassificationIssues = append(execCtx.ClassificationIssues, out.Issues...)
		}
		if err != nil {
			return fmt.Errorf("classifier %s: %w", node.Id, err)
		}

	case *types.ActionConfig:
		execCtx.Actions = append(execCtx.Actions, o.action.Run(ctx, node, execCtx)...)

	default:
		return &types.OrchestrationError{NodeId: node.Id, Reason: fmt.Sprintf("unsupported node type %q", node.Type)}
	}

	log.Debug().Str("agent_id", execCtx.AgentId).Str("node_id", node.Id).Str("type", string(node.Type)).Msg("node executed")
	return nil
}
