package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

// ValidatedFlow is a flow that passed structural validation, with its graph indexed
type ValidatedFlow struct {
	Flow    types.Flow
	Trigger types.Node

	nodes    map[string]types.Node
	outgoing map[string][]types.Edge
}

func (v *ValidatedFlow) Node(id string) (types.Node, bool) {
	n, ok := v.nodes[id]
	return n, ok
}

// Outgoing returns the edges leaving id, in declaration order
func (v *ValidatedFlow) Outgoing(id string) []types.Edge {
	return v.outgoing[id]
}

// Validate checks every structural rule and reports all violations at once
func Validate(f types.Flow) (*ValidatedFlow, error) {
	var violations []string
	addf := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	nodes := make(map[string]types.Node, len(f.Nodes))
	var triggers []string

	for _, n := range f.Nodes {
		if n.Id == "" {
			addf("node with empty id")
			continue
		}
		if _, dup := nodes[n.Id]; dup {
			addf("duplicate node id %q", n.Id)
			continue
		}
		nodes[n.Id] = n
		if n.Type == types.NodeTypeTrigger {
			triggers = append(triggers, n.Id)
		}

		if err := n.DecodeErr(); err != nil {
			addf("node %q: %v", n.Id, err)
			continue
		}

		switch cfg := n.Config.(type) {
		case *types.TriggerConfig:
			if cfg.MaxItems < 0 {
				addf("trigger %q: maxItems must be positive", n.Id)
			}
		case *types.ClassifierConfig:
			violations = append(violations, validateCategories(n.Id, cfg.Categories)...)
		case *types.ActionConfig:
			if !cfg.ActionType.Valid() {
				addf("action %q: unknown actionType %q", n.Id, cfg.ActionType)
			}
			if cfg.ActionType == types.ActionMove && strings.TrimSpace(cfg.Destination) == "" {
				addf("action %q: move requires a destination", n.Id)
			}
			if cfg.ActionType == types.ActionLabel && cfg.TargetLabel() == "" {
				addf("action %q: label requires labelName or category", n.Id)
			}
		default:
			addf("node %q: unknown node type %q", n.Id, n.Type)
		}
	}

	switch len(triggers) {
	case 0:
		addf("flow has no trigger node")
	case 1:
	default:
		addf("flow has %d trigger nodes (%s), exactly one is required", len(triggers), strings.Join(triggers, ", "))
	}

	outgoing := make(map[string][]types.Edge)
	inbound := make(map[string]int)
	for _, e := range f.Edges {
		_, srcOk := nodes[e.Source]
		_, dstOk := nodes[e.Target]
		if !srcOk {
			addf("edge %q: unknown source %q", e.Id, e.Source)
		}
		if !dstOk {
			addf("edge %q: unknown target %q", e.Id, e.Target)
		}
		if !srcOk || !dstOk {
			continue
		}
		if e.Source == e.Target {
			addf("edge %q: self-loop on %q", e.Id, e.Source)
			continue
		}
		outgoing[e.Source] = append(outgoing[e.Source], e)
		inbound[e.Target]++
	}

	for _, id := range sortedKeys(inbound) {
		n := nodes[id]
		switch n.Type {
		case types.NodeTypeTrigger:
			addf("trigger %q must not have inbound edges", id)
		case types.NodeTypeClassifier:
			if inbound[id] > 1 {
				addf("classifier %q has %d inbound edges, at most one is allowed", id, inbound[id])
			}
		}
	}

	if cycle := findCycle(f.Nodes, outgoing); len(cycle) > 0 {
		addf("flow contains a cycle: %s", strings.Join(cycle, " -> "))
	}

	if len(violations) > 0 {
		return nil, &types.ValidationError{Violations: violations}
	}

	return &ValidatedFlow{
		Flow:     f,
		Trigger:  nodes[triggers[0]],
		nodes:    nodes,
		outgoing: outgoing,
	}, nil
}

func validateCategories(nodeId string, categories []string) []string {
	if len(categories) == 0 {
		return []string{fmt.Sprintf("classifier %q: categories must not be empty", nodeId)}
	}

	var violations []string
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" {
			violations = append(violations, fmt.Sprintf("classifier %q: empty category name", nodeId))
			continue
		}
		if seen[key] {
			violations = append(violations, fmt.Sprintf("classifier %q: duplicate category %q", nodeId, c))
			continue
		}
		seen[key] = true
	}
	return violations
}

// findCycle returns one cycle as a node path, or nil for an acyclic graph
func findCycle(nodes []types.Node, outgoing map[string][]types.Edge) []string {
	const (
		unvisited = iota
		onStack
		done
	)

	state := make(map[string]int, len(nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = onStack
		stack = append(stack, id)
		for _, e := range outgoing[id] {
			switch state[e.Target] {
			case onStack:
				for i, s := range stack {
					if s == e.Target {
						cycle = append(append([]string{}, stack[i:]...), e.Target)
						break
					}
				}
				return true
			case unvisited:
				if visit(e.Target) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, n := range nodes {
		if state[n.Id] == unvisited && visit(n.Id) {
			return cycle
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
