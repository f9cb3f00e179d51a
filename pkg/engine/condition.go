package engine

import (
	"strings"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

// edgeAllowed reports whether traversal may follow edge. Conditions are
// evaluated against the whole batch: the edge is taken when any item carries
// the category. Per-item selection happens in the action's category filter.
func edgeAllowed(edge types.Edge, execCtx *types.ExecutionContext) bool {
	condition := strings.TrimSpace(edge.Condition)
	if condition == "" {
		return true
	}
	return execCtx.HasCategory(condition)
}
