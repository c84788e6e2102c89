package toolcall

import "context"

// UngroupedKey collects tool calls without a node execution in grouped
// listings.
const UngroupedKey = "ungrouped"

// ListByExecution lists an execution's tool calls with the filter's paging
// and ordering applied.
func (g *Gate) ListByExecution(ctx context.Context, executionID string, filter ListFilter) ([]*ToolCall, error) {
	filter.ExecutionID = executionID
	return g.store.List(ctx, filter)
}

// ListByNode lists one node execution's tool calls.
func (g *Gate) ListByNode(ctx context.Context, nodeExecutionID string) ([]*ToolCall, error) {
	return g.store.List(ctx, ListFilter{NodeExecutionID: nodeExecutionID})
}

// ListGroupedByNode folds an execution's tool calls into per-node groups keyed
// by node-execution id; calls without one land under UngroupedKey.
func (g *Gate) ListGroupedByNode(ctx context.Context, executionID string) (map[string][]*ToolCall, error) {
	calls, err := g.store.List(ctx, ListFilter{ExecutionID: executionID})
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]*ToolCall)
	for _, tc := range calls {
		key := tc.NodeExecutionID
		if key == "" {
			key = UngroupedKey
		}
		groups[key] = append(groups[key], tc)
	}
	return groups, nil
}

// CountByStatus returns a complete map over every status value; statuses with
// no calls are present with a zero count.
func (g *Gate) CountByStatus(ctx context.Context, executionID string) (map[Status]int, error) {
	calls, err := g.store.List(ctx, ListFilter{ExecutionID: executionID})
	if err != nil {
		return nil, err
	}
	counts := make(map[Status]int, len(AllStatuses))
	for _, status := range AllStatuses {
		counts[status] = 0
	}
	for _, tc := range calls {
		counts[tc.Status]++
	}
	return counts, nil
}

// PendingPermissionRequests lists the calls waiting on a permission decision.
func (g *Gate) PendingPermissionRequests(ctx context.Context, executionID string) ([]*ToolCall, error) {
	return g.store.List(ctx, ListFilter{ExecutionID: executionID, Status: StatusAwaitingPermission})
}

// Cleanup removes every tool call of an execution.
func (g *Gate) Cleanup(ctx context.Context, executionID string) error {
	return g.store.DeleteByExecution(ctx, executionID)
}
