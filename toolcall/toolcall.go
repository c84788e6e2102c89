// Package toolcall tracks every tool invocation a workflow node performs, from
// creation through permission gating to completion. A call's status only moves
// forward through the machine; completed calls are immutable history.
package toolcall

import (
	"context"
	"time"
)

// Status is a tool call's position in the lifecycle machine.
//
// Permission gating: pending → awaiting_permission → approved | denied.
// Execution: pending/approved → running → success | error.
type Status string

const (
	StatusPending            Status = "pending"
	StatusAwaitingPermission Status = "awaiting_permission"
	StatusApproved           Status = "approved"
	StatusDenied             Status = "denied"
	StatusRunning            Status = "running"
	StatusSuccess            Status = "success"
	StatusError              Status = "error"
)

// AllStatuses lists every status value, in machine order. CountByStatus keys
// its result map off this list.
var AllStatuses = []Status{
	StatusPending,
	StatusAwaitingPermission,
	StatusApproved,
	StatusDenied,
	StatusRunning,
	StatusSuccess,
	StatusError,
}

// transitions maps each status to the statuses reachable from it.
var transitions = map[Status][]Status{
	StatusPending:            {StatusAwaitingPermission, StatusApproved, StatusDenied, StatusRunning},
	StatusAwaitingPermission: {StatusApproved, StatusDenied},
	StatusApproved:           {StatusRunning},
	StatusRunning:            {StatusSuccess, StatusError},
}

func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ToolCall is one tracked tool invocation, owned by a node execution.
type ToolCall struct {
	ID              string     `json:"id"`
	ExecutionID     string     `json:"execution_id"`
	NodeExecutionID string     `json:"node_execution_id,omitempty"`
	ToolName        string     `json:"tool_name"`
	Input           string     `json:"input,omitempty"`
	Output          string     `json:"output,omitempty"`
	Status          Status     `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ListFilter narrows and pages a tool-call listing.
type ListFilter struct {
	ExecutionID     string
	NodeExecutionID string
	Status          Status
	Limit           int
	Offset          int
	// NewestFirst orders by StartedAt descending instead of ascending.
	NewestFirst bool
}

// Store persists tool calls.
type Store interface {
	Save(ctx context.Context, tc *ToolCall) error
	Get(ctx context.Context, id string) (*ToolCall, error)
	Update(ctx context.Context, tc *ToolCall) error
	List(ctx context.Context, filter ListFilter) ([]*ToolCall, error)
	DeleteByExecution(ctx context.Context, executionID string) error
}
