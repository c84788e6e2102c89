package agents

import (
	"time"

	"github.com/conductor-ai/conductor/types"
)

// Role classifies an agent within a registry.
type Role string

const (
	// RolePrimary marks the default recipient of unrouted messages.
	RolePrimary Role = "primary"
	// RoleSpecialist marks an agent addressed explicitly or via keywords.
	RoleSpecialist Role = "specialist"
	// RoleReviewer marks an agent used on review panels.
	RoleReviewer Role = "reviewer"
)

// Status is the live state of an agent.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusThinking Status = "thinking"
	StatusError    Status = "error"
)

// Agent is one registered agent. Registry methods return copies; the registry
// owns the canonical record.
type Agent struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Role            Role             `json:"role"`
	Description     string           `json:"description,omitempty"`
	TriggerKeywords []string         `json:"trigger_keywords,omitempty"`
	Status          Status           `json:"status"`
	LastActiveAt    time.Time        `json:"last_active_at,omitempty"`
	MessageCount    int              `json:"message_count"`
	TotalUsage      types.TokenUsage `json:"total_usage"`
}

// Config describes an agent to register.
type Config struct {
	ID              string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name            string   `json:"name" yaml:"name"`
	Role            Role     `json:"role,omitempty" yaml:"role,omitempty"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	TriggerKeywords []string `json:"trigger_keywords,omitempty" yaml:"trigger_keywords,omitempty"`
}
