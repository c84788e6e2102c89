package agents

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conductor-ai/conductor/types"
)

// Registry is the single mutable table of agents shared by all executions in a
// process. Mutations are serialized under one lock; readers get copies.
type Registry struct {
	agents    map[string]*Agent
	order     []string
	primaryID string
	logger    *zap.Logger
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents: make(map[string]*Agent),
		logger: logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds an agent with status idle. The first agent registered, or any
// agent registered with role primary, becomes the primary.
func (r *Registry) Register(cfg Config) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	agent := &Agent{
		ID:              id,
		Name:            cfg.Name,
		Role:            cfg.Role,
		Description:     cfg.Description,
		TriggerKeywords: append([]string(nil), cfg.TriggerKeywords...),
		Status:          StatusIdle,
	}
	if agent.Role == "" {
		agent.Role = RoleSpecialist
	}

	if _, replacing := r.agents[id]; !replacing {
		r.order = append(r.order, id)
	}
	r.agents[id] = agent

	if r.primaryID == "" || cfg.Role == RolePrimary {
		r.primaryID = id
	}

	r.logger.Info("agent registered",
		zap.String("id", id),
		zap.String("name", agent.Name),
		zap.String("role", string(agent.Role)),
		zap.Bool("primary", r.primaryID == id),
	)

	cp := *agent
	return &cp
}

// Unregister removes an agent. If the removed agent was primary, another agent
// with role primary is promoted; failing that, any remaining agent; failing
// that, the registry is left without a primary.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return types.NotFound("agent", id)
	}
	delete(r.agents, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.primaryID == id {
		r.primaryID = ""
		for _, oid := range r.order {
			if r.agents[oid].Role == RolePrimary {
				r.primaryID = oid
				break
			}
		}
		if r.primaryID == "" && len(r.order) > 0 {
			r.primaryID = r.order[0]
		}
		r.logger.Info("primary agent reassigned",
			zap.String("removed", id),
			zap.String("primary", r.primaryID),
		)
	}
	return nil
}

// Get returns a copy of the agent with the given id.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil, types.NotFound("agent", id)
	}
	cp := *agent
	return &cp, nil
}

// Primary returns the current primary agent.
func (r *Registry) Primary() (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.primaryID == "" {
		return nil, types.NewError(types.ErrNoPrimaryAgent, "no agents registered")
	}
	cp := *r.agents[r.primaryID]
	return &cp, nil
}

// List returns all agents in registration order.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.agents[id]
		out = append(out, &cp)
	}
	return out
}

// Find returns agents whose id, name, description, or trigger keywords contain
// the query, case-insensitively. The result is a union in registration order,
// not ranked.
func (r *Registry) Find(query string) []*Agent {
	q := strings.ToLower(query)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Agent
	for _, id := range r.order {
		agent := r.agents[id]
		if agentMatches(agent, q) {
			cp := *agent
			out = append(out, &cp)
		}
	}
	return out
}

func agentMatches(agent *Agent, q string) bool {
	if strings.Contains(strings.ToLower(agent.ID), q) ||
		strings.Contains(strings.ToLower(agent.Name), q) ||
		strings.Contains(strings.ToLower(agent.Description), q) {
		return true
	}
	for _, kw := range agent.TriggerKeywords {
		if strings.Contains(strings.ToLower(kw), q) {
			return true
		}
	}
	return false
}

// setStatus updates one agent's live status. Unknown ids are ignored; the
// agent may have been unregistered while a delegation was in flight.
func (r *Registry) setStatus(id string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[id]; ok {
		agent.Status = status
	}
}

// recordCompletion updates activity statistics after a successful delegation.
func (r *Registry) recordCompletion(id string, usage types.TokenUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[id]; ok {
		agent.MessageCount++
		agent.TotalUsage.Add(usage)
		agent.LastActiveAt = time.Now()
	}
}

// snapshot returns copies of all agents in registration order. Used by the
// mention parser so parsing never holds the registry lock.
func (r *Registry) snapshot() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.agents[id])
	}
	return out
}
