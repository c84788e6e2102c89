package workflow

import (
	"fmt"

	"github.com/conductor-ai/conductor/types"
)

// ValidationResult collects every problem found in a definition. A definition
// is either fully valid or rejected outright; partial application never
// happens.
type ValidationResult struct {
	Errors []string `json:"errors,omitempty"`
}

// Valid reports whether the definition passed validation.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err converts the result into a typed error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return types.NewErrorf(types.ErrValidation, "invalid workflow definition: %v", r.Errors)
}

func (r *ValidationResult) addf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Validate checks a definition for structural problems: missing name, missing
// trigger type, no steps, duplicate step ids, dangling depends entries, and
// dependency cycles.
func Validate(def *Definition) ValidationResult {
	var res ValidationResult

	if def.Name == "" {
		res.addf("workflow name is required")
	}
	if def.Trigger.Type == "" {
		res.addf("trigger type is required")
	}
	if len(def.Steps) == 0 {
		res.addf("workflow requires at least one step")
	}

	ids := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if step.ID == "" {
			res.addf("step id is required")
			continue
		}
		if ids[step.ID] {
			res.addf("duplicate step id: %s", step.ID)
		}
		ids[step.ID] = true
	}

	for _, step := range def.Steps {
		for _, dep := range step.Depends {
			if !ids[dep] {
				res.addf("step %s depends on unknown step: %s", step.ID, dep)
			}
		}
		if step.Type == StepTypeReview && (step.Review == nil || len(step.Review.Reviewers) == 0) {
			res.addf("review step %s has no reviewers", step.ID)
		}
	}

	// Cycle detection runs only over well-formed edges.
	if res.Valid() {
		if cycle := findCycle(def.Steps); len(cycle) > 0 {
			res.addf("dependency cycle: %v", cycle)
		}
	}

	return res
}

// findCycle runs Kahn's algorithm over the depends graph and returns the step
// ids left unprocessed when a cycle exists, in stable definition order.
func findCycle(steps []Step) []string {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, step := range steps {
		indegree[step.ID] += 0
		for _, dep := range step.Depends {
			indegree[step.ID]++
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	queue := make([]string, 0, len(steps))
	for _, step := range steps {
		if indegree[step.ID] == 0 {
			queue = append(queue, step.ID)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed == len(steps) {
		return nil
	}
	var cycle []string
	for _, step := range steps {
		if indegree[step.ID] > 0 {
			cycle = append(cycle, step.ID)
		}
	}
	return cycle
}
