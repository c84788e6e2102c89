// Package agents holds the registry of known agents shared by all workflow
// executions in a process. It designates a single primary agent, resolves
// @mention routing in free text, and delegates tasks to an externally supplied
// executor callback with status and usage tracking.
//
// Delegation failures are expected events, not exceptions: Delegate always
// returns a DelegationResult and never an error, so one failed agent cannot
// crash sibling executions.
package agents
