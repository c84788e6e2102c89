// Package workflow defines the immutable workflow definition model: a DAG of
// steps with per-step tool policy, checkpoint flags, an error policy, and an
// iteration cap. Definitions are validated on create/update and stored through
// a DefinitionStore that maintains the single-default invariant.
package workflow
