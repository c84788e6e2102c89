// Package types defines the shared vocabulary of the orchestration core:
// structured error codes, the delegation result shape, and token-usage
// accounting. Every other package depends on types; types depends on nothing
// inside the module.
package types
