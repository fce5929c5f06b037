// Package array defines the storage array abstraction used by the controller
// and the request-scoped connection manager that hands out array sessions.
//
// # Logging Verbosity Convention
//
// This package follows Kubernetes logging conventions for verbosity levels:
//
//   - V(0): Always visible - failures that need operator attention
//   - V(2): Production default - sessions opened against an array, mappings changed
//   - V(4): Debug level - endpoint selection, breaker and limiter decisions
//   - V(5): Trace level - CLI commands and raw array output
//
// V(3) is avoided in favor of V(2) (if actionable) or V(4) (if diagnostic).
package array
