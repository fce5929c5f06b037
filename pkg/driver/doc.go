// Package driver implements the CSI Identity and Controller services that map
// block array volumes to Kubernetes nodes.
//
// # Logging Verbosity Convention
//
// This package follows Kubernetes logging conventions for verbosity levels:
//
//   - V(0): Always visible - failed RPCs, programmer errors
//   - V(1): Configuration, frequently repeating errors
//   - V(2): Production default - operation outcomes, state changes
//     Examples: "Published volume X to host Y at LUN 3", "Unpublished volume X"
//   - V(4): Debug level - intermediate steps, parameters, diagnostics
//     Examples: "Resolved host", "LUN collision, retrying"
//   - V(5): Trace level - raw requests and array I/O
//
// V(3) is avoided in favor of V(2) (if actionable) or V(4) (if diagnostic).
//
// Every RPC carries a request id in its context logger, so
// klog.FromContext(ctx) lines can be correlated with audit events.
//
// Production deployments use V(2) by default. Set --v=4 for troubleshooting.
package driver
