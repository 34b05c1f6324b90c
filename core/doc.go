// Package core provides the foundational domain types shared across
// triagemesh. It defines:
//
//   - CaseState (the mutable record threaded through one case's workflow)
//   - Structured outcome records (EmergencyActions, ResourceAllocation)
//   - The agent invocation envelope (Request/Response, correlation tokens)
//   - Agent identity and handler types
//   - The error taxonomy for agent invocation faults
//
// The package intentionally keeps implementation concerns (dispatch,
// transport, graph execution, model calls) out of scope so that every other
// package can depend on it without cycles.
package core
