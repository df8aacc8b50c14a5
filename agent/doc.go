// Package agent contains the model-backed agent implementation that drives
// taskmesh. The package focuses on two concerns:
//
//  1. ModelAgent: the bounded reason/act/observe loop around a reasoning
//     service, a tool registry and an optional memory store
//  2. Strategies: pre-loop and post-loop augmentation (planning, reflection,
//     retrieval) selected per agent instead of via subclassing
//
// Design principles:
//   - Explicit wiring via functional options; no hidden globals
//   - Resource accounting on the caller's RunContext ledger, checked at
//     iteration boundaries
//   - Tool faults stay data (error observations); only reasoning-service
//     faults abort a run
//
// The package keeps persistence, model specifics and the tool registry in
// their respective packages to avoid cyclic deps; it consumes their
// interfaces only.
package agent
