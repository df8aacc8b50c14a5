// Package core provides the foundational domain types shared across taskmesh.
// It defines:
//
//   - Messages, tool calls and observations (the conversation wire model)
//   - AgentState (an agent's persisted conversation + step counter)
//   - Tasks and their lifecycle states
//   - RunContext (the per-request resource ledger: steps, tokens, cost, time)
//   - The Agent interface consumed by routing and orchestration layers
//
// The package intentionally keeps implementation concerns (persistence, model
// providers, concrete agents, orchestration) out of scope, exposing small
// types so higher packages can depend on contracts without cycles.
package core
