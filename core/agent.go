package core

import "context"

// Agent is the contract consumed by routing and orchestration layers.
//
// Agents are the processing units of taskmesh. They receive a natural-language
// input, run whatever reasoning they implement and return a final answer. The
// RunContext threads the caller's resource ledger through the call; agents
// record steps, tokens and cost on it but never replace it.
//
// Implementations must:
//   - Respect context cancellation between reasoning iterations
//   - Keep Process safe for one caller at a time per RunContext (each request
//     owns its ledger exclusively)
//   - Return partial results instead of errors when a resource limit is hit
type Agent interface {
	Name() string
	Description() string
	Capabilities() []string
	Process(ctx context.Context, input string, runCtx *RunContext) (string, error)
}
