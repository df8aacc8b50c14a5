// Package supervisor owns the task-orchestration state machine. It keeps the
// agent registry and the task map, routes each task to an agent, validates
// the assignment against policy and executes it with retry on transient
// faults.
//
// The failure taxonomy is strict: routing and validation faults fail a task
// immediately and are never retried, execution faults are retried per policy
// on the same agent, and resource exhaustion inside an agent's loop is no
// fault at all since the loop answers best-effort.
//
// All shared state is mutex-guarded; tasks handed to concurrent readers are
// defensive copies.
package supervisor
