// Package policy holds the orchestration guardrails the supervisor consults
// before and after dispatching a task: budget ceilings, permission checks and
// retry decisions. Policies only inspect; they never mutate the task, the
// ledger or the agent they are asked about.
package policy
