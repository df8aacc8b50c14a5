// Package router selects an agent for a task. Routers are pure selection:
// they inspect the task and the candidate list and return one candidate (or
// nil when none fits), leaving execution, validation and retry to the
// supervisor. Candidate order is the supervisor's registration order, so
// selection is reproducible.
package router
