// Package server exposes the task and chat surface over HTTP.
//
// Handlers are thin pass-throughs: they translate JSON requests into core
// types, hand them to the supervisor or a registered agent, and render the
// outcome. Orchestration decisions (routing, validation, retries) stay in
// the supervisor; the server never makes them.
//
// Task creation is asynchronous. POST /api/v1/tasks answers 202 with the
// tracked task and dispatches assignment in the background; clients poll
// GET /api/v1/tasks/{id} until the task reaches a terminal status.
package server
