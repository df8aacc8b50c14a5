// Package memory defines the Store contract for persisting agent state and
// ships three implementations: an in-process map for tests and ephemeral
// agents, a SQLite store for durable single-node deployments, and a Redis
// store for shared state across processes. Stores that also implement
// Searcher support transcript recall for retrieval-augmented agents.
//
// All implementations return defensive copies; mutating a loaded state never
// affects the persisted one until Save is called again.
package memory
