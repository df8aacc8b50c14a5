// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language / reasoning models inside TaskMesh.
//
// Core goals:
//   - Keep generation synchronous and request/response shapes minimal
//   - Normalize tool / function call representation (ToolDefinition, core.ToolCall)
//   - Surface token usage so the run ledger can meter cost
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (agents, supervisor) remain decoupled from vendor
// SDKs. The Estimator types approximate token counts when a provider omits
// usage data.
package model
