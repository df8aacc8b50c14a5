package tool

import (
	"context"
)

// CallFunc is the signature wrapped by FunctionTool.
type CallFunc func(ctx context.Context, args map[string]any) (any, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// TaskMesh tool.
//
// Responsibilities:
//   - Holds the authored Schema describing accepted arguments
//   - Invokes the wrapped function with the caller's context
//   - Normalizes error handling so callers receive *ToolError with consistent
//     codes (custom codes preserved if the function returns *ToolError directly)
//
// Concurrency:
//
//	A FunctionTool has no internal mutable state after construction and is safe
//	for concurrent use by multiple goroutines.
//
// Returned result:
//
//	The returned value can be any Go type that is JSON-serializable by the
//	executor. If more structure is required, create a custom Tool
//	implementation instead.
type FunctionTool struct {
	// Tool identifier (snake_case recommended)
	name string
	// Human-readable description shown to models
	description string
	// Authored schema describing accepted arguments
	schema Schema
	// Results may be served from the registry cache
	cacheable bool
	// User supplied implementation
	fn CallFunc
}

// FunctionToolOptions configures optional FunctionTool behavior.
type FunctionToolOptions struct {
	// Cacheable marks the tool's results as a pure function of its arguments,
	// eligible for the registry result cache.
	Cacheable bool
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and function.
//
// Arguments:
//
//	name        - unique tool name (avoid collisions; snake_case suggested)
//	description - concise, imperative description ("Calculate the …")
//	schema      - authored Schema describing the accepted arguments
//	fn          - implementation receiving the caller's context plus
//	              already-validated args
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  Schema{
//	    Type: "object",
//	    Properties: map[string]Property{
//	      "a": {Type: "number", Description: "First addend"},
//	      "b": {Type: "number", Description: "Second addend"},
//	    },
//	    Required: []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    a := args["a"].(float64)
//	    b := args["b"].(float64)
//	    return a + b, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	schema Schema,
	fn CallFunc,
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	opts := FunctionToolOptions{}

	for _, optFn := range optFns {
		optFn(&opts)
	}

	return &FunctionTool{
		name:        name,
		description: description,
		schema:      schema,
		cacheable:   opts.Cacheable,
		fn:          fn,
	}
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Schema returns the authored schema describing expected arguments.
func (t *FunctionTool) Schema() Schema { return t.schema }

// Cacheable implements the Cacheable marker interface.
func (t *FunctionTool) Cacheable() bool { return t.cacheable }

// Call invokes the underlying function. Errors are wrapped (or passed through)
// as *ToolError for uniform downstream handling.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok { // Already a ToolError -> forward
			return nil, toolErr
		}

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}

	return result, nil
}
