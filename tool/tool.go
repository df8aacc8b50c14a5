// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side-effects) with schema
// validated arguments, consistent error handling and rich metadata for LLM guidance.
package tool

import (
	"context"
	"fmt"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools can be registered with a Registry to enable function calling, allowing
// agents to perform actions beyond text generation such as API calls, calculations,
// database queries, or any other programmatic operations.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Author an explicit Schema for their arguments
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
//   - Follow consistent naming conventions
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Schema returns the declared argument schema. It is validated structurally
	// when the tool is registered and used to check arguments before every Call.
	Schema() Schema

	// Call executes the tool with already-validated arguments. The context
	// bounds any I/O the tool performs.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Cacheable is an optional interface for tools whose results are a pure
// function of their arguments. The registry consults its result cache before
// executing such tools.
type Cacheable interface {
	Cacheable() bool
}

// Schema is an explicit, authored description of a tool's accepted arguments.
// It covers the JSON Schema subset the executor validates: an object with
// typed properties, optional enums and a required list. Schemas are written by
// hand next to the tool they describe rather than synthesized from Go types,
// which keeps what the model sees reviewable.
type Schema struct {
	Type       string              `json:"type"` // always "object"
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single tool argument.
type Property struct {
	Type        string   `json:"type"` // string | number | integer | boolean | array | object
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

var validPropertyTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// Validate checks the schema structurally: object type, known property types
// and a required list that only names declared properties. Called once at
// registration so malformed schemas never reach a model.
func (s Schema) Validate() error {
	if s.Type != "object" {
		return fmt.Errorf("schema type must be \"object\", got %q", s.Type)
	}
	for name, prop := range s.Properties {
		if name == "" {
			return fmt.Errorf("schema property with empty name")
		}
		if !validPropertyTypes[prop.Type] {
			return fmt.Errorf("schema property %q has unknown type %q", name, prop.Type)
		}
		if len(prop.Enum) > 0 && prop.Type != "string" {
			return fmt.Errorf("schema property %q declares an enum but is not a string", name)
		}
	}
	for _, req := range s.Required {
		if _, ok := s.Properties[req]; !ok {
			return fmt.Errorf("schema requires undeclared property %q", req)
		}
	}
	return nil
}

// ValidateArgs checks arguments against the schema: every required property
// present, every known property type-compatible, enum values respected.
// Unknown extra arguments are tolerated.
func (s Schema) ValidateArgs(args map[string]any) error {
	for _, req := range s.Required {
		if _, exists := args[req]; !exists {
			return &ValidationError{
				Field:   req,
				Message: "required field is missing",
			}
		}
	}

	for name, value := range args {
		prop, exists := s.Properties[name]
		if !exists {
			continue // Allow extra fields
		}

		if !isValidType(value, prop.Type) {
			return &ValidationError{
				Field:   name,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", prop.Type, value),
			}
		}

		if len(prop.Enum) > 0 {
			sv, _ := value.(string)
			if !containsString(prop.Enum, sv) {
				return &ValidationError{
					Field:   name,
					Value:   value,
					Message: fmt.Sprintf("value %q not in enum %v", sv, prop.Enum),
				}
			}
		}
	}

	return nil
}

// AsMap renders the schema in the JSON Schema map form providers expect.
func (s Schema) AsMap() map[string]any {
	properties := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		p := map[string]any{"type": prop.Type}
		if prop.Description != "" {
			p["description"] = prop.Description
		}
		if len(prop.Enum) > 0 {
			p["enum"] = prop.Enum
		}
		properties[name] = p
	}

	schema := map[string]any{
		"type":       s.Type,
		"properties": properties,
	}
	if len(s.Required) > 0 {
		schema["required"] = s.Required
	}
	return schema
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true // nil is valid for any type
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling often produces float64 for numbers
			return v == float64(int64(v)) // Check if it's actually an integer
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true // Unknown types are assumed valid
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ValidationError represents argument validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`             // Field that failed validation
	Value   any    `json:"value,omitempty"`   // Value that was provided
	Message string `json:"message"`           // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
