package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem marks instructions injected ahead of the conversation.
	RoleSystem Role = "system"
	// RoleUser marks caller-supplied input.
	RoleUser Role = "user"
	// RoleAssistant marks reasoning-service output.
	RoleAssistant Role = "assistant"
	// RoleTool marks a tool observation fed back into the conversation.
	RoleTool Role = "tool"
)

// Valid reports whether the role is one of the four conversation roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a reasoning-service request to execute a named tool with the
// given arguments. Every ToolCall produces exactly one Observation before the
// execution loop proceeds.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Observation is the normalized outcome of a single tool call. Execution
// faults are carried as data (IsError + ErrorMessage) rather than as Go
// errors so they can be replayed to the reasoning service.
type Observation struct {
	ToolCallID   string `json:"tool_call_id"`
	Content      string `json:"content"`
	IsError      bool   `json:"is_error"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Message is one entry of an agent's conversation. Insertion order is
// semantically significant: the sequence is replayed verbatim to the
// reasoning service.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Name      string         `json:"name,omitempty"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	// ToolCallID back-references the ToolCall a RoleTool message answers.
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with the current UTC timestamp.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// NewSystemMessage creates a system instruction message.
func NewSystemMessage(content string) Message { return NewMessage(RoleSystem, content) }

// NewUserMessage creates a user input message.
func NewUserMessage(content string) Message { return NewMessage(RoleUser, content) }

// NewAssistantMessage creates an assistant message carrying any tool calls the
// reasoning service requested alongside its textual content.
func NewAssistantMessage(content string, toolCalls ...ToolCall) Message {
	m := NewMessage(RoleAssistant, content)
	m.ToolCalls = toolCalls
	return m
}

// NewToolMessage converts an observation into the RoleTool message appended to
// the conversation. Errored observations surface as "Error: <message>" so the
// reasoning service can adapt on the next iteration; the fault flag is kept in
// metadata for providers that report tool results with an error marker.
func NewToolMessage(obs Observation) Message {
	content := obs.Content
	if obs.IsError {
		content = fmt.Sprintf("Error: %s", obs.ErrorMessage)
	}
	m := NewMessage(RoleTool, content)
	m.ToolCallID = obs.ToolCallID
	if obs.IsError {
		m.Metadata = map[string]any{"is_error": true}
	}
	return m
}

// IsErrorObservation reports whether a RoleTool message carries a failed
// observation.
func (m Message) IsErrorObservation() bool {
	v, ok := m.Metadata["is_error"].(bool)
	return ok && v
}

// NewID generates a unique identifier for requests, tasks and tool calls.
func NewID() string { return uuid.NewString() }
