package core

import "time"

// AgentState is an agent's persisted working memory: the ordered conversation
// plus a step counter and free-form metadata. It is owned by one agent
// instance and mutated only by that agent's own processing calls; stores
// persist it only at loop boundaries, never mid-loop.
type AgentState struct {
	Messages    []Message      `json:"messages"`
	CurrentStep int            `json:"current_step"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Created     time.Time      `json:"created"`
	Updated     time.Time      `json:"updated"`
}

// NewAgentState creates an empty state.
func NewAgentState() *AgentState {
	now := time.Now().UTC()
	return &AgentState{Messages: []Message{}, Metadata: map[string]any{}, Created: now, Updated: now}
}

// AddMessage appends a message and bumps the Updated timestamp.
func (s *AgentState) AddMessage(m Message) {
	s.Messages = append(s.Messages, m)
	s.Updated = time.Now().UTC()
}

// Clone returns a deep copy safe for independent mutation.
func (s *AgentState) Clone() *AgentState {
	clone := &AgentState{
		Messages:    make([]Message, len(s.Messages)),
		CurrentStep: s.CurrentStep,
		Metadata:    make(map[string]any, len(s.Metadata)),
		Created:     s.Created,
		Updated:     s.Updated,
	}
	copy(clone.Messages, s.Messages)
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}
