package memory

import (
	"strings"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// InMemoryStore is a process-local Store. States are cloned on the way in and
// out so callers can never mutate what the store holds.
//
// Concurrency: protected by RWMutex.
// Search: linear scan with substring matching (case sensitive). Suitable for
// tests, demos and single-process deployments; swap for the SQLite or Redis
// store when persistence is needed.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]*core.AgentState
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states: make(map[string]*core.AgentState),
	}
}

// Save stores a clone of the given state.
func (m *InMemoryStore) Save(agentID string, state *core.AgentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[agentID] = state.Clone()
	return nil
}

// Load returns a clone of the persisted state, if any.
func (m *InMemoryStore) Load(agentID string) (*core.AgentState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[agentID]
	if !exists {
		return nil, false, nil
	}
	return state.Clone(), true, nil
}

// AddMessage appends one message, creating the state on first use.
func (m *InMemoryStore) AddMessage(agentID string, msg core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.states[agentID]
	if !exists {
		state = core.NewAgentState()
		m.states[agentID] = state
	}
	state.AddMessage(msg)
	return nil
}

// Messages returns the transcript in insertion order, optionally trimmed to
// the most recent limit entries.
func (m *InMemoryStore) Messages(agentID string, limit int) ([]core.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[agentID]
	if !exists {
		return []core.Message{}, nil
	}

	msgs := state.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]core.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Clear removes everything stored for the agent.
func (m *InMemoryStore) Clear(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, agentID)
	return nil
}

// Search performs a simple substring match over the agent's transcript.
// Results keep insertion order up to the provided limit.
func (m *InMemoryStore) Search(agentID, query string, limit int) ([]core.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[agentID]
	if !exists {
		return []core.Message{}, nil
	}

	results := make([]core.Message, 0, limit)
	for _, msg := range state.Messages {
		if limit > 0 && len(results) >= limit {
			break
		}
		if query == "" || strings.Contains(msg.Content, query) {
			results = append(results, msg)
		}
	}
	return results, nil
}
