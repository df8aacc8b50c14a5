package memory

import (
	"github.com/hupe1980/taskmesh/core"
)

// Store persists agent conversation state between runs. The execution loop
// touches a store only at run boundaries: Load before the loop starts, Save
// after it ends. AddMessage/Messages exist for callers that share a store
// across agents, such as group chats recording per-agent transcripts.
type Store interface {
	// Save persists the full state for an agent, replacing what was there.
	Save(agentID string, state *core.AgentState) error

	// Load returns the persisted state for an agent. The boolean reports
	// whether any state existed.
	Load(agentID string) (*core.AgentState, bool, error)

	// AddMessage appends a single message to an agent's transcript without
	// rewriting the rest of the state.
	AddMessage(agentID string, msg core.Message) error

	// Messages returns an agent's transcript in insertion order. A positive
	// limit returns only the most recent messages, still oldest first.
	Messages(agentID string, limit int) ([]core.Message, error)

	// Clear removes all persisted data for an agent.
	Clear(agentID string) error
}

// Searcher is an optional capability of stores that can recall messages
// matching a query. The retrieval-augmented strategy uses it for pre-loop
// context injection; stores without it simply skip recall.
type Searcher interface {
	Search(agentID, query string, limit int) ([]core.Message, error)
}
