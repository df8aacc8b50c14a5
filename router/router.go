package router

import (
	"strings"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// Router picks an agent for a task from an ordered candidate list.
//
// Implementations must not mutate the task or the candidates and must return
// nil when no candidate is suitable. Internal bookkeeping (like a rotation
// counter) is allowed but must be safe for concurrent Select calls.
type Router interface {
	Select(task *core.Task, candidates []core.Agent) core.Agent
}

// FirstAvailable always picks the first candidate.
type FirstAvailable struct{}

// NewFirstAvailable creates a router that picks the first candidate.
func NewFirstAvailable() *FirstAvailable { return &FirstAvailable{} }

// Select returns the first candidate or nil on an empty set.
func (r *FirstAvailable) Select(_ *core.Task, candidates []core.Agent) core.Agent {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

// RoundRobin rotates through candidates. The counter advances on every call,
// including across unrelated tasks, which guarantees ordering but not
// fairness when the candidate set changes between calls.
type RoundRobin struct {
	mu      sync.Mutex
	counter int
}

// NewRoundRobin creates a rotating router starting at the first candidate.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

// Select returns candidates[counter % len] and advances the counter.
func (r *RoundRobin) Select(_ *core.Task, candidates []core.Agent) core.Agent {
	if len(candidates) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	selected := candidates[r.counter%len(candidates)]
	r.counter++
	return selected
}

// KeywordAffinity matches task description tokens against the candidates'
// declared capabilities. The first candidate with a capability containing
// any token wins; without a match it falls back to the first candidate.
type KeywordAffinity struct{}

// NewKeywordAffinity creates a capability-matching router.
func NewKeywordAffinity() *KeywordAffinity { return &KeywordAffinity{} }

// Select lower-cases the description into whitespace tokens and returns the
// first candidate whose capability list shares one. Nil only on an empty
// candidate set.
func (r *KeywordAffinity) Select(task *core.Task, candidates []core.Agent) core.Agent {
	if len(candidates) == 0 {
		return nil
	}

	tokens := strings.Fields(strings.ToLower(task.Description))

	for _, candidate := range candidates {
		for _, capability := range candidate.Capabilities() {
			capability = strings.ToLower(capability)
			for _, token := range tokens {
				if strings.Contains(capability, token) {
					return candidate
				}
			}
		}
	}

	return candidates[0]
}
