package groupchat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/memory"
)

const (
	// DefaultMaxRounds bounds a Broadcast when the chat never converges.
	DefaultMaxRounds = 10

	// DefaultContextWindow is how many recent log entries each participant
	// sees when composing a reply.
	DefaultContextWindow = 10

	// convergenceWindow is how many trailing log entries must match for the
	// chat to be considered settled.
	convergenceWindow = 3
)

// Response is one participant's contribution during a Broadcast, in the
// order it was produced.
type Response struct {
	Agent   string `json:"agent"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Options configures a GroupChat.
type Options struct {
	// Memory, when set, records every contribution under the
	// "groupchat_<agent>" transcript so conversations survive the chat.
	Memory memory.Store

	// MaxRounds caps the number of rounds per Broadcast.
	MaxRounds int

	// ContextWindow is the number of trailing log entries rendered into the
	// prompt each participant receives.
	ContextWindow int

	Logger logging.Logger
}

// GroupChat fans a message out to a roster of agents over a shared log.
//
// The roster may change between rounds via Add and Remove. Broadcasts are
// safe to call concurrently but share one log, so interleaved conversations
// will see each other's entries; callers wanting isolated discussions should
// use separate GroupChat values.
type GroupChat struct {
	mu     sync.RWMutex
	agents map[string]core.Agent
	order  []string
	log    []core.Message

	memory        memory.Store
	maxRounds     int
	contextWindow int
	logger        logging.Logger
}

// New creates a group chat over the given participants.
func New(participants []core.Agent, optFns ...func(o *Options)) *GroupChat {
	opts := Options{
		MaxRounds:     DefaultMaxRounds,
		ContextWindow: DefaultContextWindow,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	g := &GroupChat{
		agents:        make(map[string]core.Agent, len(participants)),
		memory:        opts.Memory,
		maxRounds:     opts.MaxRounds,
		contextWindow: opts.ContextWindow,
		logger:        opts.Logger,
	}

	for _, a := range participants {
		g.Add(a)
	}

	return g
}

// Add joins an agent to the roster. Re-adding a name replaces the agent but
// keeps its speaking position.
func (g *GroupChat) Add(a core.Agent) {
	g.mu.Lock()
	defer g.mu.Unlock()

	name := a.Name()
	if _, exists := g.agents[name]; !exists {
		g.order = append(g.order, name)
	}
	g.agents[name] = a
}

// Remove drops an agent from the roster. The shared log keeps its past
// contributions.
func (g *GroupChat) Remove(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.agents[name]; !exists {
		return
	}

	delete(g.agents, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Participants returns roster names in speaking order.
func (g *GroupChat) Participants() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Broadcast posts a message into the chat on behalf of sender and runs the
// conversation until it converges, the round budget is spent, or ctx is
// cancelled. The sender may be a roster member (which then sits the rounds
// out) or an outside party such as a user.
//
// Responses are returned in speaking order across rounds. A cancelled ctx
// returns the responses collected so far together with the ctx error.
func (g *GroupChat) Broadcast(ctx context.Context, message, sender string, runCtx *core.RunContext) ([]Response, error) {
	started := time.Now()

	userMsg := core.NewUserMessage(message)
	userMsg.Name = sender
	g.appendEntry(userMsg)

	g.logger.Info("groupchat.broadcast.start", "sender", sender, "participants", len(g.Participants()))

	var responses []Response
	rounds := 0

	for round := 1; round <= g.maxRounds; round++ {
		runCtx.IncrementStep()
		rounds = round

		spoke := 0
		for _, name := range g.Participants() {
			if name == sender {
				continue
			}

			if err := ctx.Err(); err != nil {
				return responses, err
			}

			g.mu.RLock()
			agent, ok := g.agents[name]
			g.mu.RUnlock()
			if !ok {
				continue // removed mid-round
			}

			content, err := agent.Process(ctx, g.renderContext(), runCtx)
			isError := err != nil
			if isError {
				// A broken participant contributes its error and the round
				// carries on; retry is the supervisor's job, not the chat's.
				content = fmt.Sprintf("error: %s", err.Error())
				g.logger.Warn("groupchat.agent.error", "agent", name, "round", round, "error", err.Error())
			}

			reply := core.NewAssistantMessage(content)
			reply.Name = name
			g.appendEntry(reply)
			g.record(name, reply)

			responses = append(responses, Response{Agent: name, Content: content, IsError: isError})
			spoke++
		}

		if spoke == 0 {
			break // nobody left to respond
		}

		if g.converged() {
			g.logger.Info("groupchat.converged", "round", round)
			break
		}
	}

	g.logger.Info("groupchat.broadcast.end",
		"sender", sender,
		"rounds", rounds,
		"responses", len(responses),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return responses, nil
}

// History returns a copy of the shared conversation log.
func (g *GroupChat) History() []core.Message {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]core.Message, len(g.log))
	copy(out, g.log)
	return out
}

// Reset clears the shared log. The roster is untouched.
func (g *GroupChat) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log = nil
}

func (g *GroupChat) appendEntry(msg core.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log = append(g.log, msg)
}

// renderContext flattens the recent log into "name: content" lines, the
// prompt every participant receives.
func (g *GroupChat) renderContext() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start := len(g.log) - g.contextWindow
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, len(g.log)-start)
	for _, msg := range g.log[start:] {
		name := msg.Name
		if name == "" {
			name = string(msg.Role)
		}
		lines = append(lines, fmt.Sprintf("%s: %s", name, msg.Content))
	}

	return strings.Join(lines, "\n")
}

// converged reports whether the trailing log entries carry identical
// content. Checked after each full round, not mid-round.
func (g *GroupChat) converged() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.log) < convergenceWindow {
		return false
	}

	recent := g.log[len(g.log)-convergenceWindow:]
	for _, msg := range recent[1:] {
		if msg.Content != recent[0].Content {
			return false
		}
	}
	return true
}

func (g *GroupChat) record(agentID string, msg core.Message) {
	if g.memory == nil {
		return
	}
	if err := g.memory.AddMessage("groupchat_"+agentID, msg); err != nil {
		g.logger.Warn("groupchat.memory.error", "agent", agentID, "error", err.Error())
	}
}
