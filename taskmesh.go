// Package taskmesh provides a high-level façade over the supervisor and its
// collaborators (routing, policy, memory & logging) enabling rapid
// construction of agent-dispatch systems. Most applications interact with
// this package by:
//  1. Creating a TaskMesh via New() (optionally overriding the default
//     in-memory store, router, policy or logger)
//  2. Registering one or more agents (model-backed or custom)
//  3. Chatting with a named agent directly (Chat), submitting tasks for
//     routed execution (Submit), or opening a group discussion (GroupChat)
//
// The façade delegates orchestration to supervisor.Supervisor while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a durable
// memory store and a structured logger.
package taskmesh

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/groupchat"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/memory"
	"github.com/hupe1980/taskmesh/policy"
	"github.com/hupe1980/taskmesh/router"
	"github.com/hupe1980/taskmesh/server"
	"github.com/hupe1980/taskmesh/supervisor"
)

// Options configures the TaskMesh instance.
type Options struct {
	// MemoryStore is shared by group chats and available to agents wired
	// through the façade. Defaults to the in-memory implementation.
	MemoryStore memory.Store

	// Router selects agents for submitted tasks. Defaults to keyword
	// affinity with first-available fallback.
	Router router.Router

	// Policy validates assignments and decides retries. Defaults to no
	// budget or permission ceilings with the stock retry policy.
	Policy *policy.OrchestrationPolicy

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// RunOptions configures the per-request ledger the façade creates for one
// Chat or Submit call.
type RunOptions struct {
	TenantID string
	UserID   string
	Budget   float64
	MaxSteps int
	Timeout  time.Duration
	Metadata map[string]any
}

// TaskMesh is the high-level façade aggregating the supervisor and services.
type TaskMesh struct {
	opts Options
	sup  *supervisor.Supervisor
}

// New creates a new TaskMesh instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *TaskMesh {
	opts := Options{
		MemoryStore: memory.NewInMemoryStore(),
		Router:      router.NewKeywordAffinity(),
		Policy:      policy.New(),
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	sup := supervisor.New(func(o *supervisor.Options) {
		o.Router = opts.Router
		o.Policy = opts.Policy
		o.Logger = opts.Logger
	})

	return &TaskMesh{opts: opts, sup: sup}
}

// Register adds an agent to the underlying supervisor.
func (m *TaskMesh) Register(a core.Agent) { m.sup.Register(a) }

// Supervisor exposes the underlying supervisor for advanced use.
func (m *TaskMesh) Supervisor() *supervisor.Supervisor { return m.sup }

// Memory returns the shared memory store.
func (m *TaskMesh) Memory() memory.Store { return m.opts.MemoryStore }

// Chat invokes a named agent directly, bypassing routing and policy, and
// returns the answer together with the request's ledger.
func (m *TaskMesh) Chat(ctx context.Context, agentName, message string, optFns ...func(o *RunOptions)) (string, *core.RunContext, error) {
	agent, ok := m.sup.Agent(agentName)
	if !ok {
		return "", nil, fmt.Errorf("unknown agent %q", agentName)
	}

	runCtx := newRunContext(optFns)
	answer, err := agent.Process(ctx, message, runCtx)
	return answer, runCtx, err
}

// Submit creates a task from the description, routes it through the
// supervisor and blocks until it reaches a terminal status. The returned
// task carries the outcome; err reports routing, validation or execution
// failure.
func (m *TaskMesh) Submit(ctx context.Context, description string, optFns ...func(o *RunOptions)) (*core.Task, error) {
	task := core.NewTask(description)
	runCtx := newRunContext(optFns)

	_, err := m.sup.Assign(ctx, task, runCtx)

	tracked, ok := m.sup.Task(task.ID)
	if !ok {
		tracked = task.Clone()
	}
	return tracked, err
}

// GroupChat opens a group discussion over the named registered agents,
// sharing the mesh's memory store and logger.
func (m *TaskMesh) GroupChat(names ...string) (*groupchat.GroupChat, error) {
	participants := make([]core.Agent, 0, len(names))
	for _, n := range names {
		a, ok := m.sup.Agent(n)
		if !ok {
			return nil, fmt.Errorf("unknown agent %q", n)
		}
		participants = append(participants, a)
	}

	return groupchat.New(participants, func(o *groupchat.Options) {
		o.Memory = m.opts.MemoryStore
		o.Logger = m.opts.Logger
	}), nil
}

// Serve exposes the mesh over HTTP on addr until ctx is cancelled.
func (m *TaskMesh) Serve(ctx context.Context, addr string) error {
	srv := server.New(addr, m.sup, func(o *server.Options) {
		o.Logger = m.opts.Logger
	})
	return srv.Start(ctx)
}

func newRunContext(optFns []func(o *RunOptions)) *core.RunContext {
	opts := RunOptions{TenantID: "default", UserID: "local"}
	for _, fn := range optFns {
		fn(&opts)
	}

	return core.NewRunContext(opts.TenantID, opts.UserID, func(o *core.RunContextOptions) {
		o.Budget = opts.Budget
		o.MaxSteps = opts.MaxSteps
		o.Timeout = opts.Timeout
		o.Metadata = opts.Metadata
	})
}
