package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/policy"
	"github.com/hupe1980/taskmesh/router"
)

var (
	// ErrNoAgents is returned by Assign when the registry is empty.
	ErrNoAgents = errors.New("no agents available")

	// ErrNoSuitableAgent is returned when the router declines every candidate.
	ErrNoSuitableAgent = errors.New("no suitable agent")

	// ErrValidationFailed is returned when policy validation rejects the
	// assignment. Validation failures are terminal, never retried.
	ErrValidationFailed = errors.New("validation failed")
)

// Options configures a Supervisor.
type Options struct {
	// Router selects an agent per task. Defaults to capability-based
	// keyword affinity.
	Router router.Router

	// Policy guards assignments and drives retry decisions. Defaults to an
	// empty composite with the stock retry policy.
	Policy *policy.OrchestrationPolicy

	// Logger receives orchestration events.
	Logger logging.Logger
}

// Supervisor coordinates a set of agents: it routes tasks to them, enforces
// policy and tracks every task it has seen.
type Supervisor struct {
	mu     sync.RWMutex
	agents map[string]core.Agent
	order  []string

	tasksMu sync.RWMutex
	tasks   map[string]*core.Task

	router router.Router
	policy *policy.OrchestrationPolicy
	logger logging.Logger
}

// New creates a Supervisor. Register agents before assigning tasks.
func New(optFns ...func(o *Options)) *Supervisor {
	opts := Options{
		Router: router.NewKeywordAffinity(),
		Policy: policy.New(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Supervisor{
		agents: make(map[string]core.Agent),
		tasks:  make(map[string]*core.Task),
		router: opts.Router,
		policy: opts.Policy,
		logger: opts.Logger,
	}
}

// Register adds an agent under its name. Registering the same name again
// replaces the agent but keeps its position in the candidate order.
func (s *Supervisor) Register(a core.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := a.Name()
	if _, exists := s.agents[name]; !exists {
		s.order = append(s.order, name)
	}
	s.agents[name] = a

	s.logger.Info("supervisor.agent.registered", "agent", name, "capabilities", len(a.Capabilities()))
}

// Unregister removes an agent. Tasks already running on it are unaffected.
func (s *Supervisor) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[name]; !exists {
		return
	}

	delete(s.agents, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.logger.Info("supervisor.agent.unregistered", "agent", name)
}

// Agent returns a registered agent by name.
func (s *Supervisor) Agent(name string) (core.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[name]
	return a, ok
}

// Agents returns all registered agents in registration order.
func (s *Supervisor) Agents() []core.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]core.Agent, 0, len(s.order))
	for _, name := range s.order {
		agents = append(agents, s.agents[name])
	}
	return agents
}

// Assign runs the orchestration state machine for one task: route, validate,
// execute, retry. It returns the executing agent's name on success.
//
// Routing and validation faults fail the task immediately. Execution faults
// are retried on the same agent, without re-routing or re-validating, while
// the policy allows; the task stays in progress during retry windows and
// only reaches a terminal state once the outcome is decided.
func (s *Supervisor) Assign(ctx context.Context, task *core.Task, runCtx *core.RunContext) (string, error) {
	s.track(task)

	candidates := s.Agents()
	if len(candidates) == 0 {
		s.failTask(task, ErrNoAgents.Error())
		return "", ErrNoAgents
	}

	selected := s.router.Select(task, candidates)
	if selected == nil {
		s.failTask(task, ErrNoSuitableAgent.Error())
		return "", ErrNoSuitableAgent
	}
	agentID := selected.Name()

	if err := s.policy.Validate(task, agentID, runCtx); err != nil {
		s.logger.Warn("supervisor.task.rejected", "task", task.ID, "agent", agentID, "reason", err.Error())
		s.failTask(task, ErrValidationFailed.Error())
		return "", fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if err := s.startTask(task, agentID); err != nil {
		return "", err
	}

	s.logger.Info("supervisor.task.assigned", "task", task.ID, "agent", agentID)

	result, err := selected.Process(ctx, task.Description, runCtx)

	for attempt := 0; err != nil && s.policy.ShouldRetry(err, attempt); attempt++ {
		delay := s.policy.BackoffDelay(attempt)
		s.logger.Warn("supervisor.task.retry",
			"task", task.ID,
			"agent", agentID,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			s.cancelTask(task)
			return "", ctx.Err()
		case <-time.After(delay):
		}

		result, err = selected.Process(ctx, task.Description, runCtx)
	}

	if err != nil {
		s.failTask(task, err.Error())
		s.logger.Error("supervisor.task.failed", "task", task.ID, "agent", agentID, "error", err.Error())
		return "", fmt.Errorf("task execution failed: %w", err)
	}

	s.completeTask(task, result)
	s.logger.Info("supervisor.task.completed", "task", task.ID, "agent", agentID)

	return agentID, nil
}

// Task returns a copy of a tracked task.
func (s *Supervisor) Task(id string) (*core.Task, bool) {
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// Tasks returns copies of tracked tasks, optionally filtered by status.
// Pass an empty status for all. Results are ordered by creation time.
func (s *Supervisor) Tasks(status core.TaskStatus) []*core.Task {
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()

	tasks := make([]*core.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if status != "" && task.Status != status {
			continue
		}
		tasks = append(tasks, task.Clone())
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Created.Equal(tasks[j].Created) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].Created.Before(tasks[j].Created)
	})

	return tasks
}

// Track registers a task with the supervisor's task map before assignment,
// making it visible to Task and Tasks immediately. Assign tracks on entry
// itself; callers dispatching Assign asynchronously use Track first so
// pollers never observe a gap.
func (s *Supervisor) Track(task *core.Task) { s.track(task) }

func (s *Supervisor) track(task *core.Task) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	s.tasks[task.ID] = task
}

// Task mutations run under the map lock so concurrent Task/Tasks readers
// never observe a half-written transition.

func (s *Supervisor) startTask(task *core.Task, agentID string) error {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	return task.Start(agentID)
}

func (s *Supervisor) completeTask(task *core.Task, result string) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	if err := task.Complete(result); err != nil {
		s.logger.Warn("supervisor.task.transition_error", "task", task.ID, "error", err.Error())
	}
}

func (s *Supervisor) failTask(task *core.Task, reason string) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	if err := task.Fail(reason); err != nil {
		s.logger.Warn("supervisor.task.transition_error", "task", task.ID, "error", err.Error())
	}
}

func (s *Supervisor) cancelTask(task *core.Task) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	if err := task.Cancel(); err != nil {
		s.logger.Warn("supervisor.task.transition_error", "task", task.ID, "error", err.Error())
	}
}
