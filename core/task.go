package core

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	// TaskPending means the task was created but not yet assigned.
	TaskPending TaskStatus = "pending"
	// TaskInProgress means an agent is executing the task.
	TaskInProgress TaskStatus = "in_progress"
	// TaskCompleted means execution finished with a result.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means the task could not be completed.
	TaskFailed TaskStatus = "failed"
	// TaskCancelled means the caller withdrew the task.
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is absorbing: no transition leaves it.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is a unit of work with a lifecycle status. Created pending by the
// caller and mutated only by the supervisor during assignment; the supervisor
// returns defensive copies to concurrent readers.
type Task struct {
	ID            string     `json:"id"`
	Description   string     `json:"description"`
	Status        TaskStatus `json:"status"`
	AssignedAgent string     `json:"assigned_agent,omitempty"`
	Result        string     `json:"result,omitempty"`
	Error         string     `json:"error,omitempty"`
	Created       time.Time  `json:"created"`
	Updated       time.Time  `json:"updated"`
}

// NewTask creates a pending task with a generated id.
func NewTask(description string) *Task {
	now := time.Now().UTC()
	return &Task{ID: NewID(), Description: description, Status: TaskPending, Created: now, Updated: now}
}

func (t *Task) transition(to TaskStatus) error {
	if t.Status.Terminal() {
		return fmt.Errorf("task %s is %s: no transition to %s", t.ID, t.Status, to)
	}
	t.Status = to
	t.Updated = time.Now().UTC()
	return nil
}

// Start marks the task in progress under the given agent.
func (t *Task) Start(agentID string) error {
	if err := t.transition(TaskInProgress); err != nil {
		return err
	}
	t.AssignedAgent = agentID
	return nil
}

// Complete stores the result and marks the task completed.
func (t *Task) Complete(result string) error {
	if err := t.transition(TaskCompleted); err != nil {
		return err
	}
	t.Result = result
	return nil
}

// Fail records the failure reason and marks the task failed.
func (t *Task) Fail(reason string) error {
	if err := t.transition(TaskFailed); err != nil {
		return err
	}
	t.Error = reason
	return nil
}

// Cancel marks the task cancelled.
func (t *Task) Cancel() error { return t.transition(TaskCancelled) }

// Clone returns a copy safe to hand to concurrent readers.
func (t *Task) Clone() *Task {
	clone := *t
	return &clone
}
