package policy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// BudgetPolicy caps the budget a task may declare. A per-agent ceiling wins
// over the per-task ceiling; an agent without either is unconstrained.
type BudgetPolicy struct {
	// PerAgentBudget maps agent ids to their individual ceilings.
	PerAgentBudget map[string]float64

	// PerTaskBudget is the ceiling applied to agents without an individual
	// one. Zero means no per-task ceiling.
	PerTaskBudget float64
}

// CanAllocate reports whether the estimated cost fits the applicable ceiling.
func (p *BudgetPolicy) CanAllocate(agentID string, estimatedCost float64) bool {
	if ceiling, ok := p.PerAgentBudget[agentID]; ok {
		return estimatedCost <= ceiling
	}
	if p.PerTaskBudget > 0 {
		return estimatedCost <= p.PerTaskBudget
	}
	return true
}

// PermissionPolicy matches an agent's granted permissions against a
// resource's required ones.
type PermissionPolicy struct {
	// AgentPermissions maps agent ids to their granted permissions.
	AgentPermissions map[string][]string

	// RequiredPermissions maps resource ids to the permissions they demand.
	RequiredPermissions map[string][]string
}

// CanAccess reports whether the agent may touch the resource. A resource
// without requirements is open; otherwise any overlap grants access.
func (p *PermissionPolicy) CanAccess(agentID, resource string) bool {
	required := p.RequiredPermissions[resource]
	if len(required) == 0 {
		return true
	}

	granted := p.AgentPermissions[agentID]
	for _, req := range required {
		for _, have := range granted {
			if req == have {
				return true
			}
		}
	}
	return false
}

// RetryPolicy decides whether a failed execution is worth another attempt
// and how long to back off before it.
type RetryPolicy struct {
	MaxRetries      int
	BackoffFactor   float64
	RetryableErrors []string
}

// NewRetryPolicy creates a retry policy with the stock defaults: three
// retries, factor 1.5 exponential backoff and the transient-fault markers.
func NewRetryPolicy(optFns ...func(p *RetryPolicy)) RetryPolicy {
	p := RetryPolicy{
		MaxRetries:      3,
		BackoffFactor:   1.5,
		RetryableErrors: []string{"timeout", "rate limit", "temporary failure"},
	}

	for _, fn := range optFns {
		fn(&p)
	}

	return p
}

// ShouldRetry reports whether the attempt budget allows another try and the
// error looks transient (its lowercased text contains a retryable marker).
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxRetries {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range p.RetryableErrors {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// BackoffDelay returns backoff_factor^attempt seconds.
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	return time.Duration(math.Pow(p.BackoffFactor, float64(attempt)) * float64(time.Second))
}

// OrchestrationPolicyOptions configures the composite policy.
type OrchestrationPolicyOptions struct {
	Budget     *BudgetPolicy
	Permission *PermissionPolicy
	Retry      RetryPolicy
}

// OrchestrationPolicy bundles the individual policies behind the single
// Validate/ShouldRetry surface the supervisor consumes.
type OrchestrationPolicy struct {
	budget     *BudgetPolicy
	permission *PermissionPolicy
	retry      RetryPolicy
}

// New creates a composite policy. Without options it validates nothing and
// retries with the stock RetryPolicy.
func New(optFns ...func(o *OrchestrationPolicyOptions)) *OrchestrationPolicy {
	opts := OrchestrationPolicyOptions{
		Retry: NewRetryPolicy(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &OrchestrationPolicy{
		budget:     opts.Budget,
		permission: opts.Permission,
		retry:      opts.Retry,
	}
}

// Validate applies the budget check, then the permission check, for
// assigning the task to the given agent. A nil error means the assignment
// may proceed.
func (p *OrchestrationPolicy) Validate(task *core.Task, agentID string, runCtx *core.RunContext) error {
	if p.budget != nil && runCtx.Budget > 0 {
		if !p.budget.CanAllocate(agentID, runCtx.Budget) {
			return fmt.Errorf("budget %.4f exceeds ceiling for agent %s", runCtx.Budget, agentID)
		}
	}

	if p.permission != nil {
		if !p.permission.CanAccess(agentID, task.ID) {
			return fmt.Errorf("agent %s lacks permission for task %s", agentID, task.ID)
		}
	}

	return nil
}

// ShouldRetry exposes the retry decision for a failed execution attempt.
func (p *OrchestrationPolicy) ShouldRetry(err error, attempt int) bool {
	return p.retry.ShouldRetry(err, attempt)
}

// BackoffDelay exposes the wait before the given retry attempt.
func (p *OrchestrationPolicy) BackoffDelay(attempt int) time.Duration {
	return p.retry.BackoffDelay(attempt)
}
