package core

import "time"

// RunContext is the per-request resource ledger threaded through one
// top-level call chain. It tracks monotonically non-decreasing counters
// (steps, tokens, cost) against optional limits (budget, max steps, timeout).
//
// Contract:
//   - One context per top-level request, discarded after the call returns
//   - Owned by the caller that created it; passed by reference down the chain
//     but never shared across independent requests, so no internal locking
//   - Limit checks are performed at loop-iteration boundaries, not by
//     interrupting in-flight calls
type RunContext struct {
	TenantID  string        `json:"tenant_id"`
	UserID    string        `json:"user_id"`
	RequestID string        `json:"request_id"`
	Budget    float64       `json:"budget,omitempty"`    // currency units, 0 = unlimited
	MaxSteps  int           `json:"max_steps,omitempty"` // tool rounds, 0 = unlimited
	Timeout   time.Duration `json:"timeout,omitempty"`   // wall clock, 0 = none
	Metadata  map[string]any `json:"metadata,omitempty"`

	StepsTaken   int     `json:"steps_taken"`
	TokensUsed   int     `json:"tokens_used"`
	CostIncurred float64 `json:"cost_incurred"`

	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// RunContextOptions configures optional limits on a new RunContext.
type RunContextOptions struct {
	Budget   float64
	MaxSteps int
	Timeout  time.Duration
	Metadata map[string]any
}

// NewRunContext creates a ledger for one request with a generated request id.
func NewRunContext(tenantID, userID string, optFns ...func(o *RunContextOptions)) *RunContext {
	opts := RunContextOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	md := opts.Metadata
	if md == nil {
		md = map[string]any{}
	}

	return &RunContext{
		TenantID:  tenantID,
		UserID:    userID,
		RequestID: NewID(),
		Budget:    opts.Budget,
		MaxSteps:  opts.MaxSteps,
		Timeout:   opts.Timeout,
		Metadata:  md,
	}
}

// Start records the wall-clock start. Idempotent: only the first call sets it.
func (rc *RunContext) Start() {
	if rc.StartTime.IsZero() {
		rc.StartTime = time.Now().UTC()
	}
}

// End records the wall-clock end of the request.
func (rc *RunContext) End() { rc.EndTime = time.Now().UTC() }

// AddCost accumulates token usage and estimated cost. Negative inputs are
// ignored to keep the counters monotonic.
func (rc *RunContext) AddCost(tokens int, cost float64) {
	if tokens > 0 {
		rc.TokensUsed += tokens
	}
	if cost > 0 {
		rc.CostIncurred += cost
	}
}

// IncrementStep advances the step counter by one.
func (rc *RunContext) IncrementStep() { rc.StepsTaken++ }

// BudgetExceeded reports whether incurred cost reached the declared budget.
// Always false when no budget is set.
func (rc *RunContext) BudgetExceeded() bool {
	return rc.Budget > 0 && rc.CostIncurred >= rc.Budget
}

// MaxStepsReached reports whether the step counter reached the declared cap.
// Always false when no cap is set.
func (rc *RunContext) MaxStepsReached() bool {
	return rc.MaxSteps > 0 && rc.StepsTaken >= rc.MaxSteps
}

// TimedOut reports whether the elapsed wall clock reached the declared
// timeout. Always false before Start or when no timeout is set.
func (rc *RunContext) TimedOut() bool {
	if rc.Timeout <= 0 || rc.StartTime.IsZero() {
		return false
	}
	return rc.Elapsed() >= rc.Timeout
}

// Exhausted reports whether any of the configured limits has been hit.
func (rc *RunContext) Exhausted() bool {
	return rc.BudgetExceeded() || rc.MaxStepsReached() || rc.TimedOut()
}

// Elapsed returns the wall clock spent since Start (until End if recorded).
func (rc *RunContext) Elapsed() time.Duration {
	if rc.StartTime.IsZero() {
		return 0
	}
	if !rc.EndTime.IsZero() {
		return rc.EndTime.Sub(rc.StartTime)
	}
	return time.Since(rc.StartTime)
}

// Permissions returns the caller's granted permissions from metadata. Both
// []string and []any-of-string encodings are accepted since metadata often
// round-trips through JSON.
func (rc *RunContext) Permissions() []string {
	raw, ok := rc.Metadata["permissions"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		perms := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				perms = append(perms, s)
			}
		}
		return perms
	}
	return nil
}

// Snapshot returns the ledger in map form for surfaces and audit trails.
func (rc *RunContext) Snapshot() map[string]any {
	snap := map[string]any{
		"tenant_id":     rc.TenantID,
		"user_id":       rc.UserID,
		"request_id":    rc.RequestID,
		"steps_taken":   rc.StepsTaken,
		"tokens_used":   rc.TokensUsed,
		"cost_incurred": rc.CostIncurred,
	}
	if rc.Budget > 0 {
		snap["budget"] = rc.Budget
	}
	if rc.MaxSteps > 0 {
		snap["max_steps"] = rc.MaxSteps
	}
	if rc.Timeout > 0 {
		snap["timeout_seconds"] = rc.Timeout.Seconds()
	}
	if !rc.StartTime.IsZero() {
		snap["start_time"] = rc.StartTime
		snap["elapsed_seconds"] = rc.Elapsed().Seconds()
	}
	if !rc.EndTime.IsZero() {
		snap["end_time"] = rc.EndTime
	}
	return snap
}
