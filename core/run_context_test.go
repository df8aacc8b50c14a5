package core

import (
	"testing"
	"time"
)

func TestRunContext_Defaults(t *testing.T) {
	rc := NewRunContext("tenant", "user")
	if rc.RequestID == "" {
		t.Fatal("expected a generated request id")
	}
	if rc.TenantID != "tenant" || rc.UserID != "user" {
		t.Fatalf("identity not carried: %+v", rc)
	}
	if rc.Exhausted() {
		t.Error("no limits configured, nothing can be exhausted")
	}
	if rc.Permissions() != nil {
		t.Errorf("expected no permissions, got %v", rc.Permissions())
	}
}

func TestRunContext_BudgetExceeded(t *testing.T) {
	rc := NewRunContext("tenant", "user", func(o *RunContextOptions) {
		o.Budget = 1.0
	})

	rc.AddCost(100, 0.5)
	if rc.BudgetExceeded() {
		t.Error("budget not yet reached")
	}

	rc.AddCost(100, 0.5)
	if !rc.BudgetExceeded() {
		t.Error("cost reached budget, should be exceeded")
	}
	if !rc.Exhausted() {
		t.Error("Exhausted should reflect the budget")
	}

	// negative inputs keep the counters monotonic
	rc.AddCost(-50, -0.25)
	if rc.TokensUsed != 200 || rc.CostIncurred != 1.0 {
		t.Errorf("counters moved backwards: tokens=%d cost=%f", rc.TokensUsed, rc.CostIncurred)
	}
}

func TestRunContext_MaxStepsReached(t *testing.T) {
	rc := NewRunContext("tenant", "user", func(o *RunContextOptions) {
		o.MaxSteps = 2
	})

	rc.IncrementStep()
	if rc.MaxStepsReached() {
		t.Error("one step of two taken")
	}
	rc.IncrementStep()
	if !rc.MaxStepsReached() {
		t.Error("cap reached")
	}

	unlimited := NewRunContext("tenant", "user")
	for i := 0; i < 100; i++ {
		unlimited.IncrementStep()
	}
	if unlimited.MaxStepsReached() {
		t.Error("no cap configured")
	}
}

func TestRunContext_TimedOut(t *testing.T) {
	rc := NewRunContext("tenant", "user", func(o *RunContextOptions) {
		o.Timeout = 10 * time.Millisecond
	})

	if rc.TimedOut() {
		t.Error("clock has not started")
	}

	rc.Start()
	time.Sleep(20 * time.Millisecond)
	if !rc.TimedOut() {
		t.Error("elapsed exceeds the timeout")
	}
}

func TestRunContext_StartIsIdempotent(t *testing.T) {
	rc := NewRunContext("tenant", "user")
	rc.Start()
	first := rc.StartTime

	time.Sleep(5 * time.Millisecond)
	rc.Start()
	if !rc.StartTime.Equal(first) {
		t.Error("second Start must not move the clock")
	}
}

func TestRunContext_ElapsedFreezesAtEnd(t *testing.T) {
	rc := NewRunContext("tenant", "user")
	if rc.Elapsed() != 0 {
		t.Error("no elapsed time before Start")
	}

	rc.Start()
	rc.End()
	frozen := rc.Elapsed()

	time.Sleep(5 * time.Millisecond)
	if rc.Elapsed() != frozen {
		t.Error("Elapsed should freeze once End is recorded")
	}
}

func TestRunContext_Permissions(t *testing.T) {
	rc := NewRunContext("tenant", "user", func(o *RunContextOptions) {
		o.Metadata = map[string]any{"permissions": []string{"read", "write"}}
	})
	perms := rc.Permissions()
	if len(perms) != 2 || perms[0] != "read" || perms[1] != "write" {
		t.Errorf("unexpected permissions: %v", perms)
	}

	// JSON round-trips decode string slices as []any
	rc.Metadata["permissions"] = []any{"admin", 42}
	perms = rc.Permissions()
	if len(perms) != 1 || perms[0] != "admin" {
		t.Errorf("[]any decoding failed: %v", perms)
	}

	rc.Metadata["permissions"] = "not-a-list"
	if rc.Permissions() != nil {
		t.Error("malformed permissions should read as none")
	}
}

func TestRunContext_Snapshot(t *testing.T) {
	rc := NewRunContext("tenant", "user", func(o *RunContextOptions) {
		o.Budget = 2.5
		o.MaxSteps = 7
		o.Timeout = 30 * time.Second
	})
	rc.Start()
	rc.AddCost(120, 0.4)
	rc.IncrementStep()

	snap := rc.Snapshot()
	if snap["tenant_id"] != "tenant" || snap["request_id"] != rc.RequestID {
		t.Fatalf("identity missing from snapshot: %v", snap)
	}
	if snap["tokens_used"] != 120 || snap["cost_incurred"] != 0.4 || snap["steps_taken"] != 1 {
		t.Errorf("counters missing from snapshot: %v", snap)
	}
	if snap["budget"] != 2.5 || snap["max_steps"] != 7 || snap["timeout_seconds"] != 30.0 {
		t.Errorf("limits missing from snapshot: %v", snap)
	}
	if _, ok := snap["elapsed_seconds"]; !ok {
		t.Error("started context should report elapsed time")
	}

	bare := NewRunContext("tenant", "user").Snapshot()
	for _, key := range []string{"budget", "max_steps", "timeout_seconds", "start_time", "end_time"} {
		if _, ok := bare[key]; ok {
			t.Errorf("unset %s should be omitted from snapshot", key)
		}
	}
}
