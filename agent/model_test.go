package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/memory"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ core.Agent = (*ModelAgent)(nil)

// scriptedModel replays canned responses in order and records every request
// it sees. When the script runs out it answers "done" without tool calls.
type scriptedModel struct {
	requests []model.Request
	script   []*model.Response
	err      error
}

func (m *scriptedModel) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}

	m.requests = append(m.requests, req)
	if len(m.requests) <= len(m.script) {
		return m.script[len(m.requests)-1], nil
	}
	return &model.Response{Content: "done", FinishReason: "stop"}, nil
}

func (m *scriptedModel) Info() model.Info {
	return model.Info{Name: "scripted", Provider: "test", SupportsTools: true}
}

// loopModel always requests a tool call, so only external bounds can stop
// the loop.
type loopModel struct {
	calls int
}

func (m *loopModel) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls++
	return &model.Response{
		Content: fmt.Sprintf("working %d", m.calls),
		ToolCalls: []core.ToolCall{
			{ID: fmt.Sprintf("c%d", m.calls), Name: "noop", Arguments: map[string]any{}},
		},
	}, nil
}

func (m *loopModel) Info() model.Info {
	return model.Info{Name: "loop", Provider: "test", SupportsTools: true}
}

func echoTool(t *testing.T) tool.Tool {
	t.Helper()
	schema := tool.Schema{
		Type: "object",
		Properties: map[string]tool.Property{
			"text": {Type: "string", Description: "Text to echo"},
		},
		Required: []string{"text"},
	}
	return tool.NewFunctionTool("echo", "Echoes the input text", schema, func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})
}

func TestNewModelAgent_Defaults(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	a := NewModelAgent("helper", m)

	assert.Equal(t, "helper", a.Name())
	assert.Equal(t, "Agent helper", a.Description())
	assert.Empty(t, a.Capabilities())
	assert.Equal(t, 10, a.maxIterations)
	assert.Equal(t, 20, a.historyWindow)
	assert.Equal(t, StrategyPlain, a.strategy)
}

func TestModelAgent_CapabilitiesCopy(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.Capabilities = []string{"math", "research"}
	})

	caps := a.Capabilities()
	caps[0] = "mutated"
	assert.Equal(t, []string{"math", "research"}, a.Capabilities())
}

func TestModelAgent_FinalAnswerWithoutTools(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.AddResponse("What is the capital of France?", "Paris.")

	a := NewModelAgent("helper", m)
	runCtx := core.NewRunContext("tenant", "user")

	answer, err := a.Process(context.Background(), "What is the capital of France?", runCtx)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", answer)
	assert.Equal(t, 1, m.Calls())
	assert.Zero(t, runCtx.StepsTaken)
	assert.Greater(t, runCtx.TokensUsed, 0)
	assert.Greater(t, runCtx.CostIncurred, 0.0)
	assert.False(t, runCtx.EndTime.IsZero())
}

func TestModelAgent_ToolRoundTrip(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(echoTool(t)))

	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.Response{
		Content: "",
		ToolCalls: []core.ToolCall{
			{ID: "call_1", Name: "echo", Arguments: map[string]any{"text": "ping"}},
		},
	})
	m.Enqueue(model.Response{Content: "The tool said: ping"})

	store := memory.NewInMemoryStore()
	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.Registry = registry
		o.Memory = store
	})

	runCtx := core.NewRunContext("tenant", "user")
	answer, err := a.Process(context.Background(), "Echo ping", runCtx)
	require.NoError(t, err)
	assert.Equal(t, "The tool said: ping", answer)
	assert.Equal(t, 2, m.Calls())
	assert.Equal(t, 1, runCtx.StepsTaken)

	msgs, err := store.Messages("helper", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4) // user, assistant(tool call), tool, assistant(answer)
	assert.Equal(t, core.RoleTool, msgs[2].Role)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
	assert.Equal(t, "ping", msgs[2].Content)
	assert.False(t, msgs[2].IsErrorObservation())
}

func TestModelAgent_MaxIterationsBound(t *testing.T) {
	m := &loopModel{}
	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.MaxIterations = 3
	})

	runCtx := core.NewRunContext("tenant", "user")
	answer, err := a.Process(context.Background(), "never finishes", runCtx)
	require.NoError(t, err)
	assert.Equal(t, 3, m.calls)
	assert.Equal(t, "working 3", answer)
}

func TestModelAgent_MaxStepsBound(t *testing.T) {
	m := &loopModel{}
	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.MaxIterations = 10
	})

	runCtx := core.NewRunContext("tenant", "user", func(o *core.RunContextOptions) {
		o.MaxSteps = 1
	})

	answer, err := a.Process(context.Background(), "never finishes", runCtx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, 1, runCtx.StepsTaken)
	assert.Equal(t, "working 1", answer)
}

func TestModelAgent_BudgetBound(t *testing.T) {
	m := &loopModel{}
	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.MaxIterations = 10
		o.CostPerToken = 1.0 // every token blows through the budget
	})

	runCtx := core.NewRunContext("tenant", "user", func(o *core.RunContextOptions) {
		o.Budget = 0.5
	})

	answer, err := a.Process(context.Background(), "never finishes", runCtx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.calls)
	assert.True(t, runCtx.BudgetExceeded())
	assert.Equal(t, "working 1", answer)
}

func TestModelAgent_ToolPanicBecomesObservation(t *testing.T) {
	registry := tool.NewRegistry()
	schema := tool.Schema{Type: "object", Properties: map[string]tool.Property{}}
	boom := tool.NewFunctionTool("boom", "Always panics", schema, func(ctx context.Context, args map[string]any) (any, error) {
		panic("kaboom")
	})
	require.NoError(t, registry.Register(boom))

	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.Response{
		ToolCalls: []core.ToolCall{{ID: "call_1", Name: "boom", Arguments: map[string]any{}}},
	})
	m.Enqueue(model.Response{Content: "recovered fine"})

	store := memory.NewInMemoryStore()
	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.Registry = registry
		o.Memory = store
	})

	runCtx := core.NewRunContext("tenant", "user")
	answer, err := a.Process(context.Background(), "trigger the panic", runCtx)
	require.NoError(t, err)
	assert.Equal(t, "recovered fine", answer)

	msgs, err := store.Messages("helper", 0)
	require.NoError(t, err)
	var toolMsg *core.Message
	for i := range msgs {
		if msgs[i].Role == core.RoleTool {
			toolMsg = &msgs[i]
			break
		}
	}
	require.NotNil(t, toolMsg, "expected a tool message in the transcript")
	assert.True(t, toolMsg.IsErrorObservation())
	assert.Contains(t, toolMsg.Content, "panic recovered")
}

func TestModelAgent_MissingRegistryBecomesObservation(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.Enqueue(model.Response{
		ToolCalls: []core.ToolCall{{ID: "call_1", Name: "ghost", Arguments: map[string]any{}}},
	})
	m.Enqueue(model.Response{Content: "carried on"})

	store := memory.NewInMemoryStore()
	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.Memory = store
	})

	answer, err := a.Process(context.Background(), "call a ghost tool", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)
	assert.Equal(t, "carried on", answer)

	msgs, _ := store.Messages("helper", 0)
	require.Len(t, msgs, 4)
	assert.True(t, msgs[2].IsErrorObservation())
	assert.Contains(t, msgs[2].Content, "no registry configured")
}

func TestModelAgent_ModelErrorPropagates(t *testing.T) {
	m := &scriptedModel{err: errors.New("provider unavailable")}
	a := NewModelAgent("helper", m)

	runCtx := core.NewRunContext("tenant", "user")
	_, err := a.Process(context.Background(), "anything", runCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unavailable")
	assert.False(t, runCtx.EndTime.IsZero(), "ledger must close even on failure")
}

func TestModelAgent_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := model.NewMockModel("mock", "test")
	a := NewModelAgent("helper", m)

	_, err := a.Process(ctx, "anything", core.NewRunContext("tenant", "user"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.Calls())
}

func TestModelAgent_HistoryWindow(t *testing.T) {
	store := memory.NewInMemoryStore()
	for i := 0; i < 6; i++ {
		require.NoError(t, store.AddMessage("helper", core.NewUserMessage(fmt.Sprintf("old %d", i))))
	}

	m := &scriptedModel{}
	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.Memory = store
		o.HistoryWindow = 2
	})

	_, err := a.Process(context.Background(), "newest input", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)

	require.Len(t, m.requests, 1)
	msgs := m.requests[0].Messages
	// system prompt + the two most recent history entries
	require.Len(t, msgs, 3)
	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Equal(t, "old 5", msgs[1].Content)
	assert.Equal(t, "newest input", msgs[2].Content)
}

func TestModelAgent_TemplatedSystemPrompt(t *testing.T) {
	m := &scriptedModel{}
	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.SystemPrompt = "You are {{.agent_name}}, scoped to {{.tenant}}."
		o.Memory = memory.NewInMemoryStore()
	})

	// seed the metadata the template reads
	state := core.NewAgentState()
	state.Metadata["tenant"] = "acme"
	require.NoError(t, a.memory.Save("helper", state))

	_, err := a.Process(context.Background(), "hi", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)

	require.Len(t, m.requests, 1)
	assert.Equal(t, "You are helper, scoped to acme.", m.requests[0].Messages[0].Content)
}

func TestModelAgent_PermissionFilteredTools(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(echoTool(t)))

	schema := tool.Schema{Type: "object", Properties: map[string]tool.Property{}}
	admin := tool.NewFunctionTool("wipe", "Dangerous admin tool", schema, func(ctx context.Context, args map[string]any) (any, error) {
		return "wiped", nil
	})
	require.NoError(t, registry.Register(admin, "admin"))

	m := &scriptedModel{}
	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.Registry = registry
	})

	// caller with limited permissions sees only the public tool
	limited := core.NewRunContext("tenant", "user", func(o *core.RunContextOptions) {
		o.Metadata = map[string]any{"permissions": []string{"basic"}}
	})
	_, err := a.Process(context.Background(), "first", limited)
	require.NoError(t, err)
	require.Len(t, m.requests, 1)
	require.Len(t, m.requests[0].Tools, 1)
	assert.Equal(t, "echo", m.requests[0].Tools[0].Name)

	// caller without a permissions claim is trusted internal traffic
	trusted := core.NewRunContext("tenant", "user")
	_, err = a.Process(context.Background(), "second", trusted)
	require.NoError(t, err)
	require.Len(t, m.requests, 2)
	assert.Len(t, m.requests[1].Tools, 2)
}

func TestModelAgent_StatePersistsAcrossRuns(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := model.NewMockModel("mock", "test")
	m.AddResponse("first question", "first answer")
	m.AddResponse("second question", "second answer")

	a := NewModelAgent("helper", m, func(o *ModelAgentOptions) {
		o.Memory = store
	})

	_, err := a.Process(context.Background(), "first question", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)
	_, err = a.Process(context.Background(), "second question", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)

	msgs, err := store.Messages("helper", 0)
	require.NoError(t, err)
	// both conversations accumulate in one transcript
	require.Len(t, msgs, 4)
	assert.Equal(t, "first question", msgs[0].Content)
	assert.Equal(t, "second answer", msgs[3].Content)
}
