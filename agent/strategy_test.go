package agent

import (
	"context"
	"testing"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/memory"
	"github.com/hupe1980/taskmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input   string
		want    Strategy
		wantErr bool
	}{
		{input: "", want: StrategyPlain},
		{input: "plain", want: StrategyPlain},
		{input: "plan_execute", want: StrategyPlanExecute},
		{input: "reflect", want: StrategyReflect},
		{input: "retrieval", want: StrategyRetrieval},
		{input: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("input_"+tt.input, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "dotted numbering",
			text: "1. Research the topic\n2. Summarize findings",
			want: []string{"Research the topic", "Summarize findings"},
		},
		{
			name: "mixed markers and noise",
			text: "Here is my plan:\n1) Gather sources\nsome aside\n12. Write the report",
			want: []string{"Gather sources", "Write the report"},
		},
		{
			name: "no numbered lines",
			text: "just do the thing",
			want: nil,
		},
		{
			name: "empty step dropped",
			text: "1.\n2. Real step",
			want: []string{"Real step"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parsePlan(tt.text))
		})
	}
}

func TestParseCritique(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		satisfactory bool
		issues       int
	}{
		{
			name:         "clean verdict",
			content:      `{"is_satisfactory": false, "issues": ["too short", "no sources"]}`,
			satisfactory: false,
			issues:       2,
		},
		{
			name:         "json wrapped in prose",
			content:      `Sure, here is my review: {"is_satisfactory": true, "issues": []} Hope that helps!`,
			satisfactory: true,
		},
		{
			name:         "no json falls back to satisfied",
			content:      "looks good to me",
			satisfactory: true,
		},
		{
			name:         "broken json falls back to satisfied",
			content:      `{"is_satisfactory": fal`,
			satisfactory: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := parseCritique(tt.content)
			assert.Equal(t, tt.satisfactory, verdict.IsSatisfactory)
			assert.Len(t, verdict.Issues, tt.issues)
		})
	}
}

func TestModelAgent_PlanExecuteStrategy(t *testing.T) {
	m := &scriptedModel{script: []*model.Response{
		{Content: "Here you go:\n1. Research the topic\n2) Summarize findings"},
		{Content: "all done"},
	}}

	a := NewModelAgent("planner", m, func(o *ModelAgentOptions) {
		o.Strategy = StrategyPlanExecute
	})

	answer, err := a.Process(context.Background(), "write a brief", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)
	assert.Equal(t, "all done", answer)
	require.Len(t, m.requests, 2)

	// the planning call carries no tools and the plan instruction
	planReq := m.requests[0]
	assert.Empty(t, planReq.Tools)
	require.Len(t, planReq.Messages, 2)
	assert.Equal(t, planInstruction, planReq.Messages[0].Content)
	assert.Equal(t, "write a brief", planReq.Messages[1].Content)

	// the loop call carries the normalized plan in its system message
	loopReq := m.requests[1]
	require.NotEmpty(t, loopReq.Messages)
	system := loopReq.Messages[0].Content
	assert.Contains(t, system, "Follow this plan:")
	assert.Contains(t, system, "1. Research the topic")
	assert.Contains(t, system, "2. Summarize findings")
}

func TestModelAgent_PlanWithoutNumbering(t *testing.T) {
	m := &scriptedModel{script: []*model.Response{
		{Content: "just wing it carefully"},
		{Content: "done winging"},
	}}

	a := NewModelAgent("planner", m, func(o *ModelAgentOptions) {
		o.Strategy = StrategyPlanExecute
	})

	_, err := a.Process(context.Background(), "improvise", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)
	require.Len(t, m.requests, 2)
	assert.Contains(t, m.requests[1].Messages[0].Content, "Plan:\njust wing it carefully")
}

func TestModelAgent_ReflectStrategy(t *testing.T) {
	m := &scriptedModel{script: []*model.Response{
		{Content: "draft"},
		{Content: `{"is_satisfactory": false, "issues": ["too short"]}`},
		{Content: "final improved"},
		{Content: `{"is_satisfactory": true, "issues": []}`},
	}}

	a := NewModelAgent("editor", m, func(o *ModelAgentOptions) {
		o.Strategy = StrategyReflect
		o.ReflectRounds = 2
	})

	answer, err := a.Process(context.Background(), "write a haiku", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)
	assert.Equal(t, "final improved", answer)
	require.Len(t, m.requests, 4)

	critiqueReq := m.requests[1]
	assert.Equal(t, critiqueInstruction, critiqueReq.Messages[0].Content)
	assert.Contains(t, critiqueReq.Messages[1].Content, "draft")

	regenReq := m.requests[2]
	assert.Contains(t, regenReq.Messages[1].Content, "too short")
}

func TestModelAgent_ReflectStopsWhenSatisfied(t *testing.T) {
	m := &scriptedModel{script: []*model.Response{
		{Content: "already great"},
		{Content: `{"is_satisfactory": true, "issues": []}`},
	}}

	a := NewModelAgent("editor", m, func(o *ModelAgentOptions) {
		o.Strategy = StrategyReflect
		o.ReflectRounds = 3
	})

	answer, err := a.Process(context.Background(), "write a haiku", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)
	assert.Equal(t, "already great", answer)
	// one loop call plus one critique, no regeneration
	assert.Len(t, m.requests, 2)
}

func TestModelAgent_RetrievalStrategy(t *testing.T) {
	store := memory.NewInMemoryStore()
	require.NoError(t, store.AddMessage("concierge", core.NewUserMessage("the deploy window is Friday 6pm")))
	require.NoError(t, store.AddMessage("concierge", core.NewUserMessage("lunch is at noon")))

	m := &scriptedModel{script: []*model.Response{
		{Content: "Deploys happen Friday at 6pm."},
	}}

	a := NewModelAgent("concierge", m, func(o *ModelAgentOptions) {
		o.Strategy = StrategyRetrieval
		o.Memory = store
	})

	answer, err := a.Process(context.Background(), "deploy window", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)
	assert.Equal(t, "Deploys happen Friday at 6pm.", answer)

	require.NotEmpty(t, m.requests)
	system := m.requests[0].Messages[0].Content
	assert.Contains(t, system, "Relevant prior context:")
	assert.Contains(t, system, "the deploy window is Friday 6pm")
	assert.NotContains(t, system, "lunch is at noon")
}

func TestModelAgent_RetrievalWithoutSearcherIsNoOp(t *testing.T) {
	m := &scriptedModel{script: []*model.Response{{Content: "plain answer"}}}

	a := NewModelAgent("concierge", m, func(o *ModelAgentOptions) {
		o.Strategy = StrategyRetrieval // no memory store configured
	})

	answer, err := a.Process(context.Background(), "anything", core.NewRunContext("tenant", "user"))
	require.NoError(t, err)
	assert.Equal(t, "plain answer", answer)
	require.Len(t, m.requests, 1)
	assert.NotContains(t, m.requests[0].Messages[0].Content, "Relevant prior context:")
}
