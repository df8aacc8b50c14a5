package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/memory"
	"github.com/hupe1980/taskmesh/model"
	"github.com/hupe1980/taskmesh/tool"
)

// DefaultCostPerToken is the per-token rate used for cost accounting when no
// rate is configured. Roughly blended commodity pricing; override it per
// agent when accuracy matters.
const DefaultCostPerToken = 0.000002

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Description   string
	SystemPrompt  string
	Capabilities  []string
	Registry      *tool.Registry
	Memory        memory.Store
	MaxIterations int
	HistoryWindow int
	Strategy      Strategy
	ReflectRounds int
	CostPerToken  float64
	Estimator     model.Estimator
	Logger        logging.Logger
}

// ModelAgent runs the bounded reason/act/observe loop against a reasoning
// service.
//
// Each Process call loads the agent's persisted state (when a memory store is
// configured), appends the input as a user message and then iterates: build a
// request from the system prompt plus the recent history window, call the
// model, execute any requested tool calls through the registry and feed the
// observations back. The loop ends when the model answers without tool calls,
// when max iterations run out or when the caller's ledger hits a limit
// (steps, budget, timeout). Hitting a limit is not an error; the last
// assistant content is returned best-effort.
//
// Tool faults never abort the loop: the registry turns unknown tools,
// validation failures, tool errors and panics into error observations the
// model sees as data. Only reasoning-service faults propagate to the caller.
type ModelAgent struct {
	name          string
	description   string
	systemPrompt  string
	capabilities  []string
	model         model.Model
	registry      *tool.Registry
	memory        memory.Store
	maxIterations int
	historyWindow int
	strategy      Strategy
	reflectRounds int
	costPerToken  float64
	estimator     model.Estimator
	logger        logging.Logger
}

// NewModelAgent creates a model-backed agent with sensible defaults.
//
// The agent is initialized with:
//   - A generic system prompt derived from the name
//   - No tool registry and no memory store (pure chat)
//   - 10 loop iterations and a 20-message history window
//   - The plain strategy (no planning, reflection or recall)
//   - A length-heuristic token estimator for models that return no usage;
//     pass a tiktoken-backed estimator for accurate accounting
//
// Example:
//
//	researcher := agent.NewModelAgent("researcher", m,
//		func(o *agent.ModelAgentOptions) {
//			o.Registry = registry
//			o.Strategy = agent.StrategyPlanExecute
//			o.Capabilities = []string{"research", "web"}
//		},
//	)
func NewModelAgent(name string, m model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Description:   fmt.Sprintf("Agent %s", name),
		SystemPrompt:  fmt.Sprintf("You are %s, a helpful AI assistant.", name),
		MaxIterations: 10,
		HistoryWindow: 20,
		Strategy:      StrategyPlain,
		ReflectRounds: 2,
		CostPerToken:  DefaultCostPerToken,
		Estimator:     model.HeuristicEstimator{},
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ModelAgent{
		name:          name,
		description:   opts.Description,
		systemPrompt:  opts.SystemPrompt,
		capabilities:  opts.Capabilities,
		model:         m,
		registry:      opts.Registry,
		memory:        opts.Memory,
		maxIterations: opts.MaxIterations,
		historyWindow: opts.HistoryWindow,
		strategy:      opts.Strategy,
		reflectRounds: opts.ReflectRounds,
		costPerToken:  opts.CostPerToken,
		estimator:     opts.Estimator,
		logger:        opts.Logger,
	}
}

// Name returns the agent's identifier, also used as its memory key.
func (a *ModelAgent) Name() string { return a.name }

// Description returns a human-readable description of the agent's purpose.
func (a *ModelAgent) Description() string { return a.description }

// Capabilities returns a copy of the agent's declared capability tags.
func (a *ModelAgent) Capabilities() []string {
	caps := make([]string, len(a.capabilities))
	copy(caps, a.capabilities)
	return caps
}

// ToolCount reports how many tools the agent's registry holds.
func (a *ModelAgent) ToolCount() int {
	if a.registry == nil {
		return 0
	}
	return a.registry.Count()
}

// Process implements core.Agent. It runs the execution loop for one input and
// returns the final answer. State is persisted only at this boundary, never
// mid-loop.
func (a *ModelAgent) Process(ctx context.Context, input string, runCtx *core.RunContext) (string, error) {
	start := time.Now()
	runCtx.Start()

	a.logger.Info("agent.run.start", "agent", a.name, "request_id", runCtx.RequestID, "strategy", string(a.strategy))

	state := a.loadState()
	state.AddMessage(core.NewUserMessage(input))

	preamble, err := a.prepare(ctx, input, runCtx)
	if err != nil {
		a.finish(state, runCtx, start, false)
		return "", err
	}

	answer, err := a.runLoop(ctx, state, runCtx, preamble)
	if err != nil {
		a.finish(state, runCtx, start, false)
		return "", err
	}

	answer, err = a.refine(ctx, input, answer, state, runCtx)
	if err != nil {
		a.finish(state, runCtx, start, false)
		return "", err
	}

	a.finish(state, runCtx, start, true)

	return answer, nil
}

// runLoop is the core iteration cycle. All limits are checked at iteration
// boundaries; an in-flight model call is only bounded by ctx.
func (a *ModelAgent) runLoop(ctx context.Context, state *core.AgentState, runCtx *core.RunContext, preamble string) (string, error) {
	lastContent := ""

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if runCtx.Exhausted() {
			a.logger.Warn("agent.run.limit",
				"agent", a.name,
				"iteration", iteration,
				"steps", runCtx.StepsTaken,
				"tokens", runCtx.TokensUsed,
				"cost", runCtx.CostIncurred,
			)
			break
		}

		resp, err := a.generate(ctx, a.buildRequest(state, runCtx, preamble), runCtx)
		if err != nil {
			a.logger.Error("agent.model.error", "agent", a.name, "iteration", iteration, "error", err.Error())
			return "", fmt.Errorf("model generate: %w", err)
		}

		state.AddMessage(core.NewAssistantMessage(resp.Content, resp.ToolCalls...))
		lastContent = resp.Content

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		for _, call := range resp.ToolCalls {
			obs := a.executeCall(ctx, call)
			state.AddMessage(core.NewToolMessage(obs))
		}
		runCtx.IncrementStep()

		a.logger.Debug("agent.tool.round",
			"agent", a.name,
			"iteration", iteration,
			"calls", len(resp.ToolCalls),
			"step", runCtx.StepsTaken,
		)
	}

	// Exhausted without a final answer: best effort, not an error.
	return lastContent, nil
}

// buildRequest assembles the model request: rendered system prompt, strategy
// preamble, the recent history window and the tool definitions the caller's
// permissions allow.
func (a *ModelAgent) buildRequest(state *core.AgentState, runCtx *core.RunContext, preamble string) model.Request {
	system := a.renderSystemPrompt(state)
	if preamble != "" {
		if system != "" {
			system += "\n\n"
		}
		system += preamble
	}

	history := state.Messages
	if a.historyWindow > 0 && len(history) > a.historyWindow {
		history = history[len(history)-a.historyWindow:]
	}

	messages := make([]core.Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, core.NewSystemMessage(system))
	}
	messages = append(messages, history...)

	req := model.Request{Messages: messages}
	if a.registry != nil {
		req.Tools = a.registry.Definitions(runCtx.Permissions())
	}

	return req
}

// renderSystemPrompt expands template markers in the system prompt against
// the agent's persistent metadata. A rendering fault falls back to the raw
// prompt rather than failing the run.
func (a *ModelAgent) renderSystemPrompt(state *core.AgentState) string {
	promptState := map[string]any{"agent_name": a.name}
	for k, v := range state.Metadata {
		promptState[k] = v
	}

	rendered, err := util.RenderPrompt(a.systemPrompt, promptState)
	if err != nil {
		a.logger.Warn("agent.prompt.render_error", "agent", a.name, "error", err.Error())
		return a.systemPrompt
	}
	return rendered
}

// generate calls the model and records usage into the ledger. Provider usage
// wins when present; otherwise the estimator approximates request plus
// response tokens.
func (a *ModelAgent) generate(ctx context.Context, req model.Request, runCtx *core.RunContext) (*model.Response, error) {
	resp, err := a.model.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	} else {
		for _, msg := range req.Messages {
			tokens += a.estimator.EstimateTokens(msg.Content)
		}
		tokens += a.estimator.EstimateTokens(resp.Content)
	}
	runCtx.AddCost(tokens, float64(tokens)*a.costPerToken)

	return resp, nil
}

// executeCall routes one tool call through the registry. Faults become error
// observations so the loop continues; a missing registry is just another
// fault the model can react to.
func (a *ModelAgent) executeCall(ctx context.Context, call core.ToolCall) core.Observation {
	if a.registry == nil {
		return core.Observation{
			ToolCallID:   call.ID,
			IsError:      true,
			ErrorMessage: fmt.Sprintf("tool '%s' not available: no registry configured", call.Name),
		}
	}
	return a.registry.Execute(ctx, call)
}

func (a *ModelAgent) loadState() *core.AgentState {
	if a.memory == nil {
		return core.NewAgentState()
	}

	state, ok, err := a.memory.Load(a.name)
	if err != nil {
		a.logger.Warn("agent.memory.load_error", "agent", a.name, "error", err.Error())
		return core.NewAgentState()
	}
	if !ok {
		return core.NewAgentState()
	}
	return state
}

// finish persists state, closes the ledger and emits the run summary. Save
// faults are logged, not returned: the answer already happened.
func (a *ModelAgent) finish(state *core.AgentState, runCtx *core.RunContext, start time.Time, success bool) {
	if a.memory != nil {
		if err := a.memory.Save(a.name, state); err != nil {
			a.logger.Error("agent.memory.save_error", "agent", a.name, "error", err.Error())
		}
	}

	runCtx.End()

	a.logger.Info("agent.run.end",
		"agent", a.name,
		"request_id", runCtx.RequestID,
		"success", success,
		"steps", runCtx.StepsTaken,
		"tokens", runCtx.TokensUsed,
		"cost", runCtx.CostIncurred,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
