package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/memory"
	"github.com/hupe1980/taskmesh/model"
)

// Strategy selects how a ModelAgent augments the plain execution loop. Each
// strategy attaches hooks before or after the loop; the loop itself is shared.
type Strategy string

const (
	// StrategyPlain runs the loop without augmentation.
	StrategyPlain Strategy = "plain"
	// StrategyPlanExecute makes one no-tools planning call before the loop
	// and injects the parsed plan as loop context.
	StrategyPlanExecute Strategy = "plan_execute"
	// StrategyReflect critiques the loop's answer afterwards and regenerates
	// it while the reviewer flags issues, up to a bounded number of rounds.
	StrategyReflect Strategy = "reflect"
	// StrategyRetrieval recalls related transcript entries from the memory
	// store before the loop and injects them as context.
	StrategyRetrieval Strategy = "retrieval"
)

// ParseStrategy maps a config string onto a Strategy. Empty selects plain.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyPlain, nil
	case StrategyPlain, StrategyPlanExecute, StrategyReflect, StrategyRetrieval:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy: %q", s)
}

const (
	recallLimit = 5

	planInstruction = "You are a planning assistant. Break the task into a short numbered list of concrete steps. Respond with the numbered list only."

	critiqueInstruction = "You are a strict reviewer. Evaluate whether the answer fully addresses the task. Respond with JSON only: {\"is_satisfactory\": true|false, \"issues\": [\"...\"]}"
)

// prepare runs the pre-loop hook for the configured strategy and returns the
// context preamble injected into every loop request.
func (a *ModelAgent) prepare(ctx context.Context, input string, runCtx *core.RunContext) (string, error) {
	switch a.strategy {
	case StrategyPlanExecute:
		return a.buildPlan(ctx, input, runCtx)
	case StrategyRetrieval:
		return a.recall(input), nil
	default:
		return "", nil
	}
}

// buildPlan asks the model for an ordered plan without offering tools. The
// numbered lines become the loop preamble; a reply without numbering is
// injected verbatim.
func (a *ModelAgent) buildPlan(ctx context.Context, input string, runCtx *core.RunContext) (string, error) {
	req := model.Request{Messages: []core.Message{
		core.NewSystemMessage(planInstruction),
		core.NewUserMessage(input),
	}}

	resp, err := a.generate(ctx, req, runCtx)
	if err != nil {
		return "", fmt.Errorf("plan generation: %w", err)
	}

	steps := parsePlan(resp.Content)
	a.logger.Debug("agent.plan.created", "agent", a.name, "steps", len(steps))

	if len(steps) == 0 {
		return "Plan:\n" + strings.TrimSpace(resp.Content), nil
	}

	var b strings.Builder
	b.WriteString("Follow this plan:\n")
	for i, step := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// parsePlan extracts steps from numbered lines ("1. ..." or "1) ...").
// Anything else is ignored; plan parsing stays a line heuristic.
func parsePlan(text string) []string {
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		i := 0
		for i < len(line) && line[i] >= '0' && line[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(line) {
			continue
		}
		if line[i] != '.' && line[i] != ')' {
			continue
		}
		if step := strings.TrimSpace(line[i+1:]); step != "" {
			steps = append(steps, step)
		}
	}
	return steps
}

// recall searches the memory store for transcript entries related to the
// input. Recall is best effort: a store without search support or a search
// fault yields no preamble, never an error.
func (a *ModelAgent) recall(input string) string {
	if a.memory == nil {
		return ""
	}
	searcher, ok := a.memory.(memory.Searcher)
	if !ok {
		return ""
	}

	results, err := searcher.Search(a.name, input, recallLimit)
	if err != nil {
		a.logger.Warn("agent.memory.recall_error", "agent", a.name, "error", err.Error())
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	a.logger.Debug("agent.memory.recall", "agent", a.name, "results", len(results))

	var b strings.Builder
	b.WriteString("Relevant prior context:\n")
	for _, msg := range results {
		fmt.Fprintf(&b, "- %s\n", msg.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// critique is the reviewer verdict the reflect strategy expects as JSON.
type critique struct {
	IsSatisfactory bool     `json:"is_satisfactory"`
	Issues         []string `json:"issues"`
}

// refine runs the post-loop hook. For the reflect strategy the answer is
// reviewed and regenerated until the reviewer is satisfied or the round
// budget runs out; every other strategy returns the answer unchanged.
func (a *ModelAgent) refine(ctx context.Context, input, answer string, state *core.AgentState, runCtx *core.RunContext) (string, error) {
	if a.strategy != StrategyReflect || a.reflectRounds <= 0 || answer == "" {
		return answer, nil
	}

	for round := 0; round < a.reflectRounds; round++ {
		if ctx.Err() != nil || runCtx.Exhausted() {
			break
		}

		verdict, err := a.critiqueAnswer(ctx, input, answer, runCtx)
		if err != nil {
			return "", err
		}

		a.logger.Debug("agent.reflect.round",
			"agent", a.name,
			"round", round,
			"satisfactory", verdict.IsSatisfactory,
			"issues", len(verdict.Issues),
		)

		if verdict.IsSatisfactory {
			break
		}

		answer, err = a.regenerateAnswer(ctx, input, answer, verdict.Issues, runCtx)
		if err != nil {
			return "", err
		}
		state.AddMessage(core.NewAssistantMessage(answer))
	}

	return answer, nil
}

func (a *ModelAgent) critiqueAnswer(ctx context.Context, input, answer string, runCtx *core.RunContext) (critique, error) {
	req := model.Request{Messages: []core.Message{
		core.NewSystemMessage(critiqueInstruction),
		core.NewUserMessage(fmt.Sprintf("Task:\n%s\n\nAnswer:\n%s", input, answer)),
	}}

	resp, err := a.generate(ctx, req, runCtx)
	if err != nil {
		return critique{}, fmt.Errorf("critique generation: %w", err)
	}

	return parseCritique(resp.Content), nil
}

// parseCritique extracts the verdict from the reviewer's reply. A reply that
// carries no parseable JSON object counts as satisfied so a sloppy reviewer
// cannot burn the whole round budget.
func parseCritique(content string) critique {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return critique{IsSatisfactory: true}
	}

	var verdict critique
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return critique{IsSatisfactory: true}
	}
	return verdict
}

func (a *ModelAgent) regenerateAnswer(ctx context.Context, input, answer string, issues []string, runCtx *core.RunContext) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task:\n%s\n\nYour previous answer:\n%s\n\n", input, answer)
	b.WriteString("A reviewer flagged these issues:\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	b.WriteString("\nWrite an improved answer that addresses every issue.")

	req := model.Request{Messages: []core.Message{
		core.NewSystemMessage(a.systemPrompt),
		core.NewUserMessage(b.String()),
	}}

	resp, err := a.generate(ctx, req, runCtx)
	if err != nil {
		return "", fmt.Errorf("answer regeneration: %w", err)
	}
	return resp.Content, nil
}
