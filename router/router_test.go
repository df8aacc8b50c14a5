package router

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/taskmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertions)
var (
	_ Router = (*FirstAvailable)(nil)
	_ Router = (*RoundRobin)(nil)
	_ Router = (*KeywordAffinity)(nil)
)

type stubAgent struct {
	name string
	caps []string
}

func (a *stubAgent) Name() string            { return a.name }
func (a *stubAgent) Description() string     { return "stub " + a.name }
func (a *stubAgent) Capabilities() []string  { return a.caps }
func (a *stubAgent) Process(context.Context, string, *core.RunContext) (string, error) {
	return "", nil
}

func TestFirstAvailable(t *testing.T) {
	r := NewFirstAvailable()
	task := core.NewTask("anything")

	assert.Nil(t, r.Select(task, nil))

	a := &stubAgent{name: "a"}
	b := &stubAgent{name: "b"}
	selected := r.Select(task, []core.Agent{a, b})
	require.NotNil(t, selected)
	assert.Equal(t, "a", selected.Name())
}

func TestRoundRobin_Rotation(t *testing.T) {
	r := NewRoundRobin()
	candidates := []core.Agent{
		&stubAgent{name: "a"},
		&stubAgent{name: "b"},
		&stubAgent{name: "c"},
	}

	var picked []string
	for i := 0; i < 4; i++ {
		selected := r.Select(core.NewTask("t"), candidates)
		require.NotNil(t, selected)
		picked = append(picked, selected.Name())
	}

	// wraps back to the first candidate on the fourth call
	assert.Equal(t, []string{"a", "b", "c", "a"}, picked)
}

func TestRoundRobin_AdvancesAcrossTasks(t *testing.T) {
	r := NewRoundRobin()
	candidates := []core.Agent{&stubAgent{name: "a"}, &stubAgent{name: "b"}}

	first := r.Select(core.NewTask("task one"), candidates)
	second := r.Select(core.NewTask("task two"), candidates)
	assert.NotEqual(t, first.Name(), second.Name())
}

func TestRoundRobin_EmptyCandidates(t *testing.T) {
	r := NewRoundRobin()
	assert.Nil(t, r.Select(core.NewTask("t"), nil))
}

func TestRoundRobin_ConcurrentSelect(t *testing.T) {
	r := NewRoundRobin()
	candidates := []core.Agent{&stubAgent{name: "a"}, &stubAgent{name: "b"}}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NotNil(t, r.Select(core.NewTask("t"), candidates))
		}()
	}
	wg.Wait()
}

func TestKeywordAffinity_MatchesCapability(t *testing.T) {
	r := NewKeywordAffinity()
	generalist := &stubAgent{name: "generalist"}
	mathematician := &stubAgent{name: "mathematician", caps: []string{"math", "calculation"}}
	writer := &stubAgent{name: "writer", caps: []string{"writing", "editing"}}
	candidates := []core.Agent{generalist, mathematician, writer}

	selected := r.Select(core.NewTask("Solve this MATH problem"), candidates)
	require.NotNil(t, selected)
	assert.Equal(t, "mathematician", selected.Name())

	selected = r.Select(core.NewTask("polish the writing in this draft"), candidates)
	assert.Equal(t, "writer", selected.Name())
}

func TestKeywordAffinity_TokenInsideCapability(t *testing.T) {
	r := NewKeywordAffinity()
	agent := &stubAgent{name: "carto", caps: []string{"cartography services"}}
	candidates := []core.Agent{&stubAgent{name: "other"}, agent}

	// token containment, not equality: "cartography" appears inside the capability
	selected := r.Select(core.NewTask("draw a cartography overview"), candidates)
	assert.Equal(t, "carto", selected.Name())
}

func TestKeywordAffinity_FallsBackToFirst(t *testing.T) {
	r := NewKeywordAffinity()
	a := &stubAgent{name: "a", caps: []string{"math"}}
	b := &stubAgent{name: "b", caps: []string{"writing"}}

	selected := r.Select(core.NewTask("something unrelated entirely"), []core.Agent{a, b})
	require.NotNil(t, selected)
	assert.Equal(t, "a", selected.Name())

	assert.Nil(t, r.Select(core.NewTask("anything"), nil))
}
