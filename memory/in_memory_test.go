package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/taskmesh/core"
)

// Interface compliance (compile-time assertions)
var (
	_ Store    = (*InMemoryStore)(nil)
	_ Searcher = (*InMemoryStore)(nil)
)

func TestInMemoryStore_SaveAndLoad(t *testing.T) {
	store := NewInMemoryStore()

	if _, ok, err := store.Load("a1"); err != nil || ok {
		t.Fatalf("expected miss for unknown agent, got ok=%v err=%v", ok, err)
	}

	state := core.NewAgentState()
	state.CurrentStep = 3
	state.Metadata["topic"] = "billing"
	state.AddMessage(core.NewUserMessage("hello"))

	if err := store.Save("a1", state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, ok, err := store.Load("a1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if loaded.CurrentStep != 3 || len(loaded.Messages) != 1 || loaded.Metadata["topic"] != "billing" {
		t.Fatalf("unexpected loaded state: %#v", loaded)
	}

	// mutation safety (loaded state is a copy)
	loaded.Messages[0].Content = "changed"
	loaded.Metadata["topic"] = "changed"
	again, _, _ := store.Load("a1")
	if again.Messages[0].Content != "hello" || again.Metadata["topic"] != "billing" {
		t.Fatalf("expected copy isolation, got %#v", again)
	}

	// saving a state then mutating the original must not leak in
	state.AddMessage(core.NewUserMessage("late"))
	fresh, _, _ := store.Load("a1")
	if len(fresh.Messages) != 1 {
		t.Fatalf("expected save-time snapshot, got %d messages", len(fresh.Messages))
	}
}

func TestInMemoryStore_AddMessageCreatesState(t *testing.T) {
	store := NewInMemoryStore()

	if err := store.AddMessage("a2", core.NewUserMessage("first")); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	loaded, ok, err := store.Load("a2")
	if err != nil || !ok {
		t.Fatalf("expected state after append, got ok=%v err=%v", ok, err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "first" {
		t.Fatalf("unexpected transcript: %#v", loaded.Messages)
	}
}

func TestInMemoryStore_MessagesLimit(t *testing.T) {
	store := NewInMemoryStore()
	for i := 0; i < 5; i++ {
		if err := store.AddMessage("a3", core.NewUserMessage(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	all, err := store.Messages("a3", 0)
	if err != nil {
		t.Fatalf("messages failed: %v", err)
	}
	if len(all) != 5 || all[0].Content != "m0" || all[4].Content != "m4" {
		t.Fatalf("unexpected full transcript: %#v", all)
	}

	// positive limit returns the most recent entries, oldest first
	recent, err := store.Messages("a3", 2)
	if err != nil {
		t.Fatalf("messages failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "m3" || recent[1].Content != "m4" {
		t.Fatalf("unexpected window: %#v", recent)
	}

	// limit larger than transcript returns everything
	big, _ := store.Messages("a3", 50)
	if len(big) != 5 {
		t.Fatalf("expected 5, got %d", len(big))
	}

	// unknown agent yields empty, not error
	none, err := store.Messages("missing", 10)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty transcript, got %#v err=%v", none, err)
	}
}

func TestInMemoryStore_Clear(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.AddMessage("a4", core.NewUserMessage("hi")); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := store.Clear("a4"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok, _ := store.Load("a4"); ok {
		t.Fatalf("expected miss after clear")
	}
	// clearing an unknown agent is a no-op
	if err := store.Clear("never_seen"); err != nil {
		t.Fatalf("clear unknown failed: %v", err)
	}
}

func TestInMemoryStore_Search(t *testing.T) {
	store := NewInMemoryStore()
	contents := []string{"order 42 shipped", "invoice overdue", "order 42 delivered", "unrelated"}
	for _, c := range contents {
		if err := store.AddMessage("a5", core.NewUserMessage(c)); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	res, err := store.Search("a5", "order 42", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(res) != 2 || res[0].Content != "order 42 shipped" || res[1].Content != "order 42 delivered" {
		t.Fatalf("unexpected matches: %#v", res)
	}

	limited, _ := store.Search("a5", "order 42", 1)
	if len(limited) != 1 || limited[0].Content != "order 42 shipped" {
		t.Fatalf("expected first match only, got %#v", limited)
	}

	empty, _ := store.Search("a5", "no such text", 10)
	if len(empty) != 0 {
		t.Fatalf("expected no matches, got %#v", empty)
	}
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore()
	wg := sync.WaitGroup{}
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agentID := fmt.Sprintf("agent-%d", i%5)
			if err := store.AddMessage(agentID, core.NewUserMessage(fmt.Sprintf("msg %d", i))); err != nil {
				t.Errorf("add error: %v", err)
			}
			if _, _, err := store.Load(agentID); err != nil {
				t.Errorf("load error: %v", err)
			}
			if _, err := store.Messages(agentID, 3); err != nil {
				t.Errorf("messages error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 5; i++ {
		msgs, _ := store.Messages(fmt.Sprintf("agent-%d", i), 0)
		total += len(msgs)
	}
	if total != 25 {
		t.Fatalf("expected 25 messages across agents, got %d", total)
	}
}
