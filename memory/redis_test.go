package memory

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/taskmesh/core"
)

// Interface compliance (compile-time assertions)
var (
	_ Store    = (*RedisStore)(nil)
	_ Searcher = (*RedisStore)(nil)
)

// newTestRedisStore connects to the Redis instance named by
// TASKMESH_TEST_REDIS_ADDR and skips the test when none is configured. Each
// test gets a unique key prefix so runs never collide.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("TASKMESH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TASKMESH_TEST_REDIS_ADDR not set")
	}

	prefix := "taskmesh_test:" + uuid.NewString()
	store, err := NewRedisStore(addr, func(o *RedisStoreOptions) {
		o.KeyPrefix = prefix
		o.OpTimeout = 2 * time.Second
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		store.Clear("a1")
		store.Clear("a2")
		store.Close()
	})
	return store
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	store := newTestRedisStore(t)

	if _, ok, err := store.Load("a1"); err != nil || ok {
		t.Fatalf("expected miss for unknown agent, got ok=%v err=%v", ok, err)
	}

	state := core.NewAgentState()
	state.CurrentStep = 4
	state.Metadata["channel"] = "web"
	state.AddMessage(core.NewUserMessage("hello"))
	state.AddMessage(core.NewAssistantMessage("hi there"))

	if err := store.Save("a1", state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, ok, err := store.Load("a1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if loaded.CurrentStep != 4 || loaded.Metadata["channel"] != "web" {
		t.Fatalf("unexpected state: %#v", loaded)
	}
	if len(loaded.Messages) != 2 || loaded.Messages[1].Content != "hi there" {
		t.Fatalf("unexpected transcript: %#v", loaded.Messages)
	}
}

func TestRedisStore_MessagesAndSearch(t *testing.T) {
	store := newTestRedisStore(t)

	for i := 0; i < 5; i++ {
		if err := store.AddMessage("a2", core.NewUserMessage(fmt.Sprintf("entry %d", i))); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	recent, err := store.Messages("a2", 2)
	if err != nil {
		t.Fatalf("messages failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "entry 3" || recent[1].Content != "entry 4" {
		t.Fatalf("unexpected window: %#v", recent)
	}

	res, err := store.Search("a2", "entry 1", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(res) != 1 || res[0].Content != "entry 1" {
		t.Fatalf("unexpected matches: %#v", res)
	}

	if err := store.Clear("a2"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok, _ := store.Load("a2"); ok {
		t.Fatalf("expected miss after clear")
	}
}
