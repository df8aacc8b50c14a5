package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
	"golang.org/x/time/rate"
)

// registration pairs a tool with the permissions a caller must hold to see or
// execute it. An empty permission list makes the tool visible to everyone.
type registration struct {
	tool        Tool
	permissions []string
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Logger receives tool lifecycle events.
	Logger logging.Logger

	// RatePerSecond caps executions across the registry using a token bucket.
	// Zero disables rate limiting.
	RatePerSecond float64

	// RateBurst is the token bucket size when rate limiting is enabled.
	RateBurst int

	// CacheSize bounds the result cache consulted for cacheable tools.
	// Zero disables caching.
	CacheSize int
}

// Registry is the tool executor: an RWMutex-guarded name→tool map with
// permission filtering, optional execution rate limiting and an optional LRU
// result cache for tools that declare themselves cacheable.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]registration
	limiter *rate.Limiter
	cache   *lru.Cache[string, string]
	logger  logging.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Logger:    logging.NoOpLogger{},
		RateBurst: 1,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Registry{
		tools:  make(map[string]registration),
		logger: opts.Logger,
	}

	if opts.RatePerSecond > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	if opts.CacheSize > 0 {
		// lru.New only fails for non-positive sizes, which is guarded here.
		cache, err := lru.New[string, string](opts.CacheSize)
		if err == nil {
			r.cache = cache
		}
	}

	return r
}

// Register adds a tool, validating its schema and rejecting duplicates.
// The optional permissions restrict who can see and execute the tool.
func (r *Registry) Register(t Tool, requiredPermissions ...string) error {
	if t == nil {
		return fmt.Errorf("tool must not be nil")
	}

	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}

	if err := t.Schema().Validate(); err != nil {
		return fmt.Errorf("invalid schema for tool %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	r.tools[name] = registration{
		tool:        t,
		permissions: append([]string(nil), requiredPermissions...),
	}

	r.logger.Debug("tool.registered", "tool", name, "permissions", requiredPermissions)

	return nil
}

// Unregister removes a tool from the registry by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.tools[name]
	return ent.tool, ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the tools visible to a caller holding the given permissions,
// sorted by name. A nil slice disables filtering entirely (trusted internal
// callers); a non-nil slice sees unrestricted tools plus any tool sharing at
// least one permission.
func (r *Registry) List(callerPermissions []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, ent := range r.tools {
		if callerPermissions == nil || visible(ent.permissions, callerPermissions) {
			out = append(out, ent.tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Definitions renders the visible tools in the declaration form providers
// expect, applying the same permission filter as List.
func (r *Registry) Definitions(callerPermissions []string) []model.ToolDefinition {
	tools := r.List(callerPermissions)

	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema().AsMap(),
		})
	}
	return defs
}

// Execute runs one tool call and always returns an Observation: unknown
// tools, argument validation failures, tool errors and tool panics all become
// is_error observations rather than Go errors, so a fault can never cross the
// execution boundary into the agent loop.
func (r *Registry) Execute(ctx context.Context, call core.ToolCall) core.Observation {
	r.mu.RLock()
	ent, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("tool.call.unknown", "tool", call.Name)
		return errorObservation(call.ID, fmt.Sprintf("tool '%s' not found", call.Name))
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return errorObservation(call.ID, fmt.Sprintf("rate limit wait aborted: %v", err))
		}
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	if err := ent.tool.Schema().ValidateArgs(args); err != nil {
		r.logger.Warn("tool.call.validation_failed", "tool", call.Name, "error", err.Error())
		return errorObservation(call.ID, fmt.Sprintf("parameter validation failed: %v", err))
	}

	cacheKey := ""
	if r.cache != nil && isCacheable(ent.tool) {
		cacheKey = resultCacheKey(call.Name, args)
		if content, hit := r.cache.Get(cacheKey); hit {
			r.logger.Debug("tool.call.cache_hit", "tool", call.Name)
			return core.Observation{ToolCallID: call.ID, Content: content}
		}
	}

	r.logger.Debug("tool.call.start", "tool", call.Name, "fc_id", call.ID)

	start := time.Now()

	var (
		result any
		err    error
	)
	func() { // panic safety
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic recovered: %v", rec)
				r.logger.Error("tool.call.panic", "tool", call.Name, "recover", rec, "stack", string(debug.Stack()))
			}
		}()
		result, err = ent.tool.Call(ctx, args)
	}()

	dur := time.Since(start)

	if err != nil {
		r.logger.Error("tool.call.error", "tool", call.Name, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return errorObservation(call.ID, err.Error())
	}

	content := renderResult(result)

	if cacheKey != "" {
		r.cache.Add(cacheKey, content)
	}

	r.logger.Info("tool.call.success", "tool", call.Name, "duration_ms", dur.Milliseconds())

	return core.Observation{ToolCallID: call.ID, Content: content}
}

func errorObservation(callID, message string) core.Observation {
	return core.Observation{ToolCallID: callID, IsError: true, ErrorMessage: message}
}

// renderResult converts a tool's return value into observation text. Strings
// pass through; everything else is JSON-encoded.
func renderResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
		return fmt.Sprintf("%v", v)
	}
}

// resultCacheKey builds a deterministic key from the tool name and arguments.
// encoding/json sorts map keys, so identical argument sets collide as desired.
func resultCacheKey(name string, args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return name
	}
	return name + ":" + string(raw)
}

func isCacheable(t Tool) bool {
	c, ok := t.(Cacheable)
	return ok && c.Cacheable()
}

// visible reports whether a caller holding the given permissions may access a
// tool requiring the given permissions. No requirements means public;
// otherwise any overlap grants access.
func visible(required, caller []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, need := range required {
		for _, have := range caller {
			if need == have {
				return true
			}
		}
	}
	return false
}
