package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/redis/go-redis/v9"
)

// RedisStoreOptions configures a RedisStore.
type RedisStoreOptions struct {
	// Password is the optional Redis AUTH password.
	Password string

	// DB selects the Redis logical database.
	DB int

	// KeyPrefix namespaces all keys written by the store. Defaults to
	// "taskmesh".
	KeyPrefix string

	// OpTimeout bounds each Redis round trip. Defaults to 5 seconds.
	OpTimeout time.Duration
}

// RedisStore persists agent state in Redis. The state row lives under
// "<prefix>:state:<agentID>" and the transcript is an RPUSH list under
// "<prefix>:messages:<agentID>", so appends never rewrite history.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	opTimeout time.Duration
}

// redisStateDoc is the state row without its transcript; messages are kept
// in a separate list.
type redisStateDoc struct {
	CurrentStep int            `json:"current_step"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Created     time.Time      `json:"created"`
	Updated     time.Time      `json:"updated"`
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(addr string, optFns ...func(o *RedisStoreOptions)) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address must not be empty")
	}

	opts := RedisStoreOptions{
		KeyPrefix: "taskmesh",
		OpTimeout: 5 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.OpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: opts.KeyPrefix,
		opTimeout: opts.OpTimeout,
	}, nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) stateKey(agentID string) string {
	return s.keyPrefix + ":state:" + agentID
}

func (s *RedisStore) messagesKey(agentID string) string {
	return s.keyPrefix + ":messages:" + agentID
}

func (s *RedisStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}

// Save replaces the persisted state for an agent. The state document and the
// rewritten transcript go through one transactional pipeline.
func (s *RedisStore) Save(agentID string, state *core.AgentState) error {
	doc := redisStateDoc{
		CurrentStep: state.CurrentStep,
		Metadata:    state.Metadata,
		Created:     state.Created,
		Updated:     state.Updated,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	encoded := make([]any, 0, len(state.Messages))
	for _, msg := range state.Messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		encoded = append(encoded, data)
	}

	ctx, cancel := s.opContext()
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.stateKey(agentID), raw, 0)
	pipe.Del(ctx, s.messagesKey(agentID))
	if len(encoded) > 0 {
		pipe.RPush(ctx, s.messagesKey(agentID), encoded...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Load reads the state document and its transcript. Returns false when the
// agent has never been saved.
func (s *RedisStore) Load(agentID string) (*core.AgentState, bool, error) {
	ctx, cancel := s.opContext()
	defer cancel()

	raw, err := s.client.Get(ctx, s.stateKey(agentID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load state: %w", err)
	}

	var doc redisStateDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, fmt.Errorf("unmarshal state: %w", err)
	}

	state := core.NewAgentState()
	state.CurrentStep = doc.CurrentStep
	state.Created = doc.Created
	state.Updated = doc.Updated
	if doc.Metadata != nil {
		state.Metadata = doc.Metadata
	}

	messages, err := s.Messages(agentID, 0)
	if err != nil {
		return nil, false, err
	}
	state.Messages = messages

	return state, true, nil
}

// AddMessage appends a single message to the transcript list.
func (s *RedisStore) AddMessage(agentID string, msg core.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.client.RPush(ctx, s.messagesKey(agentID), data).Err(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Messages returns the transcript oldest first. A positive limit restricts
// the result to the most recent entries.
func (s *RedisStore) Messages(agentID string, limit int) ([]core.Message, error) {
	ctx, cancel := s.opContext()
	defer cancel()

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := s.client.LRange(ctx, s.messagesKey(agentID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	messages := make([]core.Message, 0, len(raw))
	for _, item := range raw {
		var msg core.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Clear removes the state document and the transcript for an agent.
func (s *RedisStore) Clear(agentID string) error {
	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.client.Del(ctx, s.stateKey(agentID), s.messagesKey(agentID)).Err(); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// Search recalls messages whose content contains the query, oldest first.
// Matching happens client side; Redis lists have no content index.
func (s *RedisStore) Search(agentID, query string, limit int) ([]core.Message, error) {
	messages, err := s.Messages(agentID, 0)
	if err != nil {
		return nil, err
	}

	var matches []core.Message
	for _, msg := range messages {
		if strings.Contains(msg.Content, query) {
			matches = append(matches, msg)
			if limit > 0 && len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}
