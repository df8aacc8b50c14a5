package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/hupe1980/taskmesh/core"
	_ "modernc.org/sqlite"
)

const sqliteTimeLayout = time.RFC3339Nano

// SQLiteStore persists agent state in a SQLite database using two tables:
// agent_states (one row per agent) and messages (the ordered transcript).
// The cgo-free modernc driver keeps the binary self-contained.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// initializes the schema. WAL mode and a busy timeout make concurrent access
// from multiple goroutines safe.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_states (
			agent_id TEXT PRIMARY KEY,
			current_step INTEGER DEFAULT 0,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			metadata TEXT,
			name TEXT,
			tool_calls TEXT,
			tool_call_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_agent_id ON messages(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}

type messageRow struct {
	ID         int64          `db:"id"`
	AgentID    string         `db:"agent_id"`
	Role       string         `db:"role"`
	Content    string         `db:"content"`
	Timestamp  string         `db:"timestamp"`
	Metadata   sql.NullString `db:"metadata"`
	Name       sql.NullString `db:"name"`
	ToolCalls  sql.NullString `db:"tool_calls"`
	ToolCallID sql.NullString `db:"tool_call_id"`
}

type stateRow struct {
	AgentID     string         `db:"agent_id"`
	CurrentStep int            `db:"current_step"`
	Metadata    sql.NullString `db:"metadata"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

// Save replaces the persisted state for an agent: one upsert for the state
// row, then the transcript is rewritten inside the same transaction.
func (s *SQLiteStore) Save(agentID string, state *core.AgentState) error {
	metadata, err := marshalNullable(state.Metadata)
	if err != nil {
		return fmt.Errorf("marshal state metadata: %w", err)
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO agent_states (agent_id, current_step, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		agentID, state.CurrentStep, metadata,
		state.Created.UTC().Format(sqliteTimeLayout),
		state.Updated.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}

	for _, msg := range state.Messages {
		if err := insertMessage(tx, agentID, msg); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load reads the state row and its transcript. Returns false when the agent
// has never been saved.
func (s *SQLiteStore) Load(agentID string) (*core.AgentState, bool, error) {
	var row stateRow
	err := s.db.Get(&row, `SELECT agent_id, current_step, metadata, created_at, updated_at FROM agent_states WHERE agent_id = ?`, agentID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load state: %w", err)
	}

	state := core.NewAgentState()
	state.CurrentStep = row.CurrentStep
	state.Created = parseStoredTime(row.CreatedAt)
	state.Updated = parseStoredTime(row.UpdatedAt)

	if row.Metadata.Valid && row.Metadata.String != "" {
		if err := json.Unmarshal([]byte(row.Metadata.String), &state.Metadata); err != nil {
			return nil, false, fmt.Errorf("unmarshal state metadata: %w", err)
		}
	}

	messages, err := s.Messages(agentID, 0)
	if err != nil {
		return nil, false, err
	}
	state.Messages = messages

	return state, true, nil
}

// AddMessage appends a single message to the transcript.
func (s *SQLiteStore) AddMessage(agentID string, msg core.Message) error {
	return insertMessage(s.db, agentID, msg)
}

// Messages returns the transcript oldest first. A positive limit restricts
// the result to the most recent entries.
func (s *SQLiteStore) Messages(agentID string, limit int) ([]core.Message, error) {
	query := `SELECT id, agent_id, role, content, timestamp, metadata, name, tool_calls, tool_call_id
		FROM messages WHERE agent_id = ? ORDER BY id ASC`
	args := []any{agentID}

	if limit > 0 {
		// Select the newest rows, then restore chronological order below.
		query = `SELECT id, agent_id, role, content, timestamp, metadata, name, tool_calls, tool_call_id
			FROM messages WHERE agent_id = ? ORDER BY id DESC LIMIT ?`
		args = append(args, limit)
	}

	var rows []messageRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	if limit > 0 {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	messages := make([]core.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := rowToMessage(row)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Clear removes the state row and the transcript for an agent.
func (s *SQLiteStore) Clear(agentID string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM agent_states WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}

	return tx.Commit()
}

// Search recalls messages whose content contains the query, oldest first.
func (s *SQLiteStore) Search(agentID, query string, limit int) ([]core.Message, error) {
	sqlQuery := `SELECT id, agent_id, role, content, timestamp, metadata, name, tool_calls, tool_call_id
		FROM messages WHERE agent_id = ? AND content LIKE ? ORDER BY id ASC`
	args := []any{agentID, "%" + query + "%"}

	if limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []messageRow
	if err := s.db.Select(&rows, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	messages := make([]core.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := rowToMessage(row)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// execer covers both *sqlx.DB and *sqlx.Tx for insertMessage.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertMessage(e execer, agentID string, msg core.Message) error {
	metadata, err := marshalNullable(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}

	var toolCalls sql.NullString
	if len(msg.ToolCalls) > 0 {
		raw, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(raw), Valid: true}
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = e.Exec(`INSERT INTO messages (agent_id, role, content, timestamp, metadata, name, tool_calls, tool_call_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		agentID, string(msg.Role), msg.Content,
		ts.UTC().Format(sqliteTimeLayout),
		metadata,
		nullString(msg.Name),
		toolCalls,
		nullString(msg.ToolCallID),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func rowToMessage(row messageRow) (core.Message, error) {
	msg := core.Message{
		Role:       core.Role(row.Role),
		Content:    row.Content,
		Name:       row.Name.String,
		ToolCallID: row.ToolCallID.String,
		Timestamp:  parseStoredTime(row.Timestamp),
	}

	if row.Metadata.Valid && row.Metadata.String != "" {
		if err := json.Unmarshal([]byte(row.Metadata.String), &msg.Metadata); err != nil {
			return core.Message{}, fmt.Errorf("unmarshal message metadata: %w", err)
		}
	}

	if row.ToolCalls.Valid && row.ToolCalls.String != "" {
		if err := json.Unmarshal([]byte(row.ToolCalls.String), &msg.ToolCalls); err != nil {
			return core.Message{}, fmt.Errorf("unmarshal tool calls: %w", err)
		}
	}

	return msg, nil
}

func marshalNullable(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
