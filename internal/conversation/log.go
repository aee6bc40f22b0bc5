// Package conversation stores agent conversations in a SQLite table.
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/lettamem/internal/apperr"
	"github.com/starford/lettamem/internal/models"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 100

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	conversation_data TEXT NOT NULL,
	metadata TEXT
);
`

// Query filters List. Empty fields match everything.
type Query struct {
	AgentID  string
	Platform string
	Limit    int
}

// Log is a SQLite-backed conversation log.
type Log struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the database at dsn and ensures the table exists.
func Open(dsn string) (*Log, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("conversation: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("conversation: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("conversation: apply schema: %w", err)
	}
	return &Log{conn: conn, now: time.Now}, nil
}

// Close closes the underlying connection.
func (l *Log) Close() error {
	return l.conn.Close()
}

// Ping verifies the connection is alive.
func (l *Log) Ping() error {
	return l.conn.Ping()
}

// Save stores a conversation and returns its id.
func (l *Log) Save(ctx context.Context, agentID, platform string, data, metadata map[string]any) (string, error) {
	if strings.TrimSpace(agentID) == "" || strings.TrimSpace(platform) == "" {
		return "", errors.New("conversation: agent_id and platform are required")
	}
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("conversation: encode data: %w", err)
	}
	var metaJSON sql.NullString
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("conversation: encode metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	id := uuid.NewString()
	_, err = l.conn.ExecContext(ctx, `
		INSERT INTO conversations (id, agent_id, platform, timestamp, conversation_data, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, agentID, platform, models.SortableTime(l.now()), string(dataJSON), metaJSON)
	if err != nil {
		return "", fmt.Errorf("%w: conversation: insert: %w", apperr.ErrStorage, err)
	}
	return id, nil
}

// Get returns the conversation with the given id.
func (l *Log) Get(ctx context.Context, id string) (*models.Conversation, error) {
	row := l.conn.QueryRowContext(ctx, `
		SELECT id, agent_id, platform, timestamp, conversation_data, metadata
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns conversations matching q, most recent first.
func (l *Log) List(ctx context.Context, q Query) ([]models.Conversation, error) {
	var (
		where []string
		args  []any
	)
	if q.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, q.AgentID)
	}
	if q.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, q.Platform)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	stmt := `SELECT id, agent_id, platform, timestamp, conversation_data, metadata FROM conversations`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	defer rows.Close()

	out := []models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*models.Conversation, error) {
	var (
		c        models.Conversation
		ts       any
		data     string
		metadata sql.NullString
	)
	if err := s.Scan(&c.ID, &c.AgentID, &c.Platform, &ts, &data, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("conversation: scan: %w", err)
	}
	c.Timestamp = parseTime(ts)
	if err := json.Unmarshal([]byte(data), &c.Data); err != nil {
		return nil, fmt.Errorf("%w: conversation %s data: %w", apperr.ErrParse, c.ID, err)
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("%w: conversation %s metadata: %w", apperr.ErrParse, c.ID, err)
		}
	}
	return &c, nil
}

// parseTime accepts what the driver hands back for a DATETIME column: a
// time.Time when it recognised the text, the raw text otherwise.
func parseTime(v any) time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}
	}
	for _, layout := range []string{models.SortableTimeLayout, time.RFC3339Nano, time.DateTime} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
