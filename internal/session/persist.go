package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/indubitably-ai/agentcore/internal/llm"
)

// Log persists a session's message history to a single SQLite file so a
// crashed or restarted process can recover where it left off. This is
// deliberately narrower than a multi-session store: one Log backs exactly
// one process's Session, keyed only by insertion order (spec's Non-goal
// rules out persistence beyond a single process lifetime; Log exists for
// mid-lifetime durability — e.g. a host that wants to survive its own crash
// mid-turn — not for resuming a past session).
type Log struct {
	db *sql.DB
}

const logSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	role TEXT NOT NULL,
	parts TEXT NOT NULL,
	tokens INTEGER NOT NULL DEFAULT 0,
	pinned BOOLEAN NOT NULL DEFAULT FALSE,
	synthetic BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// OpenLog opens (creating if necessary) a message log at path. Pass
// ":memory:" for an ephemeral, process-local log.
func OpenLog(path string) (*Log, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create session data directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	if _, err := db.Exec(logSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize session log schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Append writes one message to the log, in insertion order.
func (l *Log) Append(ctx context.Context, msg llm.Message) error {
	partsJSON, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("serialize message parts: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO messages (role, parts, tokens, pinned, synthetic)
		VALUES (?, ?, ?, ?, ?)`,
		string(msg.Role), string(partsJSON), msg.Tokens, msg.Pinned, msg.Synthetic)
	if err != nil {
		return fmt.Errorf("append message to log: %w", err)
	}
	return nil
}

// ReplaceAll atomically swaps the log's contents for messages, in the order
// given. Used to keep the on-disk log consistent with a just-compacted
// in-memory history.
func (l *Log) ReplaceAll(ctx context.Context, messages []llm.Message) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("clear existing log: %w", err)
	}
	for i, msg := range messages {
		partsJSON, err := json.Marshal(msg.Parts)
		if err != nil {
			return fmt.Errorf("serialize message %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (role, parts, tokens, pinned, synthetic)
			VALUES (?, ?, ?, ?, ?)`,
			string(msg.Role), string(partsJSON), msg.Tokens, msg.Pinned, msg.Synthetic); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Load reads every message back in insertion order.
func (l *Log) Load(ctx context.Context) ([]llm.Message, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT role, parts, tokens, pinned, synthetic FROM messages ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	var out []llm.Message
	for rows.Next() {
		var role, partsJSON string
		var msg llm.Message
		if err := rows.Scan(&role, &partsJSON, &msg.Tokens, &msg.Pinned, &msg.Synthetic); err != nil {
			return nil, fmt.Errorf("scan logged message: %w", err)
		}
		msg.Role = llm.Role(role)
		if err := json.Unmarshal([]byte(partsJSON), &msg.Parts); err != nil {
			return nil, fmt.Errorf("decode logged parts: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// DefaultLogPath mirrors the teacher's XDG-data-dir convention
// (internal/session/store.go ResolveDBPath) for this module's own data.
func DefaultLogPath() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".local", "share", "agentcore", "session.db"), nil
}
