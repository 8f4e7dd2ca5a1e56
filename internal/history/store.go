// Package history provides persistent conversation transcripts. It is
// intended for replaying and auditing agent conversations across
// restarts — not for the in-flight message slice the loop sends to the
// backend, which lives in memory for the turn.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a conversation transcript store backed by SQLite. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// StoredMessage is one persisted transcript entry.
type StoredMessage struct {
	Role      string
	Content   string
	ToolName  string
	CreatedAt time.Time
}

// NewStore creates a transcript store at the given database path.
// The schema is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		tool_name       TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages (conversation_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add appends a message to a conversation's transcript.
func (s *Store) Add(conversationID, role, content, toolName string) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (conversation_id, role, content, tool_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conversationID, role, content, toolName,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("add message to %s: %w", conversationID, err)
	}
	return nil
}

// Messages returns a conversation's transcript in insertion order.
// Returns an empty slice for an unknown conversation.
func (s *Store) Messages(conversationID string) ([]StoredMessage, error) {
	rows, err := s.db.Query(
		`SELECT role, content, tool_name, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", conversationID, err)
	}
	defer rows.Close()

	var messages []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var createdAt string
		if err := rows.Scan(&m.Role, &m.Content, &m.ToolName, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Delete removes a conversation's transcript. No error is returned if
// the conversation has no entries.
func (s *Store) Delete(conversationID string) error {
	_, err := s.db.Exec(
		`DELETE FROM messages WHERE conversation_id = ?`,
		conversationID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", conversationID, err)
	}
	return nil
}
