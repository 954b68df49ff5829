// Package server implements the message backend: the HTTP send boundary,
// PostgreSQL persistence, MinIO attachment storage and NATS fan-out.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"

	_ "github.com/lib/pq"
)

// validMessageTypes matches the CHECK constraint on the messages table.
var validMessageTypes = map[string]bool{
	chat.TypeText:  true,
	chat.TypeFile:  true,
	chat.TypeImage: true,
	chat.TypeAudio: true,
}

// PGStore persists messages in PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a message store backed by the given database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// OpenDB opens and pings a PostgreSQL connection.
func OpenDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("server: open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: ping postgres: %w", err)
	}
	return db, nil
}

// SaveMessage inserts a message and bumps the conversation's last-activity
// columns in one transaction. Attachments are marshalled to JSONB.
func (s *PGStore) SaveMessage(ctx context.Context, msg *chat.Message) error {
	if !validMessageTypes[msg.MessageType] {
		return fmt.Errorf("server: invalid message type %q", msg.MessageType)
	}

	var attachmentsJSON []byte
	if len(msg.Attachments) > 0 {
		var err error
		attachmentsJSON, err = json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("server: marshal attachments: %w", err)
		}
	}

	readByJSON, err := json.Marshal(msg.ReadBy)
	if err != nil {
		return fmt.Errorf("server: marshal read_by: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("server: begin tx: %w", err)
	}
	defer tx.Rollback()

	const insertQuery = `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, sender_type, sender_org_code, content, message_type, attachments, read_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if _, err := tx.ExecContext(ctx, insertQuery,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.SenderName,
		msg.SenderType,
		msg.SenderOrgCode,
		msg.Content,
		msg.MessageType,
		attachmentsJSON,
		readByJSON,
		msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("server: insert message: %w", err)
	}

	const bumpQuery = `
		UPDATE conversations
		SET last_message_id = $2, last_message_at = $3
		WHERE id = $1`

	if _, err := tx.ExecContext(ctx, bumpQuery, msg.ConversationID, msg.ID, msg.CreatedAt); err != nil {
		return fmt.Errorf("server: bump conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("server: commit: %w", err)
	}
	return nil
}

// RecentMessages returns the conversation's newest messages in
// chronological order (oldest first), capped at limit.
func (s *PGStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = MaxBufferMessages
	}

	const query = `
		SELECT id, conversation_id, sender_id, sender_name, sender_type, COALESCE(sender_org_code, ''), content, message_type, attachments, read_by, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("server: query recent: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var (
			msg             chat.Message
			attachmentsJSON []byte
			readByJSON      []byte
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.SenderType,
			&msg.SenderOrgCode,
			&msg.Content,
			&msg.MessageType,
			&attachmentsJSON,
			&readByJSON,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("server: scan message: %w", err)
		}
		if len(attachmentsJSON) > 0 {
			if err := json.Unmarshal(attachmentsJSON, &msg.Attachments); err != nil {
				return nil, fmt.Errorf("server: unmarshal attachments: %w", err)
			}
		}
		if len(readByJSON) > 0 {
			if err := json.Unmarshal(readByJSON, &msg.ReadBy); err != nil {
				return nil, fmt.Errorf("server: unmarshal read_by: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("server: iterate recent: %w", err)
	}
	return out, nil
}

// ConversationExists reports whether a conversation id is known.
func (s *PGStore) ConversationExists(ctx context.Context, conversationID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, conversationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("server: check conversation: %w", err)
	}
	return exists, nil
}
