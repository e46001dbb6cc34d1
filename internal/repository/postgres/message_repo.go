package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/dirty-laundry/internal/model"
	"github.com/freeeve/dirty-laundry/pkg/cabin"
)

// MessageRepo archives wiretap messages.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a MessageRepo.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create inserts msg and fills in its id and timestamp.
func (r *MessageRepo) Create(ctx context.Context, msg *model.Message) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (session_code, game_number, sender_id, sender_name, content, phase)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		msg.SessionCode, msg.GameNumber, msg.SenderID, msg.SenderName, msg.Content, string(msg.Phase),
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListBySession returns every archived message of a session, oldest first.
func (r *MessageRepo) ListBySession(ctx context.Context, code string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_code, game_number, sender_id, sender_name, content, phase, created_at
		 FROM messages
		 WHERE session_code = $1
		 ORDER BY created_at, id`, code,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var phase string
		if err := rows.Scan(&m.ID, &m.SessionCode, &m.GameNumber, &m.SenderID, &m.SenderName, &m.Content, &phase, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Phase = cabin.Phase(phase)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
