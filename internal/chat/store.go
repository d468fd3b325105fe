package chat

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is a persisted chat message.
type Message struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	TargetUserID string    `json:"targetUserId"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store persists chat messages in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert stores a new message and fills in its generated id and timestamp.
func (s *Store) Insert(ctx context.Context, m *Message) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO messages (user_id, target_user_id, text) VALUES ($1, $2, $3) RETURNING id, created_at`,
		m.UserID, m.TargetUserID, m.Text,
	).Scan(&m.ID, &m.CreatedAt)
}

// ListConversation returns the most recent messages exchanged between two
// users, oldest first, capped at limit.
func (s *Store) ListConversation(ctx context.Context, userA, userB string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, target_user_id, text, created_at FROM (
		   SELECT id, user_id, target_user_id, text, created_at FROM messages
		   WHERE (user_id = $1 AND target_user_id = $2) OR (user_id = $2 AND target_user_id = $1)
		   ORDER BY created_at DESC LIMIT $3
		 ) recent ORDER BY created_at ASC`,
		userA, userB, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.TargetUserID, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, rows.Err()
}
