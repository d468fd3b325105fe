package notifications

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RetentionWindow is the hard deletion deadline for notification records.
// Rows older than this are never observable: reads filter on it and a
// background purge deletes them.
const RetentionWindow = 30 * 24 * time.Hour

// Notification is one persisted record per consumed event. Only the read
// flag is ever updated after insert.
type Notification struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	UserID       string    `json:"userId"`
	TargetUserID string    `json:"targetUserId"`
	PostID       string    `json:"postId,omitempty"`
	CommentText  string    `json:"commentText,omitempty"`
	MessageID    string    `json:"messageId,omitempty"`
	StoryID      string    `json:"storyId,omitempty"`
	Content      string    `json:"content,omitempty"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ListParams holds filters and pagination for listing notifications.
type ListParams struct {
	TargetUserID string
	ReadOnly     *bool // nil = all, true = read only, false = unread only
	Limit        int
	Offset       int
}

// Store persists notification records in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert stores a new notification and fills in its generated id and
// creation time.
func (s *Store) Insert(ctx context.Context, n *Notification) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO notifications (type, user_id, target_user_id, post_id, comment_text, message_id, story_id, content)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		n.Type, n.UserID, n.TargetUserID, n.PostID, n.CommentText, n.MessageID, n.StoryID, n.Content,
	).Scan(&n.ID, &n.CreatedAt)
}

// List returns a recipient's notifications inside the retention window,
// newest first, with pagination and an optional read filter.
func (s *Store) List(ctx context.Context, params ListParams) ([]Notification, int, error) {
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 50
	}
	cutoff := time.Now().Add(-RetentionWindow)

	query := `SELECT id, type, user_id, target_user_id, post_id, comment_text, message_id, story_id, content, read, created_at
	          FROM notifications WHERE target_user_id = $1 AND created_at > $2`
	countQuery := `SELECT COUNT(*) FROM notifications WHERE target_user_id = $1 AND created_at > $2`
	args := []interface{}{params.TargetUserID, cutoff}
	argIdx := 3

	if params.ReadOnly != nil {
		query += ` AND read = $` + strconv.Itoa(argIdx)
		countQuery += ` AND read = $` + strconv.Itoa(argIdx)
		args = append(args, *params.ReadOnly)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(argIdx)
	args = append(args, params.Limit)
	argIdx++
	query += ` OFFSET $` + strconv.Itoa(argIdx)
	args = append(args, params.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.UserID, &n.TargetUserID, &n.PostID, &n.CommentText,
			&n.MessageID, &n.StoryID, &n.Content, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}

	if notifications == nil {
		notifications = []Notification{}
	}

	return notifications, total, rows.Err()
}

// MarkRead marks a single notification as read for the given recipient.
func (s *Store) MarkRead(ctx context.Context, targetUserID, notificationID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE id = $1 AND target_user_id = $2`,
		notificationID, targetUserID,
	)
	return err
}

// MarkAllRead marks all unread notifications as read for the recipient.
func (s *Store) MarkAllRead(ctx context.Context, targetUserID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE target_user_id = $1 AND read = false`,
		targetUserID,
	)
	return err
}

// UnreadCount returns the number of unread notifications inside the
// retention window for a recipient.
func (s *Store) UnreadCount(ctx context.Context, targetUserID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE target_user_id = $1 AND read = false AND created_at > $2`,
		targetUserID, time.Now().Add(-RetentionWindow),
	).Scan(&count)
	return count, err
}

// PurgeExpired deletes rows past the retention window and reports how many
// were removed. Reads already filter on the window, so purge timing only
// affects storage, not visibility.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE created_at <= $1`,
		time.Now().Add(-RetentionWindow),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
