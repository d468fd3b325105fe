package stories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StoryTTL is how long a story stays active after creation.
const StoryTTL = 24 * time.Hour

// Story is a persisted story record. A story is active iff now < ExpiresAt;
// reads filter on that, so a row lingering past its expiry event is never
// visible.
type Story struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store persists stories in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert stores a new story expiring StoryTTL from now and fills in its
// generated id and timestamps. Both timestamps come from the database
// clock, so expires_at is exactly created_at + StoryTTL.
func (s *Store) Insert(ctx context.Context, st *Story) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO stories (user_id, content, expires_at)
		 VALUES ($1, $2, now() + make_interval(secs => $3))
		 RETURNING id, created_at, expires_at`,
		st.UserID, st.Content, StoryTTL.Seconds(),
	).Scan(&st.ID, &st.CreatedAt, &st.ExpiresAt)
}

// ListActive returns all stories that have not expired, newest first.
func (s *Store) ListActive(ctx context.Context) ([]Story, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, content, created_at, expires_at
		 FROM stories WHERE expires_at > now()
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStories(rows)
}

// ListActiveByUser returns a single user's unexpired stories, newest first.
func (s *Store) ListActiveByUser(ctx context.Context, userID string) ([]Story, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, content, created_at, expires_at
		 FROM stories WHERE user_id = $1 AND expires_at > now()
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStories(rows)
}

// Delete removes a story by id. Deleting a missing story is not an error;
// expiry events are delivered at-least-once.
func (s *Store) Delete(ctx context.Context, storyID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM stories WHERE id = $1`, storyID)
	return err
}

// ListExpired returns ids and owners of stories past their expiry that are
// still on disk, oldest first, capped at limit. The sweep loop uses this to
// emit expiry events.
func (s *Store) ListExpired(ctx context.Context, limit int) ([]Story, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, content, created_at, expires_at
		 FROM stories WHERE expires_at <= now()
		 ORDER BY expires_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStories(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanStories(rows pgxRows) ([]Story, error) {
	var stories []Story
	for rows.Next() {
		var st Story
		if err := rows.Scan(&st.ID, &st.UserID, &st.Content, &st.CreatedAt, &st.ExpiresAt); err != nil {
			return nil, err
		}
		stories = append(stories, st)
	}
	if stories == nil {
		stories = []Story{}
	}
	return stories, rows.Err()
}
