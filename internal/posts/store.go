package posts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a post does not exist.
var ErrNotFound = errors.New("posts: not found")

// Post is a persisted post record.
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comment is a persisted comment on a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists posts and comments in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreatePost stores a new post and fills in its generated id and creation
// time.
func (s *Store) CreatePost(ctx context.Context, p *Post) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO posts (user_id, content) VALUES ($1, $2) RETURNING id, created_at`,
		p.UserID, p.Content,
	).Scan(&p.ID, &p.CreatedAt)
}

// GetPost returns a post by id, or ErrNotFound.
func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	var p Post
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, content, likes, created_at FROM posts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.UserID, &p.Content, &p.Likes, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPosts returns all posts, newest first.
func (s *Store) ListPosts(ctx context.Context) ([]Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, content, likes, created_at FROM posts ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.Content, &p.Likes, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, rows.Err()
}

// LikePost increments a post's like counter and returns the new count and
// the post owner's id. The owner is what notification events need as their
// recipient. Returns ErrNotFound if the post does not exist.
func (s *Store) LikePost(ctx context.Context, id string) (int, string, error) {
	var likes int
	var ownerID string
	err := s.pool.QueryRow(ctx,
		`UPDATE posts SET likes = likes + 1 WHERE id = $1 RETURNING likes, user_id`,
		id,
	).Scan(&likes, &ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", ErrNotFound
	}
	if err != nil {
		return 0, "", err
	}
	return likes, ownerID, nil
}

// CreateComment stores a new comment and fills in its generated id and
// creation time.
func (s *Store) CreateComment(ctx context.Context, c *Comment) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO comments (post_id, user_id, text) VALUES ($1, $2, $3) RETURNING id, created_at`,
		c.PostID, c.UserID, c.Text,
	).Scan(&c.ID, &c.CreatedAt)
}

// ListComments returns a post's comments, oldest first.
func (s *Store) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, post_id, user_id, text, created_at FROM comments WHERE post_id = $1 ORDER BY created_at ASC`,
		postID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if comments == nil {
		comments = []Comment{}
	}
	return comments, rows.Err()
}
