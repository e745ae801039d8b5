package comments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GideonNut/moviemeter/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Create inserts a comment and bumps the media item's derived comment
// count in the same transaction.
func (r *Repo) Create(ctx context.Context, mediaID, address, content string) (*models.Comment, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comments (id, media_id, address, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, mediaID, address, content, now); err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE media SET comment_count = comment_count + 1, updated_at = ? WHERE id = ?
	`, now, mediaID); err != nil {
		return nil, fmt.Errorf("bump comment count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &models.Comment{
		ID:        id,
		MediaID:   mediaID,
		Address:   address,
		Content:   content,
		Likes:     []string{},
		Replies:   []models.Reply{},
		Timestamp: now,
	}, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, media_id, address, content, created_at
		FROM comments
		WHERE id = ?
	`, id)

	var cm models.Comment
	if err := row.Scan(&cm.ID, &cm.MediaID, &cm.Address, &cm.Content, &cm.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan comment: %w", err)
	}

	if err := r.loadLikes(ctx, &cm); err != nil {
		return nil, err
	}
	if err := r.loadReplies(ctx, &cm); err != nil {
		return nil, err
	}
	return &cm, nil
}

// Like records address's like exactly once. Returns false when the address
// already liked the comment.
func (r *Repo) Like(ctx context.Context, commentID, address string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO comment_likes (comment_id, address, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(comment_id, address) DO NOTHING
	`, commentID, address, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert like: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Reply appends to the comment's reply thread.
func (r *Repo) Reply(ctx context.Context, commentID, address, content string) (*models.Reply, error) {
	reply := models.Reply{
		ID:        uuid.NewString(),
		Address:   address,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO comment_replies (id, comment_id, address, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, reply.ID, commentID, address, content, reply.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert reply: %w", err)
	}
	return &reply, nil
}

func (r *Repo) ListByMedia(ctx context.Context, mediaID string, limit, offset int) ([]models.Comment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, media_id, address, content, created_at
		FROM comments
		WHERE media_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, mediaID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	out := make([]models.Comment, 0, limit)
	for rows.Next() {
		var cm models.Comment
		if err := rows.Scan(&cm.ID, &cm.MediaID, &cm.Address, &cm.Content, &cm.Timestamp); err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		out = append(out, cm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}

	for i := range out {
		if err := r.loadLikes(ctx, &out[i]); err != nil {
			return nil, err
		}
		if err := r.loadReplies(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) loadLikes(ctx context.Context, cm *models.Comment) error {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT address FROM comment_likes
		WHERE comment_id = ?
		ORDER BY created_at ASC
	`, cm.ID)
	if err != nil {
		return fmt.Errorf("load likes: %w", err)
	}
	defer rows.Close()

	cm.Likes = []string{}
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return fmt.Errorf("scan like: %w", err)
		}
		cm.Likes = append(cm.Likes, addr)
	}
	return rows.Err()
}

func (r *Repo) loadReplies(ctx context.Context, cm *models.Comment) error {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, address, content, created_at FROM comment_replies
		WHERE comment_id = ?
		ORDER BY created_at ASC
	`, cm.ID)
	if err != nil {
		return fmt.Errorf("load replies: %w", err)
	}
	defer rows.Close()

	cm.Replies = []models.Reply{}
	for rows.Next() {
		var rp models.Reply
		if err := rows.Scan(&rp.ID, &rp.Address, &rp.Content, &rp.Timestamp); err != nil {
			return fmt.Errorf("scan reply: %w", err)
		}
		cm.Replies = append(cm.Replies, rp)
	}
	return rows.Err()
}
