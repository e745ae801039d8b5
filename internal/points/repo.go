package points

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GideonNut/moviemeter/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// AddVotePoints accrues vote reputation for address. The increment is a
// single atomic upsert; concurrent accruals to the same address never lose
// updates. Amounts are strictly positive — nothing in this core decreases
// points.
func (r *Repo) AddVotePoints(ctx context.Context, address string, amount int64) error {
	return r.add(ctx, address, amount, 0)
}

// AddCommentPoints accrues comment reputation for address.
func (r *Repo) AddCommentPoints(ctx context.Context, address string, amount int64) error {
	return r.add(ctx, address, 0, amount)
}

func (r *Repo) add(ctx context.Context, address string, votePts, commentPts int64) error {
	if address == "" {
		return errors.New("address required")
	}
	if votePts < 0 || commentPts < 0 {
		return fmt.Errorf("negative accrual (vote=%d comment=%d)", votePts, commentPts)
	}
	if votePts == 0 && commentPts == 0 {
		return nil
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO points (address, vote_points, comment_points, total_points, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
		  vote_points = vote_points + excluded.vote_points,
		  comment_points = comment_points + excluded.comment_points,
		  total_points = total_points + excluded.total_points,
		  last_updated = excluded.last_updated
	`, address, votePts, commentPts, votePts+commentPts, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("accrue points for %s: %w", address, err)
	}
	return nil
}

// Get returns the record for address, or (nil, nil) when none exists yet.
func (r *Repo) Get(ctx context.Context, address string) (*models.PointsRecord, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT address, vote_points, comment_points, total_points, last_updated
		FROM points
		WHERE address = ?
	`, address)

	var p models.PointsRecord
	if err := row.Scan(&p.Address, &p.VotePoints, &p.CommentPoints, &p.TotalPoints, &p.LastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan points: %w", err)
	}
	return &p, nil
}

// Leaderboard returns records ordered by total points descending.
func (r *Repo) Leaderboard(ctx context.Context, limit int) ([]models.PointsRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT address, vote_points, comment_points, total_points, last_updated
		FROM points
		ORDER BY total_points DESC, address ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	defer rows.Close()

	out := make([]models.PointsRecord, 0, limit)
	for rows.Next() {
		var p models.PointsRecord
		if err := rows.Scan(&p.Address, &p.VotePoints, &p.CommentPoints, &p.TotalPoints, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan points row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}
