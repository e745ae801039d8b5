package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GideonNut/moviemeter/pkg/models"
)

// ErrConflict is returned when a conditional contract-id write loses the
// race. Callers should wait for the winner, not retry the write.
var ErrConflict = errors.New("contract id update conflict")

// ErrNotFound is returned by callers that need a hard failure for a missing
// media item; the repo itself reports absence as (nil, nil).
var ErrNotFound = errors.New("media not found")

type Repo struct {
	DB *sql.DB
}

type ListQuery struct {
	Kind   models.MediaKind // empty = both variants
	Q      string           // keyword search in title
	Genres []string         // any-match
	Limit  int
	Offset int
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const mediaColumns = `id, kind, provider_id, title, description, poster_path, genres,
	release_year, first_air_date, yes_votes, no_votes, comment_count, contract_id,
	created_at, updated_at`

func (r *Repo) GetByID(ctx context.Context, id string) (*models.MediaItem, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+mediaColumns+`
		FROM media
		WHERE id = ?
	`, id)
	return scanMedia(row)
}

func (r *Repo) GetByProviderID(ctx context.Context, kind models.MediaKind, providerID string) (*models.MediaItem, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+mediaColumns+`
		FROM media
		WHERE kind = ? AND provider_id = ?
	`, kind, providerID)
	return scanMedia(row)
}

func (r *Repo) Insert(ctx context.Context, m *models.MediaItem) error {
	genresJSON, err := json.Marshal(m.Genres)
	if err != nil {
		return fmt.Errorf("marshal genres: %w", err)
	}

	var releaseYear sql.NullInt64
	var firstAirDate sql.NullString
	switch m.Kind {
	case models.KindMovie:
		if m.Movie != nil && m.Movie.ReleaseYear > 0 {
			releaseYear = sql.NullInt64{Int64: int64(m.Movie.ReleaseYear), Valid: true}
		}
	case models.KindTV:
		if m.TV != nil && m.TV.FirstAirDate != "" {
			firstAirDate = sql.NullString{String: m.TV.FirstAirDate, Valid: true}
		}
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO media (id, kind, provider_id, title, description, poster_path, genres,
			release_year, first_air_date, yes_votes, no_votes, comment_count, contract_id,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, NULL, ?, ?)
	`, m.ID, m.Kind, m.ProviderID, m.Title, m.Description, m.PosterPath, string(genresJSON),
		releaseYear, firstAirDate, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// UpdateMetadata refreshes the provider-sourced mutable fields of an existing
// row. Votes, comment count, contract id and created_at are never touched.
func (r *Repo) UpdateMetadata(ctx context.Context, m *models.MediaItem, now time.Time) error {
	genresJSON, err := json.Marshal(m.Genres)
	if err != nil {
		return fmt.Errorf("marshal genres: %w", err)
	}

	var releaseYear sql.NullInt64
	var firstAirDate sql.NullString
	if m.Kind == models.KindMovie && m.Movie != nil && m.Movie.ReleaseYear > 0 {
		releaseYear = sql.NullInt64{Int64: int64(m.Movie.ReleaseYear), Valid: true}
	}
	if m.Kind == models.KindTV && m.TV != nil && m.TV.FirstAirDate != "" {
		firstAirDate = sql.NullString{String: m.TV.FirstAirDate, Valid: true}
	}

	_, err = r.DB.ExecContext(ctx, `
		UPDATE media
		SET title = ?, description = ?, poster_path = ?, genres = ?,
			release_year = ?, first_air_date = ?, updated_at = ?
		WHERE kind = ? AND provider_id = ?
	`, m.Title, m.Description, m.PosterPath, string(genresJSON),
		releaseYear, firstAirDate, now, m.Kind, m.ProviderID)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

// UpdateTally overwrites the cached counters wholesale with a ledger
// snapshot. Never incremented locally; the chain is authoritative.
func (r *Repo) UpdateTally(ctx context.Context, id string, tally models.Tally) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE media
		SET yes_votes = ?, no_votes = ?, updated_at = ?
		WHERE id = ?
	`, tally.Yes, tally.No, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update tally: %w", err)
	}
	return nil
}

// ClaimContractID attempts the NULL -> allocating transition. Exactly one
// concurrent caller wins; the rest get ErrConflict and should poll.
func (r *Repo) ClaimContractID(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE media
		SET contract_id = ?
		WHERE id = ? AND contract_id IS NULL
	`, models.AllocatingContractID, id)
	if err != nil {
		return fmt.Errorf("claim contract id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ReleaseContractID rolls an in-flight claim back to NULL so a later
// attempt can retry. A record must never stay stuck "allocating".
func (r *Repo) ReleaseContractID(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE media
		SET contract_id = NULL
		WHERE id = ? AND contract_id = ?
	`, id, models.AllocatingContractID)
	if err != nil {
		return fmt.Errorf("release contract id: %w", err)
	}
	return nil
}

// FinalizeContractID writes the allocating -> final transition. This is the
// only write that makes the id visible to readers, and it succeeds only for
// the claim holder.
func (r *Repo) FinalizeContractID(ctx context.Context, id string, contractID int64) error {
	if contractID < 0 {
		return fmt.Errorf("finalize contract id: invalid id %d", contractID)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE media
		SET contract_id = ?, updated_at = ?
		WHERE id = ? AND contract_id = ?
	`, contractID, time.Now().UTC(), id, models.AllocatingContractID)
	if err != nil {
		return fmt.Errorf("finalize contract id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ListCreatedSince returns ids of rows of the given kind created at or after
// cutoff. Feeds the retraction pipeline.
func (r *Repo) ListCreatedSince(ctx context.Context, kind models.MediaKind, cutoff time.Time) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id FROM media
		WHERE kind = ? AND created_at >= ?
	`, kind, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list created since: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return ids, nil
}

// Delete hard-deletes one media row. Comments go with it via the foreign-key
// cascade. On-chain state is never touched.
func (r *Repo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete media: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	row := r.DB.QueryRowContext(ctx, sqlStr, args...)
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.MediaItem, error) {
	sqlStr, args := buildListSQL(q, false)

	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]models.MediaItem, 0, q.Limit)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// buildListSQL builds either COUNT(*) or the SELECT list. The genre filter
// is any-match via LIKE against the stored JSON text.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	baseSelect := `SELECT ` + mediaColumns + ` FROM media`
	if countOnly {
		baseSelect = `SELECT COUNT(*) FROM media`
	}

	var where []string
	var args []any

	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.Kind)
	}

	if strings.TrimSpace(q.Q) != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(q.Q))+"%")
	}

	if len(q.Genres) > 0 {
		var genreOr []string
		for _, g := range q.Genres {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			genreOr = append(genreOr, "LOWER(genres) LIKE ?")
			args = append(args, `%`+strings.ToLower(g)+`%`)
		}
		if len(genreOr) > 0 {
			where = append(where, "("+strings.Join(genreOr, " OR ")+")")
		}
	}

	sqlStr := baseSelect
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}

	if !countOnly {
		sqlStr += " ORDER BY created_at DESC"
		sqlStr += " LIMIT ? OFFSET ?"
		limit := q.Limit
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		args = append(args, limit, offset)
	}

	return sqlStr, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(row rowScanner) (*models.MediaItem, error) {
	var (
		m            models.MediaItem
		description  sql.NullString
		posterPath   sql.NullString
		genresJSON   string
		releaseYear  sql.NullInt64
		firstAirDate sql.NullString
		contractID   sql.NullInt64
	)

	if err := row.Scan(
		&m.ID, &m.Kind, &m.ProviderID, &m.Title, &description, &posterPath, &genresJSON,
		&releaseYear, &firstAirDate, &m.Votes.Yes, &m.Votes.No, &m.CommentCount, &contractID,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan media: %w", err)
	}

	m.Description = description.String
	m.PosterPath = posterPath.String
	_ = json.Unmarshal([]byte(genresJSON), &m.Genres)
	if m.Genres == nil {
		m.Genres = []string{}
	}
	if contractID.Valid {
		cid := contractID.Int64
		m.ContractID = &cid
	}

	switch m.Kind {
	case models.KindMovie:
		m.Movie = &models.MovieDetails{}
		if releaseYear.Valid {
			m.Movie.ReleaseYear = int(releaseYear.Int64)
		}
	case models.KindTV:
		m.TV = &models.TVDetails{FirstAirDate: firstAirDate.String}
	}

	return &m, nil
}
