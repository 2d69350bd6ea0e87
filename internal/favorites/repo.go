package favorites

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/realisereallies/anime/internal/apperr"
	"github.com/realisereallies/anime/internal/policy"
	"github.com/realisereallies/anime/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) ExistsByTitle(ctx context.Context, userID, animeTitle string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM favorites WHERE user_id = ? AND anime_title = ?
	`, userID, animeTitle).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("favorite exists: %w", err)
	}
	return n > 0, nil
}

// Create inserts f. A duplicate (user, title) pair yields a Conflict.
func (r *Repo) Create(ctx context.Context, f models.Favorite) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	var poster sql.NullString
	if f.PosterURL != "" {
		poster = sql.NullString{String: f.PosterURL, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO favorites (id, anime_title, poster_url, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, f.AnimeTitle, poster, f.UserID, f.CreatedAt)
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return apperr.Conflict("anime already in favorites")
		}
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]models.Favorite, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, anime_title, poster_url, user_id, created_at
		FROM favorites
		WHERE user_id = ?
		ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	out := []models.Favorite{}
	for rows.Next() {
		var f models.Favorite
		var poster sql.NullString
		if err := rows.Scan(&f.ID, &f.AnimeTitle, &poster, &f.UserID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite row: %w", err)
		}
		f.PosterURL = poster.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (r *Repo) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM favorites WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count favorites: %w", err)
	}
	return n, nil
}

// Delete removes one favorite by id within scope.
// Owner returns the author id of row id, or "" when it does not exist.
func (r *Repo) Owner(ctx context.Context, id string) (string, error) {
	return policy.LookupOwner(ctx, r.DB, policy.KindFavorite, id)
}

func (r *Repo) Delete(ctx context.Context, scope policy.Scope, id string) (bool, error) {
	if !scope.Valid() {
		return false, nil
	}
	stmt, args := scope.DeleteBy("id", id)
	res, err := r.DB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete favorite rows: %w", err)
	}
	return n > 0, nil
}
