package favreviews

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/realisereallies/anime/internal/apperr"
	"github.com/realisereallies/anime/internal/policy"
	"github.com/realisereallies/anime/internal/reviews"
	"github.com/realisereallies/anime/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) ReviewExists(ctx context.Context, reviewID string) (bool, error) {
	return reviews.Exists(ctx, r.DB, reviewID)
}

func (r *Repo) IsFavorite(ctx context.Context, userID, reviewID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM favorite_reviews WHERE user_id = ? AND review_id = ?
	`, userID, reviewID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("favorite review exists: %w", err)
	}
	return n > 0, nil
}

func (r *Repo) Create(ctx context.Context, fr models.FavoriteReview) error {
	if fr.CreatedAt.IsZero() {
		fr.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO favorite_reviews (id, review_id, user_id, created_at)
		VALUES (?, ?, ?, ?)
	`, fr.ID, fr.ReviewID, fr.UserID, fr.CreatedAt)
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return apperr.Conflict("review already in favorites")
		}
		if apperr.IsForeignKeyViolation(err) {
			return apperr.NotFound("review not found")
		}
		return fmt.Errorf("insert favorite review: %w", err)
	}
	return nil
}

// ListByUser returns the user's favorite reviews, most recently saved
// first.
func (r *Repo) ListByUser(ctx context.Context, userID string, limit int) ([]models.FavoriteReviewView, error) {
	limit, _ = reviews.ClampPage(limit, 0)

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+reviews.ViewColumns+`, fr.id`+reviews.ViewFrom+`
		JOIN favorite_reviews fr ON fr.review_id = r.id
		WHERE fr.user_id = ?
		ORDER BY fr.created_at DESC, fr.id
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list favorite reviews: %w", err)
	}
	defer rows.Close()

	out := []models.FavoriteReviewView{}
	for rows.Next() {
		var favID string
		v, err := reviews.ScanView(rows, &favID)
		if err != nil {
			return nil, fmt.Errorf("scan favorite review row: %w", err)
		}
		out = append(out, models.FavoriteReviewView{ReviewView: v, FavoriteID: favID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Delete removes rows matching column = value inside scope and reports
// how many went.
// Owner returns the author id of row id, or "" when it does not exist.
func (r *Repo) Owner(ctx context.Context, id string) (string, error) {
	return policy.LookupOwner(ctx, r.DB, policy.KindFavoriteReview, id)
}

func (r *Repo) Delete(ctx context.Context, scope policy.Scope, column, value string) (int64, error) {
	if !scope.Valid() {
		return 0, nil
	}
	stmt, args := scope.DeleteBy(column, value)
	res, err := r.DB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete favorite review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete favorite review rows: %w", err)
	}
	return n, nil
}
