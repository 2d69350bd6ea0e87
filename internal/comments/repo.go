package comments

import (
	"context"
	"database/sql"
	"fmt"
	"time"

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

func (r *Repo) Create(ctx context.Context, cm models.Comment) error {
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO comments (id, content, review_id, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, cm.ID, cm.Content, cm.ReviewID, cm.UserID, cm.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// ListByReview returns a review's comments oldest first.
func (r *Repo) ListByReview(ctx context.Context, reviewID string, limit, offset int) ([]models.Comment, error) {
	limit, offset = reviews.ClampPage(limit, offset)

	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.id, c.content, c.review_id, c.user_id, u.name, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.review_id = ?
		ORDER BY c.created_at ASC, c.id
		LIMIT ? OFFSET ?
	`, reviewID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	out := make([]models.Comment, 0, limit)
	for rows.Next() {
		var cm models.Comment
		if err := rows.Scan(&cm.ID, &cm.Content, &cm.ReviewID, &cm.UserID, &cm.AuthorName, &cm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment row: %w", err)
		}
		out = append(out, cm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Owner returns the author id of row id, or "" when it does not exist.
func (r *Repo) Owner(ctx context.Context, id string) (string, error) {
	return policy.LookupOwner(ctx, r.DB, policy.KindComment, id)
}

func (r *Repo) Delete(ctx context.Context, scope policy.Scope, id string) (bool, error) {
	if !scope.Valid() {
		return false, nil
	}
	stmt, args := scope.DeleteBy("id", id)
	res, err := r.DB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete comment rows: %w", err)
	}
	return n > 0, nil
}
